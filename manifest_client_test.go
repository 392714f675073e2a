package dkregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ossb-labs/dkregistry/mediatype"
)

const testSchema2Manifest = `{
	"schemaVersion": 2,
	"mediaType": "application/vnd.docker.distribution.manifest.v2+json",
	"config": {"mediaType": "application/vnd.docker.container.image.v1+json", "size": 1, "digest": "sha256:cfg0000000000000000000000000000000000000000000000000000000000000"},
	"layers": [{"mediaType": "application/vnd.docker.image.rootfs.diff.tar.gzip", "size": 1, "digest": "sha256:1ay0000000000000000000000000000000000000000000000000000000000000"}]
}`

func TestHasManifest_Found(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodHead && r.URL.Path == "/v2/repo/manifests/latest":
			w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	mt, ok, err := c.HasManifest(context.Background(), "repo", "latest", nil)
	if err != nil {
		t.Fatalf("HasManifest() error = %v", err)
	}
	if !ok || mt != mediatype.ManifestV2S2 {
		t.Errorf("HasManifest() = (%v, %v), want (ManifestV2S2, true)", mt, ok)
	}
}

func TestHasManifest_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, ok, err := c.HasManifest(context.Background(), "repo", "missing", nil)
	if err != nil {
		t.Fatalf("HasManifest() error = %v", err)
	}
	if ok {
		t.Error("HasManifest() ok = true, want false for a 404")
	}
}

func TestFetchManifest_DecodesSchema2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v2/":
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodGet && r.URL.Path == "/v2/repo/manifests/latest":
			w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
			w.Write([]byte(testSchema2Manifest))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	m, err := c.FetchManifest(context.Background(), "repo", "latest", nil)
	if err != nil {
		t.Fatalf("FetchManifest() error = %v", err)
	}
	layers, err := m.Layers()
	if err != nil {
		t.Fatalf("Layers() error = %v", err)
	}
	if len(layers) != 1 {
		t.Fatalf("len(layers) = %d, want 1", len(layers))
	}
}
