package dkregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	digest "github.com/opencontainers/go-digest"
)

func TestGetBlob_Direct(t *testing.T) {
	want := []byte("blob-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/":
			w.WriteHeader(http.StatusOK)
		case "/v2/repo/blobs/sha256:aaaa":
			w.Write(want)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.GetBlob(context.Background(), "repo", digest.Digest("sha256:aaaa"))
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("GetBlob() = %q, want %q", got, want)
	}
}

func TestGetBlob_CrossHostRedirectDropsAuth(t *testing.T) {
	want := []byte("object-store-bytes")
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("cross-host request carried Authorization: %q", r.Header.Get("Authorization"))
		}
		w.Write(want)
	}))
	defer storage.Close()

	regSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/":
			w.Header().Set("Www-Authenticate", `Basic realm="registry"`)
			w.WriteHeader(http.StatusUnauthorized)
		case "/v2/repo/blobs/sha256:bbbb":
			if r.Header.Get("Authorization") == "" {
				t.Error("initial request to registry host is missing Authorization")
			}
			w.Header().Set("Location", storage.URL+"/objects/bbbb")
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer regSrv.Close()

	c, err := Configure(strings.TrimPrefix(regSrv.URL, "http://")).Insecure(true).Credentials("u", "p").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got, err := c.GetBlob(context.Background(), "repo", digest.Digest("sha256:bbbb"))
	if err != nil {
		t.Fatalf("GetBlob() error = %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("GetBlob() = %q, want %q", got, want)
	}
}

func TestConcurrentGetBlobs_PreservesOrder(t *testing.T) {
	bodies := map[string]string{
		"sha256:1111": "one",
		"sha256:2222": "two",
		"sha256:3333": "three",
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		for d, body := range bodies {
			if r.URL.Path == "/v2/repo/blobs/"+d {
				w.Write([]byte(body))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	digests := []digest.Digest{"sha256:1111", "sha256:2222", "sha256:3333"}
	results, err := c.ConcurrentGetBlobs(context.Background(), "repo", digests)
	if err != nil {
		t.Fatalf("ConcurrentGetBlobs() error = %v", err)
	}
	for i, want := range digests {
		if results[i].Digest != want {
			t.Errorf("results[%d].Digest = %v, want %v", i, results[i].Digest, want)
		}
		if string(results[i].Data) != bodies[string(want)] {
			t.Errorf("results[%d].Data = %q, want %q", i, results[i].Data, bodies[string(want)])
		}
	}
}
