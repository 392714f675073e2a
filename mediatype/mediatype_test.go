package mediatype

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    MediaType
		wantErr bool
	}{
		{"application/vnd.docker.distribution.manifest.v2+json", ManifestV2S2, false},
		{"application/vnd.docker.distribution.manifest.v2+json; charset=utf-8", ManifestV2S2, false},
		{"application/vnd.oci.image.index.v1+json", OCIIndex, false},
		{"text/plain", Unknown, true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAcceptHeaderDefault(t *testing.T) {
	got := AcceptHeader(nil)
	want := "application/vnd.docker.distribution.manifest.list.v2+json," +
		"application/vnd.docker.distribution.manifest.v2+json," +
		"application/vnd.oci.image.index.v1+json," +
		"application/vnd.oci.image.manifest.v1+json," +
		"application/vnd.docker.distribution.manifest.v1+prettyjws"
	if got != want {
		t.Errorf("AcceptHeader(nil) = %q, want %q", got, want)
	}
}

func TestIsManifestList(t *testing.T) {
	if !IsManifestList(ManifestList) || !IsManifestList(OCIIndex) {
		t.Error("expected ManifestList and OCIIndex to be manifest lists")
	}
	if IsManifestList(ManifestV2S2) {
		t.Error("ManifestV2S2 should not be a manifest list")
	}
}
