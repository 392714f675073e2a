package reference

import "testing"

func TestParse_DefaultNamespace(t *testing.T) {
	// S1 — default namespace
	ref, err := Parse("docker://busybox")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.Registry() != DefaultRegistry {
		t.Errorf("Registry() = %q, want %q", ref.Registry(), DefaultRegistry)
	}
	if ref.Repository() != "library/busybox" {
		t.Errorf("Repository() = %q, want %q", ref.Repository(), "library/busybox")
	}
	tag, ok := ref.Version().(Tag)
	if !ok || tag.Name != "latest" {
		t.Errorf("Version() = %#v, want tag(latest)", ref.Version())
	}
	if !ref.HasSchema() {
		t.Error("HasSchema() = false, want true")
	}
}

func TestParse_RegistryAndDigest(t *testing.T) {
	// S2 — explicit registry and digest
	ref, err := Parse("docker://quay.io/coreos/etcd@sha256:abc123")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.Registry() != "quay.io" {
		t.Errorf("Registry() = %q, want %q", ref.Registry(), "quay.io")
	}
	if ref.Repository() != "coreos/etcd" {
		t.Errorf("Repository() = %q, want %q", ref.Repository(), "coreos/etcd")
	}
	d, ok := ref.Version().(Digest)
	if !ok {
		t.Fatalf("Version() = %#v, want a Digest", ref.Version())
	}
	if d.Algorithm() != "sha256" || d.Hex() != "abc123" {
		t.Errorf("Digest = %s:%s, want sha256:abc123", d.Algorithm(), d.Hex())
	}
}

func TestParse_NoSchema(t *testing.T) {
	ref, err := Parse("alpine:3.18")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.HasSchema() {
		t.Error("HasSchema() = true, want false")
	}
	if ref.Repository() != "library/alpine" {
		t.Errorf("Repository() = %q", ref.Repository())
	}
	tag := ref.Version().(Tag)
	if tag.Name != "3.18" {
		t.Errorf("Tag = %q, want 3.18", tag.Name)
	}
}

func TestParse_MultiSegmentRepository(t *testing.T) {
	ref, err := Parse("docker://myregistry.example.com:5000/team/app/service:v1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.Registry() != "myregistry.example.com:5000" {
		t.Errorf("Registry() = %q", ref.Registry())
	}
	if ref.Repository() != "team/app/service" {
		t.Errorf("Repository() = %q", ref.Repository())
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing image name", "docker://"},
		{"wrong digest format", "docker://busybox@sha256"},
		{"repository too long", "docker://" + longRepository()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) succeeded, want error", tt.input)
			}
		})
	}
}

func longRepository() string {
	s := ""
	for i := 0; i < 130; i++ {
		s += "a"
	}
	return s
}

func TestParse_RoundTrip(t *testing.T) {
	// Invariant 1: parse then re-serialize via Display re-parses equal.
	inputs := []string{
		"docker://busybox",
		"docker://quay.io/coreos/etcd@sha256:abc123",
		"docker://registry.example.com/ns/app:v2",
	}
	for _, in := range inputs {
		ref, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", in, err)
		}
		again, err := Parse(ref.String())
		if err != nil {
			t.Fatalf("Parse(%q) [round-trip of %q] error = %v", ref.String(), in, err)
		}
		if again.Registry() != ref.Registry() || again.Repository() != ref.Repository() || again.Version().String() != ref.Version().String() {
			t.Errorf("round trip mismatch: %+v vs %+v", ref, again)
		}
	}
}

func TestNew_RepositoryTooLong(t *testing.T) {
	// Invariant 2: repository names > 127 bytes are always rejected.
	if _, err := New(DefaultRegistry, longRepository(), nil); err == nil {
		t.Error("New() succeeded with an over-length repository, want error")
	}
}

func TestParse_SingleComponentGetsLibraryPrefix(t *testing.T) {
	// Invariant 3: a single-component reference against the default
	// registry always acquires the library/ prefix.
	ref, err := Parse("busybox")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if ref.Repository() != "library/busybox" {
		t.Errorf("Repository() = %q, want library/busybox", ref.Repository())
	}
}
