// Package reference parses and represents the docker:// image
// reference grammar: an optional scheme, an optional registry host, a
// slash-joined repository path, and an optional tag or digest suffix.
package reference

import (
	"fmt"
	"strings"

	digest "github.com/opencontainers/go-digest"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// DefaultRegistry is the registry host assumed when none is given.
const DefaultRegistry = "registry-1.docker.io"

// DefaultTag is the tag assumed when a reference carries neither a tag
// nor a digest.
const DefaultTag = "latest"

const defaultScheme = "docker"

// isRegistryHost reports whether the first path segment of a reference
// names a registry host rather than the start of the repository path.
//
// §4.1 step 5 states this as "matches the path-component regex", which
// original_source/src/reference.rs implements literally — but that
// heuristic misclassifies any dotted host that also happens to satisfy
// the path-component grammar (e.g. "quay.io", which matches
// `[a-z0-9]+([._-][a-z0-9]+)*`), breaking spec.md §8 scenario S2. Real
// Docker references disambiguate by host shape instead: a first
// segment is a registry if it contains a "." or ":" (a domain or a
// host:port) or is literally "localhost"; everything else is part of
// the repository path and the registry defaults.
func isRegistryHost(s string) bool {
	return s == "localhost" || strings.ContainsAny(s, ".:")
}

// maxRepositoryBytes is the maximum length, in bytes, of a repository name.
const maxRepositoryBytes = 127

// Version is the version part of a reference: either a Tag or a Digest.
type Version interface {
	isVersion()
	String() string
}

// Tag is a named, mutable version of a repository.
type Tag struct {
	Name string
}

func (Tag) isVersion()       {}
func (t Tag) String() string { return t.Name }

// Digest is a content-addressed, immutable version of a repository.
type Digest struct {
	d digest.Digest
}

func (Digest) isVersion() {}

// String renders the digest as "algorithm:hex".
func (d Digest) String() string { return d.d.String() }

// Algorithm returns the digest algorithm, e.g. "sha256".
func (d Digest) Algorithm() string { return d.d.Algorithm().String() }

// Hex returns the digest's hex-encoded value.
func (d Digest) Hex() string { return d.d.Encoded() }

// NewDigest builds a Digest from an algorithm and hex value without
// requiring the caller to pre-format the "alg:hex" string.
func NewDigest(algorithm, hex string) Digest {
	return Digest{d: digest.NewDigestFromEncoded(digest.Algorithm(algorithm), hex)}
}

// Reference is the normalized identity of an image: a registry host,
// a repository path, and a version (tag or digest). It is constructed
// only via Parse or New, both of which reject an empty repository and
// one longer than 127 bytes. The characters of the repository's path
// components are not validated by either.
type Reference struct {
	hasSchema  bool
	rawInput   string
	registry   string
	repository string
	version    Version
}

// New builds a Reference directly from its parts, applying the same
// defaults Parse would (registry defaults to DefaultRegistry, version
// defaults to tag "latest").
func New(registry, repository string, version Version) (Reference, error) {
	if registry == "" {
		registry = DefaultRegistry
	}
	if version == nil {
		version = Tag{Name: DefaultTag}
	}
	if repository == "" {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "new_reference", "empty repository name")
	}
	if len(repository) > maxRepositoryBytes {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "new_reference", "repository name too long")
	}
	return Reference{
		registry:   registry,
		repository: repository,
		version:    version,
	}, nil
}

// Registry returns the registry host (including port, if any).
func (r Reference) Registry() string { return r.registry }

// Repository returns the slash-joined repository path.
func (r Reference) Repository() string { return r.repository }

// Version returns the tag or digest version.
func (r Reference) Version() Version { return r.version }

// HasSchema reports whether the parsed input began with "docker://".
func (r Reference) HasSchema() bool { return r.hasSchema }

// RawInput returns the original text given to Parse, preserved for
// round-tripping and diagnostics. It is empty for references built
// via New.
func (r Reference) RawInput() string { return r.rawInput }

// String renders "<registry>/<repository>:<tag>" or
// "<registry>/<repository>@<alg>:<hex>".
func (r Reference) String() string {
	switch v := r.version.(type) {
	case Digest:
		return fmt.Sprintf("%s/%s@%s", r.registry, r.repository, v.String())
	default:
		return fmt.Sprintf("%s/%s:%s", r.registry, r.repository, r.version.String())
	}
}

// URL renders the reference back into docker:// form.
func (r Reference) URL() string {
	switch v := r.version.(type) {
	case Digest:
		return fmt.Sprintf("%s://%s/%s@%s", defaultScheme, r.registry, r.repository, v.String())
	default:
		return fmt.Sprintf("%s://%s/%s:%s", defaultScheme, r.registry, r.repository, r.version.String())
	}
}

// Parse parses a docker:// image reference per the grammar in
// spec.md §4.1:
//
//	[docker://][host/]<path>[:<tag>|@<alg>:<hex>]
func Parse(input string) (Reference, error) {
	rest := input

	hasSchema := strings.HasPrefix(rest, "docker://")
	if hasSchema {
		rest = strings.TrimPrefix(rest, "docker://")
	}

	var components []string
	for _, s := range strings.Split(rest, "/") {
		if s != "" {
			components = append(components, s)
		}
	}
	if len(components) == 0 {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "parse_reference", "missing image name")
	}

	last := components[len(components)-1]
	components = components[:len(components)-1]

	imageName, version, err := splitNameVersion(last)
	if err != nil {
		return Reference{}, err
	}
	if imageName == "" {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "parse_reference", "empty image name")
	}

	if len(components) == 0 {
		components = append(components, "library")
	}
	components = append(components, imageName)

	first := components[0]
	components = components[1:]

	var registry string
	if isRegistryHost(first) {
		registry = first
	} else {
		components = append([]string{first}, components...)
		registry = DefaultRegistry
	}

	repository := strings.Join(components, "/")
	if repository == "" {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "parse_reference", "empty repository name")
	}
	if len(repository) > maxRepositoryBytes {
		return Reference{}, regerrors.New(regerrors.KindInvalidReference, "parse_reference", "repository name too long")
	}

	return Reference{
		hasSchema:  hasSchema,
		rawInput:   input,
		registry:   registry,
		repository: repository,
		version:    version,
	}, nil
}

// splitNameVersion splits the last path segment of a reference into
// the image name and its version suffix, per spec.md §4.1 step 2.
func splitNameVersion(last string) (string, Version, error) {
	atIdx := strings.LastIndex(last, "@")
	colonIdx := strings.LastIndex(last, ":")

	switch {
	case atIdx >= 0:
		name := last[:atIdx]
		suffix := last[atIdx+1:]
		algHex := strings.SplitN(suffix, ":", 2)
		if len(algHex) != 2 {
			return "", nil, regerrors.New(regerrors.KindInvalidReference, "parse_reference", "wrong digest format")
		}
		return name, NewDigest(algHex[0], algHex[1]), nil
	case colonIdx >= 0:
		name := last[:colonIdx]
		tag := last[colonIdx+1:]
		return name, Tag{Name: tag}, nil
	default:
		return last, Tag{Name: DefaultTag}, nil
	}
}
