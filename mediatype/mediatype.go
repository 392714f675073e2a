// Package mediatype enumerates the manifest media types defined by
// the Docker Registry v2 / OCI distribution specs and orders them for
// use in an Accept header.
package mediatype

import "github.com/ossb-labs/dkregistry/internal/regerrors"

// MediaType is a closed enumeration of manifest media types.
type MediaType int

const (
	// Unknown is the zero value; it is never produced by Parse for a
	// recognized string.
	Unknown MediaType = iota
	ManifestV2S1Signed
	ManifestV2S2
	OCIManifest
	ManifestList
	OCIIndex
)

// canonical maps each MediaType to its wire-format MIME string.
var canonical = map[MediaType]string{
	ManifestV2S1Signed: "application/vnd.docker.distribution.manifest.v1+prettyjws",
	ManifestV2S2:       "application/vnd.docker.distribution.manifest.v2+json",
	ManifestList:       "application/vnd.docker.distribution.manifest.list.v2+json",
	OCIManifest:        "application/vnd.oci.image.manifest.v1+json",
	OCIIndex:           "application/vnd.oci.image.index.v1+json",
}

var fromString = func() map[string]MediaType {
	m := make(map[string]MediaType, len(canonical))
	for mt, s := range canonical {
		m[s] = mt
	}
	return m
}()

// String returns the canonical MIME string for mt.
func (mt MediaType) String() string {
	if s, ok := canonical[mt]; ok {
		return s
	}
	return "application/octet-stream"
}

// Parse maps a Content-Type string to a MediaType, returning
// UnknownMediaType (per spec.md §4.2) if it is not recognized. Any
// ";"-delimited parameters (e.g. charset) are ignored.
func Parse(contentType string) (MediaType, error) {
	base := contentType
	for i, c := range contentType {
		if c == ';' {
			base = contentType[:i]
			break
		}
	}
	for i := len(base) - 1; i >= 0 && base[i] == ' '; i-- {
		base = base[:i]
	}
	if mt, ok := fromString[base]; ok {
		return mt, nil
	}
	return Unknown, regerrors.New(regerrors.KindUnknownMediaType, "parse_media_type", "unrecognized manifest media type: "+contentType)
}

// DefaultAccept is the default, preference-ordered list of manifest
// media types advertised in a manifest GET/HEAD's Accept header:
// Docker manifest list, Docker schema 2, OCI index, OCI image
// manifest, and the legacy signed schema-1 format last.
var DefaultAccept = []MediaType{
	ManifestList,
	ManifestV2S2,
	OCIIndex,
	OCIManifest,
	ManifestV2S1Signed,
}

// AcceptHeader joins the given media types (or DefaultAccept, if
// empty) into a single comma-separated Accept header value, preserving
// the caller's ordering.
func AcceptHeader(types []MediaType) string {
	if len(types) == 0 {
		types = DefaultAccept
	}
	out := ""
	for i, mt := range types {
		if i > 0 {
			out += ","
		}
		out += mt.String()
	}
	return out
}

// IsManifestList reports whether mt represents a multi-platform
// manifest list or OCI index, whose layer set is undefined until a
// platform-specific child manifest is selected (spec.md §4.5).
func IsManifestList(mt MediaType) bool {
	return mt == ManifestList || mt == OCIIndex
}
