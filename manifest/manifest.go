// Package manifest decodes the polymorphic manifest formats the
// registry v2 API serves — schema 1 (signed), schema 2, Docker
// manifest lists, and their OCI equivalents — into a single tagged
// value, and extracts the layer digest set a pull needs.
//
// Decoding is a two-step process, matching spec.md §4.5 and §9: the
// HTTP layer reads the raw bytes and negotiates a Content-Type first;
// this package then branches on the resulting mediatype.MediaType to
// pick a decoder.
package manifest

import (
	"encoding/json"

	"github.com/docker/distribution/manifest/manifestlist"
	"github.com/docker/distribution/manifest/schema1"
	"github.com/docker/distribution/manifest/schema2"
	digest "github.com/opencontainers/go-digest"
	ociv1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
	"github.com/ossb-labs/dkregistry/mediatype"
)

// Manifest is a tagged sum over the manifest shapes the registry v2
// API can return. Exactly one of the typed accessors is meaningful,
// selected by Kind.
type Manifest struct {
	Kind mediatype.MediaType

	s1     *schema1.SignedManifest
	s2     *schema2.Manifest
	list   *manifestlist.ManifestList
	ociM   *ociv1.Manifest
	ociIdx *ociv1.Index
}

// Decode parses raw manifest bytes according to the negotiated media
// type. An unrecognized media type yields UnknownFormat; invalid JSON
// yields MalformedManifest.
func Decode(mt mediatype.MediaType, raw []byte) (Manifest, error) {
	m := Manifest{Kind: mt}
	var err error
	switch mt {
	case mediatype.ManifestV2S1Signed:
		m.s1 = &schema1.SignedManifest{}
		if err = json.Unmarshal(raw, m.s1); err != nil && json.Valid(raw) {
			// No usable signature block to extract the payload from;
			// decode the manifest fields directly.
			m.s1 = &schema1.SignedManifest{}
			err = json.Unmarshal(raw, &m.s1.Manifest)
		}
	case mediatype.ManifestV2S2:
		m.s2 = &schema2.Manifest{}
		err = json.Unmarshal(raw, m.s2)
	case mediatype.ManifestList:
		m.list = &manifestlist.ManifestList{}
		err = json.Unmarshal(raw, m.list)
	case mediatype.OCIManifest:
		m.ociM = &ociv1.Manifest{}
		err = json.Unmarshal(raw, m.ociM)
	case mediatype.OCIIndex:
		m.ociIdx = &ociv1.Index{}
		err = json.Unmarshal(raw, m.ociIdx)
	default:
		return Manifest{}, regerrors.New(regerrors.KindUnknownFormat, "decode_manifest", "no decoder for this media type")
	}
	if err != nil {
		return Manifest{}, regerrors.Wrap(regerrors.KindMalformedManifest, "decode_manifest", "invalid manifest JSON", err)
	}
	return m, nil
}

// SchemaV1Signed returns the decoded schema-1 signed manifest, and
// whether m holds one.
func (m Manifest) SchemaV1Signed() (*schema1.SignedManifest, bool) { return m.s1, m.s1 != nil }

// SchemaV2 returns the decoded schema-2 manifest, and whether m holds one.
func (m Manifest) SchemaV2() (*schema2.Manifest, bool) { return m.s2, m.s2 != nil }

// List returns the decoded Docker manifest list, and whether m holds one.
func (m Manifest) List() (*manifestlist.ManifestList, bool) { return m.list, m.list != nil }

// OCIManifest returns the decoded OCI image manifest, and whether m holds one.
func (m Manifest) OCIManifest() (*ociv1.Manifest, bool) { return m.ociM, m.ociM != nil }

// OCIIndex returns the decoded OCI image index, and whether m holds one.
func (m Manifest) OCIIndex() (*ociv1.Index, bool) { return m.ociIdx, m.ociIdx != nil }

// Layers extracts the ordered set of layer digests a pull needs to
// fetch, per spec.md §4.5:
//   - schema-1 signed: fs_layers reversed (base layer first), duplicates kept.
//   - schema-2 / OCI manifest: layers in JSON order; the config blob is excluded.
//   - manifest list / OCI index: undefined — callers must select a
//     platform-specific child manifest by digest first.
func (m Manifest) Layers() ([]digest.Digest, error) {
	switch {
	case m.s1 != nil:
		layers := make([]digest.Digest, len(m.s1.FSLayers))
		n := len(m.s1.FSLayers)
		for i, fl := range m.s1.FSLayers {
			layers[n-1-i] = fl.BlobSum
		}
		return layers, nil
	case m.s2 != nil:
		layers := make([]digest.Digest, len(m.s2.Layers))
		for i, l := range m.s2.Layers {
			layers[i] = l.Digest
		}
		return layers, nil
	case m.ociM != nil:
		layers := make([]digest.Digest, len(m.ociM.Layers))
		for i, l := range m.ociM.Layers {
			layers[i] = l.Digest
		}
		return layers, nil
	case m.list != nil, m.ociIdx != nil:
		return nil, regerrors.New(regerrors.KindUnknownFormat, "layers",
			"layer extraction is undefined for a manifest list; select a platform-specific child manifest first")
	default:
		return nil, regerrors.New(regerrors.KindUnknownFormat, "layers", "manifest has no decoded body")
	}
}

// ConfigDigest returns the config blob's digest for schema-2 and OCI
// image manifests. It is not part of the pull layer set (spec.md
// §4.5) but is retrievable separately via the blob subsystem.
func (m Manifest) ConfigDigest() (digest.Digest, bool) {
	switch {
	case m.s2 != nil:
		return m.s2.Config.Digest, true
	case m.ociM != nil:
		return m.ociM.Config.Digest, true
	default:
		return "", false
	}
}

// PlatformManifests returns the child manifest descriptors of a
// manifest list or OCI index, for platform-specific selection.
func (m Manifest) PlatformManifests() ([]PlatformDescriptor, error) {
	switch {
	case m.list != nil:
		out := make([]PlatformDescriptor, len(m.list.Manifests))
		for i, d := range m.list.Manifests {
			out[i] = PlatformDescriptor{
				Digest:       d.Digest,
				MediaType:    d.MediaType,
				Size:         d.Size,
				OS:           d.Platform.OS,
				Architecture: d.Platform.Architecture,
				Variant:      d.Platform.Variant,
			}
		}
		return out, nil
	case m.ociIdx != nil:
		out := make([]PlatformDescriptor, len(m.ociIdx.Manifests))
		for i, d := range m.ociIdx.Manifests {
			pd := PlatformDescriptor{
				Digest:    d.Digest,
				MediaType: d.MediaType,
				Size:      d.Size,
			}
			if d.Platform != nil {
				pd.OS = d.Platform.OS
				pd.Architecture = d.Platform.Architecture
				pd.Variant = d.Platform.Variant
			}
			out[i] = pd
		}
		return out, nil
	default:
		return nil, regerrors.New(regerrors.KindUnknownFormat, "platform_manifests", "not a manifest list or OCI index")
	}
}

// PlatformDescriptor is a flattened view of one child manifest entry
// in a manifest list / OCI index.
type PlatformDescriptor struct {
	Digest       digest.Digest
	MediaType    string
	Size         int64
	OS           string
	Architecture string
	Variant      string
}
