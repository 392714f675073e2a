package dkregistry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
	"github.com/ossb-labs/dkregistry/manifest"
	"github.com/ossb-labs/dkregistry/mediatype"
)

// manifestScope builds the "repository:<repo>:pull" login scope a
// manifest or blob operation authenticates with.
func manifestScope(repository string) string {
	return fmt.Sprintf("repository:%s:pull", repository)
}

// acceptHeader resolves accepted against this client's configured
// default ordering (spec.md §6), falling back to mediatype's own
// default only if the client was built without one.
func (c *Client) acceptHeader(accepted []mediatype.MediaType) string {
	if len(accepted) == 0 {
		accepted = c.opts.AcceptedTypes
	}
	return mediatype.AcceptHeader(accepted)
}

// HasManifest performs a content-type-negotiated HEAD of a manifest
// (spec.md §4.5): the Accept header lists accepted, or the client's
// configured default if accepted is empty. A 404 yields (Unknown,
// false) rather than an error; any other failure is returned as-is.
func (c *Client) HasManifest(ctx context.Context, repository, ref string, accepted []mediatype.MediaType) (mediatype.MediaType, bool, error) {
	path := fmt.Sprintf("/v2/%s/manifests/%s", repository, ref)
	resp, err := c.request(ctx, http.MethodHead, path, manifestScope(repository), map[string]string{
		"Accept": c.acceptHeader(accepted),
	})
	if err != nil {
		if regerrors.Of(err, regerrors.KindNotFound) {
			return mediatype.Unknown, false, nil
		}
		return mediatype.Unknown, false, err
	}
	mt, err := mediatype.Parse(resp.ContentType)
	if err != nil {
		return mediatype.Unknown, false, err
	}
	return mt, true, nil
}

// GetManifest GETs the raw manifest body at repository/ref. The caller
// decodes it with the media type discovered via HasManifest, or an
// ambient assumption, using manifest.Decode.
func (c *Client) GetManifest(ctx context.Context, repository, ref string, accepted []mediatype.MediaType) ([]byte, error) {
	path := fmt.Sprintf("/v2/%s/manifests/%s", repository, ref)
	resp, err := c.request(ctx, http.MethodGet, path, manifestScope(repository), map[string]string{
		"Accept": c.acceptHeader(accepted),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetManifestRef combines HasManifest and GetManifest into a single
// round trip: one GET yields both the negotiated media type and the
// raw body.
func (c *Client) GetManifestRef(ctx context.Context, repository, ref string, accepted []mediatype.MediaType) (mediatype.MediaType, []byte, error) {
	path := fmt.Sprintf("/v2/%s/manifests/%s", repository, ref)
	resp, err := c.request(ctx, http.MethodGet, path, manifestScope(repository), map[string]string{
		"Accept": c.acceptHeader(accepted),
	})
	if err != nil {
		return mediatype.Unknown, nil, err
	}
	mt, err := mediatype.Parse(resp.ContentType)
	if err != nil {
		return mediatype.Unknown, nil, err
	}
	return mt, resp.Body, nil
}

// FetchManifest is a convenience wrapper around GetManifestRef and
// manifest.Decode, returning a fully decoded Manifest in one call.
func (c *Client) FetchManifest(ctx context.Context, repository, ref string, accepted []mediatype.MediaType) (manifest.Manifest, error) {
	mt, raw, err := c.GetManifestRef(ctx, repository, ref, accepted)
	if err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Decode(mt, raw)
}
