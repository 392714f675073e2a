package dkregistry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// GetBlob fetches the full bytes of the blob addressed by dgst within
// repository. It follows a single redirect; if that redirect crosses
// to a different host, the Authorization header is dropped before the
// follow-up request, since blob storage is frequently S3-compatible
// and unauthenticated, and sending a registry bearer token to a
// third-party host would leak it (spec.md §4.6, §9).
//
// The returned bytes are not checked against dgst: verifying blob
// integrity is the caller's responsibility (spec.md §9 open question (a)).
func (c *Client) GetBlob(ctx context.Context, repository string, dgst digest.Digest) ([]byte, error) {
	path := fmt.Sprintf("/v2/%s/blobs/%s", repository, dgst.String())
	scope := manifestScope(repository)

	if err := c.authenticateFor(ctx, scope); err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	resp, err := c.doBlobRequest(ctx, fullURL, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if loc := redirectLocation(resp); loc != "" {
		next, crossHost, err := resolveRedirect(fullURL, loc)
		if err != nil {
			return nil, regerrors.Wrap(regerrors.KindTransient, "get_blob", "invalid redirect location", err).WithRegistry(c.opts.Registry)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		resp, err = c.doBlobRequest(ctx, next, !crossHost)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, regerrors.Wrap(regerrors.KindTransient, "get_blob", "could not read blob body", err).WithRegistry(c.opts.Registry)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(c.opts.Registry, "get_blob", resp.StatusCode)
	}
	return body, nil
}

// doBlobRequest issues one GET, attaching Authorization only if
// withAuth is set.
func (c *Client) doBlobRequest(ctx context.Context, rawURL string, withAuth bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, regerrors.Wrap(regerrors.KindTransient, "get_blob", "could not build request", err).WithRegistry(c.opts.Registry)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if withAuth {
		if auth, ok := c.authHeader(); ok {
			req.Header.Set("Authorization", auth)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, regerrors.Wrap(regerrors.KindTransient, "get_blob", "request failed", err).WithRegistry(c.opts.Registry)
	}
	return resp, nil
}

// redirectLocation returns the response's Location header if its
// status is one of the three redirect codes the blob subsystem
// follows, or "" otherwise.
func redirectLocation(resp *http.Response) string {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect:
		return resp.Header.Get("Location")
	default:
		return ""
	}
}

// resolveRedirect resolves loc against the original request URL and
// reports whether the resolved host differs from the original.
func resolveRedirect(requestURL, loc string) (resolved string, crossHost bool, err error) {
	base, err := url.Parse(requestURL)
	if err != nil {
		return "", false, err
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", false, err
	}
	target := base.ResolveReference(ref)
	return target.String(), !hostsEqual(base, target), nil
}

func hostsEqual(a, b *url.URL) bool {
	return a.Host == b.Host
}

func statusError(registry, op string, status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return regerrors.New(regerrors.KindUnauthorized, op, "unauthorized").WithRegistry(registry).WithStatus(status)
	case status == http.StatusNotFound:
		return regerrors.New(regerrors.KindNotFound, op, "not found").WithRegistry(registry).WithStatus(status)
	case status == http.StatusTooManyRequests || status >= 500:
		return regerrors.New(regerrors.KindTransient, op, fmt.Sprintf("transient status %d", status)).WithRegistry(registry).WithStatus(status)
	default:
		return regerrors.New(regerrors.KindUnexpectedStatus, op, fmt.Sprintf("unexpected status %d", status)).WithRegistry(registry).WithStatus(status)
	}
}

// BlobResult pairs a requested digest with its fetched bytes, so a
// caller can reassemble concurrent fetches by index (spec.md §5:
// "layer fetches issued in parallel complete in arbitrary order").
type BlobResult struct {
	Digest digest.Digest
	Data   []byte
}

// ConcurrentGetBlobs fetches every digest in digests in parallel, one
// goroutine per digest with no concurrency limit, and
// returns results in the same order as the input slice regardless of
// completion order. The first error cancels the remaining fetches.
func (c *Client) ConcurrentGetBlobs(ctx context.Context, repository string, digests []digest.Digest) ([]BlobResult, error) {
	results := make([]BlobResult, len(digests))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range digests {
		i, d := i, d
		g.Go(func() error {
			data, err := c.GetBlob(gctx, repository, d)
			if err != nil {
				return err
			}
			results[i] = BlobResult{Digest: d, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
