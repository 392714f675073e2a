package dkregistry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ossb-labs/dkregistry/internal/httplink"
	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// apiResponse is what the authenticated-request primitive hands back
// to the manifest, blob, and enumeration subsystems: the response
// body, selected headers, and the resolved "next page" URL, if any.
type apiResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
	NextPage    string
	hasNext     bool
}

// request issues one authenticated HTTP call against path (relative to
// the client's base URL), attaching the session's Authorization header
// (if any) and User-Agent, then classifies the response per spec.md
// §4.4. scope is the login scope used to authenticate if this is the
// first request on the client; it is ignored once a token has already
// been published.
func (c *Client) request(ctx context.Context, method, path, scope string, headers map[string]string) (apiResponse, error) {
	return c.requestURL(ctx, method, c.baseURL+path, scope, headers)
}

// requestURL is like request but takes an already-absolute URL,
// needed when following a resolved Link-header "next" page that may
// point anywhere, not necessarily back at c.baseURL.
func (c *Client) requestURL(ctx context.Context, method, fullURL, scope string, headers map[string]string) (apiResponse, error) {
	if err := c.authenticateFor(ctx, scope); err != nil {
		return apiResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return apiResponse{}, regerrors.Wrap(regerrors.KindTransient, "request", "could not build request", err).WithRegistry(c.opts.Registry)
	}
	c.applyHeaders(req, headers)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, regerrors.Wrap(regerrors.KindTransient, "request", "request failed", err).WithRegistry(c.opts.Registry)
	}
	defer resp.Body.Close()

	return c.classify(fullURL, resp)
}

// applyHeaders sets the Authorization and User-Agent headers, plus any
// caller-supplied headers (e.g. Accept), on req.
func (c *Client) applyHeaders(req *http.Request, headers map[string]string) {
	req.Header.Set("User-Agent", c.opts.UserAgent)
	if auth, ok := c.authHeader(); ok {
		req.Header.Set("Authorization", auth)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// classify reads the response body and turns a non-2xx status into the
// matching regerrors.Error kind, per the table in spec.md §4.4.
func (c *Client) classify(requestURL string, resp *http.Response) (apiResponse, error) {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return apiResponse{}, regerrors.Wrap(regerrors.KindTransient, "request", "could not read response body", readErr).WithRegistry(c.opts.Registry)
	}

	out := apiResponse{
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if next, ok := httplink.Next(resp.Header.Get("Link"), resolveAgainst(requestURL)); ok {
		out.NextPage = next
		out.hasNext = true
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return out, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return out, regerrors.New(regerrors.KindUnauthorized, "request", "unauthorized").WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return out, regerrors.New(regerrors.KindNotFound, "request", "not found").WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return out, regerrors.New(regerrors.KindTransient, "request", fmt.Sprintf("transient status %d", resp.StatusCode)).WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	default:
		return out, regerrors.New(regerrors.KindUnexpectedStatus, "request", fmt.Sprintf("unexpected status %d", resp.StatusCode)).WithRegistry(c.opts.Registry).WithStatus(resp.StatusCode)
	}
}

// resolveAgainst returns a resolver that turns a possibly-relative Link
// target into an absolute URL, relative to requestURL.
func resolveAgainst(requestURL string) func(string) string {
	base, err := url.Parse(requestURL)
	if err != nil {
		return func(s string) string { return s }
	}
	return func(s string) string {
		ref, err := url.Parse(s)
		if err != nil {
			return s
		}
		return base.ResolveReference(ref).String()
	}
}
