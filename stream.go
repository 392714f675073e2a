package dkregistry

import (
	"context"
	"net/http"
	"strings"
)

// pageDecoder turns one page's raw JSON body into its ordered items.
type pageDecoder[T any] func(body []byte) ([]T, error)

// Stream is a lazy, finite, non-restartable pull-based iterator over a
// Link-header-paginated registry listing (tags, catalog). A call to
// Next fetches a page only when the previous page's items are used up;
// pages that carry no items are skipped, so one call can fetch several
// pages. Page N+1 is never requested before page N's items have been
// consumed (spec.md §3, §4.7, §9:
// "prefer a pull-based iterator over pushing into a callback to keep
// backpressure natural"). Dropping a Stream before exhaustion simply
// stops calling Next; no further requests are issued.
type Stream[T any] struct {
	c       *Client
	scope   string
	decode  pageDecoder[T]
	nextURL string
	started bool
	done    bool
	buf     []T
	err     error
}

// newStream builds a Stream whose first page is fetched at firstPath
// (relative to the client's base URL).
func newStream[T any](c *Client, scope, firstPath string, decode pageDecoder[T]) *Stream[T] {
	return &Stream[T]{c: c, scope: scope, decode: decode, nextURL: firstPath}
}

// Next returns the next item in the stream. ok is false once the
// stream is exhausted; err is non-nil if a page fetch failed, which
// also terminates the stream (spec.md §4.7 step 5, §7: "stream
// operations terminate their sequence on first error").
func (s *Stream[T]) Next(ctx context.Context) (item T, ok bool, err error) {
	if s.err != nil {
		return item, false, s.err
	}
	for len(s.buf) == 0 {
		if s.done {
			return item, false, nil
		}
		if err := s.fetchPage(ctx); err != nil {
			s.err = err
			s.done = true
			return item, false, err
		}
	}
	item = s.buf[0]
	s.buf = s.buf[1:]
	return item, true, nil
}

func (s *Stream[T]) fetchPage(ctx context.Context) error {
	path := s.nextURL
	s.started = true

	var resp apiResponse
	var err error
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		resp, err = s.c.requestURL(ctx, http.MethodGet, path, s.scope, map[string]string{
			"Accept": "application/json",
		})
	} else {
		resp, err = s.c.request(ctx, http.MethodGet, path, s.scope, map[string]string{
			"Accept": "application/json",
		})
	}
	if err != nil {
		return err
	}

	items, err := s.decode(resp.Body)
	if err != nil {
		return err
	}
	s.buf = items

	if resp.hasNext {
		s.nextURL = resp.NextPage
	} else {
		s.done = true
	}
	return nil
}

// Collect drains the stream into a slice. It is a convenience for
// callers who do not need lazy / cancellable enumeration.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	for {
		item, ok, err := s.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}
