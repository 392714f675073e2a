package dkregistry

import (
	"encoding/json"
	"fmt"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// tagsPage is the JSON body of one /v2/{repo}/tags/list page.
type tagsPage struct {
	Tags []string `json:"tags"`
}

// GetTags returns a lazy stream over repository's tags (spec.md §4.7).
// pageSize, if positive, is sent as the "n" query parameter on the
// first page; the registry is free to choose its own page size
// otherwise. Pagination past the first page follows the server's
// Link: rel="next" header, whatever parameters it carries.
func (c *Client) GetTags(repository string, pageSize int) *Stream[string] {
	first := fmt.Sprintf("/v2/%s/tags/list", repository)
	if pageSize > 0 {
		first = fmt.Sprintf("%s?n=%d", first, pageSize)
	}
	return newStream(c, manifestScope(repository), first, decodeTagsPage)
}

func decodeTagsPage(body []byte) ([]string, error) {
	var page tagsPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, regerrors.Wrap(regerrors.KindMalformedJSON, "get_tags", "malformed tags page", err)
	}
	return page.Tags, nil
}
