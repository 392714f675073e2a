package dkregistry

import (
	"encoding/json"
	"fmt"

	"github.com/ossb-labs/dkregistry/internal/regerrors"
)

// catalogPage is the JSON body of one /v2/_catalog page.
type catalogPage struct {
	Repositories []string `json:"repositories"`
}

// catalogScope is the login scope for the registry-wide catalog
// listing, distinct from a single repository's pull scope.
const catalogScope = "registry:catalog:*"

// GetCatalog returns a lazy stream over the registry's repository
// catalog, structurally identical to GetTags but rooted at
// /v2/_catalog and keyed by the "repositories" JSON field (spec.md §4.7).
func (c *Client) GetCatalog(pageSize int) *Stream[string] {
	first := "/v2/_catalog"
	if pageSize > 0 {
		first = fmt.Sprintf("%s?n=%d", first, pageSize)
	}
	return newStream(c, catalogScope, first, decodeCatalogPage)
}

func decodeCatalogPage(body []byte) ([]string, error) {
	var page catalogPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, regerrors.Wrap(regerrors.KindMalformedJSON, "get_catalog", "malformed catalog page", err)
	}
	return page.Repositories, nil
}
