// Package httplink parses RFC 5988 Link headers, the mechanism the
// registry v2 API uses to advertise the next page of a tag or catalog
// listing.
package httplink

import "strings"

// Next returns the URL of the link in header whose rel parameter is
// "next", passed through resolve when resolve is non-nil (callers use
// it to make a relative target absolute). It returns ok=false if no
// such link is present.
func Next(header string, resolve func(string) string) (string, bool) {
	for _, entry := range splitEntries(header) {
		url, params, ok := parseEntry(entry)
		if !ok {
			continue
		}
		if strings.EqualFold(params["rel"], "next") {
			if resolve != nil {
				url = resolve(url)
			}
			return url, true
		}
	}
	return "", false
}

// splitEntries splits a Link header on top-level commas, i.e. commas
// that are not inside a quoted parameter value.
func splitEntries(header string) []string {
	var entries []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range header {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				entries = append(entries, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		entries = append(entries, cur.String())
	}
	return entries
}

// parseEntry parses a single "<url>; rel=\"next\"; k=v" entry.
func parseEntry(entry string) (url string, params map[string]string, ok bool) {
	parts := strings.Split(entry, ";")
	target := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
		return "", nil, false
	}
	url = target[1 : len(target)-1]
	params = make(map[string]string, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		params[key] = val
	}
	return url, params, true
}
