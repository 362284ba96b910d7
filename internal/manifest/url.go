package manifest

import (
	"net/url"
	"path"
	"strings"
)

// ResolveURL resolves ref against base. Data URIs, empty input and anything
// that fails to parse are returned unchanged; it never fails.
func ResolveURL(base, ref string) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || base == "" || IsDataURI(trimmed) {
		return ref
	}
	baseURL, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(trimmed)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// IsDataURI reports whether s uses the data: scheme.
func IsDataURI(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= 5 && strings.EqualFold(s[:5], "data:")
}

// ExtName returns the lower-cased file extension of a URL's path, without the
// leading dot. Query strings and fragments are ignored.
func ExtName(src string) string {
	src = strings.TrimSpace(src)
	if src == "" || IsDataURI(src) {
		return ""
	}
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// dataURIMediaType returns the media type declared by a data URI.
func dataURIMediaType(src string) string {
	if !IsDataURI(src) {
		return ""
	}
	rest := strings.TrimSpace(src)[5:]
	if i := strings.IndexAny(rest, ";,"); i >= 0 {
		rest = rest[:i]
	}
	return strings.ToLower(strings.TrimSpace(rest))
}
