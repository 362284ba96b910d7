package api

import (
	"net/url"
	"regexp"
	"strings"
)

// hostMarkers let a slash-less path such as "example.com" be read as a host.
var hostMarkers = []string{".com", ".org", ".net", ".io", ".rocks", ".co."}

var schemePrefix = regexp.MustCompile(`(?i)^(https?):/*`)

// FixManifestURL recovers a fetchable URL from loosely written requests:
// "/manifest/example.com/app", "/example.com", "//example.com/app" or
// "/manifest?https://example.com". rawQuery takes priority when it is itself
// a URL; otherwise the path is used with any "/manifest/" prefix removed. It
// returns false when the input does not look like a URL at all.
func FixManifestURL(path, rawQuery string) (string, bool) {
	candidate := strings.TrimPrefix(path, "/manifest/")
	if unescaped, err := url.QueryUnescape(rawQuery); err == nil && schemePrefix.MatchString(unescaped) {
		candidate = unescaped
	} else if schemePrefix.MatchString(rawQuery) {
		candidate = rawQuery
	}

	candidate = strings.TrimLeft(strings.TrimSpace(candidate), "/")
	if candidate == "" {
		return "", false
	}
	if !strings.Contains(candidate, "/") && !containsHostMarker(candidate) {
		return "", false
	}

	if m := schemePrefix.FindStringSubmatch(candidate); m != nil {
		candidate = strings.ToLower(m[1]) + "://" + candidate[len(m[0]):]
	} else {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return "", false
	}
	if host := u.Hostname(); !strings.Contains(host, ".") && host != "localhost" {
		return "", false
	}
	fixed := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, RawPath: u.RawPath, RawQuery: u.RawQuery}
	if fixed.Path == "" {
		fixed.Path = "/"
	}
	return fixed.String(), true
}

func containsHostMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, marker := range hostMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
