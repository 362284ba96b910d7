// Package blocklist refuses fetches to configured hosts before any request
// to them leaves the process, on the first hop and on every redirect.
package blocklist

import (
	"context"
	"net/url"
	"strings"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

// ErrHostBlocked is wrapped in the FetchError returned for blocked hosts.
var ErrHostBlocked = manifest.ErrHostBlocked

// Matcher stores exact hosts and suffix wildcards ("*.internal" or
// ".internal").
type Matcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// New returns nil when patterns hold no usable entry.
func New(patterns []string) *Matcher {
	matcher := &Matcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *Matcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// IsBlocked reports whether host matches an entry. A nil Matcher blocks
// nothing.
func (m *Matcher) IsBlocked(host string) bool {
	if m == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, exact := m.exact[host]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Fetcher rejects requests whose host is blocked and delegates the rest with
// the matcher installed as the request's AllowHost, so the backend refuses
// blocked redirect targets too.
type Fetcher struct {
	next    manifest.Fetcher
	matcher *Matcher
}

// Wrap returns next unchanged when matcher is nil.
func Wrap(next manifest.Fetcher, matcher *Matcher) manifest.Fetcher {
	if matcher == nil {
		return next
	}
	return &Fetcher{next: next, matcher: matcher}
}

// Fetch implements manifest.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, request manifest.FetchRequest) (manifest.FetchResponse, error) {
	u, err := url.Parse(request.URL)
	if err != nil {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, Err: err}
	}
	allow := f.allow(request)
	if !allow(u.Hostname()) {
		return manifest.FetchResponse{}, &manifest.FetchError{URL: request.URL, Err: ErrHostBlocked}
	}
	request.AllowHost = allow
	return f.next.Fetch(ctx, request)
}

func (f *Fetcher) allow(request manifest.FetchRequest) func(string) bool {
	return func(host string) bool {
		return !f.matcher.IsBlocked(host) && request.HostAllowed(host)
	}
}
