package manifest

import (
	"context"
	"mime"
	"net/http"
	"strings"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
	// AllowHost, when set, is checked against every host the fetch reaches,
	// redirect targets included. Fetchers fail with ErrHostBlocked on a
	// false result without contacting that host.
	AllowHost func(host string) bool
}

// HostAllowed reports whether host may be contacted for this request.
func (r FetchRequest) HostAllowed(host string) bool {
	return r.AllowHost == nil || r.AllowHost(host)
}

// FetchResponse is the result returned by a Fetcher implementation.
// URL is the final URL after redirects.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the response media type, lower-cased and without
// parameters.
func (r FetchResponse) ContentType() string {
	raw := r.Headers.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return mediaType
}

// Node is a single element returned by a Document query.
type Node interface {
	// Attr returns the named attribute and whether it was present.
	Attr(name string) (string, bool)
	// Text returns the combined text content of the element.
	Text() string
}

// Document is a parsed HTML document queryable by CSS selector.
type Document interface {
	// Query returns matching elements in document order.
	Query(selector string) []Node
	// Empty reports whether the source document had no content.
	Empty() bool
	// HTML returns the source markup.
	HTML() string
}

// DocumentParser turns a response body into a queryable Document.
type DocumentParser interface {
	Parse(body []byte, contentType string) (Document, error)
}
