package resolver

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Kind is the interpretation chosen for a body.
type Kind int

const (
	// KindUnknown is content that is neither a JSON object nor HTML.
	KindUnknown Kind = iota
	// KindManifest is a JSON object.
	KindManifest
	// KindDocument is an HTML document.
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Classification is the result of Classify. Manifest is set for
// KindManifest.
type Classification struct {
	Kind     Kind
	Manifest map[string]any
}

var (
	utf8BOM       = []byte{0xEF, 0xBB, 0xBF}
	doctypeMarker = []byte("doctype")
	bodyMarker    = []byte("<body")
)

// Classify decides how body should be interpreted. JSON objects win over
// everything else; a body is a document when it mentions a doctype or a
// <body> tag, or when contentType names an HTML type.
func Classify(body []byte, contentType string) Classification {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(body), utf8BOM))
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(trimmed, &obj); err == nil && obj != nil {
			return Classification{Kind: KindManifest, Manifest: obj}
		}
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, doctypeMarker) || bytes.Contains(lower, bodyMarker) ||
		strings.Contains(strings.ToLower(contentType), "html") {
		return Classification{Kind: KindDocument}
	}
	return Classification{Kind: KindUnknown}
}
