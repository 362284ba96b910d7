package hybrid

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

const defaultThreshold = 2048

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
}

var manifestMarkers = [][]byte{
	[]byte(`rel="manifest"`),
	[]byte(`rel='manifest'`),
	[]byte(`rel=manifest`),
}

// ShouldPromote decides whether a document needs a headless render before
// its manifest link can be found. JSON bodies and documents that already
// declare a manifest are never promoted.
func (h *Heuristic) ShouldPromote(resp manifest.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK || resp.UsedHeadless {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) > 0 && (body[0] == '{' || body[0] == '[') {
		return false
	}
	if ct := resp.ContentType(); ct != "" && !strings.Contains(ct, "html") {
		return false
	}
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range manifestMarkers {
		if bytes.Contains(lower, marker) {
			return false
		}
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh expects a lowercased body.
func scriptDensityHigh(body []byte) bool {
	lower := string(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	return scriptCoverage*100/total >= 25
}
