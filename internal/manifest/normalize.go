package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

var (
	textDirections = map[string]struct{}{"ltr": {}, "rtl": {}, "auto": {}}
	displayModes   = map[string]struct{}{
		"fullscreen": {},
		"standalone": {},
		"minimal-ui": {},
		"browser":    {},
	}
	orientationTypes = map[string]struct{}{
		"any":                 {},
		"natural":             {},
		"landscape":           {},
		"portrait":            {},
		"portrait-primary":    {},
		"portrait-secondary":  {},
		"landscape-primary":   {},
		"landscape-secondary": {},
	}
)

// canonicalMembers are replaced by normalized values and never passed
// through from the raw manifest.
var canonicalMembers = map[string]struct{}{
	"dir":              {},
	"lang":             {},
	"display":          {},
	"orientation":      {},
	"name":             {},
	"short_name":       {},
	"start_url":        {},
	"scope":            {},
	"theme_color":      {},
	"background_color": {},
	"icons":            {},
}

const diagnosticPrefix = "processed_"

// Locations records where a manifest and its owning document came from.
// Final URLs are the post-redirect addresses; when empty they default to the
// requested ones.
type Locations struct {
	ManifestURL      string
	FinalManifestURL string
	DocumentURL      string
	FinalDocumentURL string
}

// Normalize converts raw manifest input into a canonical Manifest.
// Input may be JSON text (string, []byte, json.RawMessage) or an already
// decoded map. Text that fails to decode is treated as an empty object; a
// decoded value that is not an object yields ErrMalformedManifest.
func Normalize(input any, manifestURL, docURL string) (*Manifest, error) {
	return NormalizeAt(input, Locations{ManifestURL: manifestURL, DocumentURL: docURL})
}

// NormalizeAt is Normalize with explicit requested and final locations.
func NormalizeAt(input any, loc Locations) (*Manifest, error) {
	raw, err := DecodeRaw(input)
	if err != nil {
		return nil, err
	}
	return normalizeObject(raw, loc), nil
}

// NormalizeSynthetic normalizes a manifest reconstructed from document
// metadata. The result is flagged invalid and carries no manifest URL, since
// no manifest was declared.
func NormalizeSynthetic(raw map[string]any, docURL, finalDocURL string) *Manifest {
	if finalDocURL == "" {
		finalDocURL = docURL
	}
	m := normalizeObject(cloneValue(raw).(map[string]any), Locations{
		ManifestURL:      finalDocURL,
		DocumentURL:      docURL,
		FinalDocumentURL: finalDocURL,
	})
	m.Valid = false
	m.ManifestURL = ""
	m.FinalManifestURL = ""
	return m
}

// Unparsed wraps content that is neither a manifest nor a document so it can
// still be returned for diagnostics.
func Unparsed(text, html, docURL, finalDocURL string) *Manifest {
	if finalDocURL == "" {
		finalDocURL = docURL
	}
	var raw any
	if text != "" {
		raw = text
	}
	return &Manifest{
		DocumentURL:      docURL,
		FinalDocumentURL: finalDocURL,
		Raw:              raw,
		RawDocumentHTML:  html,
		unparsed:         true,
	}
}

// DecodeRaw returns the raw manifest object for input. Undecodable text
// becomes an empty object.
func DecodeRaw(input any) (map[string]any, error) {
	var value any
	switch v := input.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return cloneValue(v).(map[string]any), nil
	case string:
		value = decodeText([]byte(v))
	case []byte:
		value = decodeText(v)
	case json.RawMessage:
		value = decodeText(v)
	default:
		return nil, fmt.Errorf("%w: unsupported input %T", ErrMalformedManifest, input)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, ErrMalformedManifest
	}
	return obj, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func decodeText(text []byte) any {
	text = bytes.TrimSpace(bytes.TrimPrefix(bytes.TrimSpace(text), utf8BOM))
	var value any
	if err := json.Unmarshal(text, &value); err != nil {
		return map[string]any{}
	}
	return value
}

func normalizeObject(raw map[string]any, loc Locations) *Manifest {
	manifestURL := loc.ManifestURL
	baseURL := loc.FinalManifestURL
	if baseURL == "" {
		baseURL = manifestURL
	}

	startURL := baseURL
	if ref, ok := startURLAliases.lookup(raw); ok {
		startURL = ResolveURL(baseURL, ref)
	}
	if manifestURL == "" {
		manifestURL = startURL
	}
	if baseURL == "" {
		baseURL = startURL
	}
	docURL := loc.DocumentURL
	if docURL == "" {
		docURL = startURL
	}
	finalDocURL := loc.FinalDocumentURL
	if finalDocURL == "" {
		finalDocURL = docURL
	}

	scope := startURL
	if ref, ok := stringMember(raw, "scope"); ok {
		scope = ResolveURL(baseURL, ref)
	}

	lang, ok := langAliases.lookup(raw)
	if !ok {
		lang = DefaultLang
	}

	m := &Manifest{
		Dir:              normalizeDir(raw),
		Lang:             lang,
		Display:          normalizeDisplay(raw),
		Orientation:      normalizeOrientation(raw),
		Name:             trimmedString(raw, "name"),
		ShortName:        trimmedString(raw, "short_name"),
		StartURL:         startURL,
		Scope:            scope,
		ThemeColor:       trimmedString(raw, "theme_color"),
		BackgroundColor:  trimmedString(raw, "background_color"),
		Icons:            ProcessImages(raw, baseURL, "icons"),
		Extra:            passthrough(raw),
		Valid:            len(raw) > 0,
		ManifestURL:      manifestURL,
		FinalManifestURL: baseURL,
		DocumentURL:      docURL,
		FinalDocumentURL: finalDocURL,
		Raw:              raw,
	}
	return m
}

func normalizeDir(raw map[string]any) string {
	value := trimmedString(raw, "dir")
	if _, ok := textDirections[value]; ok {
		return value
	}
	return DefaultDir
}

func normalizeDisplay(raw map[string]any) string {
	value := strings.ToLower(trimmedString(raw, "display"))
	if _, ok := displayModes[value]; ok {
		return value
	}
	return DefaultDisplay
}

func normalizeOrientation(raw map[string]any) string {
	value := strings.ToLower(trimmedString(raw, "orientation"))
	if _, ok := orientationTypes[value]; ok {
		return value
	}
	return ""
}

func passthrough(raw map[string]any) map[string]any {
	extra := make(map[string]any, len(raw))
	for key, value := range raw {
		if _, ok := canonicalMembers[key]; ok {
			continue
		}
		if strings.HasPrefix(key, diagnosticPrefix) {
			continue
		}
		extra[key] = cloneValue(value)
	}
	return extra
}
