// Package manifest defines the web app manifest data model shared across the
// service: the normalized manifest, image descriptors, error taxonomy, and the
// collaborator interfaces (fetching and HTML querying) the resolver depends on.
package manifest

import (
	"encoding/json"
	"sync"
)

// Canonical defaults applied by the normalizer.
const (
	DefaultDir     = "auto"
	DefaultDisplay = "browser"
	DefaultLang    = "en"
)

// Image is a normalized icon or image record taken from a manifest's image
// collection.
type Image struct {
	Src             string  `json:"src"`
	Type            string  `json:"type"`
	Sizes           string  `json:"sizes"`
	Density         float64 `json:"density,omitempty"`
	Color           string  `json:"color,omitempty"`
	BackgroundColor string  `json:"background_color,omitempty"`
	ThemeColor      string  `json:"theme_color,omitempty"`
	BorderRadius    string  `json:"border_radius,omitempty"`
	Purpose         string  `json:"purpose,omitempty"`
}

// Manifest is the canonical form of a web app manifest. Unknown raw members
// are kept in Extra and emitted alongside the canonical fields.
//
// A Manifest is built once per resolution and must not be modified after it
// has been returned; derived icon selections are computed on first use and
// cached for the lifetime of the value.
type Manifest struct {
	Dir             string
	Lang            string
	Display         string
	Orientation     string
	Name            string
	ShortName       string
	StartURL        string
	Scope           string
	ThemeColor      string
	BackgroundColor string
	Icons           []Image
	Extra           map[string]any

	// Provenance.
	Valid            bool
	ManifestURL      string
	FinalManifestURL string
	DocumentURL      string
	FinalDocumentURL string
	Raw              any
	RawDocumentHTML  string

	unparsed bool

	assetsOnce sync.Once
	assets     *assetSet
}

// Unparsed reports whether the manifest wraps content that was neither a JSON
// object nor an HTML document.
func (m *Manifest) Unparsed() bool {
	return m.unparsed
}

// MarshalJSON flattens the manifest into a single JSON object: extension
// members, canonical members, provenance and the selected icons.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	if m.unparsed {
		return json.Marshal(map[string]any{
			"processed_valid_manifest":     false,
			"processed_manifest_url":       nullable(m.ManifestURL),
			"processed_final_manifest_url": nullable(m.FinalManifestURL),
			"processed_document_url":       nullable(m.DocumentURL),
			"processed_final_document_url": nullable(m.FinalDocumentURL),
			"processed_raw_manifest":       m.Raw,
			"processed_raw_document_html":  nullable(m.RawDocumentHTML),
		})
	}

	out := make(map[string]any, len(m.Extra)+24)
	for k, v := range m.Extra {
		out[k] = v
	}
	icons := m.Icons
	if icons == nil {
		icons = []Image{}
	}
	out["dir"] = m.Dir
	out["lang"] = m.Lang
	out["display"] = m.Display
	if m.Orientation != "" {
		out["orientation"] = m.Orientation
	}
	out["name"] = m.Name
	out["short_name"] = m.ShortName
	out["start_url"] = m.StartURL
	out["scope"] = m.Scope
	out["theme_color"] = m.ThemeColor
	out["background_color"] = m.BackgroundColor
	out["icons"] = icons

	out["processed_valid_manifest"] = m.Valid
	out["processed_manifest_url"] = nullable(m.ManifestURL)
	out["processed_final_manifest_url"] = nullable(m.FinalManifestURL)
	out["processed_document_url"] = nullable(m.DocumentURL)
	out["processed_final_document_url"] = nullable(m.FinalDocumentURL)
	if m.Raw != nil {
		out["processed_raw_manifest"] = m.Raw
	}

	out["processed_best_icon"] = m.BestIcon()
	out["processed_best_favicon"] = m.BestFavicon()
	out["processed_best_badge"] = m.BestBadge()
	out["processed_best_svg_icon"] = m.BestSVGIcon()
	out["processed_best_bitmap_icon"] = m.BestBitmapIcon()
	out["processed_gltf_icons"] = m.GLTFIcons()
	out["processed_best_gltf_icon"] = m.BestGLTFIcon()
	return json.Marshal(out)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
