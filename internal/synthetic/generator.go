// Package synthetic reconstructs a manifest-shaped object from a document's
// metadata (OpenGraph, Twitter cards, Apple and Microsoft web app tags, icon
// links) for pages that do not declare a manifest.
package synthetic

import (
	"strings"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

var (
	appTitleSelectors = []string{
		`meta[name="apple-mobile-web-app-title"]`,
		`meta[name="application-name"]`,
	}
	nameSelectors = []string{
		`meta[property="og:site_name"]`,
		`meta[property="og:title"]`,
		`meta[name="twitter:app:name"]`,
		`meta[name="twitter:app:name:iphone"]`,
		`meta[name="twitter:app:name:ipad"]`,
		`meta[name="twitter:app:name:googleplay"]`,
		`meta[property="twitter:site_name"]`,
		`meta[name="twitter:title"]`,
	}
	descriptionSelectors = []string{
		`meta[name="description"]`,
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
	}
	startURLSelectors = []string{
		`meta[name="msapplication-starturl"]`,
		`meta[name="start_url"]`,
		`meta[name="twitter:url"]`,
		`meta[property="og:url"]`,
	}
	themeColorSelectors = []string{
		`meta[name="theme-color"]`,
		`meta[name="theme_color"]`,
		`meta[name="msapplication-TileColor"]`,
		`meta[name="msapplication-navbutton-color"]`,
	}
	backgroundColorSelectors = []string{
		`meta[name="background-color"]`,
		`meta[name="background_color"]`,
	}
	imageSelectors = []string{
		`meta[property="og:image"]`,
		`meta[name="twitter:image"]`,
	}
)

const iconLinkSelector = `link[rel~="icon"], link[rel~="favicon"], link[rel$="-icon"], ` +
	`link[rel~="apple-touch-icon-precomposed"], link[rel="mask-icon"]`

// iconAttributes maps an icon member to the link attributes it is read from,
// first non-empty wins.
var iconAttributes = []struct {
	member string
	attrs  []string
}{
	{member: "sizes", attrs: []string{"sizes", "size"}},
	{member: "type", attrs: []string{"type"}},
	{member: "density", attrs: []string{"density"}},
	{member: "color", attrs: []string{"color"}},
	{member: "purpose", attrs: []string{"purpose"}},
	{member: "background_color", attrs: []string{"background_color", "background-color", "backgroundcolor"}},
	{member: "theme_color", attrs: []string{"theme_color", "theme-color", "themecolor"}},
	{member: "border_radius", attrs: []string{"border_radius", "border-radius", "borderradius"}},
}

// Generate builds a raw manifest object from doc's metadata. A nil or empty
// document yields an empty map. The result always carries name, short_name,
// start_url and icons; other members appear only when found.
func Generate(doc manifest.Document, docURL string) map[string]any {
	if doc == nil || doc.Empty() {
		return map[string]any{}
	}

	appTitle := firstContent(doc, appTitleSelectors...)
	name := appTitle
	if name == "" {
		name = firstContent(doc, nameSelectors...)
	}
	if name == "" {
		name = firstText(doc, "title")
	}
	shortName := appTitle
	if shortName == "" {
		shortName = name
	}

	startURL := firstAttr(doc, `link[rel="canonical"]`, "href")
	if startURL == "" {
		startURL = firstContent(doc, startURLSelectors...)
	}
	if startURL == "" {
		startURL = docURL
	} else {
		startURL = manifest.ResolveURL(docURL, startURL)
	}

	out := map[string]any{
		"name":       name,
		"short_name": shortName,
		"start_url":  startURL,
		"icons":      collectIcons(doc, docURL),
	}
	setIfPresent(out, "lang", documentLang(doc))
	setIfPresent(out, "description", firstContent(doc, descriptionSelectors...))
	setIfPresent(out, "theme_color", themeColor(doc))
	background := firstContent(doc, backgroundColorSelectors...)
	if background == "" {
		background = firstAttr(doc, "body[bgcolor]", "bgcolor")
	}
	setIfPresent(out, "background_color", background)
	return out
}

func themeColor(doc manifest.Document) string {
	if color := firstContent(doc, themeColorSelectors...); color != "" {
		return color
	}
	return StatusBarColor(firstContent(doc, `meta[name="apple-mobile-web-app-status-bar-style"]`))
}

// StatusBarColor maps an apple-mobile-web-app-status-bar-style value to a
// colour: "default" means no colour, a "-translucent" suffix is dropped and
// "black" becomes "#000".
func StatusBarColor(style string) string {
	style = strings.TrimSpace(style)
	if style == "default" {
		return ""
	}
	style = strings.TrimSuffix(style, "-translucent")
	if style == "black" {
		return "#000"
	}
	return style
}

func documentLang(doc manifest.Document) string {
	if lang := firstAttr(doc, "html[lang]", "lang"); lang != "" {
		return lang
	}
	if lang := firstContent(doc, `meta[name="defaultLanguage"]`, `meta[property="og:lang"]`, `meta[property="og:locale"]`); lang != "" {
		return lang
	}
	return firstAttr(doc, "html", "xml:lang")
}

func collectIcons(doc manifest.Document, docURL string) []any {
	icons := []any{}
	seen := make(map[string]struct{})
	add := func(icon map[string]any) {
		src, _ := icon["src"].(string)
		if src == "" {
			return
		}
		if _, dup := seen[src]; dup {
			return
		}
		seen[src] = struct{}{}
		icons = append(icons, icon)
	}

	for _, node := range doc.Query(iconLinkSelector) {
		href, _ := node.Attr("href")
		icon := iconEntry(href, docURL)
		if icon == nil {
			continue
		}
		for _, field := range iconAttributes {
			if value := nodeAttr(node, field.attrs...); value != "" {
				icon[field.member] = value
			}
		}
		if _, ok := icon["type"]; !ok {
			setIfPresent(icon, "type", guessType(icon["src"].(string)))
		}
		add(icon)
	}
	for _, sel := range imageSelectors {
		image := firstContent(doc, sel)
		icon := iconEntry(image, docURL)
		if icon == nil {
			continue
		}
		setIfPresent(icon, "type", guessType(image))
		add(icon)
	}
	return icons
}

func iconEntry(href, docURL string) map[string]any {
	href = strings.TrimSpace(href)
	if href == "" {
		return nil
	}
	src := strings.TrimSpace(manifest.ResolveURL(docURL, href))
	if src == "" {
		return nil
	}
	return map[string]any{"src": src}
}

func firstContent(doc manifest.Document, selectors ...string) string {
	for _, sel := range selectors {
		if value := firstAttr(doc, sel, "content"); value != "" {
			return value
		}
	}
	return ""
}

func firstAttr(doc manifest.Document, selector, attr string) string {
	for _, node := range doc.Query(selector) {
		if value := nodeAttr(node, attr); value != "" {
			return value
		}
	}
	return ""
}

func firstText(doc manifest.Document, selector string) string {
	for _, node := range doc.Query(selector) {
		if text := strings.TrimSpace(node.Text()); text != "" {
			return text
		}
	}
	return ""
}

func nodeAttr(node manifest.Node, attrs ...string) string {
	for _, attr := range attrs {
		if value, ok := node.Attr(attr); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func setIfPresent(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
