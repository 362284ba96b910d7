package manifest

import "strings"

// ProcessImages converts container[field] into image descriptors. Entries
// without a usable src are dropped; input order is preserved. A missing or
// non-array member yields an empty slice.
func ProcessImages(container map[string]any, baseURL, field string) []Image {
	images := []Image{}
	entries, ok := container[field].([]any)
	if !ok {
		return images
	}
	for _, entry := range entries {
		obj, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		img, ok := toImage(obj, baseURL)
		if !ok {
			continue
		}
		images = append(images, img)
	}
	return images
}

func toImage(obj map[string]any, baseURL string) (Image, bool) {
	src, ok := stringMember(obj, "src")
	if !ok {
		return Image{}, false
	}
	src = strings.TrimSpace(ResolveURL(baseURL, src))
	if src == "" {
		return Image{}, false
	}

	img := Image{
		Src:   src,
		Type:  collapseSpace(trimmedString(obj, "type")),
		Sizes: collapseSpace(trimmedString(obj, "sizes")),
	}
	if raw, ok := densityAliases.rawLoose(obj); ok {
		img.Density = parseDensity(raw)
	}
	img.Color, _ = colorAliases.lookupLoose(obj)
	img.BackgroundColor, _ = backgroundColorAliases.lookupLoose(obj)
	img.ThemeColor, _ = themeColorAliases.lookupLoose(obj)
	img.BorderRadius, _ = borderRadiusAliases.lookupLoose(obj)
	img.Purpose, _ = purposeAliases.lookupLoose(obj)
	return img, true
}
