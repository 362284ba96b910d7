package manifest

import (
	"slices"
	"strings"
)

type cellState uint8

const (
	cellUnset cellState = iota
	cellComputing
	cellDone
)

// lazyImage is a compute-once selection. A get while the cell is computing
// returns nil, which breaks mutually dependent selections.
type lazyImage struct {
	state cellState
	value *Image
	fill  func() *Image
}

func (c *lazyImage) get() *Image {
	switch c.state {
	case cellDone:
		return c.value
	case cellComputing:
		return nil
	}
	c.state = cellComputing
	c.value = c.fill()
	c.state = cellDone
	return c.value
}

// assetSet holds every derived icon selection for one manifest.
type assetSet struct {
	icons []Image
	gltf  []Image

	svg     lazyImage
	bitmap  lazyImage
	icon    lazyImage
	favicon lazyImage
	badge   lazyImage
	model   lazyImage
}

func computeAssets(icons []Image) *assetSet {
	s := &assetSet{icons: icons}
	s.svg.fill = func() *Image { return s.maxArea(isSVG, Area) }
	s.bitmap.fill = func() *Image { return s.maxArea(isBitmap, Area) }
	s.icon.fill = s.bestIcon
	s.favicon.fill = func() *Image {
		if img := s.maxArea(isFavicon, Area); img != nil {
			return img
		}
		return s.icon.get()
	}
	s.badge.fill = s.icon.get
	s.model.fill = func() *Image { return s.maxArea(isGLTF, Area) }

	s.gltf = []Image{}
	for _, img := range icons {
		if isGLTF(img) {
			s.gltf = append(s.gltf, img)
		}
	}

	// Resolve every cell now; afterwards the set is read-only and safe to
	// share between goroutines.
	for _, c := range []*lazyImage{&s.svg, &s.bitmap, &s.icon, &s.favicon, &s.badge, &s.model} {
		c.get()
	}
	return s
}

func (s *assetSet) bestIcon() *Image {
	best := s.svg.get()
	bestArea := -2.0
	if best != nil {
		bestArea = rankArea(*best)
	}
	for i := range s.icons {
		if area := rankArea(s.icons[i]); area > bestArea {
			best, bestArea = &s.icons[i], area
		}
	}
	if best != nil {
		return best
	}
	if badge := s.badge.get(); badge != nil {
		return badge
	}
	if len(s.icons) > 0 {
		return &s.icons[0]
	}
	return nil
}

// maxArea returns the first icon with the largest score among those matching
// keep.
func (s *assetSet) maxArea(keep func(Image) bool, score func(Image) float64) *Image {
	var best *Image
	bestArea := 0.0
	for i := range s.icons {
		if !keep(s.icons[i]) {
			continue
		}
		area := score(s.icons[i])
		if best == nil || area > bestArea {
			best, bestArea = &s.icons[i], area
		}
	}
	return best
}

// rankArea is Area with vector icons treated as unbounded.
func rankArea(img Image) float64 {
	if isSVG(img) {
		return UnboundedArea
	}
	return Area(img)
}

func mediaType(img Image) string {
	if t := strings.ToLower(img.Type); t != "" {
		return t
	}
	return dataURIMediaType(img.Src)
}

var bitmapFormats = []string{"png", "jpg", "jpeg", "gif", "webp", "bmp"}

func isSVG(img Image) bool {
	ext := ExtName(img.Src)
	return ext == "svg" || ext == "svgz" || strings.Contains(mediaType(img), "svg")
}

func isBitmap(img Image) bool {
	if slices.Contains(bitmapFormats, ExtName(img.Src)) {
		return true
	}
	mt := mediaType(img)
	for _, format := range bitmapFormats {
		if strings.Contains(mt, format) {
			return true
		}
	}
	return false
}

func isFavicon(img Image) bool {
	return ExtName(img.Src) == "ico" || strings.Contains(mediaType(img), "ico")
}

func isGLTF(img Image) bool {
	ext := ExtName(img.Src)
	return ext == "gltf" || ext == "glb" || strings.Contains(mediaType(img), "gltf")
}

func (m *Manifest) assetSet() *assetSet {
	m.assetsOnce.Do(func() {
		m.assets = computeAssets(slices.Clone(m.Icons))
	})
	return m.assets
}

// BestIcon returns the highest ranked icon. Vector icons are preferred over
// any finite bitmap size.
func (m *Manifest) BestIcon() *Image { return m.assetSet().icon.get() }

// BestFavicon returns the largest .ico icon, falling back to BestIcon.
func (m *Manifest) BestFavicon() *Image { return m.assetSet().favicon.get() }

// BestBadge is currently the same selection as BestIcon.
func (m *Manifest) BestBadge() *Image { return m.assetSet().badge.get() }

// BestSVGIcon returns the largest SVG icon, or nil.
func (m *Manifest) BestSVGIcon() *Image { return m.assetSet().svg.get() }

// BestBitmapIcon returns the largest png, jpeg, gif, webp or bmp icon, or nil.
func (m *Manifest) BestBitmapIcon() *Image { return m.assetSet().bitmap.get() }

// GLTFIcons returns a copy of the 3D model entries in declaration order.
func (m *Manifest) GLTFIcons() []Image { return slices.Clone(m.assetSet().gltf) }

// BestGLTFIcon returns the highest ranked 3D model entry, or nil.
func (m *Manifest) BestGLTFIcon() *Image { return m.assetSet().model.get() }
