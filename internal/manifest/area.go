package manifest

import (
	"math"
	"strconv"
	"strings"
)

// UnboundedArea ranks an icon above every finite size.
const UnboundedArea = math.MaxFloat64

// maxFiniteArea caps declared sizes so they stay below UnboundedArea.
var maxFiniteArea = math.Nextafter(UnboundedArea, 0)

// Area returns the effective pixel area used to rank an icon: the largest
// declared WxH token raised to the icon's density. A "sizes" value containing
// "any" is unbounded; an icon with no WxH token scores -1.
func Area(img Image) float64 {
	density := img.Density
	if density <= 0 || math.IsNaN(density) || math.IsInf(density, 0) {
		density = 1
	}
	tokens := strings.Fields(strings.ToLower(img.Sizes))
	for _, tok := range tokens {
		if tok == "any" {
			return UnboundedArea
		}
	}
	best := -1.0
	for _, tok := range tokens {
		w, h, ok := strings.Cut(tok, "x")
		if !ok {
			continue
		}
		area := math.Pow(leadingInt(w)*leadingInt(h), density)
		if area >= UnboundedArea {
			area = maxFiniteArea
		}
		if area > best {
			best = area
		}
	}
	return best
}

// leadingInt parses the leading decimal digits of s; no digits yields 0.
func leadingInt(s string) float64 {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0
	}
	return n
}
