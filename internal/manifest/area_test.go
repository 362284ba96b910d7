package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArea(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		img  Image
		want float64
	}{
		{name: "single", img: Image{Sizes: "48x48"}, want: 2304},
		{name: "largest token wins", img: Image{Sizes: "16x16 256x256 32x32"}, want: 65536},
		{name: "upper case separator", img: Image{Sizes: "10X20"}, want: 200},
		{name: "density", img: Image{Sizes: "2x3", Density: 2}, want: 36},
		{name: "malformed token", img: Image{Sizes: "axb"}, want: 0},
		{name: "trailing junk", img: Image{Sizes: "32px x 32px"}, want: 0},
		{name: "no sizes", img: Image{}, want: -1},
		{name: "no x token", img: Image{Sizes: "large"}, want: -1},
		{name: "any", img: Image{Sizes: "16x16 any"}, want: UnboundedArea},
		{name: "any mixed case", img: Image{Sizes: "ANY"}, want: UnboundedArea},
		{name: "negative density", img: Image{Sizes: "2x3", Density: -1}, want: 6},
		{name: "zero area negative density", img: Image{Sizes: "0x0", Density: -1}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Area(tc.img))
		})
	}
}

func TestAreaMonotonic(t *testing.T) {
	t.Parallel()

	prev := Area(Image{Sizes: "1x1"})
	for _, sizes := range []string{"16x16", "32x16", "32x32", "64x48", "512x512"} {
		area := Area(Image{Sizes: sizes})
		assert.Greater(t, area, prev, sizes)
		prev = area
	}
	assert.Greater(t, Area(Image{Sizes: "any"}), Area(Image{Sizes: "100000x100000"}))
}

func TestAreaFiniteStaysBelowAny(t *testing.T) {
	t.Parallel()

	anyArea := Area(Image{Sizes: "any"})
	for _, img := range []Image{
		{Sizes: "0x0", Density: -1},
		{Sizes: "512x512", Density: 1000},
		{Sizes: "16x16", Density: -3},
	} {
		assert.Less(t, Area(img), anyArea, img)
	}
	assert.Greater(t, Area(Image{Sizes: "512x512", Density: -1}), Area(Image{Sizes: "16x16", Density: -1}))
}
