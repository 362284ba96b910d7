package synthetic

import (
	"mime"
	"strings"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

// iconTypes covers icon formats missing from, or inconsistent across, the
// platform MIME tables.
var iconTypes = map[string]string{
	".ico":         "image/x-icon",
	".cur":         "image/x-icon",
	".bmp":         "image/bmp",
	".svg":         "image/svg+xml",
	".svgz":        "image/svg+xml",
	".png":         "image/png",
	".apng":        "image/apng",
	".gif":         "image/gif",
	".jpg":         "image/jpeg",
	".jpeg":        "image/jpeg",
	".webp":        "image/webp",
	".avif":        "image/avif",
	".gltf":        "model/gltf+json",
	".glb":         "model/gltf-binary",
	".webmanifest": "application/manifest+json",
}

func init() {
	for ext, typ := range iconTypes {
		if err := mime.AddExtensionType(ext, typ); err != nil {
			panic(err)
		}
	}
}

// guessType returns the media type implied by src's file extension, or "".
func guessType(src string) string {
	ext := manifest.ExtName(src)
	if ext == "" {
		return ""
	}
	typ := mime.TypeByExtension("." + ext)
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	return strings.TrimSpace(typ)
}
