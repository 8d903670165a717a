// Package imaging holds the best-effort image transforms applied to every
// upload before it is persisted.
package imaging

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	DefaultMaxWidth = 800
	DefaultQuality  = 80
)

// Optimize decodes, downscales to at most maxWidth (preserving aspect ratio,
// never enlarging) and re-encodes as JPEG at the given quality. Optimization
// is not a correctness requirement: on malformed input or any transform
// failure the original bytes are returned unchanged.
func Optimize(raw []byte, maxWidth int, quality int) []byte {
	if len(raw) == 0 || maxWidth <= 0 {
		return raw
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return raw
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return raw
	}

	dst := src
	if w > maxWidth {
		scaledH := h * maxWidth / w
		if scaledH < 1 {
			scaledH = 1
		}
		scaled := image.NewRGBA(image.Rect(0, 0, maxWidth, scaledH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Over, nil)
		dst = scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return raw
	}
	return buf.Bytes()
}
