// Package imaging resizes page renders and encodes them for the index image field.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // page renders may arrive as PNG

	"golang.org/x/image/draw"
)

// JPEGQuality matches the default quality of the renderer that produced the pages.
const JPEGQuality = 75

// Bounds caps the output size. Zero means unbounded on that axis.
type Bounds struct {
	MaxWidth  int
	MaxHeight int
}

// Fit returns the target size for a w*h image, preserving aspect ratio and never upscaling.
func (b Bounds) Fit(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	scale := 1.0
	if b.MaxHeight > 0 && h > b.MaxHeight {
		scale = min(scale, float64(b.MaxHeight)/float64(h))
	}
	if b.MaxWidth > 0 && w > b.MaxWidth {
		scale = min(scale, float64(b.MaxWidth)/float64(w))
	}
	if scale >= 1 {
		return w, h
	}
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return nw, nh
}

// Resize scales img down to fit b. Images already inside the bounds are returned as-is.
func Resize(img image.Image, b Bounds) image.Image {
	src := img.Bounds()
	w, h := b.Fit(src.Dx(), src.Dy())
	if w == src.Dx() && h == src.Dy() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// EncodeBase64JPEG decodes raw (JPEG or PNG), resizes it to b and returns base64 JPEG.
func EncodeBase64JPEG(raw []byte, b Bounds) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(img, b), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBase64 returns the bytes behind a base64 image payload.
func DecodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return b, nil
}
