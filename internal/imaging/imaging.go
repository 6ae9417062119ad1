// Package imaging renders the resized variants of attachment photos.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Bounding boxes of the derived variants.
const (
	DisplayMax   = 1280
	ThumbnailMax = 320
)

// Renderer resizes images while keeping their aspect ratio.
type Renderer struct {
	quality int // JPEG quality (1-100)
}

// NewRenderer creates a renderer.
func NewRenderer(quality int) *Renderer {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Renderer{quality: quality}
}

// Resize decodes data and scales it to fit in a maxSide square. Images that
// already fit are re-encoded unchanged. The output keeps the input format.
func (r *Renderer) Resize(data []byte, maxSide int) ([]byte, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	out := fit(img, maxSide)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: r.quality}); err != nil {
			return nil, "", fmt.Errorf("encode jpeg: %w", err)
		}
		return buf.Bytes(), "image/jpeg", nil
	case "png":
		if err := png.Encode(&buf, out); err != nil {
			return nil, "", fmt.Errorf("encode png: %w", err)
		}
		return buf.Bytes(), "image/png", nil
	}
	return nil, "", fmt.Errorf("unsupported image format: %s", format)
}

func fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	nw, nh := maxSide, maxSide
	if w >= h {
		nh = max(1, h*maxSide/w)
	} else {
		nw = max(1, w*maxSide/h)
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
