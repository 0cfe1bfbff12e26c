package saliency

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/pneumo-api/internal/imaging"
)

// DefaultImageWeight is the share of the original image in the blend.
const DefaultImageWeight = 0.5

// Composite blends the colorized map over the original image resized to the
// map's resolution: out = (1-w)*heat + w*image, rescaled so the brightest
// channel value reaches 255.
func Composite(original image.Image, m *Map, p *Palette, imageWeight float64) (*image.RGBA, error) {
	if imageWeight < 0 || imageWeight > 1 {
		return nil, fmt.Errorf("image weight %v outside [0,1]", imageWeight)
	}
	if m.Width != m.Height {
		return nil, fmt.Errorf("map must be square, got %dx%d", m.Width, m.Height)
	}

	base := imaging.Resize(original, m.Width, resize.Bicubic)
	heat := Colorize(m, p)

	blend := make([]float64, 3*m.Width*m.Height)
	var peak float64
	for i := 0; i < m.Width*m.Height; i++ {
		for c := 0; c < 3; c++ {
			h := float64(heat.Pix[4*i+c]) / 255
			o := float64(base.Pix[4*i+c]) / 255
			v := (1-imageWeight)*h + imageWeight*o
			blend[3*i+c] = v
			peak = max(peak, v)
		}
	}

	out := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i := 0; i < m.Width*m.Height; i++ {
		for c := 0; c < 3; c++ {
			var v float64
			if peak > 0 {
				v = blend[3*i+c] / peak
			}
			out.Pix[4*i+c] = uint8(255 * v)
		}
		out.Pix[4*i+3] = 0xff
	}
	return out, nil
}

// WriteImage encodes img to path, JPEG for .jpg/.jpeg and PNG otherwise,
// creating missing parent directories. An existing file is overwritten.
func WriteImage(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("encode image: %w", err)
	}
	return f.Close()
}
