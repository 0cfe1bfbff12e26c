package saliency

import (
	"fmt"
	"image"
	"math"
	"sync"
)

// Palette maps an 8-bit intensity to an RGB color.
type Palette [256][3]uint8

var (
	jetOnce    sync.Once
	jetPalette Palette
	jetErr     error
)

// Jet returns the JET colormap, blue for low importance and red for high.
// When the native table cannot be built the pure-Go ramp is returned and
// the failure is kept for JetFallback.
func Jet() *Palette {
	jetOnce.Do(func() {
		jetPalette, jetErr = loadJet(buildJet)
	})
	return &jetPalette
}

// JetFallback reports why Jet fell back to the pure-Go ramp, if it did.
func JetFallback() error {
	Jet()
	return jetErr
}

func loadJet(build func() (Palette, error)) (Palette, error) {
	p, err := build()
	if err != nil {
		return jetRamp(), fmt.Errorf("native JET colormap unavailable: %w", err)
	}
	return p, nil
}

func jetRamp() Palette {
	var p Palette
	for i := range p {
		x := float64(i) / 255
		p[i] = [3]uint8{
			jetChannel(x, 3),
			jetChannel(x, 2),
			jetChannel(x, 1),
		}
	}
	return p
}

// jetChannel is the piecewise-linear JET ramp centred at center/4.
func jetChannel(x, center float64) uint8 {
	v := 1.5 - math.Abs(4*x-center)
	v = math.Max(0, math.Min(1, v))
	return uint8(math.Round(v * 255))
}

// Colorize renders m with p. Importance is quantized the way an 8-bit
// heatmap would be, by truncation.
func Colorize(m *Map, p *Palette) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, v := range m.Values {
		c := p[level(v)]
		img.Pix[4*i+0] = c[0]
		img.Pix[4*i+1] = c[1]
		img.Pix[4*i+2] = c[2]
		img.Pix[4*i+3] = 0xff
	}
	return img
}

func level(v float32) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	default:
		return uint8(255 * v)
	}
}
