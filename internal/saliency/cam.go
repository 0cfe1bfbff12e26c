package saliency

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/nfnt/resize"

	"github.com/Brownie44l1/pneumo-api/internal/model"
)

// Map is a per-pixel importance array with values in [0,1].
type Map struct {
	Width  int
	Height int
	Values []float32
}

// At returns the importance at (x, y).
func (m *Map) At(x, y int) float32 {
	return m.Values[y*m.Width+x]
}

// Range returns the smallest and largest values.
func (m *Map) Range() (lo, hi float32) {
	if len(m.Values) == 0 {
		return 0, 0
	}
	lo, hi = m.Values[0], m.Values[0]
	for _, v := range m.Values[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	return lo, hi
}

// ComputeMap builds a Grad-CAM map from a gradient pass and upsamples it to
// size x size. Channel weights are the spatial mean of the gradients; the
// weighted activation sum is rectified and min-max normalized. A map with no
// spread (all zero after rectification) stays all zero.
func ComputeMap(pass *model.GradientPass, size int) (*Map, error) {
	if pass == nil || pass.Activations == nil || pass.Gradients == nil {
		return nil, errors.New("gradient pass is incomplete")
	}
	acts, grads := pass.Activations, pass.Gradients
	if acts.Channels != grads.Channels || acts.Height != grads.Height || acts.Width != grads.Width {
		return nil, fmt.Errorf("activations %dx%dx%d and gradients %dx%dx%d differ",
			acts.Channels, acts.Height, acts.Width, grads.Channels, grads.Height, grads.Width)
	}
	area := acts.Height * acts.Width
	if area == 0 || len(acts.Data) != acts.Channels*area || len(grads.Data) != len(acts.Data) {
		return nil, errors.New("gradient pass has inconsistent buffers")
	}
	if size <= 0 {
		return nil, fmt.Errorf("invalid output size %d", size)
	}

	cam := make([]float64, area)
	for c := 0; c < acts.Channels; c++ {
		var weight float64
		for _, g := range grads.Plane(c) {
			weight += float64(g)
		}
		weight /= float64(area)
		if weight == 0 {
			continue
		}
		for i, a := range acts.Plane(c) {
			cam[i] += weight * float64(a)
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range cam {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite importance at %d", i)
		}
		if v < 0 {
			v = 0
			cam[i] = 0
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	small := image.NewGray16(image.Rect(0, 0, acts.Width, acts.Height))
	if span := hi - lo; span > 0 {
		for i, v := range cam {
			u := uint16(math.Round((v - lo) / span * 0xffff))
			small.Pix[2*i] = uint8(u >> 8)
			small.Pix[2*i+1] = uint8(u)
		}
	}

	return upsample(small, size), nil
}

func upsample(small *image.Gray16, size int) *Map {
	m := &Map{Width: size, Height: size, Values: make([]float32, size*size)}

	var src image.Image = small
	if small.Bounds().Dx() != size || small.Bounds().Dy() != size {
		src = resize.Resize(uint(size), uint(size), small, resize.Bilinear)
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g, _, _, _ := src.At(x, y).RGBA()
			m.Values[y*size+x] = float32(g) / 0xffff
		}
	}
	return m
}
