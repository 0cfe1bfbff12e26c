package model

import "fmt"

// Tensor is a dense float32 array in NCHW layout.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(shape ...int64) *Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int64(nil), shape...), Data: make([]float32, n)}
}

func (t *Tensor) dim(i int) int {
	if len(t.Shape) != 4 {
		return 0
	}
	return int(t.Shape[i])
}

func (t *Tensor) Batch() int    { return t.dim(0) }
func (t *Tensor) Channels() int { return t.dim(1) }
func (t *Tensor) Height() int   { return t.dim(2) }
func (t *Tensor) Width() int    { return t.dim(3) }

// CheckImage verifies the tensor is a single 3-channel image of the given size.
func (t *Tensor) CheckImage(size int) error {
	if len(t.Shape) != 4 {
		return fmt.Errorf("tensor rank %d, want 4", len(t.Shape))
	}
	if t.Batch() != 1 || t.Channels() != 3 || t.Height() != size || t.Width() != size {
		return fmt.Errorf("tensor shape %v, want [1 3 %d %d]", t.Shape, size, size)
	}
	if len(t.Data) != 3*size*size {
		return fmt.Errorf("tensor holds %d values, want %d", len(t.Data), 3*size*size)
	}
	return nil
}

// FeatureMap is a CHW activation (or gradient) volume of one layer.
type FeatureMap struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

// NewFeatureMap allocates a zeroed map.
func NewFeatureMap(c, h, w int) *FeatureMap {
	return &FeatureMap{Channels: c, Height: h, Width: w, Data: make([]float32, c*h*w)}
}

// Plane returns the h*w slice of channel c.
func (f *FeatureMap) Plane(c int) []float32 {
	n := f.Height * f.Width
	return f.Data[c*n : (c+1)*n]
}

func (f *FeatureMap) valid() error {
	if f.Channels <= 0 || f.Height <= 0 || f.Width <= 0 {
		return fmt.Errorf("empty feature map %dx%dx%d", f.Channels, f.Height, f.Width)
	}
	if len(f.Data) != f.Channels*f.Height*f.Width {
		return fmt.Errorf("feature map holds %d values, want %d", len(f.Data), f.Channels*f.Height*f.Width)
	}
	return nil
}
