// Package modeltest builds small deterministic networks for tests.
package modeltest

import (
	"math"

	"github.com/Brownie44l1/pneumo-api/internal/model"
)

// Size is the input resolution the networks below expect.
const Size = model.DefaultImageSize

// Weights returns n deterministic pseudo-random weights in [-scale, scale].
func Weights(n int, seed, scale float64) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(math.Sin(float64(i)*0.37+seed) * scale)
	}
	return w
}

// Layers returns a two-layer conv stack, "stem" then "features", mapping a
// 256x256 RGB input to a 6x8x8 feature volume.
func Layers() []model.ConvLayer {
	return []model.ConvLayer{
		{
			Name: "stem", InChannels: 3, OutChannels: 4, Kernel: 8, Stride: 8, ReLU: true,
			Weights: Weights(4*3*8*8, 0.1, 0.05),
			Bias:    Weights(4, 0.7, 0.1),
		},
		{
			Name: "features", InChannels: 4, OutChannels: 6, Kernel: 4, Stride: 4,
			Weights: Weights(6*4*4*4, 1.3, 0.2),
			Bias:    Weights(6, 2.1, 0.1),
		},
	}
}

// Head returns a 6 -> 5 -> 2 head with ReLU on its input.
func Head() *model.Head {
	hidden := make([][]float32, 5)
	for i := range hidden {
		hidden[i] = Weights(6, float64(i)+0.5, 0.8)
	}
	logits := make([][]float32, 2)
	for i := range logits {
		logits[i] = Weights(5, float64(i)*2+0.2, 1.0)
	}
	h, err := model.NewHead(true, []model.DenseLayer{
		{Weights: hidden, Bias: Weights(5, 3.3, 0.2)},
		{Weights: logits, Bias: []float32{0.05, -0.05}},
	})
	if err != nil {
		panic(err)
	}
	return h
}

// Backbone returns the conv stack from Layers.
func Backbone() *model.ConvBackbone {
	b, err := model.NewConvBackbone(Layers())
	if err != nil {
		panic(err)
	}
	return b
}

// Network returns a ready classifier targeting the "features" layer.
func Network() *model.Network {
	n, err := model.NewNetwork(Backbone(), Head(), "features", Size)
	if err != nil {
		panic(err)
	}
	return n
}

// UniformTensor returns a normalized-looking input filled with v.
func UniformTensor(v float32) *model.Tensor {
	t := model.NewTensor(1, 3, Size, Size)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// GradientTensor returns an input whose values vary across the image.
func GradientTensor() *model.Tensor {
	t := model.NewTensor(1, 3, Size, Size)
	plane := Size * Size
	for c := 0; c < 3; c++ {
		for y := 0; y < Size; y++ {
			for x := 0; x < Size; x++ {
				t.Data[c*plane+y*Size+x] = float32(x-y)/float32(Size) + float32(c)*0.3
			}
		}
	}
	return t
}
