package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConvLayerForward_KnownValues(t *testing.T) {
	l := ConvLayer{
		Name: "sum", InChannels: 1, OutChannels: 1, Kernel: 2, Stride: 1,
		Weights: []float32{1, 1, 1, 1},
		Bias:    []float32{-1},
		ReLU:    true,
	}
	in := NewFeatureMap(1, 3, 3)
	copy(in.Data, []float32{
		0, 1, 2,
		3, 4, 5,
		6, 7, 8,
	})

	out, err := l.forward(in)
	require.NoError(t, err)
	require.Equal(t, 2, out.Height)
	require.Equal(t, 2, out.Width)
	require.Equal(t, []float32{7, 11, 19, 23}, out.Data)
}

func TestConvLayerForward_PaddingAndReLU(t *testing.T) {
	l := ConvLayer{
		Name: "neg", InChannels: 1, OutChannels: 1, Kernel: 3, Stride: 1, Padding: 1,
		Weights: []float32{0, 0, 0, 0, -1, 0, 0, 0, 0},
		ReLU:    true,
	}
	in := NewFeatureMap(1, 2, 2)
	copy(in.Data, []float32{1, -2, 3, -4})

	out, err := l.forward(in)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 2, 0, 4}, out.Data)
}

func TestConvBackbone_StopsAtLayer(t *testing.T) {
	b, err := NewConvBackbone([]ConvLayer{
		{Name: "a", InChannels: 3, OutChannels: 2, Kernel: 2, Stride: 2, Weights: make([]float32, 2*3*2*2)},
		{Name: "b", InChannels: 2, OutChannels: 5, Kernel: 1, Weights: make([]float32, 5*2)},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, b.Layers())

	tensor := NewTensor(1, 3, 4, 4)
	fm, err := b.Features(context.Background(), tensor, "a")
	require.NoError(t, err)
	require.Equal(t, 2, fm.Channels)
	require.Equal(t, 2, fm.Height)

	fm, err = b.Features(context.Background(), tensor, "b")
	require.NoError(t, err)
	require.Equal(t, 5, fm.Channels)

	_, err = b.Features(context.Background(), tensor, "missing")
	require.Error(t, err)
}

func TestNewConvBackbone_Validation(t *testing.T) {
	_, err := NewConvBackbone(nil)
	require.Error(t, err)

	_, err = NewConvBackbone([]ConvLayer{
		{Name: "a", InChannels: 3, OutChannels: 2, Kernel: 1, Weights: make([]float32, 5)},
	})
	require.Error(t, err)

	_, err = NewConvBackbone([]ConvLayer{
		{Name: "a", InChannels: 3, OutChannels: 2, Kernel: 1, Weights: make([]float32, 6)},
		{Name: "b", InChannels: 3, OutChannels: 2, Kernel: 1, Weights: make([]float32, 6)},
	})
	require.Error(t, err)
}
