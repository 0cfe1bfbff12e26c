package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// ConvLayer is a 2D convolution with square kernels, optionally followed by ReLU.
// Weights are laid out [out][in][k][k].
type ConvLayer struct {
	Name        string    `json:"name"`
	InChannels  int       `json:"in_channels"`
	OutChannels int       `json:"out_channels"`
	Kernel      int       `json:"kernel"`
	Stride      int       `json:"stride"`
	Padding     int       `json:"padding"`
	ReLU        bool      `json:"relu"`
	Weights     []float32 `json:"weights"`
	Bias        []float32 `json:"bias"`
}

// ConvBackbone is a pure-Go convolutional feature extractor.
type ConvBackbone struct {
	layers []ConvLayer
	index  map[string]int
}

func NewConvBackbone(layers []ConvLayer) (*ConvBackbone, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("conv backbone needs at least one layer")
	}
	index := make(map[string]int, len(layers))
	for i := range layers {
		l := &layers[i]
		if l.Name == "" {
			return nil, fmt.Errorf("layer %d has no name", i)
		}
		if _, dup := index[l.Name]; dup {
			return nil, fmt.Errorf("duplicate layer name %q", l.Name)
		}
		if l.Stride == 0 {
			l.Stride = 1
		}
		if l.InChannels <= 0 || l.OutChannels <= 0 || l.Kernel <= 0 || l.Stride < 0 || l.Padding < 0 {
			return nil, fmt.Errorf("layer %q has invalid geometry", l.Name)
		}
		if want := l.OutChannels * l.InChannels * l.Kernel * l.Kernel; len(l.Weights) != want {
			return nil, fmt.Errorf("layer %q has %d weights, want %d", l.Name, len(l.Weights), want)
		}
		if len(l.Bias) != 0 && len(l.Bias) != l.OutChannels {
			return nil, fmt.Errorf("layer %q has %d biases, want %d", l.Name, len(l.Bias), l.OutChannels)
		}
		if i > 0 && layers[i-1].OutChannels != l.InChannels {
			return nil, fmt.Errorf("layer %q expects %d channels, previous layer yields %d",
				l.Name, l.InChannels, layers[i-1].OutChannels)
		}
		index[l.Name] = i
	}
	return &ConvBackbone{layers: layers, index: index}, nil
}

// LoadConvBackbone reads layers from a JSON file of the form {"layers": [...]}.
func LoadConvBackbone(path string) (*ConvBackbone, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backbone: %w", err)
	}
	var file struct {
		Layers []ConvLayer `json:"layers"`
	}
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse backbone: %w", err)
	}
	return NewConvBackbone(file.Layers)
}

func (b *ConvBackbone) Layers() []string {
	names := make([]string, len(b.layers))
	for i, l := range b.layers {
		names[i] = l.Name
	}
	return names
}

func (b *ConvBackbone) Channels(layer string) (int, error) {
	i, ok := b.index[layer]
	if !ok {
		return 0, fmt.Errorf("unknown layer %q", layer)
	}
	return b.layers[i].OutChannels, nil
}

// Features runs the convolutions up to and including layer.
func (b *ConvBackbone) Features(ctx context.Context, t *Tensor, layer string) (*FeatureMap, error) {
	last, ok := b.index[layer]
	if !ok {
		return nil, fmt.Errorf("unknown layer %q", layer)
	}
	if len(t.Shape) != 4 || t.Batch() != 1 {
		return nil, fmt.Errorf("expected a single-image batch, got shape %v", t.Shape)
	}
	if t.Channels() != b.layers[0].InChannels {
		return nil, fmt.Errorf("expected %d input channels, got %d", b.layers[0].InChannels, t.Channels())
	}
	if len(t.Data) != t.Channels()*t.Height()*t.Width() {
		return nil, fmt.Errorf("tensor data does not match shape %v", t.Shape)
	}

	fm := &FeatureMap{Channels: t.Channels(), Height: t.Height(), Width: t.Width(), Data: t.Data}
	for i := 0; i <= last; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := b.layers[i].forward(fm)
		if err != nil {
			return nil, err
		}
		fm = next
	}
	return fm, nil
}

func (l *ConvLayer) forward(in *FeatureMap) (*FeatureMap, error) {
	outH := (in.Height+2*l.Padding-l.Kernel)/l.Stride + 1
	outW := (in.Width+2*l.Padding-l.Kernel)/l.Stride + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("layer %q: input %dx%d too small for kernel %d", l.Name, in.Height, in.Width, l.Kernel)
	}

	out := NewFeatureMap(l.OutChannels, outH, outW)
	k := l.Kernel
	for o := 0; o < l.OutChannels; o++ {
		var bias float32
		if len(l.Bias) > 0 {
			bias = l.Bias[o]
		}
		dst := out.Plane(o)
		for y := 0; y < outH; y++ {
			for x := 0; x < outW; x++ {
				sum := float64(bias)
				for c := 0; c < l.InChannels; c++ {
					src := in.Plane(c)
					w := l.Weights[(o*l.InChannels+c)*k*k:]
					for ky := 0; ky < k; ky++ {
						iy := y*l.Stride + ky - l.Padding
						if iy < 0 || iy >= in.Height {
							continue
						}
						for kx := 0; kx < k; kx++ {
							ix := x*l.Stride + kx - l.Padding
							if ix < 0 || ix >= in.Width {
								continue
							}
							sum += float64(w[ky*k+kx]) * float64(src[iy*in.Width+ix])
						}
					}
				}
				v := float32(sum)
				if l.ReLU && v < 0 {
					v = 0
				}
				dst[y*outW+x] = v
			}
		}
	}
	return out, nil
}
