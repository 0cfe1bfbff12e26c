package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// DenseLayer is a fully connected layer, Weights laid out [out][in].
type DenseLayer struct {
	Weights [][]float32 `json:"weights"`
	Bias    []float32   `json:"bias"`
}

func (d DenseLayer) in() int  { return len(d.Weights[0]) }
func (d DenseLayer) out() int { return len(d.Weights) }

// Head is the classification head placed on top of the target layer:
// optional ReLU, global average pooling, then dense layers with ReLU between
// them. The last dense layer yields the class logits.
type Head struct {
	InputReLU bool         `json:"input_relu"`
	Layers    []DenseLayer `json:"layers"`
}

// headTrace keeps what the backward pass needs from a forward pass.
type headTrace struct {
	pooled []float64
	pre    [][]float64
}

func NewHead(inputReLU bool, layers []DenseLayer) (*Head, error) {
	h := &Head{InputReLU: inputReLU, Layers: layers}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// LoadHead reads a head from JSON.
func LoadHead(path string) (*Head, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read head: %w", err)
	}
	var h Head
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("failed to parse head: %w", err)
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return &h, nil
}

func (h *Head) validate() error {
	if len(h.Layers) == 0 {
		return fmt.Errorf("head needs at least one dense layer")
	}
	for i, l := range h.Layers {
		if len(l.Weights) == 0 || len(l.Weights[0]) == 0 {
			return fmt.Errorf("dense layer %d is empty", i)
		}
		for r, row := range l.Weights {
			if len(row) != l.in() {
				return fmt.Errorf("dense layer %d row %d has %d weights, want %d", i, r, len(row), l.in())
			}
		}
		if len(l.Bias) != 0 && len(l.Bias) != l.out() {
			return fmt.Errorf("dense layer %d has %d biases, want %d", i, len(l.Bias), l.out())
		}
		if i > 0 && h.Layers[i-1].out() != l.in() {
			return fmt.Errorf("dense layer %d expects %d inputs, previous layer yields %d",
				i, l.in(), h.Layers[i-1].out())
		}
	}
	return nil
}

// InputChannels is the channel count the head expects from the target layer.
func (h *Head) InputChannels() int { return h.Layers[0].in() }

// Classes is the number of logits the head produces.
func (h *Head) Classes() int { return h.Layers[len(h.Layers)-1].out() }

// forward computes the logits for fm.
func (h *Head) forward(fm *FeatureMap) (ClassScores, *headTrace, error) {
	if err := fm.valid(); err != nil {
		return nil, nil, err
	}
	if fm.Channels != h.InputChannels() {
		return nil, nil, fmt.Errorf("head expects %d channels, got %d", h.InputChannels(), fm.Channels)
	}

	area := float64(fm.Height * fm.Width)
	pooled := make([]float64, fm.Channels)
	for c := 0; c < fm.Channels; c++ {
		var sum float64
		for _, v := range fm.Plane(c) {
			if h.InputReLU && v < 0 {
				continue
			}
			sum += float64(v)
		}
		pooled[c] = sum / area
	}

	trace := &headTrace{pooled: pooled, pre: make([][]float64, len(h.Layers))}
	act := pooled
	for i, l := range h.Layers {
		z := make([]float64, l.out())
		for o, row := range l.Weights {
			var sum float64
			if len(l.Bias) > 0 {
				sum = float64(l.Bias[o])
			}
			for j, w := range row {
				sum += float64(w) * act[j]
			}
			z[o] = sum
		}
		trace.pre[i] = z
		if i == len(h.Layers)-1 {
			act = z
			break
		}
		act = make([]float64, len(z))
		for j, v := range z {
			if v > 0 {
				act[j] = v
			}
		}
	}

	scores := make(ClassScores, len(act))
	for i, v := range act {
		scores[i] = float32(v)
	}
	return scores, trace, nil
}

// backward returns d logit[class] / d fm for the forward pass recorded in trace.
func (h *Head) backward(fm *FeatureMap, trace *headTrace, class int) (*FeatureMap, error) {
	if class < 0 || class >= h.Classes() {
		return nil, fmt.Errorf("class %d out of range [0,%d)", class, h.Classes())
	}

	grad := make([]float64, h.Classes())
	grad[class] = 1
	for i := len(h.Layers) - 1; i >= 0; i-- {
		l := h.Layers[i]
		prev := make([]float64, l.in())
		for o, row := range l.Weights {
			g := grad[o]
			if g == 0 {
				continue
			}
			for j, w := range row {
				prev[j] += float64(w) * g
			}
		}
		if i > 0 {
			for j, z := range trace.pre[i-1] {
				if z <= 0 {
					prev[j] = 0
				}
			}
		}
		grad = prev
	}

	out := NewFeatureMap(fm.Channels, fm.Height, fm.Width)
	area := float64(fm.Height * fm.Width)
	for c := 0; c < fm.Channels; c++ {
		g := float32(grad[c] / area)
		src := fm.Plane(c)
		dst := out.Plane(c)
		for i, v := range src {
			if h.InputReLU && v <= 0 {
				continue
			}
			dst[i] = g
		}
	}
	return out, nil
}
