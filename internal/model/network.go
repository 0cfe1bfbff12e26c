package model

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
)

// Classifier scores a normalized image. Score is the inference-only pass;
// ScoreWithGradients additionally returns the target layer activations and
// the gradient of the chosen class logit with respect to them.
type Classifier interface {
	Score(ctx context.Context, t *Tensor) (ClassScores, error)
	ScoreWithGradients(ctx context.Context, t *Tensor, class int) (*GradientPass, error)
	TargetLayer() string
}

// GradientPass is the result of a gradient-enabled forward/backward run.
type GradientPass struct {
	Scores      ClassScores
	Class       int
	Activations *FeatureMap
	Gradients   *FeatureMap
}

// Network joins a backbone and a head at a target layer resolved at
// construction time. Weights are never mutated after construction.
type Network struct {
	backbone Backbone
	head     *Head
	layer    string
	size     int

	// Serializes gradient-enabled passes.
	gradMu sync.Mutex
}

var _ Classifier = (*Network)(nil)

func NewNetwork(backbone Backbone, head *Head, targetLayer string, imageSize int) (*Network, error) {
	const op = "model.NewNetwork"

	layer, err := ResolveLayer(backbone, targetLayer)
	if err != nil {
		return nil, err
	}
	// The head consumes the target layer, so it must be the final backbone
	// layer or the scores would skip the layers after it.
	layers := backbone.Layers()
	if last := layers[len(layers)-1]; layer != last {
		return nil, apperr.Errorf(apperr.LayerResolution, op,
			"target layer %q is not the last backbone layer %q", layer, last)
	}
	channels, err := backbone.Channels(layer)
	if err != nil {
		return nil, apperr.E(apperr.LayerResolution, op, err)
	}
	if channels != head.InputChannels() {
		return nil, apperr.Errorf(apperr.LayerResolution, op,
			"layer %q yields %d channels, head expects %d", layer, channels, head.InputChannels())
	}
	if head.Classes() != 2 {
		return nil, apperr.Errorf(apperr.LayerResolution, op, "head yields %d classes, want 2", head.Classes())
	}
	if imageSize <= 0 {
		imageSize = DefaultImageSize
	}

	return &Network{
		backbone: backbone,
		head:     head,
		layer:    layer,
		size:     imageSize,
	}, nil
}

func (n *Network) TargetLayer() string { return n.layer }

func (n *Network) Score(ctx context.Context, t *Tensor) (ClassScores, error) {
	const op = "model.Score"

	fm, err := n.features(ctx, t)
	if err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	scores, _, err := n.head.forward(fm)
	if err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	if err := checkFinite(scores); err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	return scores, nil
}

func (n *Network) ScoreWithGradients(ctx context.Context, t *Tensor, class int) (*GradientPass, error) {
	const op = "model.ScoreWithGradients"

	n.gradMu.Lock()
	defer n.gradMu.Unlock()

	fm, err := n.features(ctx, t)
	if err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	scores, trace, err := n.head.forward(fm)
	if err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	if err := checkFinite(scores); err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}
	grads, err := n.head.backward(fm, trace, class)
	if err != nil {
		return nil, apperr.E(apperr.ModelInference, op, err)
	}

	return &GradientPass{
		Scores:      scores,
		Class:       class,
		Activations: fm,
		Gradients:   grads,
	}, nil
}

func (n *Network) features(ctx context.Context, t *Tensor) (*FeatureMap, error) {
	if t == nil {
		return nil, fmt.Errorf("nil tensor")
	}
	if err := t.CheckImage(n.size); err != nil {
		return nil, err
	}
	fm, err := n.backbone.Features(ctx, t, n.layer)
	if err != nil {
		return nil, fmt.Errorf("backbone layer %q: %w", n.layer, err)
	}
	if err := fm.valid(); err != nil {
		return nil, err
	}
	return fm, nil
}

func checkFinite(scores ClassScores) error {
	for i, s := range scores {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			return fmt.Errorf("logit %d is not finite (%v)", i, s)
		}
	}
	return nil
}
