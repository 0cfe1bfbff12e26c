// Package pipeline sequences normalization, scoring, decision and the
// optional explanation for one request.
package pipeline

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/decision"
	"github.com/Brownie44l1/pneumo-api/internal/domain"
	"github.com/Brownie44l1/pneumo-api/internal/imaging"
	"github.com/Brownie44l1/pneumo-api/internal/model"
	"github.com/Brownie44l1/pneumo-api/internal/saliency"
)

// Explainer writes an overlay explaining class for tensor.
type Explainer interface {
	Explain(ctx context.Context, classifier model.Classifier, tensor *model.Tensor, class int, original image.Image, path string) (*saliency.Overlay, error)
}

// Request carries per-call options.
type Request struct {
	Explain     bool
	OverlayPath string
}

// Result is the complete outcome of one run.
type Result struct {
	Verdict       domain.Verdict
	Probability   float64
	Confidence    domain.ConfidenceBand
	ClassIndex    int
	Probabilities []float64
	InputShape    []int64
	OverlayPath   string
}

type Pipeline struct {
	normalizer imaging.Normalizer
	classifier model.Classifier
	explainer  Explainer
	logger     *zap.Logger
}

func New(normalizer imaging.Normalizer, classifier model.Classifier, explainer Explainer, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		classifier: classifier,
		explainer:  explainer,
		logger:     logger.Named("pipeline"),
	}
}

// Run scores the image exactly once and, when requested, runs one gradient
// pass on the same tensor. Errors are returned as-is; no partial result is
// ever returned.
func (p *Pipeline) Run(ctx context.Context, data []byte, req Request) (*Result, error) {
	const op = "pipeline.Run"

	if req.Explain && (req.OverlayPath == "" || p.explainer == nil) {
		return nil, apperr.E(apperr.InvalidInput, op, errors.New("explanation requested without overlay path or explainer"))
	}

	tensor, original, err := p.normalizer.NormalizeBytes(data)
	if err != nil {
		return nil, err
	}

	scores, err := p.classifier.Score(ctx, tensor)
	if err != nil {
		return nil, err
	}

	d, err := decision.Decide(scores)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Verdict:       d.Verdict,
		Probability:   d.Probability,
		Confidence:    d.Band,
		ClassIndex:    d.ClassIndex,
		Probabilities: d.Probabilities,
		InputShape:    append([]int64(nil), tensor.Shape...),
	}

	if req.Explain {
		overlay, err := p.explainer.Explain(ctx, p.classifier, tensor, d.ClassIndex, original, req.OverlayPath)
		if err != nil {
			return nil, err
		}
		result.OverlayPath = overlay.Path
	}

	p.logger.Debug("analysis complete",
		zap.String("verdict", string(result.Verdict)),
		zap.Float64("probability", result.Probability),
		zap.String("confidence", string(result.Confidence)),
		zap.Bool("explained", req.Explain),
	)
	return result, nil
}
