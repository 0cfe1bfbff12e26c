// Package saliency explains a classification with a Grad-CAM heatmap
// composited over the original image.
package saliency

import (
	"context"
	"errors"
	"image"

	"go.uber.org/zap"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/model"
)

// Overlay is the written explanation artifact.
type Overlay struct {
	Path  string
	Map   *Map
	Image *image.RGBA
}

// Generator produces overlays with one gradient-enabled pass per call.
type Generator struct {
	size        int
	imageWeight float64
	palette     *Palette
	logger      *zap.Logger
}

func NewGenerator(size int, logger *zap.Logger) *Generator {
	if size <= 0 {
		size = model.DefaultImageSize
	}
	g := &Generator{
		size:        size,
		imageWeight: DefaultImageWeight,
		palette:     Jet(),
		logger:      logger.Named("saliency"),
	}
	if err := JetFallback(); err != nil {
		g.logger.Warn("using pure-Go JET colormap", zap.Error(err))
	}
	return g
}

// Explain computes the importance map of class for tensor and writes the
// overlay on original to path.
func (g *Generator) Explain(ctx context.Context, classifier model.Classifier, tensor *model.Tensor, class int, original image.Image, path string) (*Overlay, error) {
	const op = "saliency.Explain"

	if path == "" {
		return nil, apperr.E(apperr.SaliencyComputation, op, errors.New("no output path"))
	}
	if original == nil {
		return nil, apperr.E(apperr.SaliencyComputation, op, errors.New("no original image"))
	}

	pass, err := classifier.ScoreWithGradients(ctx, tensor, class)
	if err != nil {
		return nil, apperr.E(apperr.SaliencyComputation, op, err)
	}

	m, err := ComputeMap(pass, g.size)
	if err != nil {
		return nil, apperr.E(apperr.SaliencyComputation, op, err)
	}

	img, err := Composite(original, m, g.palette, g.imageWeight)
	if err != nil {
		return nil, apperr.E(apperr.SaliencyComputation, op, err)
	}

	if err := WriteImage(path, img); err != nil {
		return nil, apperr.E(apperr.SaliencyComputation, op, err)
	}

	lo, hi := m.Range()
	g.logger.Debug("overlay written",
		zap.String("path", path),
		zap.String("layer", classifier.TargetLayer()),
		zap.Int("class", class),
		zap.Float32("min", lo),
		zap.Float32("max", hi),
	)

	return &Overlay{Path: path, Map: m, Image: img}, nil
}
