package model

import (
	"context"
	"fmt"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
)

// Backbone is the feature extractor of a classifier. It exposes the named
// spatial layers it can stop at; the classification head consumes the
// activations of one of them.
type Backbone interface {
	Layers() []string
	Channels(layer string) (int, error)
	Features(ctx context.Context, t *Tensor, layer string) (*FeatureMap, error)
}

// ConventionalLayers are tried, in order, when no target layer is configured
// or the configured one is not exposed by the backbone.
var ConventionalLayers = []string{"backbone.features", "features"}

// ResolveLayer picks the explanation target layer once, at load time.
func ResolveLayer(b Backbone, preferred string) (string, error) {
	const op = "model.ResolveLayer"

	available := make(map[string]struct{}, len(b.Layers()))
	for _, name := range b.Layers() {
		available[name] = struct{}{}
	}

	candidates := ConventionalLayers
	if preferred != "" {
		candidates = append([]string{preferred}, ConventionalLayers...)
	}
	for _, name := range candidates {
		if _, ok := available[name]; ok {
			return name, nil
		}
	}
	return "", apperr.E(apperr.LayerResolution, op,
		fmt.Errorf("none of %v found among backbone layers %v", candidates, b.Layers()))
}
