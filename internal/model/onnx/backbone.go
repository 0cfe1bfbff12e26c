// Package onnx runs a classifier backbone exported to ONNX. The exported
// graph takes the normalized [1,3,H,W] image and returns the activations of
// the target layer; the classification head runs in Go so that gradients
// with respect to those activations can be computed.
package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/pneumo-api/internal/model"
)

type Backbone struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	layer        string
	featureShape []int64

	// The session runs against the pre-allocated tensors above.
	mu sync.Mutex
}

var _ model.Backbone = (*Backbone)(nil)

func New(meta model.Metadata, libraryPath string) (*Backbone, error) {
	if meta.ModelPath == "" {
		return nil, fmt.Errorf("metadata has no model_path")
	}
	if len(meta.OutputNames) != 1 {
		return nil, fmt.Errorf("expected exactly one output name, got %v", meta.OutputNames)
	}
	if len(meta.FeatureShape) != 4 {
		return nil, fmt.Errorf("feature shape must be [1,C,h,w], got %v", meta.FeatureShape)
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.FeatureShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(meta.ModelPath,
		[]string{meta.InputName}, meta.OutputNames,
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Backbone{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		layer:        meta.OutputNames[0],
		featureShape: meta.FeatureShape,
	}, nil
}

func (b *Backbone) Layers() []string {
	return []string{b.layer}
}

func (b *Backbone) Channels(layer string) (int, error) {
	if layer != b.layer {
		return 0, fmt.Errorf("unknown layer %q", layer)
	}
	return int(b.featureShape[1]), nil
}

func (b *Backbone) Features(ctx context.Context, t *model.Tensor, layer string) (*model.FeatureMap, error) {
	if layer != b.layer {
		return nil, fmt.Errorf("unknown layer %q", layer)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	input := b.inputTensor.GetData()
	if len(t.Data) != len(input) {
		return nil, fmt.Errorf("expected %d input values, got %d", len(input), len(t.Data))
	}
	copy(input, t.Data)

	if err := b.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	fm := model.NewFeatureMap(int(b.featureShape[1]), int(b.featureShape[2]), int(b.featureShape[3]))
	copy(fm.Data, b.outputTensor.GetData())
	return fm, nil
}

func (b *Backbone) Close() {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
	ort.DestroyEnvironment()
}
