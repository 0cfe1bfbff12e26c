package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Metadata describes a trained classifier. It is read from a JSON sidecar
// shipped next to the weights.
type Metadata struct {
	InputShape   []int64   `json:"input_shape"`
	FeatureShape []int64   `json:"feature_shape"`
	InputName    string    `json:"input_name"`
	OutputNames  []string  `json:"output_names"`
	Classes      []string  `json:"classes"`
	ImageSize    int       `json:"image_size"`
	Mean         []float32 `json:"mean"`
	Std          []float32 `json:"std"`
	TargetLayer  string    `json:"target_layer"`
	ModelPath    string    `json:"model_path"`
	BackbonePath string    `json:"backbone_path"`
	HeadPath     string    `json:"head_path"`
}

// ClassScores holds one logit per class, index 0 = normal, index 1 = pneumonia.
type ClassScores []float32

var (
	DefaultMean = []float32{0.485, 0.456, 0.406}
	DefaultStd  = []float32{0.229, 0.224, 0.225}
)

const DefaultImageSize = 256

// LoadMetadata reads the sidecar and resolves relative artifact paths
// against the sidecar's directory.
func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	dir := filepath.Dir(path)
	metadata.ModelPath = resolvePath(dir, metadata.ModelPath)
	metadata.BackbonePath = resolvePath(dir, metadata.BackbonePath)
	metadata.HeadPath = resolvePath(dir, metadata.HeadPath)
	metadata.applyDefaults()

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (m *Metadata) applyDefaults() {
	if m.ImageSize == 0 {
		m.ImageSize = DefaultImageSize
	}
	if len(m.Mean) == 0 {
		m.Mean = append([]float32(nil), DefaultMean...)
	}
	if len(m.Std) == 0 {
		m.Std = append([]float32(nil), DefaultStd...)
	}
	if len(m.InputShape) == 0 {
		m.InputShape = []int64{1, 3, int64(m.ImageSize), int64(m.ImageSize)}
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if len(m.Classes) == 0 {
		m.Classes = []string{"normal", "pneumonia"}
	}
}

// Validate checks the invariants the pipeline relies on.
func (m Metadata) Validate() error {
	if len(m.Classes) != 2 {
		return fmt.Errorf("expected 2 classes, got %d", len(m.Classes))
	}
	if len(m.Mean) != 3 || len(m.Std) != 3 {
		return fmt.Errorf("mean and std need 3 channels, got %d and %d", len(m.Mean), len(m.Std))
	}
	for i, s := range m.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] is zero", i)
		}
	}
	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.InputShape[1] != 3 {
		return fmt.Errorf("input shape must be [1,3,H,W], got %v", m.InputShape)
	}
	if m.InputShape[2] != int64(m.ImageSize) || m.InputShape[3] != int64(m.ImageSize) {
		return fmt.Errorf("input shape %v does not match image size %d", m.InputShape, m.ImageSize)
	}
	if len(m.FeatureShape) != 0 && len(m.FeatureShape) != 4 {
		return fmt.Errorf("feature shape must be [1,C,h,w], got %v", m.FeatureShape)
	}
	return nil
}
