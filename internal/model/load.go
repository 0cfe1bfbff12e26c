package model

import "fmt"

// LoadNetwork builds a Network from the metadata sidecar using the given
// backbone. When backbone is nil the pure-Go conv backbone named by
// BackbonePath is loaded instead.
func LoadNetwork(meta Metadata, backbone Backbone) (*Network, error) {
	if meta.HeadPath == "" {
		return nil, fmt.Errorf("metadata has no head_path")
	}
	head, err := LoadHead(meta.HeadPath)
	if err != nil {
		return nil, err
	}

	if backbone == nil {
		if meta.BackbonePath == "" {
			return nil, fmt.Errorf("metadata has no backbone_path")
		}
		conv, err := LoadConvBackbone(meta.BackbonePath)
		if err != nil {
			return nil, err
		}
		backbone = conv
	}

	return NewNetwork(backbone, head, meta.TargetLayer, meta.ImageSize)
}
