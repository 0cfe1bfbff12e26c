//go:build !gocv
// +build !gocv

package saliency

func buildJet() (Palette, error) {
	return jetRamp(), nil
}
