//go:build gocv
// +build gocv

package saliency

import (
	"fmt"

	"gocv.io/x/gocv"
)

// buildJet asks OpenCV for its JET lookup table by colorizing a 1x256 ramp.
func buildJet() (Palette, error) {
	ramp := make([]byte, 256)
	for i := range ramp {
		ramp[i] = byte(i)
	}

	src, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8U, ramp)
	if err != nil {
		return Palette{}, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.ApplyColorMap(src, &dst, gocv.ColormapJet)

	bgr := dst.ToBytes()
	if len(bgr) != 3*256 {
		return Palette{}, fmt.Errorf("colormap returned %d bytes, want %d", len(bgr), 3*256)
	}
	var p Palette
	for i := range p {
		p[i] = [3]uint8{bgr[3*i+2], bgr[3*i+1], bgr[3*i]}
	}
	return p, nil
}
