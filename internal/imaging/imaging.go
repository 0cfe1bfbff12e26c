// Package imaging turns uploaded bytes into the normalized tensor the
// classifier consumes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/pneumo-api/internal/apperr"
	"github.com/Brownie44l1/pneumo-api/internal/model"
)

// Decode parses an uploaded image. Any failure is an InvalidImage error.
func Decode(data []byte) (image.Image, string, error) {
	const op = "imaging.Decode"

	if len(data) == 0 {
		return nil, "", apperr.E(apperr.InvalidImage, op, errors.New("empty upload"))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", apperr.E(apperr.InvalidImage, op, err)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, "", apperr.Errorf(apperr.InvalidImage, op, "image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}
	return img, format, nil
}

// ToRGB flattens any color model onto opaque 8-bit RGB. Alpha is dropped,
// not composited, and palette/grayscale images are expanded to three channels.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if src, ok := img.(*image.RGBA); ok && opaque(src) {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return dst
	}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			i := dst.PixOffset(x-b.Min.X, y-b.Min.Y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

func opaque(img *image.RGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return false
		}
	}
	return true
}

// Resize scales img to size x size RGB with the given filter.
func Resize(img image.Image, size int, filter resize.InterpolationFunction) *image.RGBA {
	resized := resize.Resize(uint(size), uint(size), ToRGB(img), filter)
	if rgba, ok := resized.(*image.RGBA); ok {
		return rgba
	}
	return ToRGB(resized)
}

// Normalizer converts images into standardized CHW tensors.
type Normalizer struct {
	Size   int
	Mean   [3]float32
	Std    [3]float32
	Filter resize.InterpolationFunction
}

// NewNormalizer uses the resolution and channel statistics of the model.
func NewNormalizer(meta model.Metadata) (Normalizer, error) {
	if len(meta.Mean) != 3 || len(meta.Std) != 3 {
		return Normalizer{}, fmt.Errorf("mean and std need 3 channels")
	}
	n := Normalizer{Size: meta.ImageSize, Filter: resize.Bilinear}
	copy(n.Mean[:], meta.Mean)
	copy(n.Std[:], meta.Std)
	return n, nil
}

// DefaultNormalizer is 256x256 bilinear with ImageNet statistics.
func DefaultNormalizer() Normalizer {
	return Normalizer{
		Size:   model.DefaultImageSize,
		Mean:   [3]float32{0.485, 0.456, 0.406},
		Std:    [3]float32{0.229, 0.224, 0.225},
		Filter: resize.Bilinear,
	}
}

// Normalize resizes img, scales bytes to [0,1] and standardizes each channel.
// The result has shape [1,3,Size,Size].
func (n Normalizer) Normalize(img image.Image) (*model.Tensor, error) {
	const op = "imaging.Normalize"

	if img == nil {
		return nil, apperr.E(apperr.InvalidImage, op, errors.New("nil image"))
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, apperr.Errorf(apperr.InvalidImage, op, "image has no pixels (%dx%d)", b.Dx(), b.Dy())
	}

	resized := Resize(img, n.Size, n.Filter)

	t := model.NewTensor(1, 3, int64(n.Size), int64(n.Size))
	plane := n.Size * n.Size
	for y := 0; y < n.Size; y++ {
		for x := 0; x < n.Size; x++ {
			i := resized.PixOffset(x, y)
			p := y*n.Size + x
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[i+c]) / 255
				t.Data[c*plane+p] = (v - n.Mean[c]) / n.Std[c]
			}
		}
	}
	return t, nil
}

// NormalizeBytes decodes and normalizes in one step, returning the decoded
// image alongside the tensor. No tensor is returned on failure.
func (n Normalizer) NormalizeBytes(data []byte) (*model.Tensor, image.Image, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	t, err := n.Normalize(img)
	if err != nil {
		return nil, nil, err
	}
	return t, img, nil
}
