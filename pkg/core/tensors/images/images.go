// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package images converts images back and forth from tensors shaped `[batch, channels, rows, cols]`
// (channels first), the layout used by the grid samplers.
package images

import (
	"image"
	"image/color"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// Spatial returns the (rows, cols) of an image tensor, shaped `[channels, rows, cols]` or
// `[batch, channels, rows, cols]`.
func Spatial(img shapes.HasShape) [2]int {
	shape := img.Shape()
	if shape.Rank() < 3 {
		exceptions.Panicf("images.Spatial(%s): image tensors must have rank 3 or 4", shape)
	}
	return [2]int{shape.Dim(-2), shape.Dim(-1)}
}

// ToTensorConfig holds the configuration returned by the ToTensor function. Once
// configured, use Single or Batch to actually convert.
type ToTensorConfig struct {
	channels int
	maxValue float64
	dtype    dtypes.DType
}

// ToTensor converts an image (or batch) to a tensor.
//
// It returns a configuration object that can be further configured. Once set, use Single or Batch
// methods to convert an image or a batch of images.
func ToTensor(dtype dtypes.DType) *ToTensorConfig {
	if !tensors.IsSupported(dtype) {
		exceptions.Panicf("images.ToTensor(%s): only float dtypes are supported", dtype)
	}
	return &ToTensorConfig{
		channels: 3,
		maxValue: 1.0,
		dtype:    dtype,
	}
}

// WithAlpha configures ToTensorConfig object to include the alpha channel in the conversion,
// so the converted tensor will have 4 channels. The default is dropping the alpha channel.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) WithAlpha() *ToTensorConfig {
	tt.channels = 4
	return tt
}

// Gray configures ToTensorConfig object to convert the images to gray, with only 1 channel.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) Gray() *ToTensorConfig {
	tt.channels = 1
	return tt
}

// MaxValue sets the value of a fully saturated channel. It defaults to 1.0.
//
// It returns the ToTensorConfig object, so configuration calls can be cascaded.
func (tt *ToTensorConfig) MaxValue(v float64) *ToTensorConfig {
	tt.maxValue = v
	return tt
}

// Single converts the given img to a tensor shaped `[channels, rows, cols]`.
func (tt *ToTensorConfig) Single(img image.Image) *tensors.Tensor {
	t := tt.Batch([]image.Image{img})
	dims := t.Shape().Dimensions[1:]
	return tensors.FromFloat64s(tt.dtype, t.Float64s(), dims...)
}

// Batch converts the given images to a tensor shaped `[batch, channels, rows, cols]`.
//
// All images must have the same size, or it panics.
func (tt *ToTensorConfig) Batch(images []image.Image) *tensors.Tensor {
	if len(images) == 0 {
		exceptions.Panicf("images.ToTensor().Batch() requires at least one image")
	}
	imgSize := images[0].Bounds().Size()
	planeSize := imgSize.X * imgSize.Y
	flat := make([]float64, len(images)*tt.channels*planeSize)
	scale := tt.maxValue / float64(0xFFFF)
	for imgIdx, img := range images {
		bounds := img.Bounds()
		if !bounds.Size().Eq(imgSize) {
			exceptions.Panicf("image[%d] has size %s, but image[0] has size %s -- they must all be the same",
				imgIdx, bounds.Size(), imgSize)
		}
		base := imgIdx * tt.channels * planeSize
		for y := range imgSize.Y {
			for x := range imgSize.X {
				pos := y*imgSize.X + x
				pixel := img.At(bounds.Min.X+x, bounds.Min.Y+y)
				if tt.channels == 1 {
					// color.Gray16Model values are 16 bits packaged in uint32.
					gray := color.Gray16Model.Convert(pixel).(color.Gray16)
					flat[base+pos] = float64(gray.Y) * scale
					continue
				}
				r, g, b, a := pixel.RGBA()
				rgba := [4]uint32{r, g, b, a}
				for channel, v := range rgba[:tt.channels] {
					flat[base+channel*planeSize+pos] = float64(v) * scale
				}
			}
		}
	}
	klog.V(2).Infof("images: converted %d images of size %s", len(images), imgSize)
	return tensors.FromFloat64s(tt.dtype, flat, len(images), tt.channels, imgSize.Y, imgSize.X)
}

// ToImageConfig holds the configuration returned by the ToImage function. Once
// configured, use Single or Batch to actually convert a tensor to image(s).
type ToImageConfig struct {
	maxValue float64
}

// ToImage returns a configuration that can be used to convert tensors to images.
// Use Single or Batch to convert single images or batch of images at once.
//
// Tensors with 1 channel are converted to *image.Gray, and tensors with 3 or 4 channels to *image.NRGBA.
// Values are clipped to the range [0, MaxValue].
func ToImage() *ToImageConfig {
	return &ToImageConfig{maxValue: 1.0}
}

// MaxValue sets the value of a fully saturated channel. It defaults to 1.0.
//
// It returns the ToImageConfig object, so configuration calls can be cascaded.
func (ti *ToImageConfig) MaxValue(v float64) *ToImageConfig {
	ti.maxValue = v
	return ti
}

// Single converts the given tensor shaped `[channels, rows, cols]` to an image.
func (ti *ToImageConfig) Single(t *tensors.Tensor) image.Image {
	if t.Rank() != 3 {
		exceptions.Panicf("images.ToImage().Single(%s): tensor must be shaped [channels, rows, cols]", t.Shape())
	}
	return ti.convert(t, 1)[0]
}

// Batch converts the given tensor shaped `[batch, channels, rows, cols]` to images.
func (ti *ToImageConfig) Batch(t *tensors.Tensor) []image.Image {
	if t.Rank() != 4 {
		exceptions.Panicf("images.ToImage().Batch(%s): tensor must be shaped [batch, channels, rows, cols]", t.Shape())
	}
	return ti.convert(t, t.Shape().Dim(0))
}

func (ti *ToImageConfig) convert(t *tensors.Tensor, numImages int) []image.Image {
	channels := t.Shape().Dim(-3)
	size := Spatial(t)
	height, width := size[0], size[1]
	if channels != 1 && channels != 3 && channels != 4 {
		exceptions.Panicf("images.ToImage invalid tensor shape %s, with %d channels: only images with 1, 3 or 4 "+
			"channels are supported", t.Shape(), channels)
	}
	flat := t.Float64s()
	planeSize := height * width
	toUint8 := func(v float64) uint8 {
		return uint8(math.Round(255 * math.Min(1, math.Max(0, v/ti.maxValue))))
	}
	images := make([]image.Image, 0, numImages)
	for imageIdx := range numImages {
		base := imageIdx * channels * planeSize
		if channels == 1 {
			img := image.NewGray(image.Rect(0, 0, width, height))
			for pos := range planeSize {
				img.Pix[(pos/width)*img.Stride+pos%width] = toUint8(flat[base+pos])
			}
			images = append(images, img)
			continue
		}
		img := image.NewNRGBA(image.Rect(0, 0, width, height))
		for pos := range planeSize {
			pixIdx := (pos/width)*img.Stride + (pos%width)*4
			img.Pix[pixIdx+3] = 255 // Alpha channel.
			for d := range channels {
				img.Pix[pixIdx+d] = toUint8(flat[base+d*planeSize+pos])
			}
		}
		images = append(images, img)
	}
	return images
}
