// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package upsample builds sampling grids that resize feature maps to a target resolution, keeping them
// spatially aligned with the input of the layers that produced them.
//
// The grid maps every target pixel to a normalized source coordinate, where -1 and 1 are the centers of the
// first and last source pixels. It can be used directly with any grid-sampling primitive (see Sampler), or
// through an Upsampler, which adapts the grid to the batch size and placement of the data.
//
// Example: upsample the output of a ResNet-like stack of layers back to the 224x224 input resolution:
//
//	stages := must.M1(receptive.Preset("resnet18"))
//	up := upsample.Grid([2]int{7, 7}).Target([2]int{224, 224}).Stages(stages...).Upsampler()
//	aligned, err := up.Upsample(features, gridsample.InterpolationBilinear, gridsample.PaddingZeros)
package upsample

import (
	"github.com/gomlx/exceptions"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/receptive"
	"github.com/skywolf829/gandissect/pkg/support/xslices"
	"k8s.io/klog/v2"
)

// NumSpatialAxes of the grids: rows and columns.
const NumSpatialAxes = receptive.NumSpatialAxes

// GridBuilder configures the construction of a sampling grid. Create it with Grid, and finish with Done
// (to get the grid tensor) or Upsampler.
type GridBuilder struct {
	source, target, original [NumSpatialAxes]int
	hasOriginal              bool

	scaleOffset    [NumSpatialAxes]receptive.ScaleOffset
	hasScaleOffset bool
	stages         []receptive.Stage
	hasStages      bool

	config Config
}

// Grid starts the construction of a grid that samples data whose spatial shape (rows, cols) is source.
//
// By default, the target shape is the same as the source, the data is stretched uniformly over the target
// (scale = target/source, offset = 0 per axis), and the grid uses DefaultConfig.
func Grid(source [NumSpatialAxes]int) *GridBuilder {
	checkShape("source", source)
	return &GridBuilder{
		source: source,
		target: source,
		config: DefaultConfig(),
	}
}

func checkShape(name string, shape [NumSpatialAxes]int) {
	for axis, dim := range shape {
		if dim <= 0 {
			exceptions.Panicf("upsample: %s shape %v has invalid dimension %d for axis %d", name, shape, dim, axis)
		}
	}
}

// Target sets the spatial shape (rows, cols) of the output of the grid. Default is the source shape.
func (b *GridBuilder) Target(target [NumSpatialAxes]int) *GridBuilder {
	checkShape("target", target)
	b.target = target
	return b
}

// Original sets the spatial shape (rows, cols) of the original input the scale/offset refers to, when the
// target is a uniformly resized version of it. Scale and offset are then rescaled by (target-1)/(original-1).
//
// It is only used together with ScaleOffset or Stages.
func (b *GridBuilder) Original(original [NumSpatialAxes]int) *GridBuilder {
	checkShape("original", original)
	b.original = original
	b.hasOriginal = true
	return b
}

// ScaleOffset sets the affine map, per axis, from source (feature) pixel coordinates to original input pixel
// coordinates. It cannot be used together with Stages.
func (b *GridBuilder) ScaleOffset(scaleOffset [NumSpatialAxes]receptive.ScaleOffset) *GridBuilder {
	if b.hasStages {
		exceptions.Panicf("upsample: GridBuilder.ScaleOffset() cannot be used together with GridBuilder.Stages()")
	}
	b.scaleOffset = scaleOffset
	b.hasScaleOffset = true
	return b
}

// Stages sets the scale/offset to the one of the layers (stages) that transformed the original input into
// the source data. See receptive.SequenceScaleOffset. It cannot be used together with ScaleOffset.
func (b *GridBuilder) Stages(stages ...receptive.Stage) *GridBuilder {
	if b.hasScaleOffset {
		exceptions.Panicf("upsample: GridBuilder.Stages() cannot be used together with GridBuilder.ScaleOffset()")
	}
	b.stages = stages
	b.hasStages = true
	return b
}

// Config sets the dtype and placement of the grid created.
func (b *GridBuilder) Config(config Config) *GridBuilder {
	if !tensors.IsSupported(config.DType) {
		exceptions.Panicf("upsample: grid dtype %s not supported", config.DType)
	}
	b.config = config
	return b
}

// ScaleOffsets returns the effective scale/offset per axis used to build the grid, after defaults
// and the rescaling to the original shape are applied.
func (b *GridBuilder) ScaleOffsets() (scaleOffsets [NumSpatialAxes]receptive.ScaleOffset) {
	if !b.hasScaleOffset && !b.hasStages {
		for axis := range NumSpatialAxes {
			scaleOffsets[axis] = receptive.ScaleOffset{Scale: float64(b.target[axis]) / float64(b.source[axis])}
		}
		return
	}
	scaleOffsets = b.scaleOffset
	if b.hasStages {
		scaleOffsets = receptive.SequenceScaleOffset(b.stages)
	}
	if b.hasOriginal {
		for axis := range NumSpatialAxes {
			ratio := float64(b.target[axis]-1) / float64(b.original[axis]-1)
			scaleOffsets[axis].Scale *= ratio
			scaleOffsets[axis].Offset *= ratio
		}
	}
	return
}

// AxisCoordinates returns the normalized source coordinates of the target pixels, for each axis.
//
// A source (or original) axis of dimension 1 leads to a division by zero, and the coordinates are not finite.
func (b *GridBuilder) AxisCoordinates() (coords [NumSpatialAxes][]float64) {
	scaleOffsets := b.ScaleOffsets()
	for axis, so := range scaleOffsets {
		factor := 2 / (so.Scale * float64(b.source[axis]-1))
		coords[axis] = xslices.Map(xslices.Iota(0.0, b.target[axis]), func(t float64) float64 {
			return (t-so.Offset)*factor - 1
		})
	}
	klog.V(1).Infof("upsample: grid %v -> %v with scale/offset %v", b.source, b.target, scaleOffsets)
	return
}

// Done returns the sampling grid, shaped [1, target rows, target cols, 2], with the dtype and placement
// configured. The last axis holds the (x, y) coordinates: x indexes the columns, and y the rows.
func (b *GridBuilder) Done() *tensors.Tensor {
	coords := b.AxisCoordinates()
	ys, xs := coords[0], coords[1]
	flat := make([]float64, 0, len(ys)*len(xs)*2)
	for _, y := range ys {
		for _, x := range xs {
			flat = append(flat, x, y)
		}
	}
	grid := tensors.FromFloat64s(b.config.DType, flat, 1, len(ys), len(xs), 2)
	return grid.OnPlacement(b.config.Placement)
}

// Shape returns the shape of the grid that Done creates.
func (b *GridBuilder) Shape() shapes.Shape {
	return shapes.Make(b.config.DType, 1, b.target[0], b.target[1], 2)
}
