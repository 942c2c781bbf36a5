// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package receptive

import (
	"fmt"

	"k8s.io/klog/v2"
)

// AxisConfig is the geometry of one stage along one spatial axis.
type AxisConfig struct {
	Kernel, Dilation, Stride, Padding int
}

// AxisConfigs converts the stages to one list of AxisConfig per spatial axis.
// Identity stages are dropped.
func AxisConfigs(stages []Stage) (configs [NumSpatialAxes][]AxisConfig) {
	for _, stage := range stages {
		if stage.IsIdentity() {
			continue
		}
		for axis := range configs {
			configs[axis] = append(configs[axis], stage.Axis(axis))
		}
	}
	return
}

// ScaleOffset is the affine mapping of one axis from output coordinates back to input coordinates:
//
//	input = output * Scale + Offset
//
// In both coordinate systems 0 refers to the outer edge of the first pixel, 0.5 refers to
// the center of that pixel, and 1 refers to the far edge of that same pixel.
type ScaleOffset struct {
	Scale, Offset float64
}

// IdentityScaleOffset is the mapping of an empty pipeline.
var IdentityScaleOffset = ScaleOffset{Scale: 1, Offset: 0}

// ToInput maps an output coordinate to the input coordinate system.
func (so ScaleOffset) ToInput(output float64) float64 {
	return output*so.Scale + so.Offset
}

// ToOutput maps an input coordinate to the output coordinate system. It is the inverse of ToInput.
func (so ScaleOffset) ToOutput(input float64) float64 {
	return (input - so.Offset) / so.Scale
}

// Inverse returns the mapping from input coordinates to output coordinates.
func (so ScaleOffset) Inverse() ScaleOffset {
	return ScaleOffset{Scale: 1 / so.Scale, Offset: -so.Offset / so.Scale}
}

// String implements fmt.Stringer.
func (so ScaleOffset) String() string {
	return fmt.Sprintf("(scale=%g, offset=%g)", so.Scale, so.Offset)
}

// ComposeScaleOffset composes the configs of one axis, given in pipeline order (input to output),
// into a single ScaleOffset that maps the last stage's output back to the first stage's input.
//
// The composition goes from the innermost (last) stage to the first, so each stage's offset is scaled by
// the strides of all stages that come before it in the pipeline.
func ComposeScaleOffset(configs []AxisConfig) ScaleOffset {
	so := IdentityScaleOffset
	for ii := len(configs) - 1; ii >= 0; ii-- {
		c := configs[ii]
		stride := float64(c.Stride)
		so.Scale *= stride
		so.Offset = so.Offset*stride + float64(c.Kernel-1)*float64(c.Dilation)/2.0 - float64(c.Padding)
	}
	return so
}

// SequenceScaleOffset returns the ScaleOffset of each spatial axis, given the stages in pipeline order.
//
// An empty list (or one with only identity stages) returns IdentityScaleOffset for every axis.
func SequenceScaleOffset(stages []Stage) (scaleOffsets [NumSpatialAxes]ScaleOffset) {
	configs := AxisConfigs(stages)
	for axis := range scaleOffsets {
		scaleOffsets[axis] = ComposeScaleOffset(configs[axis])
	}
	if klog.V(2).Enabled() {
		klog.Infof("receptive: %d stages (%d non-identity) compose to %v", len(stages), len(configs[0]), scaleOffsets)
	}
	return
}

// ComposeDataSize applies the configs of one axis, in pipeline order, to the given input size
// and returns the output size:
//
//	output = floor((input + 2*padding - dilation*(kernel-1) - 1) / stride) + 1
//
// The division floors towards negative infinity, so inputs too small for the stages may yield sizes <= 0.
func ComposeDataSize(configs []AxisConfig, size int) int {
	for _, c := range configs {
		size = floorDiv(size+2*c.Padding-c.Dilation*(c.Kernel-1)-1, c.Stride) + 1
	}
	return size
}

// SequenceDataSize returns the output size of each spatial axis, given the stages in pipeline order,
// and the input size.
func SequenceDataSize(stages []Stage, inputSize [NumSpatialAxes]int) (outputSize [NumSpatialAxes]int) {
	configs := AxisConfigs(stages)
	for axis := range outputSize {
		outputSize[axis] = ComposeDataSize(configs[axis], inputSize[axis])
	}
	return
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
