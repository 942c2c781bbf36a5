// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package receptive composes the geometry of a stack of convolution-like stages (convolutions, poolings, etc.)
// into a single affine mapping from the coordinates of the stack's output back to the coordinates
// of its input.
//
// Each stage is described by its kernel size, dilation, stride and padding, per spatial axis. The
// composition preserves the centers of the receptive fields:
//
//	input = output * scale + offset
//
// Modern convnets tend to pad every layer to keep receptive fields centered, which results in zero offsets:
// after ResNet's five stride-2 reductions the mapping is just (scale=32, offset=0) on both axes. AlexNet, on
// the other hand, does not pad every layer, and it maps to (scale=32, offset=31).
//
// Example:
//
//	stages := []receptive.Stage{
//		receptive.Conv(7, 2, 3),
//		receptive.NewStage().KernelSize(3).Strides(2).Padding(1).Done(),
//	}
//	scaleOffsets := receptive.SequenceScaleOffset(stages)  // [{4 0} {4 0}]
//	outputSize := receptive.SequenceDataSize(stages, [2]int{224, 224})  // [56 56]
package receptive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/skywolf829/gandissect/pkg/support/xslices"
)

// NumSpatialAxes is the number of spatial axes (rows and columns) handled by the package.
const NumSpatialAxes = 2

// AxisValues holds one integer per spatial axis, in the order (rows, cols).
type AxisValues [NumSpatialAxes]int

// Uniform returns AxisValues with the same value for every axis.
func Uniform(value int) (v AxisValues) {
	for axis := range v {
		v[axis] = value
	}
	return
}

// IsUniform returns whether all axes have the same value.
func (v AxisValues) IsUniform() bool {
	for _, value := range v {
		if value != v[0] {
			return false
		}
	}
	return true
}

// String returns the value if uniform, or the values per axis separated by "x" (e.g.: "3x5").
func (v AxisValues) String() string {
	if v.IsUniform() {
		return strconv.Itoa(v[0])
	}
	return strings.Join(xslices.Map(v[:], strconv.Itoa), "x")
}

// Stage describes the geometry of one step of a feature extraction pipeline.
// The values are always stored per-axis: uniform values are expanded when the Stage is created.
//
// Stage is a value type and is immutable once created.
type Stage struct {
	KernelSize, Dilation, Stride, Padding AxisValues
}

// Identity returns a stage that doesn't change the geometry: kernel=1, dilation=1, stride=1 and padding=0.
// Activations, normalizations, etc. are identity stages.
func Identity() Stage {
	return Stage{
		KernelSize: Uniform(1),
		Dilation:   Uniform(1),
		Stride:     Uniform(1),
		Padding:    Uniform(0),
	}
}

// IsIdentity returns whether the stage has kernel=1, dilation=1, stride=1 and padding=0 on every axis.
func (s Stage) IsIdentity() bool {
	return s == Identity()
}

// Conv returns a stage with the given kernel size, stride and padding for every axis, and dilation 1.
func Conv(kernelSize, stride, padding int) Stage {
	return NewStage().KernelSize(kernelSize).Strides(stride).Padding(padding).Done()
}

// Pool returns a pooling stage with the given window size and stride, and no padding.
func Pool(windowSize, stride int) Stage {
	return NewStage().KernelSize(windowSize).Strides(stride).Done()
}

// Axis returns the configuration of the stage for one axis.
func (s Stage) Axis(axis int) AxisConfig {
	return AxisConfig{
		Kernel:   s.KernelSize[axis],
		Dilation: s.Dilation[axis],
		Stride:   s.Stride[axis],
		Padding:  s.Padding[axis],
	}
}

// String returns the stage in the format accepted by ParseStages, e.g. "k=3,d=1,s=2,p=1".
func (s Stage) String() string {
	return fmt.Sprintf("k=%s,d=%s,s=%s,p=%s", s.KernelSize, s.Dilation, s.Stride, s.Padding)
}

// StageBuilder is a helper to build a Stage. Create it with NewStage, set the desired parameters,
// and when all is set, call Done.
//
// Every parameter defaults to the Identity values.
type StageBuilder struct {
	stage Stage
}

// NewStage returns a StageBuilder initialized with the Identity stage values.
func NewStage() *StageBuilder {
	return &StageBuilder{stage: Identity()}
}

func perAxis(name string, values []int) (v AxisValues) {
	if len(values) != NumSpatialAxes {
		exceptions.Panicf("received %d values for %s, but there are %d spatial axes",
			len(values), name, NumSpatialAxes)
	}
	copy(v[:], values)
	return
}

// KernelSize sets the kernel size for every axis. Default is 1.
func (b *StageBuilder) KernelSize(size int) *StageBuilder {
	b.stage.KernelSize = Uniform(size)
	return b
}

// KernelSizePerAxis sets the kernel size for each axis individually.
// It panics if the number of values is not NumSpatialAxes.
func (b *StageBuilder) KernelSizePerAxis(sizes ...int) *StageBuilder {
	b.stage.KernelSize = perAxis("KernelSizePerAxis", sizes)
	return b
}

// Dilations sets the dilation for every axis. Default is 1.
//
// The effective kernel size is `kernel + (kernel - 1) * (dilation - 1)`.
func (b *StageBuilder) Dilations(dilation int) *StageBuilder {
	b.stage.Dilation = Uniform(dilation)
	return b
}

// DilationPerAxis sets the dilation for each axis individually.
// It panics if the number of values is not NumSpatialAxes.
func (b *StageBuilder) DilationPerAxis(dilations ...int) *StageBuilder {
	b.stage.Dilation = perAxis("DilationPerAxis", dilations)
	return b
}

// Strides sets the stride for every axis. Default is 1.
func (b *StageBuilder) Strides(stride int) *StageBuilder {
	b.stage.Stride = Uniform(stride)
	return b
}

// StridePerAxis sets the stride for each axis individually.
// It panics if the number of values is not NumSpatialAxes.
func (b *StageBuilder) StridePerAxis(strides ...int) *StageBuilder {
	b.stage.Stride = perAxis("StridePerAxis", strides)
	return b
}

// Padding sets the padding added to both sides of every axis. Default is 0.
func (b *StageBuilder) Padding(padding int) *StageBuilder {
	b.stage.Padding = Uniform(padding)
	return b
}

// PaddingPerAxis sets the padding (added to both sides) of each axis individually.
// It panics if the number of values is not NumSpatialAxes.
func (b *StageBuilder) PaddingPerAxis(paddings ...int) *StageBuilder {
	b.stage.Padding = perAxis("PaddingPerAxis", paddings)
	return b
}

// Done returns the configured Stage.
func (b *StageBuilder) Done() Stage {
	return b.stage
}
