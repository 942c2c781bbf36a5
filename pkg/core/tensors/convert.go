// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/x448/float16"
)

// ToFloat64 converts any of the supported Float types to float64.
func ToFloat64[T Float](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case float16.Float16:
		return float64(x.Float32())
	case bfloat16.BFloat16:
		return float64(x.Float32())
	}
	return 0
}

// FromFloat64 converts a float64 to any of the supported Float types.
func FromFloat64[T Float](v float64) T {
	var t T
	switch any(t).(type) {
	case float32:
		return any(float32(v)).(T)
	case float64:
		return any(v).(T)
	case float16.Float16:
		return any(float16.Fromfloat32(float32(v))).(T)
	case bfloat16.BFloat16:
		return any(bfloat16.FromFloat32(float32(v))).(T)
	}
	return t
}

// FromFloat64s creates a host tensor of the given dtype and dimensions, converting the values given.
//
// It panics if the size of values is wrong for the shape, or if the dtype is not supported.
func FromFloat64s(dtype dtypes.DType, values []float64, dimensions ...int) *Tensor {
	shape := shapes.Make(dtype, dimensions...)
	if len(values) != shape.Size() {
		exceptions.Panicf("FromFloat64s(%s): got %d values, but dimensions size is %d",
			shape, len(values), shape.Size())
	}
	t := FromShape(shape)
	t.MutableFlatData(func(flat any) {
		switch dst := flat.(type) {
		case []float32:
			convertFromFloat64s(dst, values)
		case []float64:
			copy(dst, values)
		case []float16.Float16:
			convertFromFloat64s(dst, values)
		case []bfloat16.BFloat16:
			convertFromFloat64s(dst, values)
		}
	})
	return t
}

func convertFromFloat64s[T Float](dst []T, src []float64) {
	for ii, v := range src {
		dst[ii] = FromFloat64[T](v)
	}
}

func convertToFloat64s[T Float](dst []float64, src []T) {
	for ii, v := range src {
		dst[ii] = ToFloat64(v)
	}
}

// Float64s returns a copy of the tensor values converted to float64.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.Size())
	t.ConstFlatData(func(flat any) {
		switch src := flat.(type) {
		case []float32:
			convertToFloat64s(out, src)
		case []float64:
			copy(out, src)
		case []float16.Float16:
			convertToFloat64s(out, src)
		case []bfloat16.BFloat16:
			convertToFloat64s(out, src)
		}
	})
	return out
}

// AsDType returns a tensor with the same values converted to dtype (and the same placement).
// If the tensor already has the dtype, it returns itself.
func (t *Tensor) AsDType(dtype dtypes.DType) *Tensor {
	if t.DType() == dtype {
		return t
	}
	converted := FromFloat64s(dtype, t.Float64s(), t.shape.Dimensions...)
	converted.placement = t.placement
	return converted
}
