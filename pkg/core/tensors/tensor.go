// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implement a `Tensor`, a representation of a multidimensional array of floating point values.
//
// Tensors are used to hold sampling grids (shaped `[batch, rows, cols, 2]`) and feature maps
// (shaped `[batch, channels, rows, cols]`). Only floating point dtypes are supported: Float32, Float64,
// Float16 and BFloat16.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromFlatDataAndDimensions[T Float](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions and set the flattened values with the given data. `T` must be one of the supported types.
//     Example:
//
//     t := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2}) // Tensor with [[1,2], [3,4]]
//
//   - FromFloat64s(dtype dtypes.DType, values []float64, dimensions ...int): creates a Tensor converting the
//     float64 values to the requested dtype.
//
// Every Tensor carries a Placement, indicating where its storage lives (the host, or some accelerator device).
// Moving a tensor to a different placement (Tensor.OnPlacement) creates a copy tagged with the new placement,
// the original is left untouched.
package tensors

import (
	"fmt"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Float is the constraint of the Go types supported as tensor elements.
type Float interface {
	float32 | float64 | float16.Float16 | bfloat16.BFloat16
}

// Tensor represents a multidimensional array defined by its shape, a data type (dtypes.DType) and its axes'
// dimensions, and its actual content stored as a flat (1D) array of values.
//
// The shape and placement are immutable. The flat data is protected by a mutex, and it should only be accessed
// with ConstFlatData and MutableFlatData (or their generic versions).
type Tensor struct {
	shape     shapes.Shape
	placement Placement

	// mu protects flat.
	mu   sync.Mutex
	flat any
}

// DTypeFor returns the DType corresponding to the Go type T.
func DTypeFor[T Float]() dtypes.DType {
	var t T
	switch any(t).(type) {
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	case float16.Float16:
		return dtypes.Float16
	case bfloat16.BFloat16:
		return dtypes.BFloat16
	}
	return dtypes.InvalidDType
}

// IsSupported returns whether dtype can be used to create tensors.
func IsSupported(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16:
		return true
	}
	return false
}

// FromShape returns a zero-initialized host tensor with the given shape.
//
// It panics if the dtype is not supported (see IsSupported).
func FromShape(shape shapes.Shape) *Tensor {
	size := shape.Size()
	t := &Tensor{shape: shape.Clone(), placement: Host}
	switch shape.DType {
	case dtypes.Float32:
		t.flat = make([]float32, size)
	case dtypes.Float64:
		t.flat = make([]float64, size)
	case dtypes.Float16:
		t.flat = make([]float16.Float16, size)
	case dtypes.BFloat16:
		t.flat = make([]bfloat16.BFloat16, size)
	default:
		exceptions.Panicf("tensors.FromShape(%s): dtype %s not supported, only floating point types can be used",
			shape, shape.DType)
	}
	return t
}

// FromFlatDataAndDimensions creates a host tensor with the given dimensions, filled with the flattened values given
// in `data`. The data is copied to the Tensor.
// The `DType` is inferred from the `data` type.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T Float](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(DTypeFor[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	t := FromShape(shape)
	copy(t.flat.([]T), data)
	return t
}

// Shape of the tensor, includes DType.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType returns the DType of the tensor's shape.
// It is a shortcut to `Tensor.Shape().DType`.
func (t *Tensor) DType() dtypes.DType {
	if t == nil {
		return dtypes.InvalidDType
	}
	return t.shape.DType
}

// Rank returns the rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size returns the number of elements in the tensor.
func (t *Tensor) Size() int { return t.shape.Size() }

// Memory returns the number of bytes used to store the tensor. An alias to Tensor.Shape().Memory().
func (t *Tensor) Memory() uintptr { return t.shape.Memory() }

// Placement returns where the tensor storage lives.
func (t *Tensor) Placement() Placement { return t.placement }

// Ok returns whether the Tensor is in a valid state.
func (t *Tensor) Ok() bool { return t != nil && t.shape.Ok() && t.flat != nil }

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type corresponding to the DType type.
// It locks the Tensor until accessFn returns.
//
// The slice given to accessFn is owned by the Tensor and should not be changed.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flattened data as a slice of the Go type corresponding to the DType type.
// It locks the Tensor until accessFn returns.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	accessFn(t.flat)
}

// ConstFlatData is the "generics" version of Tensor.ConstFlatData.
//
// It returns an error if T doesn't match the tensor's dtype.
func ConstFlatData[T Float](t *Tensor, accessFn func(flat []T)) error {
	if t.shape.DType != DTypeFor[T]() {
		var v T
		return errors.Errorf("ConstFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, DTypeFor[T]())
	}
	t.ConstFlatData(func(flat any) { accessFn(flat.([]T)) })
	return nil
}

// MutableFlatData is the "generics" version of Tensor.MutableFlatData.
//
// It returns an error if T doesn't match the tensor's dtype.
func MutableFlatData[T Float](t *Tensor, accessFn func(flat []T)) error {
	if t.shape.DType != DTypeFor[T]() {
		var v T
		return errors.Errorf("MutableFlatData[%T] is incompatible with Tensor's dtype %s -- expected dtype %s",
			v, t.shape.DType, DTypeFor[T]())
	}
	t.MutableFlatData(func(flat any) { accessFn(flat.([]T)) })
	return nil
}

// CopyFlatData returns a copy of the flat data of the Tensor.
//
// It panics if T doesn't match the tensor's dtype.
func CopyFlatData[T Float](t *Tensor) []T {
	var out []T
	err := ConstFlatData(t, func(flat []T) {
		out = make([]T, len(flat))
		copy(out, flat)
	})
	if err != nil {
		panic(err)
	}
	return out
}

// Clone returns a deep copy of the tensor, with the same placement.
func (t *Tensor) Clone() *Tensor {
	return t.cloneTo(t.placement)
}

func (t *Tensor) cloneTo(placement Placement) *Tensor {
	clone := FromShape(t.shape)
	clone.placement = placement
	t.ConstFlatData(func(flat any) {
		switch src := flat.(type) {
		case []float32:
			copy(clone.flat.([]float32), src)
		case []float64:
			copy(clone.flat.([]float64), src)
		case []float16.Float16:
			copy(clone.flat.([]float16.Float16), src)
		case []bfloat16.BFloat16:
			copy(clone.flat.([]bfloat16.BFloat16), src)
		}
	})
	return clone
}

// OnPlacement returns the tensor stored in the given placement. If the tensor is already there, it returns
// itself, otherwise a copy is made.
func (t *Tensor) OnPlacement(placement Placement) *Tensor {
	if t.placement == placement {
		return t
	}
	klog.V(2).Infof("tensors: transferring %s from %s to %s", t.shape, t.placement, placement)
	return t.cloneTo(placement)
}

// BroadcastBatch returns a tensor with the leading (batch) axis repeated batchSize times.
// The tensor must have a leading axis of dimension 1. If batchSize is 1, the tensor itself is returned.
//
// The returned tensor is always a new copy (or t itself), so it's safe to mutate it independently of t.
func (t *Tensor) BroadcastBatch(batchSize int) *Tensor {
	if t.Rank() == 0 || t.shape.Dimensions[0] != 1 {
		exceptions.Panicf("Tensor.BroadcastBatch(%d) requires a leading axis of dimension 1, got shape %s",
			batchSize, t.shape)
	}
	if batchSize == 1 {
		return t
	}
	newShape := t.shape.Clone()
	newShape.Dimensions[0] = batchSize
	out := FromShape(newShape)
	out.placement = t.placement
	t.ConstFlatData(func(flat any) {
		switch src := flat.(type) {
		case []float32:
			repeatInto(out.flat.([]float32), src)
		case []float64:
			repeatInto(out.flat.([]float64), src)
		case []float16.Float16:
			repeatInto(out.flat.([]float16.Float16), src)
		case []bfloat16.BFloat16:
			repeatInto(out.flat.([]bfloat16.BFloat16), src)
		}
	})
	return out
}

func repeatInto[T Float](dst, src []T) {
	for start := 0; start < len(dst); start += len(src) {
		copy(dst[start:], src)
	}
}

// String implements fmt.Stringer. It doesn't print the values.
func (t *Tensor) String() string {
	if t == nil {
		return "<nil tensor>"
	}
	return fmt.Sprintf("Tensor%s@%s", t.shape, t.placement)
}
