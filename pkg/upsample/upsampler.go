// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package upsample

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/gridsample"
	"k8s.io/klog/v2"
)

// Sampler is the grid-sampling primitive used by Upsampler.
//
// data is shaped [batch, channels, rows, cols] and grid [batch, target rows, target cols, 2], with
// normalized (x, y) coordinates. It must return a tensor shaped [batch, channels, target rows, target cols].
//
// gridsample.Sampler implements it on the host.
type Sampler interface {
	GridSample(data, grid *tensors.Tensor, mode gridsample.InterpolationMode, padding gridsample.PaddingMode) (
		*tensors.Tensor, error)
}

// Upsampler resamples batches of data with a fixed grid.
//
// The grid is computed once. Upsampler keeps a copy of it adapted to the batch size and placement of the last
// data it was used with, and only re-adapts it when those change.
//
// It is safe for concurrent use.
type Upsampler struct {
	source [NumSpatialAxes]int
	grid   *tensors.Tensor

	mu      sync.Mutex
	adapted *tensors.Tensor
	sampler Sampler
}

// Upsampler creates the grid configured and returns an Upsampler using it, with the host gridsample.Sampler.
func (b *GridBuilder) Upsampler() *Upsampler {
	grid := b.Done()
	return &Upsampler{
		source:  b.source,
		grid:    grid,
		adapted: grid,
		sampler: gridsample.New(),
	}
}

// WithSampler replaces the grid-sampling primitive. It returns the Upsampler, so calls can be cascaded.
func (u *Upsampler) WithSampler(sampler Sampler) *Upsampler {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.sampler = sampler
	return u
}

// Grid returns the grid with batch size 1, as configured.
// It shouldn't be modified.
func (u *Upsampler) Grid() *tensors.Tensor {
	return u.grid
}

// Adapt returns the grid broadcast to batchSize and stored at placement.
//
// The result is cached: calling it again with the same batch size and placement returns the same tensor.
// It shouldn't be modified.
func (u *Upsampler) Adapt(batchSize int, placement tensors.Placement) *tensors.Tensor {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.adaptLocked(batchSize, placement)
}

func (u *Upsampler) adaptLocked(batchSize int, placement tensors.Placement) *tensors.Tensor {
	if u.adapted.Shape().Dim(0) == batchSize && u.adapted.Placement() == placement {
		return u.adapted
	}
	klog.V(1).Infof("upsample: adapting grid to batch size %d on %s", batchSize, placement)
	u.adapted = u.grid.OnPlacement(placement).BroadcastBatch(batchSize)
	return u.adapted
}

// Upsample resamples data, shaped [batch, channels, source rows, source cols], with the grid.
// It returns a tensor shaped [batch, channels, target rows, target cols], with the dtype and placement of data.
func (u *Upsampler) Upsample(data *tensors.Tensor, mode gridsample.InterpolationMode, padding gridsample.PaddingMode) (
	*tensors.Tensor, error) {
	if err := data.Shape().CheckDims(shapes.UncheckedAxis, shapes.UncheckedAxis, u.source[0], u.source[1]); err != nil {
		return nil, errors.WithMessagef(err, "upsample: data must be shaped [batch, channels, %d, %d]",
			u.source[0], u.source[1])
	}
	u.mu.Lock()
	grid := u.adaptLocked(data.Shape().Dim(0), data.Placement())
	sampler := u.sampler
	u.mu.Unlock()
	output, err := sampler.GridSample(data, grid, mode, padding)
	if err != nil {
		return nil, errors.WithMessagef(err, "upsample: failed to sample %s", data)
	}
	return output, nil
}
