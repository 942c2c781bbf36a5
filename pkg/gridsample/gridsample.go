// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package gridsample implements, on the host, the sampling of images (or feature maps) at arbitrary positions
// given by a sampling grid.
//
// The data is shaped `[batch, channels, rows, cols]` and the grid `[batch, targetRows, targetCols, 2]`, where the
// last axis holds normalized `(x, y)` coordinates -- notice the order is reversed relative to the data axes. The
// output is shaped `[batch, channels, targetRows, targetCols]`.
//
// Normalized coordinates -1 and 1 refer to the first and last pixels of the source: by default they refer to
// their centers (AlignCorners(true)), which is the convention used by the grids built in package upsample.
package gridsample

import (
	"math"

	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/internal/workerspool"
	"github.com/skywolf829/gandissect/pkg/core/shapes"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"k8s.io/klog/v2"
)

// Sampler samples data tensors at the positions given by a grid. Create it with New.
//
// It holds no state other than its configuration, and it is safe for concurrent use.
type Sampler struct {
	alignCorners bool
	pool         *workerspool.Pool
}

// New returns a Sampler that aligns the normalized coordinates with the pixel centers of the corners,
// and uses runtime.NumCPU() goroutines.
func New() *Sampler {
	return &Sampler{
		alignCorners: true,
		pool:         workerspool.New(),
	}
}

// AlignCorners configures whether the normalized coordinates -1 and 1 refer to the centers of the
// corner pixels (true, the default) or to the outer edges of the corner pixels (false).
//
// It returns the Sampler, so configuration calls can be cascaded.
func (s *Sampler) AlignCorners(alignCorners bool) *Sampler {
	s.alignCorners = alignCorners
	return s
}

// MaxParallelism sets the number of goroutines used. 0 disables parallelism, -1 means one goroutine per plane.
//
// It returns the Sampler, so configuration calls can be cascaded.
func (s *Sampler) MaxParallelism(maxParallelism int) *Sampler {
	s.pool.SetMaxParallelism(maxParallelism)
	return s
}

// GridSample samples data at the positions of the grid.
//
// The data and the grid must have the same batch size, and the same placement. The output has the dtype and
// placement of data.
func (s *Sampler) GridSample(data, grid *tensors.Tensor, mode InterpolationMode, padding PaddingMode) (
	*tensors.Tensor, error) {
	if !mode.IsAInterpolationMode() {
		return nil, errors.Errorf("gridsample: invalid interpolation mode %s", mode)
	}
	if !padding.IsAPaddingMode() {
		return nil, errors.Errorf("gridsample: invalid padding mode %s", padding)
	}
	if data.Rank() != 4 {
		return nil, errors.Errorf("gridsample: data must be shaped [batch, channels, rows, cols], got %s", data.Shape())
	}
	batchSize, numChannels := data.Shape().Dim(0), data.Shape().Dim(1)
	if err := grid.Shape().CheckDims(batchSize, shapes.UncheckedAxis, shapes.UncheckedAxis, 2); err != nil {
		return nil, errors.WithMessagef(err, "gridsample: grid must be shaped [batch=%d, rows, cols, 2]", batchSize)
	}
	if data.Placement() != grid.Placement() {
		return nil, errors.Errorf("gridsample: data is placed on %s, but the grid is placed on %s",
			data.Placement(), grid.Placement())
	}

	p := planeSampler{
		rows:         data.Shape().Dim(2),
		cols:         data.Shape().Dim(3),
		targetRows:   grid.Shape().Dim(1),
		targetCols:   grid.Shape().Dim(2),
		mode:         mode,
		padding:      padding,
		alignCorners: s.alignCorners,
	}
	source := data.Float64s()
	coords := grid.Float64s()
	output := make([]float64, batchSize*numChannels*p.targetRows*p.targetCols)
	klog.V(2).Infof("gridsample: %s of %s with grid %s (padding=%s)", mode, data, grid, padding)

	sourcePlaneSize := p.rows * p.cols
	targetPlaneSize := p.targetRows * p.targetCols
	s.pool.Run(batchSize*numChannels, func(planeIdx int) {
		batchIdx := planeIdx / numChannels
		p.sample(
			source[planeIdx*sourcePlaneSize:(planeIdx+1)*sourcePlaneSize],
			coords[batchIdx*targetPlaneSize*2:(batchIdx+1)*targetPlaneSize*2],
			output[planeIdx*targetPlaneSize:(planeIdx+1)*targetPlaneSize])
	})

	result := tensors.FromFloat64s(data.DType(), output, batchSize, numChannels, p.targetRows, p.targetCols)
	return result.OnPlacement(data.Placement()), nil
}

// planeSampler samples one plane (one channel of one example).
type planeSampler struct {
	rows, cols             int
	targetRows, targetCols int
	mode                   InterpolationMode
	padding                PaddingMode
	alignCorners           bool
}

func (p *planeSampler) sample(source, coords, output []float64) {
	for ii := range output {
		x := p.unnormalize(coords[2*ii], p.cols)
		y := p.unnormalize(coords[2*ii+1], p.rows)
		switch p.mode {
		case InterpolationBilinear:
			x, y = p.applyPadding(x, p.cols), p.applyPadding(y, p.rows)
			output[ii] = p.bilinear(source, x, y)
		case InterpolationNearest:
			x, y = p.applyPadding(x, p.cols), p.applyPadding(y, p.rows)
			output[ii] = p.at(source, math.RoundToEven(x), math.RoundToEven(y))
		case InterpolationBicubic:
			output[ii] = p.bicubic(source, x, y)
		}
	}
}

// unnormalize converts a normalized coordinate in [-1, 1] to a pixel index.
func (p *planeSampler) unnormalize(coord float64, size int) float64 {
	if p.alignCorners {
		return (coord + 1) / 2 * float64(size-1)
	}
	return ((coord+1)*float64(size) - 1) / 2
}

// applyPadding brings out-of-bounds pixel indices back into the source for the border and reflection paddings.
func (p *planeSampler) applyPadding(coord float64, size int) float64 {
	switch p.padding {
	case PaddingBorder:
		return clip(coord, size)
	case PaddingReflection:
		if p.alignCorners {
			coord = reflect(coord, 0, 2*float64(size-1))
		} else {
			coord = reflect(coord, -1, 2*float64(size)-1)
		}
		return clip(coord, size)
	}
	return coord
}

func clip(coord float64, size int) float64 {
	return math.Min(float64(size-1), math.Max(coord, 0))
}

// reflect coord over the interval [twiceLow/2, twiceHigh/2] until it falls inside it.
func reflect(coord, twiceLow, twiceHigh float64) float64 {
	if twiceLow == twiceHigh {
		return 0
	}
	minValue := twiceLow / 2
	span := (twiceHigh - twiceLow) / 2
	coord = math.Abs(coord - minValue)
	extra := math.Mod(coord, span)
	if math.Mod(math.Floor(coord/span), 2) == 0 {
		return extra + minValue
	}
	return span - extra + minValue
}

// at returns the source value at the given integral position, or 0 if it is out-of-bounds or not finite.
// Bounds are checked before converting to int.
func (p *planeSampler) at(source []float64, x, y float64) float64 {
	if !(x >= 0 && x < float64(p.cols) && y >= 0 && y < float64(p.rows)) {
		return 0
	}
	return source[int(y)*p.cols+int(x)]
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p *planeSampler) bilinear(source []float64, x, y float64) float64 {
	if !isFinite(x) || !isFinite(y) {
		return 0
	}
	x0, y0 := math.Floor(x), math.Floor(y)
	wx, wy := x-x0, y-y0
	return p.at(source, x0, y0)*(1-wx)*(1-wy) +
		p.at(source, x0+1, y0)*wx*(1-wy) +
		p.at(source, x0, y0+1)*(1-wx)*wy +
		p.at(source, x0+1, y0+1)*wx*wy
}

// cubicConvolutionA is the "A" coefficient of the cubic convolution kernel.
const cubicConvolutionA = -0.75

func cubicCoefficients(t float64) [4]float64 {
	const a = cubicConvolutionA
	near := func(x float64) float64 { return ((a+2)*x-(a+3))*x*x + 1 }
	far := func(x float64) float64 { return ((a*x-5*a)*x+8*a)*x - 4*a }
	return [4]float64{far(t + 1), near(t), near(1 - t), far(2 - t)}
}

// boundedAt applies the padding to an individual tap of the bicubic kernel.
func (p *planeSampler) boundedAt(source []float64, x, y float64) float64 {
	return p.at(source, p.applyPadding(x, p.cols), p.applyPadding(y, p.rows))
}

func (p *planeSampler) bicubic(source []float64, x, y float64) float64 {
	if p.padding == PaddingBorder {
		// Past these bounds every tap is clipped to the edge.
		x = math.Max(-4, math.Min(x, float64(p.cols+3)))
		y = math.Max(-4, math.Min(y, float64(p.rows+3)))
	}
	if !isFinite(x) || !isFinite(y) {
		return 0
	}
	x0, y0 := math.Floor(x), math.Floor(y)
	cx, cy := cubicCoefficients(x-x0), cubicCoefficients(y-y0)
	var value float64
	for dy := range 4 {
		var row float64
		for dx := range 4 {
			row += p.boundedAt(source, x0-1+float64(dx), y0-1+float64(dy)) * cx[dx]
		}
		value += row * cy[dy]
	}
	return value
}
