// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	invalidShape := Invalid()
	require.False(t, invalidShape.Ok())

	shape0 := Make(dtypes.Float64)
	require.True(t, shape0.Ok())
	require.True(t, shape0.IsScalar())
	require.Equal(t, 0, shape0.Rank())
	require.Len(t, shape0.Dimensions, 0)
	require.Equal(t, 1, shape0.Size())
	require.Equal(t, 8, int(shape0.Memory()))

	grid := Make(dtypes.Float32, 1, 8, 6, 2)
	require.False(t, grid.IsScalar())
	require.Equal(t, 4, grid.Rank())
	require.Equal(t, 96, grid.Size())
	require.Equal(t, 96*4, int(grid.Memory()))
	require.Equal(t, 2, grid.Dim(-1))
	require.Equal(t, 8, grid.Dim(1))
	require.Panics(t, func() { _ = grid.Dim(4) })
	require.Panics(t, func() { _ = Make(dtypes.Float32, 3, 0) })
	require.Panics(t, func() { _ = Make(dtypes.Float32, 1<<62, 4) })
	require.NotPanics(t, func() { _ = Make(dtypes.Float32, 1<<30, 1<<30) })
}

func TestEqualAndClone(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3, 4, 5)
	c := s.Clone()
	require.True(t, s.Equal(c))
	c.Dimensions[0] = 7
	require.False(t, s.Equal(c))
	require.Equal(t, 2, s.Dimensions[0])

	d := Make(dtypes.Float64, 2, 3, 4, 5)
	assert.False(t, s.Equal(d))
	assert.True(t, s.EqualDimensions(d))
}

func TestCheck(t *testing.T) {
	s := Make(dtypes.Float32, 1, 4, 4, 2)
	require.NoError(t, s.Check(dtypes.Float32, 1, UncheckedAxis, 4, 2))
	require.Error(t, s.Check(dtypes.Float64, 1, 4, 4, 2))
	require.Error(t, s.CheckDims(1, 4, 4))
	require.Error(t, s.CheckDims(2, 4, 4, 2))
	require.NotPanics(t, func() { s.AssertDims(-1, 4, 4, 2) })
	require.Panics(t, func() { s.AssertDims(-1, 4, 5, 2) })
	assert.Equal(t, "(Float32)[1 4 4 2]", s.String())
}
