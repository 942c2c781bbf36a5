// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"math"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIotaAndMap(t *testing.T) {
	assert.Equal(t, []int{2, 3, 4}, Iota(2, 3))
	assert.Equal(t, []float64{0.5, 1.5}, Iota(0.5, 2))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
}

func TestInDelta(t *testing.T) {
	assert.True(t, InDelta([]float64{1, 2}, []float64{1.00001, 2}, 1e-4))
	assert.False(t, InDelta([]float64{1, 2}, []float64{1.1, 2}, 1e-4))
	assert.False(t, InDelta([]float32{1}, []float32{1, 2}, 1e-4))
	assert.True(t, InDelta([]float64{math.NaN(), math.Inf(1)}, []float64{math.NaN(), math.Inf(1)}, 1e-4))
	assert.False(t, InDelta([]float64{math.Inf(1)}, []float64{math.Inf(-1)}, 1e-4))
}

func TestFlagParsing(t *testing.T) {
	f := &genericSliceFlagImpl[int]{parserFn: strconv.Atoi}
	require.NoError(t, f.Set("224, 112"))
	assert.Equal(t, []int{224, 112}, f.parsedSlice)
	assert.Equal(t, "224,112", f.String())
	require.Error(t, f.Set("224,x"))
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.parsedSlice)
}
