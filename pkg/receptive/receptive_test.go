// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package receptive

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatStage(stage Stage, n int) []Stage {
	stages := make([]Stage, n)
	for ii := range stages {
		stages[ii] = stage
	}
	return stages
}

func uniformScaleOffset(scale, offset float64) [NumSpatialAxes]ScaleOffset {
	return [NumSpatialAxes]ScaleOffset{{scale, offset}, {scale, offset}}
}

func TestSequenceScaleOffset(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, uniformScaleOffset(1, 0), SequenceScaleOffset(nil))
		assert.Equal(t, IdentityScaleOffset, ComposeScaleOffset(nil))
		assert.Equal(t, uniformScaleOffset(1, 0), SequenceScaleOffset([]Stage{Identity(), Identity()}))
	})

	t.Run("SingleStride", func(t *testing.T) {
		stage := NewStage().Strides(2).Done()
		assert.Equal(t, uniformScaleOffset(2, 0), SequenceScaleOffset([]Stage{stage}))
	})

	t.Run("ResNetStyle", func(t *testing.T) {
		for _, kernel := range []int{1, 3, 5, 7} {
			stages := repeatStage(Conv(kernel, 2, (kernel-1)/2), 5)
			assert.Equal(t, uniformScaleOffset(32, 0), SequenceScaleOffset(stages), "kernel=%d", kernel)
		}
	})

	t.Run("AlexNetStyle", func(t *testing.T) {
		for _, kernel := range []int{3, 5, 7} {
			stages := repeatStage(Conv(kernel, 2, 0), 5)
			// Each stage contributes (kernel-1)/2, scaled by the strides of the stages before it: 1+2+4+8+16.
			wantOffset := 31 * float64(kernel-1) / 2
			assert.Equal(t, uniformScaleOffset(32, wantOffset), SequenceScaleOffset(stages), "kernel=%d", kernel)
		}
		assert.Equal(t, uniformScaleOffset(32, 31), SequenceScaleOffset(repeatStage(Conv(3, 2, 0), 5)))
	})

	t.Run("InnermostFirst", func(t *testing.T) {
		// Stage contributions: k=5 -> 2, k=3 -> 1.
		stages := []Stage{Conv(5, 2, 0), Conv(3, 2, 0)}
		// The last stage's offset (1) is scaled by the first stage's stride: 1*2 + 2 = 4.
		assert.Equal(t, uniformScaleOffset(4, 4), SequenceScaleOffset(stages))
		// Reversed pipeline: 2*2 + 1 = 5.
		assert.Equal(t, uniformScaleOffset(4, 5), SequenceScaleOffset(slices.Clone([]Stage{stages[1], stages[0]})))
	})

	t.Run("DilationAndPadding", func(t *testing.T) {
		stage := NewStage().KernelSize(3).Dilations(2).Padding(1).Done()
		// (3-1)*2/2 - 1 = 1
		assert.Equal(t, uniformScaleOffset(1, 1), SequenceScaleOffset([]Stage{stage}))
	})

	t.Run("PerAxis", func(t *testing.T) {
		stage := NewStage().KernelSizePerAxis(3, 1).StridePerAxis(2, 1).PaddingPerAxis(0, 0).Done()
		got := SequenceScaleOffset([]Stage{stage, stage})
		// Axis 0: stride 2, contribution 1 on both stages: 1*2+1 = 3. Axis 1 is unchanged.
		assert.Equal(t, ScaleOffset{4, 3}, got[0])
		assert.Equal(t, ScaleOffset{1, 0}, got[1])
	})
}

func TestScaleOffsetMapping(t *testing.T) {
	so := ScaleOffset{Scale: 32, Offset: 31}
	assert.Equal(t, 31.0, so.ToInput(0))
	assert.Equal(t, 63.0, so.ToInput(1))
	assert.Equal(t, 1.0, so.ToOutput(63))
	assert.Equal(t, ScaleOffset{Scale: 1.0 / 32, Offset: -31.0 / 32}, so.Inverse())
	assert.Equal(t, 2.0, so.Inverse().ToInput(95))
	assert.Equal(t, "(scale=32, offset=31)", so.String())
}

func TestAxisConfigs(t *testing.T) {
	stages := []Stage{
		Identity(),
		NewStage().KernelSizePerAxis(3, 5).Strides(2).PaddingPerAxis(1, 2).Done(),
		Identity(),
		Pool(2, 2),
	}
	configs := AxisConfigs(stages)
	assert.Equal(t, []AxisConfig{{3, 1, 2, 1}, {2, 1, 2, 0}}, configs[0])
	assert.Equal(t, []AxisConfig{{5, 1, 2, 2}, {2, 1, 2, 0}}, configs[1])
}

func TestSequenceDataSize(t *testing.T) {
	assert.Equal(t, [2]int{224, 100}, SequenceDataSize(nil, [2]int{224, 100}))
	assert.Equal(t, [2]int{112, 112}, SequenceDataSize([]Stage{Conv(7, 2, 3)}, [2]int{224, 224}))
	assert.Equal(t, [2]int{7, 7}, SequenceDataSize(repeatStage(Conv(3, 2, 1), 5), [2]int{224, 224}))
	assert.Equal(t, [2]int{6, 5}, SequenceDataSize(repeatStage(Conv(3, 2, 0), 5), [2]int{224, 200}))

	// Input too small: the size floors towards negative infinity.
	assert.Equal(t, -1, ComposeDataSize([]AxisConfig{{Kernel: 5, Dilation: 1, Stride: 2}}, 1))
	assert.Equal(t, -2, floorDiv(-3, 2))
	assert.Equal(t, 1, floorDiv(3, 2))
	assert.Equal(t, -1, floorDiv(-2, 2))
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"alexnet", "resnet18", "vgg16"}, PresetNames())
	_, err := Preset("lenet")
	require.Error(t, err)

	for _, tc := range []struct {
		name        string
		scaleOffset ScaleOffset
		outputSize  int
	}{
		{"alexnet", ScaleOffset{32, 31}, 6},
		{"vgg16", ScaleOffset{32, 15.5}, 7},
		{"resnet18", ScaleOffset{32, 0}, 7},
	} {
		stages, err := Preset(tc.name)
		require.NoError(t, err)
		assert.Equal(t, [2]ScaleOffset{tc.scaleOffset, tc.scaleOffset}, SequenceScaleOffset(stages), tc.name)
		assert.Equal(t, [2]int{tc.outputSize, tc.outputSize}, SequenceDataSize(stages, [2]int{224, 224}), tc.name)
	}
}

// randomStages generates a random valid pipeline.
func randomStages(rng *rand.Rand) []Stage {
	numStages := rng.IntN(7)
	stages := make([]Stage, 0, numStages)
	for range numStages {
		if rng.IntN(4) == 0 {
			stages = append(stages, Identity())
			continue
		}
		var kernels, dilations, strides, paddings [NumSpatialAxes]int
		for axis := range NumSpatialAxes {
			kernels[axis] = 1 + rng.IntN(7)
			dilations[axis] = 1 + rng.IntN(3)
			strides[axis] = 1 + rng.IntN(3)
			paddings[axis] = rng.IntN(1 + (kernels[axis]-1)*dilations[axis]/2)
		}
		stages = append(stages, NewStage().
			KernelSizePerAxis(kernels[:]...).
			DilationPerAxis(dilations[:]...).
			StridePerAxis(strides[:]...).
			PaddingPerAxis(paddings[:]...).
			Done())
	}
	return stages
}

// bruteForceCenter returns the center of the receptive field of the given output pixel, by explicitly
// tracking the interval of input pixels (including padding) that influences it.
func bruteForceCenter(configs []AxisConfig, outputIdx int) float64 {
	lo, hi := outputIdx, outputIdx
	for ii := len(configs) - 1; ii >= 0; ii-- {
		c := configs[ii]
		lo = lo*c.Stride - c.Padding
		hi = hi*c.Stride - c.Padding + (c.Kernel-1)*c.Dilation
	}
	return float64(lo+hi) / 2
}

// bruteForceDataSize counts the window positions that fit in the padded input, stage by stage.
// It returns ok=false if the input becomes empty.
func bruteForceDataSize(configs []AxisConfig, size int) (int, bool) {
	for _, c := range configs {
		count := 0
		for pos := 0; pos*c.Stride+(c.Kernel-1)*c.Dilation <= size-1+2*c.Padding; pos++ {
			count++
		}
		if count == 0 {
			return 0, false
		}
		size = count
	}
	return size, true
}

func TestRandomPipelinesConsistency(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	numChecked := 0
	for range 500 {
		stages := randomStages(rng)
		inputSize := [2]int{16 + rng.IntN(240), 16 + rng.IntN(240)}
		scaleOffsets := SequenceScaleOffset(stages)
		outputSize := SequenceDataSize(stages, inputSize)
		configs := AxisConfigs(stages)
		for axis := range NumSpatialAxes {
			require.Greater(t, scaleOffsets[axis].Scale, 0.0)
			wantSize, ok := bruteForceDataSize(configs[axis], inputSize[axis])
			if !ok {
				continue
			}
			numChecked++
			require.Equal(t, wantSize, outputSize[axis], "stages=%v, input=%v, axis=%d", stages, inputSize, axis)
			for _, outputIdx := range []int{0, outputSize[axis] / 2, outputSize[axis] - 1} {
				require.Equal(t, bruteForceCenter(configs[axis], outputIdx),
					scaleOffsets[axis].ToInput(float64(outputIdx)),
					"stages=%v, axis=%d, output index %d", stages, axis, outputIdx)
			}
		}
	}
	assert.Greater(t, numChecked, 500)
}
