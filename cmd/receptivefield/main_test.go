package main

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/core/tensors/numpy"
	"github.com/skywolf829/gandissect/pkg/gridsample"
	"github.com/skywolf829/gandissect/pkg/receptive"
	"github.com/skywolf829/gandissect/pkg/upsample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	size, err := parseSize("input", []int{32})
	require.NoError(t, err)
	assert.Equal(t, [2]int{32, 32}, size)
	size, err = parseSize("input", []int{16, 24})
	require.NoError(t, err)
	assert.Equal(t, [2]int{16, 24}, size)

	for _, values := range [][]int{nil, {1, 2, 3}, {0, 3}, {-1}} {
		_, err = parseSize("target", values)
		require.Error(t, err, "values %v", values)
	}
}

func TestLoadStages(t *testing.T) {
	stagesFile := filepath.Join(t.TempDir(), "stages.json")
	require.NoError(t, os.WriteFile(stagesFile,
		[]byte(`[{"name": "pool", "kernel_size": 2, "stride": 2}]`), 0o644))

	stages, err := loadStages("alexnet", stagesFile, "k=3,s=1,p=1")
	require.NoError(t, err)
	alexNet := must.M1(receptive.Preset("alexnet"))
	require.Len(t, stages, len(alexNet)+2)
	assert.Equal(t, alexNet, stages[:len(alexNet)])
	assert.Equal(t, receptive.Pool(2, 2), stages[len(alexNet)])
	assert.Equal(t, receptive.Conv(3, 1, 1), stages[len(alexNet)+1])

	stages, err = loadStages("", "", "")
	require.NoError(t, err)
	assert.Empty(t, stages)

	_, err = loadStages("unknown", "", "")
	require.Error(t, err)
	_, err = loadStages("", "", "k=x")
	require.Error(t, err)
	_, err = loadStages("", filepath.Join(t.TempDir(), "missing.json"), "")
	require.Error(t, err)
}

func testRun() *run {
	return &run{
		stages:      []receptive.Stage{receptive.Conv(3, 2, 1)},
		input:       [2]int{8, 8},
		target:      [2]int{8, 8},
		featureSize: [2]int{4, 4},
		config:      upsample.DefaultConfig(),
		mode:        gridsample.InterpolationBilinear,
		padding:     gridsample.PaddingBorder,
		sampler:     gridsample.New(),
	}
}

func TestUpsampleFeatures(t *testing.T) {
	dir := t.TempDir()
	values := make([]float64, 2*4*4)
	for ii := range values {
		values[ii] = 1.5
	}
	featuresPath := filepath.Join(dir, "features.npy")
	require.NoError(t, numpy.ToNpyFile(tensors.FromFloat64s(dtypes.Float32, values, 1, 2, 4, 4), featuresPath))

	r := testRun()
	outPath := filepath.Join(dir, "out", "upsampled.npz")
	require.NoError(t, r.upsampleFeatures(featuresPath, "features", outPath))
	arrays := must.M1(numpy.FromNpzFile(outPath))
	require.Contains(t, arrays, "features")
	require.Contains(t, arrays, "grid")
	upsampled := arrays["features"]
	assert.Equal(t, []int{1, 2, 8, 8}, upsampled.Shape().Dimensions)
	// Constant features with border padding upsample to the same constant.
	for _, v := range upsampled.Float64s() {
		assert.InDelta(t, 1.5, v, 1e-6)
	}
	assert.Equal(t, []int{1, 8, 8, 2}, arrays["grid"].Shape().Dimensions)

	// Only the features go to a .npy file.
	npyPath := filepath.Join(dir, "upsampled.npy")
	require.NoError(t, r.upsampleFeatures(featuresPath, "features", npyPath))
	assert.Equal(t, []int{1, 2, 8, 8}, must.M1(numpy.FromNpyFile(npyPath)).Shape().Dimensions)

	require.Error(t, r.upsampleFeatures(filepath.Join(dir, "missing.npy"), "features", npyPath))
	require.Error(t, r.upsampleFeatures(outPath, "activations", npyPath))
}

func TestSaveGrid(t *testing.T) {
	r := testRun()
	gridPath := filepath.Join(t.TempDir(), "grids", "grid.npy")
	require.NoError(t, r.saveGrid(gridPath))
	grid := must.M1(numpy.FromNpyFile(gridPath))
	assert.Equal(t, []int{1, 8, 8, 2}, grid.Shape().Dimensions)
	assert.Equal(t, r.gridFor(r.featureSize).Done().Float64s(), grid.Float64s())
}

func TestTables(t *testing.T) {
	r := testRun()
	assert.Contains(t, stagesTable(r.stages, r.input), "4x4")
	assert.Contains(t, affineTable(receptive.SequenceScaleOffset(r.stages), r.input, r.featureSize), "rows")
	assert.Contains(t, gridTable(r.gridFor(r.featureSize).Done(), r.featureSize, r.target), "[1 8 8 2]")
}

func TestVisualize(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "gray.png")
	require.NoError(t, imaging.Save(imaging.New(20, 10, color.Gray{Y: 128}), imagePath))

	r := testRun()
	outPath := filepath.Join(dir, "out", "aligned.png")
	require.NoError(t, r.visualize(imagePath, outPath))
	canvas, err := imaging.Open(outPath)
	require.NoError(t, err)
	assert.Equal(t, 2*r.target[1], canvas.Bounds().Dx())
	assert.Equal(t, r.target[0], canvas.Bounds().Dy())

	require.Error(t, r.visualize(filepath.Join(dir, "missing.png"), outPath))
}
