package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	copy(img.Pix, []uint8{
		1, 2, 3, 255,
		3, 3, 3, 255,
		5, 5, 5, 255,
		10, 20, 30, 255,
		30, 30, 30, 255,
		50, 50, 50, 255})
	return img
}

func TestTensorToFromImage(t *testing.T) {
	img := testImage()
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16, dtypes.BFloat16} {
		tensor := ToTensor(dtype).WithAlpha().Single(img)
		require.NoError(t, tensor.Shape().Check(dtype, 4, 2, 3))
		assert.Equal(t, [2]int{2, 3}, Spatial(tensor))
		converted := ToImage().Single(tensor)
		require.Equal(t, img.Bounds(), converted.Bounds())
		for y := range 2 {
			for x := range 3 {
				require.Equal(t, img.At(x, y), converted.At(x, y), "dtype %s at (%d, %d)", dtype, x, y)
			}
		}
	}
}

func TestChannelsFirst(t *testing.T) {
	tensor := ToTensor(dtypes.Float64).MaxValue(255).Batch([]image.Image{testImage(), testImage()})
	require.Equal(t, []int{2, 3, 2, 3}, tensor.Shape().Dimensions)
	flat := tensor.Float64s()
	planeSize := 6
	// Red, green and blue of the pixel (x=0, y=1) of the second image.
	pos := 6*3 + 3
	assert.InDelta(t, 10.0, flat[pos], 1e-9)
	assert.InDelta(t, 20.0, flat[pos+planeSize], 1e-9)
	assert.InDelta(t, 30.0, flat[pos+2*planeSize], 1e-9)

	images := ToImage().MaxValue(255).Batch(tensor)
	require.Len(t, images, 2)
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, images[1].At(0, 1))
}

func TestGray(t *testing.T) {
	tensor := ToTensor(dtypes.Float32).Gray().Single(testImage())
	require.Equal(t, []int{1, 2, 3}, tensor.Shape().Dimensions)
	img := ToImage().Single(tensor)
	gray, ok := img.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(50), gray.GrayAt(2, 1).Y)

	// Values are clipped.
	clipped := ToImage().Single(tensors.FromFlatDataAndDimensions([]float64{-1, 0.5, 2}, 1, 1, 3))
	assert.Equal(t, []uint8{0, 128, 255}, clipped.(*image.Gray).Pix)
}

func TestInvalid(t *testing.T) {
	require.Panics(t, func() { ToTensor(dtypes.Int32) })
	require.Panics(t, func() { ToTensor(dtypes.Float32).Batch(nil) })
	require.Panics(t, func() {
		ToTensor(dtypes.Float32).Batch([]image.Image{testImage(), image.NewNRGBA(image.Rect(0, 0, 2, 2))})
	})
	require.Panics(t, func() { ToImage().Single(tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2, 1, 1)) })
	require.Panics(t, func() { ToImage().Batch(tensors.FromFlatDataAndDimensions([]float32{1}, 1, 1, 1)) })
}
