// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/core/tensors/images"
	"github.com/skywolf829/gandissect/pkg/core/tensors/numpy"
	"github.com/skywolf829/gandissect/pkg/receptive"
	"github.com/skywolf829/gandissect/pkg/support/fsutil"
	"github.com/skywolf829/gandissect/pkg/upsample"
	"k8s.io/klog/v2"
)

type namedTensor struct {
	name string
	t    *tensors.Tensor
}

func isNpz(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".npz")
}

// saveTensors saves all tensors to a .npz file, or only the first one if filePath is not a .npz file.
func saveTensors(filePath string, namedTensors ...namedTensor) error {
	if len(namedTensors) == 0 {
		return errors.Errorf("no tensors to save to %q", filePath)
	}
	if !isNpz(filePath) {
		if len(namedTensors) > 1 {
			klog.Warningf("Saving only %q to %q: use a .npz file to save also the others.", namedTensors[0].name, filePath)
		}
		return numpy.ToNpyFile(namedTensors[0].t, filePath)
	}
	tensorsMap := make(map[string]*tensors.Tensor, len(namedTensors))
	for _, nt := range namedTensors {
		tensorsMap[nt.name] = nt.t
	}
	return numpy.ToNpzFile(tensorsMap, filePath)
}

// loadFeatures loads the features from a .npy file, or the array named key from a .npz file.
func loadFeatures(filePath, key string) (*tensors.Tensor, error) {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return nil, err
	}
	if !isNpz(filePath) {
		return numpy.FromNpyFile(filePath)
	}
	arrays, err := numpy.FromNpzFile(filePath)
	if err != nil {
		return nil, err
	}
	features, found := arrays[key]
	if !found {
		names := make([]string, 0, len(arrays))
		for name := range arrays {
			names = append(names, name)
		}
		return nil, errors.Errorf("%q has no array named %q, available arrays: %q", filePath, key, names)
	}
	return features, nil
}

// upsampleFeatures upsamples the feature maps in featuresPath to the target size and saves them to outPath.
func (r *run) upsampleFeatures(featuresPath, key, outPath string) error {
	features, err := loadFeatures(featuresPath, key)
	if err != nil {
		return err
	}
	if features.Rank() == 3 {
		features = tensors.FromFloat64s(features.DType(), features.Float64s(),
			append([]int{1}, features.Shape().Dimensions...)...)
	}
	if features.Rank() != 4 {
		return errors.Errorf("features from %q must be shaped [batch, channels, rows, cols], got %s",
			featuresPath, features.Shape())
	}
	source := images.Spatial(features)
	if source != r.featureSize {
		klog.Warningf("Features spatial size %v differs from the size %v computed from the stages, "+
			"using the stages scale/offset anyway.", source, r.featureSize)
	}
	upsampler := r.gridFor(source).Upsampler().WithSampler(r.sampler)
	upsampled, err := upsampler.Upsample(features, r.mode, r.padding)
	if err != nil {
		return err
	}
	klog.Infof("Upsampled features %s to %s", features.Shape(), upsampled.Shape())

	outPath, err = fsutil.ExpandPath(outPath)
	if err != nil {
		return err
	}
	if err = fsutil.CreateParentDir(outPath); err != nil {
		return err
	}
	return saveTensors(outPath, namedTensor{key, upsampled}, namedTensor{"grid", upsampler.Grid()})
}

// visualize samples the image at the centers of the receptive fields of the features, upsamples the result
// back to the target size and saves it side by side with the resized original.
//
// With well aligned grids the upsampled image is a blurred version of the original, without shifts.
func (r *run) visualize(imagePath, outPath string) error {
	imagePath, err := fsutil.ExpandPath(imagePath)
	if err != nil {
		return err
	}
	img, err := imaging.Open(imagePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open image %q", imagePath)
	}
	input := imaging.Resize(img, r.input[1], r.input[0], imaging.Lanczos)
	var inputTensor *tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		inputTensor = images.ToTensor(r.config.DType).Batch([]image.Image{input})
	})
	if err != nil {
		return errors.WithMessagef(err, "failed to convert image %q", imagePath)
	}

	// Features (target) are taken at input (source) positions scale*feature+offset.
	var centers [2]receptive.ScaleOffset
	for axis, so := range receptive.SequenceScaleOffset(r.stages) {
		centers[axis] = so.Inverse()
	}
	downsampled, err := upsample.Grid(r.input).Target(r.featureSize).ScaleOffset(centers).Config(r.config).
		Upsampler().WithSampler(r.sampler).Upsample(inputTensor, r.mode, r.padding)
	if err != nil {
		return errors.WithMessage(err, "failed to sample image at receptive field centers")
	}
	upsampled, err := r.gridFor(r.featureSize).Upsampler().WithSampler(r.sampler).
		Upsample(downsampled, r.mode, r.padding)
	if err != nil {
		return err
	}
	output := images.ToImage().Batch(upsampled)[0]

	original := imaging.Resize(img, r.target[1], r.target[0], imaging.Lanczos)
	canvas := imaging.New(2*r.target[1], r.target[0], color.White)
	canvas = imaging.Paste(canvas, original, image.Pt(0, 0))
	canvas = imaging.Paste(canvas, output, image.Pt(r.target[1], 0))

	outPath, err = fsutil.ExpandPath(outPath)
	if err != nil {
		return err
	}
	if err = fsutil.CreateParentDir(outPath); err != nil {
		return err
	}
	if err = imaging.Save(canvas, outPath); err != nil {
		return errors.Wrapf(err, "failed to save visualization to %q", outPath)
	}
	klog.Infof("Saved visualization of %q to %q", imagePath, outPath)
	return nil
}
