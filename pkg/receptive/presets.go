// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package receptive

import (
	"slices"
	"sort"

	"github.com/pkg/errors"
)

// presets are the feature-extraction stacks of some well known convnets (as in torchvision),
// including the identity stages for the activations.
var presets = map[string]func() []Stage{
	"alexnet":  alexNetFeatures,
	"vgg16":    vgg16Features,
	"resnet18": resNet18Features,
}

// PresetNames returns the sorted names of the available presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Preset returns the stages of a well known feature extraction stack. See PresetNames for the options.
func Preset(name string) ([]Stage, error) {
	fn, found := presets[name]
	if !found {
		return nil, errors.Errorf("unknown preset %q, valid values are %v", name, PresetNames())
	}
	return fn(), nil
}

func alexNetFeatures() []Stage {
	relu := Identity()
	return []Stage{
		Conv(11, 4, 2), relu, Pool(3, 2),
		Conv(5, 1, 2), relu, Pool(3, 2),
		Conv(3, 1, 1), relu,
		Conv(3, 1, 1), relu,
		Conv(3, 1, 1), relu, Pool(3, 2),
	}
}

func vgg16Features() []Stage {
	relu := Identity()
	var stages []Stage
	for _, numConvs := range []int{2, 2, 3, 3, 3} {
		for range numConvs {
			stages = append(stages, Conv(3, 1, 1), relu)
		}
		stages = append(stages, Pool(2, 2))
	}
	return stages
}

func resNet18Features() []Stage {
	// Only the main path: the 1x1 stride-2 downsample shortcuts run in parallel with the same geometry.
	relu := Identity()
	stages := []Stage{
		Conv(7, 2, 3), relu,
		NewStage().KernelSize(3).Strides(2).Padding(1).Done(),
	}
	block := func(stride int) []Stage {
		return []Stage{Conv(3, stride, 1), relu, Conv(3, 1, 1), relu}
	}
	for _, stride := range []int{1, 2, 2, 2} {
		stages = slices.Concat(stages, block(stride), block(1))
	}
	return stages
}
