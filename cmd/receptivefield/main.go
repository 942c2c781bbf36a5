// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// receptivefield reports the receptive-field geometry of a stack of convolution/pooling stages, and builds the
// grids that upsample the stack's feature maps back to its input, spatially aligned.
//
// Examples:
//
//	# Report the stages, the scale/offset and the grid of a ResNet-18 at 224x224.
//	receptivefield -preset=resnet18 -input=224,224
//
//	# Upsample feature maps saved from Python (shaped [batch, channels, rows, cols]) to the input resolution.
//	receptivefield -stages="k=3,s=2,p=1;k=3,s=2,p=1" -input=64,64 -features=features.npy -out=upsampled.npz
//
//	# Visualize the alignment: samples the image at the receptive field centers, and upsamples it back.
//	receptivefield -preset=alexnet -image=cat.jpg -out_image=aligned.png
package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/gridsample"
	"github.com/skywolf829/gandissect/pkg/receptive"
	"github.com/skywolf829/gandissect/pkg/support/fsutil"
	"github.com/skywolf829/gandissect/pkg/support/xslices"
	"github.com/skywolf829/gandissect/pkg/upsample"
	"k8s.io/klog/v2"
)

var (
	flagPreset = flag.String("preset", "",
		fmt.Sprintf("Stages of a well known feature extractor, one of %q. "+
			"Stages given with -stages or -stages_file are appended to it.", receptive.PresetNames()))
	flagStages = flag.String("stages", "",
		"List of stages separated by \";\", each a comma-separated list of k=<kernel>,s=<stride>,p=<padding>,d=<dilation>. "+
			"Values can be given per axis, as in \"k=3x1\". E.g.: \"k=7,s=2,p=3;k=3,s=2,p=1\".")
	flagStagesFile = flag.String("stages_file", "",
		"JSON file with a list of stages, each with the optional fields \"name\", \"kernel_size\", \"dilation\", "+
			"\"stride\" and \"padding\". Each field is either a number or a list with one number per axis.")
	flagInput = xslices.Flag("input", []int{224, 224},
		"Input size given as \"rows,cols\", or a single value for square inputs.", strconv.Atoi)
	flagTarget = xslices.Flag("target", nil,
		"Size of the upsampled output, as \"rows,cols\". It defaults to the -input size. "+
			"If different, the target is taken as a resized version of the input.", strconv.Atoi)
	flagGrid = flag.String("grid", "",
		fmt.Sprintf("Grid settings, e.g. \"precision=double;placement=host\". "+
			"Defaults to the value of $%s, or single precision on the host.", upsample.ConfigEnv))
	flagShow = flag.String("show", "stages,affine,grid",
		"Comma-separated list of reports to show: \"stages\", \"affine\" and \"grid\". Empty to disable reports.")
	flagPrintGrid = flag.Bool("print_grid", false, "Print a summary of the grid values.")
	flagSaveGrid  = flag.String("save_grid", "", "Save the grid, shaped [1, rows, cols, 2], to the given .npy file.")

	flagFeatures = flag.String("features", "",
		"A .npy (or .npz) file with feature maps shaped [batch, channels, rows, cols] to upsample.")
	flagFeaturesKey = flag.String("features_key", "features", "Name of the features array, if -features is a .npz file.")
	flagOut         = flag.String("out", "",
		"Where to save the upsampled features (-features). If it ends with .npz, the grid is saved along.")

	flagImage    = flag.String("image", "", "Image to use to visualize the alignment.")
	flagOutImage = flag.String("out_image", "",
		"Where to save the visualization of -image: the resized input side by side with its version "+
			"sampled at the receptive field centers and upsampled back.")

	flagMode = flag.String("mode", gridsample.InterpolationBilinear.String(),
		fmt.Sprintf("Interpolation mode, one of %q.", gridsample.InterpolationModeStrings()))
	flagPadding = flag.String("padding", gridsample.PaddingZeros.String(),
		fmt.Sprintf("Padding mode, one of %q.", gridsample.PaddingModeStrings()))
	flagParallelism = flag.Int("parallelism", -1,
		"Maximum number of goroutines used to sample. 0 disables parallelism, -1 uses one per plane.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if len(flag.Args()) > 0 {
		klog.Errorf("Unknown arguments %q. See 'receptivefield -help'.", flag.Args())
		os.Exit(1)
	}
	run := must.M1(newRun())
	run.report(*flagShow)

	if *flagSaveGrid != "" {
		must.M(run.saveGrid(*flagSaveGrid))
	}
	if *flagFeatures != "" {
		if *flagOut == "" {
			klog.Fatalf("-features requires -out to be set.")
		}
		must.M(run.upsampleFeatures(*flagFeatures, *flagFeaturesKey, *flagOut))
	}
	if *flagImage != "" {
		if *flagOutImage == "" {
			klog.Fatalf("-image requires -out_image to be set.")
		}
		must.M(run.visualize(*flagImage, *flagOutImage))
	}
}

// parseSize converts the values of a size flag to a spatial shape.
func parseSize(name string, values []int) ([2]int, error) {
	var size [2]int
	switch len(values) {
	case 1:
		size = [2]int{values[0], values[0]}
	case 2:
		size = [2]int{values[0], values[1]}
	default:
		return size, errors.Errorf("-%s must be given as \"rows,cols\" or a single value, got %v", name, values)
	}
	if size[0] <= 0 || size[1] <= 0 {
		return size, errors.Errorf("-%s must be positive, got %v", name, size)
	}
	return size, nil
}

// loadStages concatenates the stages of the preset, the stages file and the stages text, in this order.
func loadStages(preset, stagesFile, stagesText string) (stages []receptive.Stage, err error) {
	if preset != "" {
		stages, err = receptive.Preset(preset)
		if err != nil {
			return nil, err
		}
	}
	if stagesFile != "" {
		descriptors, err := receptive.LoadDescriptors(stagesFile)
		if err != nil {
			return nil, err
		}
		fileStages, err := receptive.Stages(descriptors)
		if err != nil {
			return nil, errors.WithMessagef(err, "in -stages_file=%q", stagesFile)
		}
		stages = append(stages, fileStages...)
	}
	if stagesText != "" {
		textStages, err := receptive.ParseStages(stagesText)
		if err != nil {
			return nil, errors.WithMessage(err, "in -stages")
		}
		stages = append(stages, textStages...)
	}
	return stages, nil
}

// run holds the configuration shared by the reports and the pipelines.
type run struct {
	stages        []receptive.Stage
	input, target [2]int
	featureSize   [2]int
	config        upsample.Config
	mode          gridsample.InterpolationMode
	padding       gridsample.PaddingMode
	sampler       *gridsample.Sampler
}

func newRun() (r *run, err error) {
	r = &run{}
	r.stages, err = loadStages(*flagPreset, *flagStagesFile, *flagStages)
	if err != nil {
		return nil, err
	}
	if r.input, err = parseSize("input", *flagInput); err != nil {
		return nil, err
	}
	r.target = r.input
	if len(*flagTarget) > 0 {
		if r.target, err = parseSize("target", *flagTarget); err != nil {
			return nil, err
		}
	}
	r.featureSize = receptive.SequenceDataSize(r.stages, r.input)
	if r.featureSize[0] <= 0 || r.featureSize[1] <= 0 {
		return nil, errors.Errorf("input %v is too small for the stages: output size would be %v", r.input, r.featureSize)
	}
	if *flagGrid != "" {
		r.config, err = upsample.ParseConfig(*flagGrid)
	} else {
		r.config, err = upsample.ConfigFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if r.mode, err = gridsample.InterpolationModeString(*flagMode); err != nil {
		return nil, errors.Wrap(err, "invalid -mode")
	}
	if r.padding, err = gridsample.PaddingModeString(*flagPadding); err != nil {
		return nil, errors.Wrap(err, "invalid -padding")
	}
	r.sampler = gridsample.New().MaxParallelism(*flagParallelism)
	klog.V(1).Infof("%d stages, input %v -> features %v, target %v, grid %s",
		len(r.stages), r.input, r.featureSize, r.target, r.config)
	return r, nil
}

// gridFor returns the builder of the grid that upsamples features of the given size to the target.
func (r *run) gridFor(featureSize [2]int) *upsample.GridBuilder {
	return upsample.Grid(featureSize).Target(r.target).Original(r.input).Stages(r.stages...).Config(r.config)
}

func (r *run) report(show string) {
	var reports []string
	for _, name := range strings.Split(show, ",") {
		if name = strings.TrimSpace(name); name != "" {
			reports = append(reports, name)
		}
	}
	for _, name := range reports {
		if !slices.Contains([]string{"stages", "affine", "grid"}, name) {
			klog.Warningf("Unknown report %q in -show, ignored.", name)
		}
	}
	if slices.Contains(reports, "stages") {
		fmt.Println(titleStyle.Render("Stages"))
		fmt.Println(stagesTable(r.stages, r.input))
	}
	if slices.Contains(reports, "affine") {
		fmt.Println(titleStyle.Render("Receptive field"))
		fmt.Println(affineTable(receptive.SequenceScaleOffset(r.stages), r.input, r.featureSize))
	}
	if slices.Contains(reports, "grid") || *flagPrintGrid {
		grid := r.gridFor(r.featureSize).Done()
		if slices.Contains(reports, "grid") {
			fmt.Println(titleStyle.Render("Grid"))
			fmt.Println(gridTable(grid, r.featureSize, r.target))
		}
		if *flagPrintGrid {
			fmt.Println(grid.Summary(4))
		}
	}
}

func (r *run) saveGrid(filePath string) error {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return err
	}
	if err = fsutil.CreateParentDir(filePath); err != nil {
		return err
	}
	return saveTensors(filePath, namedTensor{"grid", r.gridFor(r.featureSize).Done()})
}
