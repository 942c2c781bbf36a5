// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package receptive

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/support/fsutil"
)

// IntOrTuple is a stage parameter given either as a single value, applied to every axis, or
// as one value per axis. An empty IntOrTuple means "use the default".
//
// In JSON it can be either a number (`3`) or a list (`[3, 5]`).
type IntOrTuple []int

// UnmarshalJSON implements json.Unmarshaler.
func (v *IntOrTuple) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return errors.Wrapf(err, "failed to parse %s as a list of integers", data)
		}
		*v = values
		return nil
	}
	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return errors.Wrapf(err, "failed to parse %s as an integer", data)
	}
	*v = IntOrTuple{value}
	return nil
}

// axisValues expands v to one value per axis.
func (v IntOrTuple) axisValues(name string, defaultValue int) (AxisValues, error) {
	switch len(v) {
	case 0:
		return Uniform(defaultValue), nil
	case 1:
		return Uniform(v[0]), nil
	case NumSpatialAxes:
		var values AxisValues
		copy(values[:], v)
		return values, nil
	}
	return AxisValues{}, errors.Errorf("%s has %d values %v, it must have either 1 or %d (one per axis)",
		name, len(v), []int(v), NumSpatialAxes)
}

// Descriptor is the external (serializable) description of a pipeline stage. Omitted fields take
// the defaults kernel_size=1, dilation=1, stride=1, padding=0.
//
// Use Descriptor.Stage to convert it to a Stage.
type Descriptor struct {
	Name       string     `json:"name,omitempty"`
	KernelSize IntOrTuple `json:"kernel_size,omitempty"`
	Dilation   IntOrTuple `json:"dilation,omitempty"`
	Stride     IntOrTuple `json:"stride,omitempty"`
	Padding    IntOrTuple `json:"padding,omitempty"`
}

// Stage converts the descriptor to a Stage, expanding uniform values to every axis.
//
// It returns an error if a field has the wrong number of values, or values out of range
// (kernel, dilation and stride must be >= 1, padding must be >= 0).
func (d Descriptor) Stage() (stage Stage, err error) {
	fields := []struct {
		name         string
		values       IntOrTuple
		defaultValue int
		minValue     int
		target       *AxisValues
	}{
		{"kernel_size", d.KernelSize, 1, 1, &stage.KernelSize},
		{"dilation", d.Dilation, 1, 1, &stage.Dilation},
		{"stride", d.Stride, 1, 1, &stage.Stride},
		{"padding", d.Padding, 0, 0, &stage.Padding},
	}
	for _, field := range fields {
		*field.target, err = field.values.axisValues(field.name, field.defaultValue)
		if err != nil {
			return Stage{}, errors.WithMessagef(err, "invalid stage %q", d.Name)
		}
		for axis, value := range *field.target {
			if value < field.minValue {
				return Stage{}, errors.Errorf("invalid stage %q: %s=%d for axis %d, it must be >= %d",
					d.Name, field.name, value, axis, field.minValue)
			}
		}
	}
	return stage, nil
}

// Stages converts a list of descriptors to stages.
func Stages(descriptors []Descriptor) ([]Stage, error) {
	stages := make([]Stage, 0, len(descriptors))
	for ii, d := range descriptors {
		stage, err := d.Stage()
		if err != nil {
			return nil, errors.WithMessagef(err, "descriptor #%d", ii)
		}
		stages = append(stages, stage)
	}
	return stages, nil
}

// LoadDescriptors reads a JSON file with a list of Descriptor objects, e.g.:
//
//	[{"name": "conv1", "kernel_size": 7, "stride": 2, "padding": 3},
//	 {"name": "relu"},
//	 {"name": "pool", "kernel_size": [3, 3], "stride": 2, "padding": 1}]
//
// A leading "~" in filePath is expanded to the user's home directory.
func LoadDescriptors(filePath string) ([]Descriptor, error) {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read stage descriptors from %q", filePath)
	}
	var descriptors []Descriptor
	if err = json.Unmarshal(contents, &descriptors); err != nil {
		return nil, errors.Wrapf(err, "failed to parse stage descriptors in %q", filePath)
	}
	return descriptors, nil
}

// ParseStages parses a list of stages separated by ";". Each stage is a comma-separated list of
// "<param>=<value>", where param is one of "k" (or "kernel_size"), "d" ("dilation"), "s" ("stride")
// and "p" ("padding"), and value is either one integer or one integer per axis separated by "x".
// Omitted parameters take the identity defaults.
//
// Example: "k=7,s=2,p=3;k=3,s=2,p=1;k=3x1,p=1x0".
//
// The output of Stage.String is accepted.
func ParseStages(text string) ([]Stage, error) {
	var descriptors []Descriptor
	for ii, stageText := range strings.Split(text, ";") {
		stageText = strings.TrimSpace(stageText)
		if stageText == "" {
			continue
		}
		d := Descriptor{Name: stageText}
		for _, setting := range strings.Split(stageText, ",") {
			setting = strings.TrimSpace(setting)
			if setting == "" || setting == "identity" {
				continue
			}
			key, valueStr, found := strings.Cut(setting, "=")
			if !found {
				return nil, errors.Errorf("can't parse stage #%d %q: each setting requires the format "+
					"\"<param>=<value>\", got %q", ii, stageText, setting)
			}
			values, err := parseIntOrTuple(valueStr)
			if err != nil {
				return nil, errors.WithMessagef(err, "can't parse stage #%d %q", ii, stageText)
			}
			switch strings.TrimSpace(key) {
			case "k", "kernel", "kernel_size":
				d.KernelSize = values
			case "d", "dilation":
				d.Dilation = values
			case "s", "stride":
				d.Stride = values
			case "p", "padding":
				d.Padding = values
			default:
				return nil, errors.Errorf("can't parse stage #%d %q: unknown parameter %q", ii, stageText, key)
			}
		}
		descriptors = append(descriptors, d)
	}
	return Stages(descriptors)
}

func parseIntOrTuple(valueStr string) (IntOrTuple, error) {
	parts := strings.Split(strings.TrimSpace(valueStr), "x")
	values := make(IntOrTuple, len(parts))
	for ii, part := range parts {
		var err error
		values[ii], err = strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value %q", valueStr)
		}
	}
	return values, nil
}
