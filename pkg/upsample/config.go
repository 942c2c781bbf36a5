// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package upsample

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/support/fsutil"
)

// ConfigEnv is the name of the environment variable read by ConfigFromEnv.
const ConfigEnv = "GANDISSECT_GRID"

// Config holds the numeric precision and the placement of the grids created.
type Config struct {
	// DType of the grid coordinates: one of Float32, Float64, Float16 or BFloat16.
	DType dtypes.DType

	// Placement where the grid is stored. Upsampler.Adapt may move it to the placement of the data.
	Placement tensors.Placement
}

// DefaultConfig returns single precision (Float32) grids, stored on the host.
func DefaultConfig() Config {
	return Config{DType: dtypes.Float32, Placement: tensors.Host}
}

// String implements fmt.Stringer, in the format accepted by ParseConfig.
func (c Config) String() string {
	return fmt.Sprintf("precision=%s;placement=%s", strings.ToLower(c.DType.String()), c.Placement)
}

// precisionAliases maps the usual precision names to dtypes. Other names are looked up in dtypes.MapOfNames.
var precisionAliases = map[string]dtypes.DType{
	"single":   dtypes.Float32,
	"float":    dtypes.Float32,
	"double":   dtypes.Float64,
	"half":     dtypes.Float16,
	"bfloat16": dtypes.BFloat16,
}

// ParsePrecision converts a precision name (e.g.: "single", "double", "float64", "half") to a dtype.
func ParsePrecision(name string) (dtypes.DType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if dtype, found := precisionAliases[key]; found {
		return dtype, nil
	}
	for dtypeName, dtype := range dtypes.MapOfNames {
		if strings.ToLower(dtypeName) == key {
			if !tensors.IsSupported(dtype) {
				return dtypes.InvalidDType, errors.Errorf("precision %q (%s) is not a supported float dtype", name, dtype)
			}
			return dtype, nil
		}
	}
	return dtypes.InvalidDType, errors.Errorf("unknown precision %q", name)
}

// ParseConfig parses settings in the format "precision=double;placement=device:0", starting from DefaultConfig.
//
// Parameters:
//
//   - precision: "single" (or "float32"), "double" (or "float64"), "half" (or "float16"), "bfloat16".
//   - placement: "host" or "device:<num>".
//
// A setting of the form "file:<path>" reads more settings from the given file, one or more per line
// (separated by ";"). Empty lines and lines starting with "#" are ignored.
func ParseConfig(settings string) (Config, error) {
	config := DefaultConfig()
	err := config.parse(settings)
	return config, err
}

func (c *Config) parse(settings string) error {
	for _, setting := range strings.Split(settings, ";") {
		setting = strings.TrimSpace(setting)
		if setting == "" {
			continue
		}
		if filePath, found := strings.CutPrefix(setting, "file:"); found {
			if err := c.parseFile(filePath); err != nil {
				return err
			}
			continue
		}
		key, value, found := strings.Cut(setting, "=")
		if !found {
			return errors.Errorf("can't parse grid settings %q: each setting requires the format \"<param>=<value>\", got %q",
				settings, setting)
		}
		var err error
		switch strings.TrimSpace(key) {
		case "precision", "dtype":
			c.DType, err = ParsePrecision(value)
		case "placement", "device":
			c.Placement, err = tensors.ParsePlacement(value)
		default:
			err = errors.Errorf("unknown grid setting %q, valid settings are \"precision\" and \"placement\"", key)
		}
		if err != nil {
			return errors.WithMessagef(err, "while parsing grid settings %q", settings)
		}
	}
	return nil
}

func (c *Config) parseFile(filePath string) error {
	filePath, err := fsutil.ExpandPath(filePath)
	if err != nil {
		return err
	}
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to read grid settings from file %q", filePath)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.parse(line); err != nil {
			return errors.WithMessagef(err, "in file %q", filePath)
		}
	}
	return nil
}

// ConfigFromEnv returns the configuration set in the environment variable GANDISSECT_GRID (see ConfigEnv),
// in the format accepted by ParseConfig. If it is not set, it returns DefaultConfig.
func ConfigFromEnv() (Config, error) {
	settings, found := os.LookupEnv(ConfigEnv)
	if !found {
		return DefaultConfig(), nil
	}
	config, err := ParseConfig(settings)
	if err != nil {
		return config, errors.WithMessagef(err, "invalid value for $%s", ConfigEnv)
	}
	return config, nil
}
