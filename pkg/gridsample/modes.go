// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package gridsample

// InterpolationMode selects how values are interpolated between the source pixels.
type InterpolationMode int

//go:generate go tool enumer -type=InterpolationMode -trimprefix=Interpolation -transform=snake -output=gen_interpolationmode_enumer.go modes.go

const (
	InterpolationBilinear InterpolationMode = iota
	InterpolationNearest
	InterpolationBicubic
)

// PaddingMode selects the values used for sampling positions outside the source.
type PaddingMode int

//go:generate go tool enumer -type=PaddingMode -trimprefix=Padding -transform=snake -output=gen_paddingmode_enumer.go modes.go

const (
	// PaddingZeros uses 0 for out-of-bound positions.
	PaddingZeros PaddingMode = iota

	// PaddingBorder uses the border values for out-of-bound positions.
	PaddingBorder

	// PaddingReflection reflects out-of-bound positions back into the source, using the borders as mirrors.
	PaddingReflection
)
