// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Placement indicates where a tensor's storage lives: on the host, or on an accelerator device.
//
// The zero value is Host. Use Device to create a device placement.
type Placement int

// Host is the placement of tensors kept in the host memory.
const Host Placement = 0

// Device returns the placement for the device with the given number (0-based).
func Device(deviceNum int) Placement {
	if deviceNum < 0 {
		panic(errors.Errorf("tensors.Device(%d): device number must be >= 0", deviceNum))
	}
	return Placement(deviceNum + 1)
}

// IsHost returns whether the placement is the host.
func (p Placement) IsHost() bool { return p == Host }

// DeviceNum returns the device number, or -1 if it's placed on the host.
func (p Placement) DeviceNum() int { return int(p) - 1 }

// String implements fmt.Stringer: "host" or "device:<num>".
func (p Placement) String() string {
	if p.IsHost() {
		return "host"
	}
	return fmt.Sprintf("device:%d", p.DeviceNum())
}

// ParsePlacement parses the output of Placement.String.
// It also accepts "cpu" for the host, and "cuda:<num>"/"gpu:<num>" as aliases for devices.
func ParsePlacement(s string) (Placement, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "host", "cpu":
		return Host, nil
	}
	prefix, numStr, found := strings.Cut(s, ":")
	if !found {
		return Host, errors.Errorf("invalid placement %q, expected \"host\" or \"device:<num>\"", s)
	}
	switch prefix {
	case "device", "cuda", "gpu":
	default:
		return Host, errors.Errorf("invalid placement %q, unknown prefix %q", s, prefix)
	}
	num, err := strconv.Atoi(numStr)
	if err != nil {
		return Host, errors.Wrapf(err, "invalid device number in placement %q", s)
	}
	if num < 0 {
		return Host, errors.Errorf("invalid placement %q, device number must be >= 0", s)
	}
	return Device(num), nil
}
