// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"strings"
)

// summaryEdgeItems is the number of leading and trailing elements printed for axes longer than
// 2*summaryEdgeItems.
const summaryEdgeItems = 3

// Summary returns a multi-line summary of the Tensor's content, with values printed with the given
// precision (number of significant digits). Long axes are elided with "...".
// Inspired by numpy output.
func (t *Tensor) Summary(precision int) string {
	var sb strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&sb, format, args...) }
	w("%s", t)
	values := t.Float64s()
	dims := t.shape.Dimensions
	if len(dims) == 0 {
		w("(%.*g)", precision, values[0])
		return sb.String()
	}
	w(" ")

	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= dims[axis]
	}

	var printAxis func(axis, offset int)
	printAxis = func(axis, offset int) {
		dim := dims[axis]
		indices := make([]int, 0, dim)
		for ii := range dim {
			if dim > 2*summaryEdgeItems && ii >= summaryEdgeItems && ii < dim-summaryEdgeItems {
				continue
			}
			indices = append(indices, ii)
		}
		w("{")
		lastAxis := axis == len(dims)-1
		separator := ", "
		if !lastAxis {
			separator = ",\n" + strings.Repeat(" ", axis+2)
		}
		for ii, idx := range indices {
			if ii > 0 {
				w("%s", separator)
				if idx != indices[ii-1]+1 {
					w("...%s", separator)
				}
			}
			if lastAxis {
				w("%.*g", precision, values[offset+idx])
			} else {
				printAxis(axis+1, offset+idx*strides[axis])
			}
		}
		w("}")
	}
	printAxis(0, 0)
	return sb.String()
}
