// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/skywolf829/gandissect/pkg/core/tensors"
	"github.com/skywolf829/gandissect/pkg/receptive"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)

	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// tableWithReds is a table where some rows can be highlighted in red.
type tableWithReds struct {
	Table *lgtable.Table
	Count int
	Reds  map[int]bool
}

func (t *tableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.Reds[t.Count] = true
	}
	t.Table.Row(row...)
	t.Count++
}

func newPlainTable(alignments ...lipgloss.Position) *tableWithReds {
	t := &tableWithReds{
		Reds: make(map[int]bool),
	}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			switch {
			case t.Reds[row]:
				s = redRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	return t
}

// stagesTable lists the stages with the output size after each of them. Stages after which the data
// becomes empty are highlighted.
func stagesTable(stages []receptive.Stage, input [2]int) string {
	t := newPlainTable(lipgloss.Right, lipgloss.Left, lipgloss.Right)
	t.Table.Headers("#", "Stage", "Output", "Scale/Offset (rows)", "Scale/Offset (cols)")
	t.Row(false, "", "input", fmt.Sprintf("%dx%d", input[0], input[1]), "", "")
	for ii, stage := range stages {
		size := receptive.SequenceDataSize(stages[:ii+1], input)
		scaleOffsets := receptive.SequenceScaleOffset(stages[:ii+1])
		name := stage.String()
		if stage.IsIdentity() {
			name = "identity"
		}
		t.Row(size[0] <= 0 || size[1] <= 0,
			fmt.Sprintf("%d", ii), name, fmt.Sprintf("%dx%d", size[0], size[1]),
			scaleOffsets[0].String(), scaleOffsets[1].String())
	}
	return t.Table.Render()
}

// affineTable shows the composed scale/offset per axis, and where the first and last feature pixels are
// centered in the input.
func affineTable(scaleOffsets [2]receptive.ScaleOffset, input, featureSize [2]int) string {
	t := newPlainTable(lipgloss.Right, lipgloss.Right)
	t.Table.Headers("Axis", "Scale", "Offset", "Input", "Features", "First center", "Last center")
	for axis, name := range []string{"rows", "cols"} {
		so := scaleOffsets[axis]
		last := so.ToInput(float64(featureSize[axis] - 1))
		t.Row(last >= float64(input[axis]),
			name, humanize.Ftoa(so.Scale), humanize.Ftoa(so.Offset),
			humanize.Comma(int64(input[axis])), humanize.Comma(int64(featureSize[axis])),
			humanize.Ftoa(so.ToInput(0)), humanize.Ftoa(last))
	}
	return t.Table.Render()
}

// gridTable describes the grid tensor.
func gridTable(grid *tensors.Tensor, featureSize, target [2]int) string {
	t := newPlainTable(lipgloss.Right, lipgloss.Left)
	t.Row(false, "source", fmt.Sprintf("%dx%d", featureSize[0], featureSize[1]))
	t.Row(false, "target", fmt.Sprintf("%dx%d", target[0], target[1]))
	t.Row(false, "shape", grid.Shape().String())
	t.Row(false, "placement", grid.Placement().String())
	t.Row(false, "# values", humanize.Comma(int64(grid.Size())))
	t.Row(false, "memory", humanize.Bytes(uint64(grid.Memory())))
	return t.Table.Render()
}
