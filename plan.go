// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Block is one row-block of a plan: the half-open output row range
// [RowStart, RowStart+NumRows) together with the clamped halo row
// range [HaloStart, HaloStart+HaloRows) that must be read from the
// grid to evaluate it. Halo rows of adjacent blocks overlap; the
// chunker reuses the overlap instead of re-reading it.
type Block struct {
	RowStart, NumRows   int
	HaloStart, HaloRows int
}

// A Plan partitions a grid into row blocks for one run. It carries
// the run geometry that every downstream component needs: grid
// dimensions, window, output band count, and the clamped worker
// count.
type Plan struct {
	Rows, Cols, Bands int
	Window            WindowSpec
	OutBands          int

	// Procs is the effective worker parallelism: the requested count,
	// clamped down when the grid supports fewer blocks.
	Procs int

	Blocks []Block
}

// PlanBlocks computes the row-block partition for a grid of the
// given dimensions. The target block count is procs*outbands so that
// memory pressure stays proportional to worker count, but no block
// is ever shorter than the window height (or minRows, if larger):
// a block shorter than the window could not give every one of its
// output rows a fully defined window. When the grid supports fewer
// blocks than requested, the block count, and with it the effective
// worker count, is clamped down.
//
// PlanBlocks fails with an error of kind errors.Invalid if the
// window is invalid or the grid has fewer rows than the window.
func PlanBlocks(rows, cols, bands int, w WindowSpec, procs, outbands, minRows int) (*Plan, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if rows < w.Rows {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: grid has %d rows, fewer than the %d-row window", rows, w.Rows))
	}
	if procs < 1 {
		procs = 1
	}
	if outbands < 1 {
		outbands = 1
	}
	if minRows < w.Rows {
		minRows = w.Rows
	}
	n := procs * outbands
	if max := rows / minRows; n > max {
		n = max
	}
	if n < 1 {
		n = 1
	}
	if procs > n {
		procs = n
	}
	plan := &Plan{
		Rows:     rows,
		Cols:     cols,
		Bands:    bands,
		Window:   w,
		OutBands: outbands,
		Procs:    procs,
		Blocks:   make([]Block, n),
	}
	base, rem := rows/n, rows%n
	start := 0
	for i := range plan.Blocks {
		nr := base
		if i < rem {
			nr++
		}
		b := Block{RowStart: start, NumRows: nr}
		b.HaloStart = b.RowStart - w.Above()
		if b.HaloStart < 0 {
			b.HaloStart = 0
		}
		end := b.RowStart + b.NumRows + w.Below()
		if end > rows {
			end = rows
		}
		b.HaloRows = end - b.HaloStart
		plan.Blocks[i] = b
		start += nr
	}
	return plan, nil
}
