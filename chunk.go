// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"context"
	"io"
	"math"

	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/texture"
)

// A Chunk is one planned row block read into memory and padded with
// its halo: Tex has Window.Above()+NumRows+Window.Below() rows and
// Left()+Cols+Right() columns, with NaN in every position that falls
// outside the grid. Each of the chunk's NumRows output rows is one
// work unit.
type Chunk struct {
	Index             int
	RowStart, NumRows int
	Window            WindowSpec
	Tex               *texture.Tex
}

// Unit returns the i'th work unit of the chunk: the absolute output
// row it computes and the window-height, full-width view of the
// padded block that its evaluation depends on. The view aliases the
// chunk arena.
func (c *Chunk) Unit(i int) (rowCenter int, win *texture.Tex) {
	return c.RowStart + i, c.Tex.View(i, c.Window.Rows, 0, c.Tex.Cols())
}

// A Chunker reads a plan's blocks from a grid, in order, padding
// each with its sentinel halo. The trailing halo rows shared between
// consecutive blocks are carried over from the previous block's
// arena rather than re-read, so every grid row is read from the
// source exactly once per run.
type Chunker struct {
	grid grid.Grid
	plan *Plan
	next int

	// carry views the valid (unpadded) interior of the previous
	// chunk's arena; carryStart is the absolute grid row of its first
	// row.
	carry      *texture.Tex
	carryStart int
}

// NewChunker returns a chunker over the plan's blocks.
func NewChunker(g grid.Grid, plan *Plan) *Chunker {
	return &Chunker{grid: g, plan: plan}
}

// Next reads, pads, and returns the next chunk. It returns io.EOF
// after the last block.
func (c *Chunker) Next(ctx context.Context) (*Chunk, error) {
	if c.next >= len(c.plan.Blocks) {
		return nil, io.EOF
	}
	var (
		b     = c.plan.Blocks[c.next]
		w     = c.plan.Window
		cols  = c.plan.Cols
		left  = w.Left()
		arena = texture.NewFill(w.Above()+b.NumRows+w.Below(), left+cols+w.Right(), c.plan.Bands, math.NaN())
		// origin is the absolute grid row of arena row 0; negative at
		// the top of the grid, where the leading arena rows stay NaN.
		origin  = b.RowStart - w.Above()
		haloEnd = b.HaloStart + b.HaloRows
		fresh   = b.HaloStart
	)
	copyRows := func(src *texture.Tex, srcStart, r0, r1 int) {
		for r := r0; r < r1; r++ {
			for band := 0; band < c.plan.Bands; band++ {
				copy(arena.Row(r-origin, band)[left:left+cols], src.Row(r-srcStart, band))
			}
		}
	}
	if c.carry != nil {
		overlap := c.carryStart + c.carry.Rows()
		if overlap > haloEnd {
			overlap = haloEnd
		}
		if overlap > b.HaloStart {
			copyRows(c.carry, c.carryStart, b.HaloStart, overlap)
			fresh = overlap
		}
	}
	if fresh < haloEnd {
		tex, err := c.grid.ReadBlock(ctx, fresh, haloEnd-fresh, 0, cols)
		if err != nil {
			return nil, err
		}
		copyRows(tex, fresh, fresh, haloEnd)
	}
	c.carry = arena.View(b.HaloStart-origin, b.HaloRows, left, cols)
	c.carryStart = b.HaloStart
	chunk := &Chunk{
		Index:    c.next,
		RowStart: b.RowStart,
		NumRows:  b.NumRows,
		Window:   w,
		Tex:      arena,
	}
	c.next++
	return chunk, nil
}
