// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/texture"
)

// EvaluateWindow evaluates fn at every column position of a work
// unit. The unit view must span the window's height and the full
// padded width; position k's window is the width-Cols sub-view at
// column offset k, which is always in bounds thanks to the column
// halo. Results are returned band-major: value (band, col) is at
// index band*cols+col, matching the band-sequential output layout.
//
// Every position must produce exactly outbands values, the count
// established by the probe; a mismatch is a fatal configuration
// error.
func EvaluateWindow(ctx context.Context, fn *Func, argv []reflect.Value, unit *texture.Tex, w WindowSpec, cols, outbands int) ([]float64, error) {
	out := make([]float64, outbands*cols)
	for k := 0; k < cols; k++ {
		vals, err := fn.Eval(ctx, unit.View(0, w.Rows, k, w.Cols), w, argv)
		if err != nil {
			return nil, err
		}
		if len(vals) != outbands {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("focal: function %s returned %d values at column %d; probe promised %d",
					fn, len(vals), k, outbands))
		}
		for b, v := range vals {
			out[b*cols+k] = v
		}
	}
	return out, nil
}

// EvaluateChunk evaluates a chunk-mode fn once on an entire padded
// block, expecting a rows x cols x outbands texture back (the
// block's output rows, without halo). Results are flattened
// band-major, as in EvaluateWindow.
func EvaluateChunk(ctx context.Context, fn *Func, argv []reflect.Value, chunk *texture.Tex, w WindowSpec, rows, cols, outbands int) ([]float64, error) {
	tex, err := fn.EvalChunk(ctx, chunk, w, argv)
	if err != nil {
		return nil, err
	}
	if tex.Rows() != rows || tex.Cols() != cols || tex.Bands() != outbands {
		return nil, errors.E(errors.Invalid,
			fmt.Sprintf("focal: chunk function %s returned %dx%dx%d, want %dx%dx%d",
				fn, tex.Rows(), tex.Cols(), tex.Bands(), rows, cols, outbands))
	}
	out := make([]float64, 0, outbands*rows*cols)
	for b := 0; b < outbands; b++ {
		out = tex.CopyBand(out, b)
	}
	return out, nil
}

// Probe invokes fn once on a minimal block read from the top-left
// corner of the grid and returns the number of output bands implied
// by the result's shape. Probing happens before planning and before
// the output file is created: a function that cannot be invoked with
// the given configuration fails the run before anything is written.
func Probe(ctx context.Context, g grid.Grid, fn *Func, args []interface{}, w WindowSpec, mode Mode) (outbands int, err error) {
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if fn.Chunky() != (mode == ModeChunk) {
		return 0, errors.E(errors.Invalid,
			fmt.Sprintf("focal: function %s does not match mode %s", fn, mode))
	}
	argv, err := fn.Bind(args)
	if err != nil {
		return 0, err
	}
	rows, cols, bands := g.Dims()
	switch mode {
	default:
		// The padded window of output pixel (0, 0): positions above
		// and left of the grid stay NaN.
		arena := texture.NewFill(w.Rows, w.Cols, bands, math.NaN())
		nr, nc := w.Below()+1, w.Right()+1
		if nr > rows {
			nr = rows
		}
		if nc > cols {
			nc = cols
		}
		tex, err := g.ReadBlock(ctx, 0, nr, 0, nc)
		if err != nil {
			return 0, err
		}
		copyInto(arena, tex, w.Above(), w.Left(), bands)
		vals, err := fn.Eval(ctx, arena, w, argv)
		if err != nil {
			return 0, err
		}
		if len(vals) == 0 {
			return 0, errors.E(errors.Invalid,
				fmt.Sprintf("focal: function %s returned no values during probing", fn))
		}
		return len(vals), nil
	case ModeChunk:
		// A minimal window-height block, padded like a real chunk.
		n := w.Rows
		if n > rows {
			n = rows
		}
		arena := texture.NewFill(w.Above()+n+w.Below(), w.Left()+cols+w.Right(), bands, math.NaN())
		nr := n + w.Below()
		if nr > rows {
			nr = rows
		}
		tex, err := g.ReadBlock(ctx, 0, nr, 0, cols)
		if err != nil {
			return 0, err
		}
		copyInto(arena, tex, w.Above(), w.Left(), bands)
		out, err := fn.EvalChunk(ctx, arena, w, argv)
		if err != nil {
			return 0, err
		}
		if out.Rows() != n || out.Cols() != cols {
			return 0, errors.E(errors.Invalid,
				fmt.Sprintf("focal: chunk function %s returned %dx%d for a %dx%d probe block",
					fn, out.Rows(), out.Cols(), n, cols))
		}
		return out.Bands(), nil
	}
}

// copyInto copies src into dst with its top-left corner at (r0, c0).
func copyInto(dst, src *texture.Tex, r0, c0, bands int) {
	for b := 0; b < bands; b++ {
		for r := 0; r < src.Rows(); r++ {
			copy(dst.Row(r0+r, b)[c0:c0+src.Cols()], src.Row(r, b))
		}
	}
}
