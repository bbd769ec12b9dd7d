// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package grid provides access to large multi-band rasters. The
// focal engine reads its input exclusively through the Grid
// interface, one rectangular block at a time, so implementations may
// be backed by memory, local files, or object stores without the
// engine caring.
package grid

import (
	"context"
	"fmt"

	"github.com/grailbio/focal/texture"
)

// A Georef locates a grid in a projected coordinate system. The
// focal engine treats it as opaque: it is carried from the input
// grid to the output descriptor unmodified.
type Georef struct {
	// XMin and YMax are the coordinates of the outer corner of the
	// top-left pixel.
	XMin, YMax float64
	// XRes and YRes are the pixel sizes along each axis.
	XRes, YRes float64
	// Proj describes the coordinate system, e.g. a PROJ.4 string.
	Proj string
}

// String returns a short description of the georeference.
func (g Georef) String() string {
	return fmt.Sprintf("georef{%g, %g, %gx%g, %q}", g.XMin, g.YMax, g.XRes, g.YRes, g.Proj)
}

// Grid is the read-only view of a raster. Implementations must be
// safe for concurrent use.
type Grid interface {
	// Dims returns the grid's row, column, and band counts.
	Dims() (rows, cols, bands int)

	// ReadBlock reads the rectangle of nr rows and nc columns whose
	// top-left corner is at (r0, c0), across all bands. The returned
	// texture may alias storage owned by the grid; callers must not
	// mutate it.
	ReadBlock(ctx context.Context, r0, nr, c0, nc int) (*texture.Tex, error)

	// Georef returns the grid's georeference.
	Georef() Georef
}

// Mem is an in-memory grid. It is the cheapest implementation and
// the one used throughout the engine's tests.
type Mem struct {
	tex    *texture.Tex
	georef Georef
}

// NewMem returns a grid backed by the provided texture.
func NewMem(tex *texture.Tex, georef Georef) *Mem {
	return &Mem{tex: tex, georef: georef}
}

// Dims implements Grid.
func (m *Mem) Dims() (rows, cols, bands int) {
	return m.tex.Rows(), m.tex.Cols(), m.tex.Bands()
}

// ReadBlock implements Grid. The returned texture is a view, so
// reads are zero-copy.
func (m *Mem) ReadBlock(_ context.Context, r0, nr, c0, nc int) (*texture.Tex, error) {
	if r0 < 0 || c0 < 0 || r0+nr > m.tex.Rows() || c0+nc > m.tex.Cols() {
		return nil, fmt.Errorf("grid: block (%d+%d, %d+%d) out of range %dx%d",
			r0, nr, c0, nc, m.tex.Rows(), m.tex.Cols())
	}
	return m.tex.View(r0, nr, c0, nc), nil
}

// Georef implements Grid.
func (m *Mem) Georef() Georef { return m.georef }
