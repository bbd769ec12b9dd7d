// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package grid

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/focal/texture"
)

// Raw is a grid backed by a local file of raw band-sequential
// float64 samples, the same layout the focal engine writes. This
// permits the output of one run to feed the input of the next.
// Blocks are read with positioned reads, so Raw is safe for
// concurrent use.
type Raw struct {
	file              *os.File
	rows, cols, bands int
	georef            Georef
}

// OpenRaw opens a raw band-sequential float64 file as a grid. The
// dimensions and georeference are supplied by the caller, typically
// parsed from the file's sidecar header.
func OpenRaw(path string, rows, cols, bands int, georef Georef) (*Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if want := int64(rows) * int64(cols) * int64(bands) * 8; info.Size() != want {
		f.Close()
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"grid: %s: size %d does not match %dx%dx%d float64 (%d bytes)",
			path, info.Size(), rows, cols, bands, want))
	}
	return &Raw{file: f, rows: rows, cols: cols, bands: bands, georef: georef}, nil
}

// Dims implements Grid.
func (g *Raw) Dims() (rows, cols, bands int) { return g.rows, g.cols, g.bands }

// Georef implements Grid.
func (g *Raw) Georef() Georef { return g.georef }

// ReadBlock implements Grid. Each row of each band is one positioned
// read.
func (g *Raw) ReadBlock(_ context.Context, r0, nr, c0, nc int) (*texture.Tex, error) {
	if r0 < 0 || c0 < 0 || r0+nr > g.rows || c0+nc > g.cols {
		return nil, errors.E(errors.Invalid, fmt.Sprintf(
			"grid: block (%d+%d, %d+%d) out of range %dx%d", r0, nr, c0, nc, g.rows, g.cols))
	}
	tex := texture.New(nr, nc, g.bands)
	buf := make([]byte, nc*8)
	for b := 0; b < g.bands; b++ {
		for r := 0; r < nr; r++ {
			off := (int64(b)*int64(g.rows)*int64(g.cols) +
				int64(r0+r)*int64(g.cols) + int64(c0)) * 8
			if _, err := g.file.ReadAt(buf, off); err != nil {
				return nil, err
			}
			row := tex.Row(r, b)
			for c := range row {
				row[c] = math.Float64frombits(binary.LittleEndian.Uint64(buf[c*8:]))
			}
		}
	}
	return tex, nil
}

// Close closes the underlying file.
func (g *Raw) Close() error { return g.file.Close() }
