// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package texture provides a dense, multi-band raster buffer and
// cheap rectangular views onto it. Textures are the unit of data
// exchange between grid readers, focal functions, and the output
// writer: a block of pixels is read into a single texture arena, and
// each work unit receives a view that aliases the arena without
// copying.
//
// Values are float64 and are stored in band-sequential order: all
// rows of band 0, then band 1, and so on. Missing values (for
// example, halo padding beyond the grid edge) are represented by NaN.
package texture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// A Tex is a rectangular, multi-band buffer of float64 samples.
// A Tex is either an arena, which owns its backing storage, or a
// view, which aliases a sub-rectangle of some arena. Views are
// created by View and share storage with their parent; mutating a
// view mutates the arena.
type Tex struct {
	rows, cols, bands int

	// off is the index of sample (0, 0, 0); rowStride and planeStride
	// are the index distances between adjacent rows and adjacent
	// bands. For an arena, off is 0, rowStride is cols, and
	// planeStride is rows*cols.
	off, rowStride, planeStride int

	data []float64
}

// New returns a zero-filled arena with the provided dimensions.
func New(rows, cols, bands int) *Tex {
	return &Tex{
		rows:        rows,
		cols:        cols,
		bands:       bands,
		rowStride:   cols,
		planeStride: rows * cols,
		data:        make([]float64, rows*cols*bands),
	}
}

// NewFill returns an arena with every sample set to v.
func NewFill(rows, cols, bands int, v float64) *Tex {
	t := New(rows, cols, bands)
	t.Fill(v)
	return t
}

// Of wraps the provided band-sequential data in a texture. The data
// is aliased, not copied. Of panics if the data length does not
// match the dimensions.
func Of(data []float64, rows, cols, bands int) *Tex {
	if len(data) != rows*cols*bands {
		panic(fmt.Sprintf("texture.Of: have %d samples, want %d (%dx%dx%d)",
			len(data), rows*cols*bands, rows, cols, bands))
	}
	return &Tex{
		rows:        rows,
		cols:        cols,
		bands:       bands,
		rowStride:   cols,
		planeStride: rows * cols,
		data:        data,
	}
}

// Rows returns the number of rows.
func (t *Tex) Rows() int { return t.rows }

// Cols returns the number of columns.
func (t *Tex) Cols() int { return t.cols }

// Bands returns the number of bands.
func (t *Tex) Bands() int { return t.bands }

// At returns the sample at row r, column c, band b.
func (t *Tex) At(r, c, b int) float64 {
	return t.data[t.index(r, c, b)]
}

// Set sets the sample at row r, column c, band b to v.
func (t *Tex) Set(r, c, b int, v float64) {
	t.data[t.index(r, c, b)] = v
}

func (t *Tex) index(r, c, b int) int {
	if r < 0 || r >= t.rows || c < 0 || c >= t.cols || b < 0 || b >= t.bands {
		panic(fmt.Sprintf("texture: index (%d, %d, %d) out of range %dx%dx%d",
			r, c, b, t.rows, t.cols, t.bands))
	}
	return t.off + b*t.planeStride + r*t.rowStride + c
}

// View returns a view of the nr x nc rectangle whose top-left corner
// is at row r0, column c0. The view spans all bands and aliases t's
// storage. View panics if the rectangle is not contained in t.
func (t *Tex) View(r0, nr, c0, nc int) *Tex {
	if r0 < 0 || nr < 0 || r0+nr > t.rows || c0 < 0 || nc < 0 || c0+nc > t.cols {
		panic(fmt.Sprintf("texture: view (%d+%d, %d+%d) out of range %dx%d",
			r0, nr, c0, nc, t.rows, t.cols))
	}
	return &Tex{
		rows:        nr,
		cols:        nc,
		bands:       t.bands,
		off:         t.off + r0*t.rowStride + c0,
		rowStride:   t.rowStride,
		planeStride: t.planeStride,
		data:        t.data,
	}
}

// Row returns the samples of row r in band b as a slice aliasing t's
// storage. Rows are always contiguous, regardless of how t was
// sliced.
func (t *Tex) Row(r, b int) []float64 {
	i := t.index(r, 0, b)
	return t.data[i : i+t.cols]
}

// Fill sets every sample of t to v.
func (t *Tex) Fill(v float64) {
	for b := 0; b < t.bands; b++ {
		for r := 0; r < t.rows; r++ {
			row := t.Row(r, b)
			for i := range row {
				row[i] = v
			}
		}
	}
}

// CopyBand appends band b's samples to dst in row-major order and
// returns the extended slice.
func (t *Tex) CopyBand(dst []float64, b int) []float64 {
	for r := 0; r < t.rows; r++ {
		dst = append(dst, t.Row(r, b)...)
	}
	return dst
}

// Copy returns a compact arena holding a copy of t's samples.
func (t *Tex) Copy() *Tex {
	u := New(t.rows, t.cols, t.bands)
	for b := 0; b < t.bands; b++ {
		var i int
		for r := 0; r < t.rows; r++ {
			i += copy(u.data[b*u.planeStride+i:], t.Row(r, b))
		}
	}
	return u
}

// String returns a short descriptive string for the texture.
func (t *Tex) String() string {
	return fmt.Sprintf("texture[%dx%dx%d]", t.rows, t.cols, t.bands)
}

// Equal tells whether textures t and u have the same shape and the
// same samples. NaN samples are considered equal to each other, so
// that padded textures compare as expected.
func Equal(t, u *Tex) bool {
	if t.rows != u.rows || t.cols != u.cols || t.bands != u.bands {
		return false
	}
	for b := 0; b < t.bands; b++ {
		for r := 0; r < t.rows; r++ {
			tr, ur := t.Row(r, b), u.Row(r, b)
			for c := range tr {
				if tr[c] != ur[c] && !(math.IsNaN(tr[c]) && math.IsNaN(ur[c])) {
					return false
				}
			}
		}
	}
	return true
}

// GobEncode implements gob encoding for textures so that work units
// can be shipped to remote workers. The encoding is a compact copy;
// views lose their aliasing when decoded.
func (t *Tex) GobEncode() ([]byte, error) {
	var b bytes.Buffer
	var hdr [3]int64
	hdr[0], hdr[1], hdr[2] = int64(t.rows), int64(t.cols), int64(t.bands)
	if err := binary.Write(&b, binary.LittleEndian, hdr[:]); err != nil {
		return nil, err
	}
	for band := 0; band < t.bands; band++ {
		for r := 0; r < t.rows; r++ {
			if err := binary.Write(&b, binary.LittleEndian, t.Row(r, band)); err != nil {
				return nil, err
			}
		}
	}
	return b.Bytes(), nil
}

// GobDecode implements gob decoding for textures.
func (t *Tex) GobDecode(p []byte) error {
	b := bytes.NewReader(p)
	var hdr [3]int64
	if err := binary.Read(b, binary.LittleEndian, hdr[:]); err != nil {
		return err
	}
	u := New(int(hdr[0]), int(hdr[1]), int(hdr[2]))
	if err := binary.Read(b, binary.LittleEndian, u.data); err != nil {
		return err
	}
	*t = *u
	return nil
}
