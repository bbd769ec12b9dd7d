// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package rastio implements the output side of focal runs: a
// band-sequential float64 file laid out so that every work unit owns
// a disjoint byte range, a writer that retries transient positioned
// write failures, and the descriptor/header machinery that makes the
// finished file self-describing.
package rastio

import (
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
)

// A Layout describes the shape of an output file: raw little-endian
// float64 samples in band-sequential order, with no embedded header.
// The layout is fixed before any write and is the sole input to
// offset computation, which is what lets concurrent writers share
// the file without locks.
type Layout struct {
	Path              string
	Rows, Cols, Bands int
}

// Size returns the file's total size in bytes.
func (l Layout) Size() int64 {
	return int64(l.Rows) * int64(l.Cols) * int64(l.Bands) * 8
}

// Offset returns the byte offset of sample (row, col, band). Offsets
// are strictly increasing in band, then row, then col, and distinct
// samples map to disjoint 8-byte ranges.
func (l Layout) Offset(row, col, band int) int64 {
	return (int64(band)*int64(l.Rows)*int64(l.Cols) +
		int64(row)*int64(l.Cols) + int64(col)) * 8
}

// Allocate creates the output file at its final size by writing a
// single byte at the last offset, so workers can immediately write
// anywhere in it. If overwrite is false and the file already exists,
// Allocate fails with an error of kind errors.Exists and the
// existing file is untouched.
func (l Layout) Allocate(overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(l.Path, flags, 0666)
	if err != nil {
		if os.IsExist(err) {
			return errors.E(errors.Exists, fmt.Sprintf("focal: output %s already exists", l.Path))
		}
		return err
	}
	if _, err := f.WriteAt([]byte{0}, l.Size()-1); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
