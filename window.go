// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A WindowSpec describes the shape of the focal window: its
// dimensions and the position of its center pixel. Coordinates are
// 0-based. A WindowSpec is fixed for the duration of a run.
type WindowSpec struct {
	// Rows and Cols are the window dimensions.
	Rows, Cols int
	// CenterRow and CenterCol locate the output pixel within the
	// window. They must be in [0, Rows) and [0, Cols) respectively.
	CenterRow, CenterCol int
}

// Window returns a WindowSpec of the given dimensions with the
// default center: the ceiling-middle pixel of each axis.
func Window(rows, cols int) WindowSpec {
	return WindowSpec{
		Rows:      rows,
		Cols:      cols,
		CenterRow: (rows - 1) / 2,
		CenterCol: (cols - 1) / 2,
	}
}

// Validate returns an error of kind errors.Invalid if the window
// dimensions are unset or the center falls outside the window.
func (w WindowSpec) Validate() error {
	if w.Rows <= 0 || w.Cols <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("focal: invalid window dimensions %dx%d", w.Rows, w.Cols))
	}
	if w.CenterRow < 0 || w.CenterRow >= w.Rows || w.CenterCol < 0 || w.CenterCol >= w.Cols {
		return errors.E(errors.Invalid, fmt.Sprintf("focal: window center (%d, %d) outside %dx%d window",
			w.CenterRow, w.CenterCol, w.Rows, w.Cols))
	}
	return nil
}

// Above returns the number of window rows above the center: the halo
// depth needed before each output row.
func (w WindowSpec) Above() int { return w.CenterRow }

// Below returns the number of window rows below the center.
func (w WindowSpec) Below() int { return w.Rows - 1 - w.CenterRow }

// Left returns the number of window columns left of the center.
func (w WindowSpec) Left() int { return w.CenterCol }

// Right returns the number of window columns right of the center.
func (w WindowSpec) Right() int { return w.Cols - 1 - w.CenterCol }

// String returns the window in "RxC@r,c" form.
func (w WindowSpec) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", w.Rows, w.Cols, w.CenterRow, w.CenterCol)
}

// Mode selects how the focal function is invoked: once per output
// pixel with its window (ModeWindow), or once per block with the
// whole padded chunk (ModeChunk).
type Mode int

const (
	// ModeWindow invokes the function on a window-sized neighborhood
	// for every output pixel.
	ModeWindow Mode = iota
	// ModeChunk invokes the function once per block; the function is
	// responsible for producing one value vector per block pixel.
	ModeChunk
)

var modes = [...]string{
	ModeWindow: "window",
	ModeChunk:  "chunk",
}

// String returns the mode's name.
func (m Mode) String() string { return modes[m] }

// ParseMode parses a mode name as accepted on the command line.
func ParseMode(s string) (Mode, error) {
	for m, name := range modes {
		if s == name {
			return Mode(m), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("focal: unknown mode %q", s))
}
