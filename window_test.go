// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"testing"

	"github.com/grailbio/base/errors"
)

func TestWindowDefaults(t *testing.T) {
	for _, c := range []struct {
		rows, cols           int
		centerRow, centerCol int
	}{
		{3, 3, 1, 1},
		{4, 4, 1, 1},
		{5, 3, 2, 1},
		{1, 1, 0, 0},
		{2, 7, 0, 3},
	} {
		w := Window(c.rows, c.cols)
		if got, want := w.CenterRow, c.centerRow; got != want {
			t.Errorf("%dx%d: center row: got %v, want %v", c.rows, c.cols, got, want)
		}
		if got, want := w.CenterCol, c.centerCol; got != want {
			t.Errorf("%dx%d: center col: got %v, want %v", c.rows, c.cols, got, want)
		}
		if err := w.Validate(); err != nil {
			t.Errorf("%dx%d: %v", c.rows, c.cols, err)
		}
	}
}

func TestWindowOffsets(t *testing.T) {
	w := WindowSpec{Rows: 5, Cols: 3, CenterRow: 1, CenterCol: 2}
	if got, want := w.Above(), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := w.Below(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := w.Left(), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := w.Right(), 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestWindowValidate(t *testing.T) {
	for _, w := range []WindowSpec{
		{},
		{Rows: 0, Cols: 3, CenterRow: 0, CenterCol: 1},
		{Rows: 3, Cols: -1, CenterRow: 1, CenterCol: 0},
		{Rows: 3, Cols: 3, CenterRow: 3, CenterCol: 1},
		{Rows: 3, Cols: 3, CenterRow: 1, CenterCol: -1},
	} {
		err := w.Validate()
		if err == nil {
			t.Errorf("%v: expected error", w)
			continue
		}
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("%v: unexpected error kind: %v", w, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("window")
	if err != nil || m != ModeWindow {
		t.Errorf("got %v, %v", m, err)
	}
	m, err = ParseMode("chunk")
	if err != nil || m != ModeChunk {
		t.Errorf("got %v, %v", m, err)
	}
	if _, err = ParseMode("bogus"); err == nil {
		t.Error("expected error")
	}
}
