// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rastio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
)

func TestOffsetBijection(t *testing.T) {
	l := Layout{Rows: 7, Cols: 5, Bands: 3}
	// Offsets enumerate disjoint 8-byte ranges in (band, row, col)
	// order, covering the file exactly.
	var next int64
	for b := 0; b < l.Bands; b++ {
		for r := 0; r < l.Rows; r++ {
			for c := 0; c < l.Cols; c++ {
				if got, want := l.Offset(r, c, b), next; got != want {
					t.Fatalf("offset(%d, %d, %d): got %v, want %v", r, c, b, got, want)
				}
				next += 8
			}
		}
	}
	if got, want := next, l.Size(); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAllocate(t *testing.T) {
	dir := t.TempDir()
	// outbands=2 must produce a file of exactly 2*R*C*8 bytes.
	l := Layout{Path: filepath.Join(dir, "out.bsq"), Rows: 10, Cols: 10, Bands: 2}
	if err := l.Allocate(false); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(l.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := info.Size(), int64(2*10*10*8); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Without overwrite, re-allocation refuses to clobber.
	err = l.Allocate(false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.Exists, err) {
		t.Errorf("unexpected error kind: %v", err)
	}
	// With overwrite, it succeeds and re-sizes.
	l.Bands = 1
	if err := l.Allocate(true); err != nil {
		t.Fatal(err)
	}
	info, err = os.Stat(l.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := info.Size(), int64(10*10*8); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
