// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package grid

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/focal/texture"
	"github.com/grailbio/testutil/assert"
)

var testGeoref = Georef{XMin: 100, YMax: 200, XRes: 30, YRes: 30, Proj: "+proj=utm +zone=10"}

func testTex(rows, cols, bands int) *texture.Tex {
	tex := texture.New(rows, cols, bands)
	for b := 0; b < bands; b++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				tex.Set(r, c, b, float64(10000*b+100*r+c))
			}
		}
	}
	return tex
}

func TestMemReadBlock(t *testing.T) {
	ctx := context.Background()
	g := NewMem(testTex(8, 6, 2), testGeoref)
	block, err := g.ReadBlock(ctx, 2, 3, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := block.At(0, 0, 1), 10201.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := block.At(2, 3, 0), 404.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := g.ReadBlock(ctx, 6, 3, 0, 6); err == nil {
		t.Error("expected error for out-of-range block")
	}
}

func TestRawReadBlock(t *testing.T) {
	ctx := context.Background()
	const rows, cols, bands = 7, 5, 2
	tex := testTex(rows, cols, bands)
	path := filepath.Join(t.TempDir(), "grid.bsq")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	var buf [8]byte
	for b := 0; b < bands; b++ {
		for r := 0; r < rows; r++ {
			for _, v := range tex.Row(r, b) {
				binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
				if _, err := f.Write(buf[:]); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	g, err := OpenRaw(path, rows, cols, bands, testGeoref)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	block, err := g.ReadBlock(ctx, 1, 4, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	want, err := NewMem(tex, testGeoref).ReadBlock(ctx, 1, 4, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !texture.Equal(block, want) {
		t.Error("raw block differs from memory block")
	}
}

func TestOpenRawSizeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bsq")
	if err := os.WriteFile(path, make([]byte, 100), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenRaw(path, 10, 10, 1, testGeoref); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	tex := testTex(9, 4, 3)
	path := filepath.Join(t.TempDir(), "grid.snap")
	assert.NoError(t, WriteSnapshot(ctx, path, NewMem(tex, testGeoref)))
	got, err := ReadSnapshot(ctx, path)
	assert.NoError(t, err)
	rows, cols, bands := got.Dims()
	assert.EQ(t, []int{rows, cols, bands}, []int{9, 4, 3})
	assert.EQ(t, got.Georef(), testGeoref)
	block, err := got.ReadBlock(ctx, 0, 9, 0, 4)
	assert.NoError(t, err)
	if !texture.Equal(block, tex) {
		t.Error("snapshot samples differ")
	}
}
