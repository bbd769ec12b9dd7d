// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/texture"
)

// countingGrid records how many times each row is read.
type countingGrid struct {
	grid.Grid
	reads []int
}

func (g *countingGrid) ReadBlock(ctx context.Context, r0, nr, c0, nc int) (*texture.Tex, error) {
	for r := r0; r < r0+nr; r++ {
		g.reads[r]++
	}
	return g.Grid.ReadBlock(ctx, r0, nr, c0, nc)
}

func seqGrid(rows, cols, bands int) *grid.Mem {
	tex := texture.New(rows, cols, bands)
	for b := 0; b < bands; b++ {
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				tex.Set(r, c, b, float64(10000*b+100*r+c))
			}
		}
	}
	return grid.NewMem(tex, grid.Georef{})
}

func TestChunkerPadding(t *testing.T) {
	const rows, cols, bands = 10, 7, 2
	ctx := context.Background()
	w := WindowSpec{Rows: 3, Cols: 5, CenterRow: 1, CenterCol: 1}
	plan, err := PlanBlocks(rows, cols, bands, w, 3, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	g := seqGrid(rows, cols, bands)
	chunker := NewChunker(g, plan)
	seen := 0
	for {
		chunk, err := chunker.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < chunk.NumRows; i++ {
			rowCenter, unit := chunk.Unit(i)
			if got, want := rowCenter, chunk.RowStart+i; got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
			if got, want := unit.Rows(), w.Rows; got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
			if got, want := unit.Cols(), cols+w.Left()+w.Right(); got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
			// Every sample is the grid value at its absolute
			// coordinates, or NaN exactly when those coordinates fall
			// outside the grid.
			for b := 0; b < bands; b++ {
				for r := 0; r < unit.Rows(); r++ {
					for c := 0; c < unit.Cols(); c++ {
						absRow := rowCenter - w.Above() + r
						absCol := c - w.Left()
						got := unit.At(r, c, b)
						if absRow < 0 || absRow >= rows || absCol < 0 || absCol >= cols {
							if !math.IsNaN(got) {
								t.Fatalf("unit %d (%d,%d,%d): got %v, want NaN", rowCenter, r, c, b, got)
							}
							continue
						}
						if want := float64(10000*b + 100*absRow + absCol); got != want {
							t.Fatalf("unit %d (%d,%d,%d): got %v, want %v", rowCenter, r, c, b, got, want)
						}
					}
				}
			}
			seen++
		}
	}
	if got, want := seen, rows; got != want {
		t.Errorf("got %v units, want %v", got, want)
	}
}

func TestChunkerReadsEachRowOnce(t *testing.T) {
	const rows, cols = 31, 6
	ctx := context.Background()
	w := Window(5, 3)
	plan, err := PlanBlocks(rows, cols, 1, w, 3, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	g := &countingGrid{Grid: seqGrid(rows, cols, 1), reads: make([]int, rows)}
	chunker := NewChunker(g, plan)
	for {
		if _, err := chunker.Next(ctx); err == io.EOF {
			break
		} else if err != nil {
			t.Fatal(err)
		}
	}
	for r, n := range g.reads {
		if n != 1 {
			t.Errorf("row %d read %d times, want 1", r, n)
		}
	}
}

func TestChunkerUnitsMatchDirectWindows(t *testing.T) {
	// Each unit's window around a given column must equal the padded
	// window computed directly from the grid, independent of block
	// boundaries.
	const rows, cols = 17, 5
	ctx := context.Background()
	w := Window(3, 3)
	plan, err := PlanBlocks(rows, cols, 1, w, 4, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Blocks) < 2 {
		t.Fatal("want at least two blocks")
	}
	g := seqGrid(rows, cols, 1)
	chunker := NewChunker(g, plan)
	for {
		chunk, err := chunker.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < chunk.NumRows; i++ {
			rowCenter, unit := chunk.Unit(i)
			for k := 0; k < cols; k++ {
				got := unit.View(0, w.Rows, k, w.Cols)
				want := texture.NewFill(w.Rows, w.Cols, 1, math.NaN())
				for r := 0; r < w.Rows; r++ {
					for c := 0; c < w.Cols; c++ {
						absRow := rowCenter - w.Above() + r
						absCol := k - w.Left() + c
						if absRow >= 0 && absRow < rows && absCol >= 0 && absCol < cols {
							want.Set(r, c, 0, float64(100*absRow+absCol))
						}
					}
				}
				if !texture.Equal(got, want) {
					t.Fatalf("row %d col %d: window differs", rowCenter, k)
				}
			}
		}
	}
}
