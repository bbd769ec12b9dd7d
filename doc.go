// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package focal implements parallel focal-window processing of large
// multi-band rasters. A user-supplied function is applied to the
// neighborhood of every pixel of an input grid; the results are
// written concurrently into a single band-sequential float64 output
// file by a pool of workers.
//
// The input is partitioned into row blocks, each extended with the
// halo rows and columns its windows need; positions beyond the grid
// edge are padded with NaN. Each output row becomes one work unit,
// dispatched to an executor (see package exec) that evaluates the
// function and writes the results at precomputed, disjoint byte
// offsets, so no locking of the output is needed.
//
// Focal functions are ordinary Go functions over *texture.Tex
// neighborhoods, optionally registered under a name with RegisterFunc
// so that they can be referenced from the command line and from
// remote workers:
//
//	focal.RegisterFunc("range", func(win *texture.Tex) float64 {
//		lo, hi := math.Inf(1), math.Inf(-1)
//		for r := 0; r < win.Rows(); r++ {
//			for _, v := range win.Row(r, 0) {
//				if math.IsNaN(v) {
//					continue
//				}
//				lo, hi = math.Min(lo, v), math.Max(hi, v)
//			}
//		}
//		return hi - lo
//	})
//
// See package exec for running computations.
package focal
