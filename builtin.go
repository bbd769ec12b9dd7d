// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package focal

import (
	"math"

	"github.com/grailbio/focal/texture"
)

// Builtin focal functions, registered so they are available by name
// on the command line and on remote workers. They all ignore NaN
// (sentinel) positions, so windows that overhang the grid edge
// aggregate only the pixels that exist.
var (
	// Sum sums each band's non-sentinel window values.
	Sum = RegisterFunc("sum", func(win *texture.Tex) []float64 {
		out := make([]float64, win.Bands())
		for b := range out {
			sum, _ := accumulate(win, b)
			out[b] = sum
		}
		return out
	})

	// Mean averages each band's non-sentinel window values. A window
	// with no valid values yields NaN.
	Mean = RegisterFunc("mean", func(win *texture.Tex) []float64 {
		out := make([]float64, win.Bands())
		for b := range out {
			sum, n := accumulate(win, b)
			if n == 0 {
				out[b] = math.NaN()
				continue
			}
			out[b] = sum / float64(n)
		}
		return out
	})
)

func accumulate(win *texture.Tex, band int) (sum float64, n int) {
	for r := 0; r < win.Rows(); r++ {
		for _, v := range win.Row(r, band) {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
	}
	return sum, n
}
