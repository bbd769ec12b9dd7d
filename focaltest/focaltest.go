// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package focaltest provides utilities for testing focal functions.
// The utilities here are not optimized for performance or robustness;
// they are strictly intended for unit testing.
package focaltest

import (
	"context"
	"os"
	"testing"

	"github.com/grailbio/focal/exec"
	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/rastio"
	"github.com/grailbio/focal/texture"
)

// Run evaluates fn over g in local execution mode and returns the
// computed raster read back from the output file. The output file and
// its header are removed before Run returns. Errors are reported as
// fatal to the provided t instance. Run is intended for unit testing
// of focal function implementations.
func Run(t *testing.T, g grid.Grid, fn interface{}, config exec.RunConfig) *texture.Tex {
	t.Helper()
	ctx := context.Background()
	sess := exec.Start(exec.Local)
	defer sess.Shutdown()
	desc, err := sess.Run(ctx, g, fn, config)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(desc.Path)
	defer os.Remove(desc.Path + ".hdr")
	return ReadRaster(t, desc)
}

// ReadRaster reads the descriptor's raster file back into memory.
// Errors are reported as fatal to the provided t instance.
func ReadRaster(t *testing.T, desc rastio.Descriptor) *texture.Tex {
	t.Helper()
	ctx := context.Background()
	r, err := grid.OpenRaw(desc.Path, desc.Rows, desc.Cols, desc.Bands, desc.Georef)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	tex, err := r.ReadBlock(ctx, 0, desc.Rows, 0, desc.Cols)
	if err != nil {
		t.Fatal(err)
	}
	return tex
}
