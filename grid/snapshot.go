// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package grid

import (
	"context"
	"encoding/gob"
	"fmt"

	"github.com/grailbio/base/compress/zstd"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/focal/texture"
)

// snapshotHeader precedes the sample payload in a snapshot file.
type snapshotHeader struct {
	Rows, Cols, Bands int
	Georef            Georef
}

// WriteSnapshot writes the entirety of g to path as a
// zstd-compressed snapshot. Paths are interpreted by the grailfile
// library, so snapshots may be written directly to supported object
// stores. Snapshots trade random access for compression: they must
// be read back whole with ReadSnapshot.
func WriteSnapshot(ctx context.Context, path string, g Grid) (err error) {
	rows, cols, bands := g.Dims()
	tex, err := g.ReadBlock(ctx, 0, rows, 0, cols)
	if err != nil {
		return err
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "focal: could not create snapshot")
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	zw, err := zstd.NewWriter(f.Writer(ctx))
	if err != nil {
		return err
	}
	defer fileio.CloseAndReport(zw, &err)
	enc := gob.NewEncoder(zw)
	if err = enc.Encode(snapshotHeader{rows, cols, bands, g.Georef()}); err != nil {
		return err
	}
	return enc.Encode(tex.Copy())
}

// ReadSnapshot reads a snapshot written by WriteSnapshot into an
// in-memory grid.
func ReadSnapshot(ctx context.Context, path string) (m *Mem, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "focal: could not open snapshot")
	}
	defer func() {
		if cerr := f.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	zr, err := zstd.NewReader(f.Reader(ctx))
	if err != nil {
		return nil, errors.E(err, "focal: could not open (zstd) snapshot")
	}
	defer fileio.CloseAndReport(zr, &err)
	dec := gob.NewDecoder(zr)
	var hdr snapshotHeader
	if err = dec.Decode(&hdr); err != nil {
		return nil, errors.E(err, "focal: corrupt snapshot header")
	}
	var tex texture.Tex
	if err = dec.Decode(&tex); err != nil {
		return nil, errors.E(err, "focal: corrupt snapshot payload")
	}
	if r, c, b := tex.Rows(), tex.Cols(), tex.Bands(); r != hdr.Rows || c != hdr.Cols || b != hdr.Bands {
		return nil, errors.E(errors.Integrity, fmt.Sprintf(
			"focal: snapshot payload %dx%dx%d does not match header %dx%dx%d",
			r, c, b, hdr.Rows, hdr.Cols, hdr.Bands))
	}
	return NewMem(&tex, hdr.Georef), nil
}
