// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rastio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// DefaultRetryPolicy governs transient write failures when no policy
// is configured: a short backoff with no retry cap. Retrying forever
// favors eventual completion over bounded latency; it is safe only
// because rewrites are idempotent (same bytes, same offsets). Runs
// that prefer to fail under sustained contention should wrap the
// policy with retry.MaxTries.
var DefaultRetryPolicy = retry.Backoff(time.Millisecond, 100*time.Millisecond, 1.5)

// A Writer writes work-unit results into an allocated output file.
// The underlying writes are positioned, and units occupy disjoint
// byte ranges, so a single Writer may be shared by any number of
// concurrent workers without synchronization. On platforms where
// concurrent positioned writes can fail spuriously (network
// filesystems, notably), failed writes are retried per the writer's
// policy; a retried write is byte-for-byte identical to the
// original.
type Writer struct {
	file   io.WriterAt
	closer io.Closer
	layout Layout
	policy retry.Policy
}

// NewWriter opens the layout's file for positioned writes. The file
// is opened in an update mode that never truncates: allocation has
// already established its final size. A nil policy selects
// DefaultRetryPolicy.
func NewWriter(layout Layout, policy retry.Policy) (*Writer, error) {
	f, err := os.OpenFile(layout.Path, os.O_WRONLY, 0)
	if err != nil {
		return nil, err
	}
	w := newWriterAt(f, layout, policy)
	w.closer = f
	return w, nil
}

func newWriterAt(f io.WriterAt, layout Layout, policy retry.Policy) *Writer {
	if policy == nil {
		policy = DefaultRetryPolicy
	}
	return &Writer{file: f, layout: layout, policy: policy}
}

// Layout returns the writer's layout.
func (w *Writer) Layout() Layout { return w.layout }

// WriteUnit writes one work unit's output: vals holds Bands*Cols
// values in band-major order (all of band 0's row, then band 1's,
// ...), the layout produced by the evaluator.
func (w *Writer) WriteUnit(ctx context.Context, rowCenter int, vals []float64) error {
	return w.WriteRows(ctx, rowCenter, 1, vals)
}

// WriteRows writes numRows complete output rows starting at
// rowStart; vals holds Bands*numRows*Cols values in band-major
// order. Each band's run is contiguous in the file and is written
// with a single positioned write.
func (w *Writer) WriteRows(ctx context.Context, rowStart, numRows int, vals []float64) error {
	run := numRows * w.layout.Cols
	if len(vals) != w.layout.Bands*run {
		return errors.E(errors.Invalid, fmt.Sprintf(
			"rastio: %d values for %d rows of %dx%d output", len(vals), numRows, w.layout.Cols, w.layout.Bands))
	}
	buf := make([]byte, run*8)
	for b := 0; b < w.layout.Bands; b++ {
		for i, v := range vals[b*run : (b+1)*run] {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		if err := w.writeAt(ctx, buf, w.layout.Offset(rowStart, 0, b)); err != nil {
			return err
		}
	}
	return nil
}

// writeAt performs one positioned write, retrying failures per the
// writer's policy. Since the bytes and the offset never change
// between attempts, a retry can only bring the file closer to its
// final contents.
func (w *Writer) writeAt(ctx context.Context, p []byte, off int64) error {
	for retries := 0; ; retries++ {
		_, err := w.file.WriteAt(p, off)
		if err == nil {
			return nil
		}
		if retries == 0 {
			log.Error.Printf("rastio: write %s at %d: %v; retrying", w.layout.Path, off, err)
		}
		if werr := retry.Wait(ctx, w.policy, retries); werr != nil {
			return errors.E(werr, fmt.Sprintf("rastio: write %s at %d: %v", w.layout.Path, off, err))
		}
	}
}

// Close closes the underlying file, if the writer owns one.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}
