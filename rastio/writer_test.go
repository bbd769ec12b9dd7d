// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rastio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	baseerrors "github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
)

func readAll(t *testing.T, path string) []float64 {
	t.Helper()
	p, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	vals := make([]float64, len(p)/8)
	for i := range vals {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(p[i*8:]))
	}
	return vals
}

func TestWriteUnit(t *testing.T) {
	ctx := context.Background()
	l := Layout{Path: filepath.Join(t.TempDir(), "out.bsq"), Rows: 4, Cols: 3, Bands: 2}
	if err := l.Allocate(false); err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(l, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Band-major unit for row 2: band 0 is {1,2,3}, band 1 is {4,5,6}.
	if err := w.WriteUnit(ctx, 2, []float64{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	vals := readAll(t, l.Path)
	for i, want := range []float64{1, 2, 3} {
		if got := vals[2*3+i]; got != want {
			t.Errorf("band 0 col %d: got %v, want %v", i, got, want)
		}
	}
	for i, want := range []float64{4, 5, 6} {
		if got := vals[4*3+2*3+i]; got != want {
			t.Errorf("band 1 col %d: got %v, want %v", i, got, want)
		}
	}
}

func TestWriteRowsLengthCheck(t *testing.T) {
	l := Layout{Rows: 4, Cols: 3, Bands: 2}
	w := newWriterAt(nopWriterAt{}, l, nil)
	err := w.WriteRows(context.Background(), 0, 2, make([]float64, 5))
	if err == nil {
		t.Fatal("expected error")
	}
	if !baseerrors.Is(baseerrors.Invalid, err) {
		t.Errorf("unexpected error kind: %v", err)
	}
}

type nopWriterAt struct{}

func (nopWriterAt) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }

// flakyWriterAt fails every write's first n attempts, recording the
// bytes of successful writes.
type flakyWriterAt struct {
	mu       sync.Mutex
	n        int
	attempts map[int64]int
	buf      []byte
}

func (f *flakyWriterAt) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attempts == nil {
		f.attempts = make(map[int64]int)
	}
	f.attempts[off]++
	if f.attempts[off] <= f.n {
		return 0, errors.New("spurious contention")
	}
	if need := int(off) + len(p); need > len(f.buf) {
		f.buf = append(f.buf, make([]byte, need-len(f.buf))...)
	}
	copy(f.buf[off:], p)
	return len(p), nil
}

func TestWriteRetries(t *testing.T) {
	ctx := context.Background()
	l := Layout{Rows: 2, Cols: 2, Bands: 1}
	flaky := &flakyWriterAt{n: 3}
	w := newWriterAt(flaky, l, retry.Backoff(time.Microsecond, time.Microsecond, 1))
	if err := w.WriteUnit(ctx, 1, []float64{7, 8}); err != nil {
		t.Fatal(err)
	}
	if got, want := flaky.attempts[l.Offset(1, 0, 0)], 4; got != want {
		t.Errorf("got %v attempts, want %v", got, want)
	}
	want := make([]byte, 16)
	binary.LittleEndian.PutUint64(want, math.Float64bits(7))
	binary.LittleEndian.PutUint64(want[8:], math.Float64bits(8))
	if !bytes.Equal(flaky.buf[16:32], want) {
		t.Error("written bytes differ")
	}
}

func TestWriteRetryCap(t *testing.T) {
	ctx := context.Background()
	l := Layout{Rows: 2, Cols: 2, Bands: 1}
	flaky := &flakyWriterAt{n: 100}
	policy := retry.MaxTries(retry.Backoff(time.Microsecond, time.Microsecond, 1), 5)
	w := newWriterAt(flaky, l, policy)
	if err := w.WriteUnit(ctx, 0, []float64{1, 2}); err == nil {
		t.Fatal("expected error after retry cap")
	}
}

func TestWriteIdempotent(t *testing.T) {
	ctx := context.Background()
	l := Layout{Path: filepath.Join(t.TempDir(), "out.bsq"), Rows: 3, Cols: 2, Bands: 1}
	if err := l.Allocate(false); err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(l, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	if err := w.WriteUnit(ctx, 1, []float64{3, 4}); err != nil {
		t.Fatal(err)
	}
	before := readAll(t, l.Path)
	// Re-executing the identical write any number of times must not
	// change the file.
	for i := 0; i < 3; i++ {
		if err := w.WriteUnit(ctx, 1, []float64{3, 4}); err != nil {
			t.Fatal(err)
		}
	}
	after := readAll(t, l.Path)
	for i := range before {
		if before[i] != after[i] && !(math.IsNaN(before[i]) && math.IsNaN(after[i])) {
			t.Fatalf("sample %d changed: %v to %v", i, before[i], after[i])
		}
	}
}
