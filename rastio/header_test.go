// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rastio

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/focal/grid"
)

func TestBuildDescriptor(t *testing.T) {
	ctx := context.Background()
	georef := grid.Georef{XMin: 1, YMax: 2, XRes: 3, YRes: 4, Proj: "+proj=longlat"}
	dir := t.TempDir()
	write := func(name string, vals []float64) Descriptor {
		l := Layout{Path: filepath.Join(dir, name), Rows: 2, Cols: 2, Bands: 1}
		if err := l.Allocate(false); err != nil {
			t.Fatal(err)
		}
		w, err := NewWriter(l, nil)
		if err != nil {
			t.Fatal(err)
		}
		if err := w.WriteRows(ctx, 0, 2, vals); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		desc, err := BuildDescriptor(ctx, l, georef)
		if err != nil {
			t.Fatal(err)
		}
		return desc
	}
	a := write("a.bsq", []float64{1, 2, 3, 4})
	b := write("b.bsq", []float64{1, 2, 3, 4})
	c := write("c.bsq", []float64{1, 2, 3, 5})
	if a.Fingerprint != b.Fingerprint {
		t.Error("identical payloads must have identical fingerprints")
	}
	if a.Fingerprint == c.Fingerprint {
		t.Error("differing payloads must have differing fingerprints")
	}
	if got, want := a.Type, "float64"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := a.Georef, georef; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestBuildDescriptorSizeMismatch(t *testing.T) {
	ctx := context.Background()
	l := Layout{Path: filepath.Join(t.TempDir(), "out.bsq"), Rows: 4, Cols: 4, Bands: 1}
	if err := l.Allocate(false); err != nil {
		t.Fatal(err)
	}
	l.Bands = 2
	if _, err := BuildDescriptor(ctx, l, grid.Georef{}); err == nil {
		t.Error("expected size mismatch error")
	}
}

func TestENVIHeaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	desc := Descriptor{
		Path:        filepath.Join(t.TempDir(), "out.bsq"),
		Rows:        100,
		Cols:        60,
		Bands:       3,
		Type:        "float64",
		Interleave:  "bsq",
		Georef:      grid.Georef{XMin: 500000, YMax: 4100000, XRes: 30, YRes: 30, Proj: "+proj=utm +zone=10"},
		Fingerprint: 0xdeadbeef,
	}
	if err := (ENVIHeader{}).WriteHeader(ctx, desc); err != nil {
		t.Fatal(err)
	}
	got, err := ReadENVIHeader(desc.Path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rows != desc.Rows || got.Cols != desc.Cols || got.Bands != desc.Bands {
		t.Errorf("got %dx%dx%d, want %dx%dx%d", got.Rows, got.Cols, got.Bands, desc.Rows, desc.Cols, desc.Bands)
	}
	if got.Georef != desc.Georef {
		t.Errorf("got %v, want %v", got.Georef, desc.Georef)
	}
}
