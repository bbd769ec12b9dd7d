// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package rastio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/focal/grid"
	"github.com/spaolacci/murmur3"
)

// A Descriptor describes a finished output file: its dimensions,
// sample type and interleave, the georeference inherited from the
// source grid, and a fingerprint of the payload. It is what a run
// returns to its caller, and what header writers consume.
type Descriptor struct {
	Path              string
	Rows, Cols, Bands int
	// Type and Interleave are fixed for focal outputs ("float64",
	// "bsq") but recorded so that descriptors are self-contained.
	Type       string
	Interleave string
	Georef     grid.Georef
	// Fingerprint is a murmur3 hash of the raw payload, useful for
	// verifying that two runs produced identical outputs.
	Fingerprint uint64
}

// Layout returns the layout corresponding to the descriptor.
func (d Descriptor) Layout() Layout {
	return Layout{Path: d.Path, Rows: d.Rows, Cols: d.Cols, Bands: d.Bands}
}

// BuildDescriptor constructs the descriptor for a completed output.
// It must be called only after every dispatched unit has been
// written; it verifies the file's size against the layout and
// fingerprints the payload.
func BuildDescriptor(ctx context.Context, layout Layout, georef grid.Georef) (Descriptor, error) {
	f, err := os.Open(layout.Path)
	if err != nil {
		return Descriptor{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return Descriptor{}, err
	}
	if info.Size() != layout.Size() {
		return Descriptor{}, errors.E(errors.Integrity, fmt.Sprintf(
			"rastio: output %s is %d bytes, want %d", layout.Path, info.Size(), layout.Size()))
	}
	hash := murmur3.New64()
	if _, err := io.Copy(hash, bufio.NewReader(f)); err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		Path:        layout.Path,
		Rows:        layout.Rows,
		Cols:        layout.Cols,
		Bands:       layout.Bands,
		Type:        "float64",
		Interleave:  "bsq",
		Georef:      georef,
		Fingerprint: hash.Sum64(),
	}, nil
}

// A HeaderWriter emits a self-describing header for a finished
// output file. The raw payload has no embedded metadata, so the
// header is what makes the output usable by other tools.
type HeaderWriter interface {
	WriteHeader(ctx context.Context, desc Descriptor) error
}

// ENVIHeader writes ENVI-style sidecar headers (path + ".hdr"),
// the natural choice since the payload is already ENVI's BSQ body.
// The zero value is ready to use.
type ENVIHeader struct{}

// enviDataType is the ENVI type code for 64-bit floating point.
const enviDataType = 5

// WriteHeader implements HeaderWriter.
func (ENVIHeader) WriteHeader(ctx context.Context, desc Descriptor) (err error) {
	f, err := os.Create(desc.Path + ".hdr")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "ENVI")
	fmt.Fprintf(w, "description = {focal output, fingerprint %016x}\n", desc.Fingerprint)
	fmt.Fprintf(w, "samples = %d\n", desc.Cols)
	fmt.Fprintf(w, "lines = %d\n", desc.Rows)
	fmt.Fprintf(w, "bands = %d\n", desc.Bands)
	fmt.Fprintln(w, "header offset = 0")
	fmt.Fprintln(w, "file type = ENVI Standard")
	fmt.Fprintf(w, "data type = %d\n", enviDataType)
	fmt.Fprintln(w, "interleave = bsq")
	fmt.Fprintln(w, "byte order = 0")
	g := desc.Georef
	fmt.Fprintf(w, "map info = {Arbitrary, 1, 1, %g, %g, %g, %g}\n", g.XMin, g.YMax, g.XRes, g.YRes)
	if g.Proj != "" {
		fmt.Fprintf(w, "coordinate system string = {%s}\n", g.Proj)
	}
	return w.Flush()
}

// ReadENVIHeader parses a header previously written by ENVIHeader,
// returning the descriptor for the accompanying payload file. It
// understands only the subset of ENVI that WriteHeader emits, enough
// to reopen a focal output as the input of another run.
func ReadENVIHeader(path string) (Descriptor, error) {
	f, err := os.Open(path + ".hdr")
	if err != nil {
		return Descriptor{}, err
	}
	defer f.Close()
	desc := Descriptor{Path: path, Type: "float64", Interleave: "bsq"}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		switch key {
		case "samples":
			desc.Cols, err = strconv.Atoi(val)
		case "lines":
			desc.Rows, err = strconv.Atoi(val)
		case "bands":
			desc.Bands, err = strconv.Atoi(val)
		case "data type":
			var typ int
			if typ, err = strconv.Atoi(val); err == nil && typ != enviDataType {
				err = fmt.Errorf("data type %d is not float64", typ)
			}
		case "interleave":
			if val != "bsq" {
				err = fmt.Errorf("interleave %q is not bsq", val)
			}
		case "map info":
			fields := strings.Split(strings.Trim(val, "{}"), ",")
			if len(fields) == 7 {
				g := &desc.Georef
				for i, dst := range []*float64{&g.XMin, &g.YMax, &g.XRes, &g.YRes} {
					if err == nil {
						*dst, err = strconv.ParseFloat(strings.TrimSpace(fields[3+i]), 64)
					}
				}
			}
		case "coordinate system string":
			desc.Georef.Proj = strings.Trim(val, "{}")
		}
		if err != nil {
			return Descriptor{}, errors.E(errors.Invalid, fmt.Sprintf("rastio: %s.hdr: %s: %v", path, key, err))
		}
	}
	if err := scanner.Err(); err != nil {
		return Descriptor{}, err
	}
	if desc.Rows <= 0 || desc.Cols <= 0 || desc.Bands <= 0 {
		return Descriptor{}, errors.E(errors.Invalid,
			fmt.Sprintf("rastio: %s.hdr: missing dimensions", path))
	}
	return desc, nil
}
