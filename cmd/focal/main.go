// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Focal applies a registered focal function to a raster grid,
// producing a band-sequential output file and ENVI header.
//
// Usage:
//
//	focal [flags] function input [args...]
//
// The input is either a grid snapshot or a raw band-sequential file
// accompanied by an ENVI header at input.hdr. Any remaining arguments
// are parsed as float64s and passed to the function as extra
// arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/base/status"
	"github.com/grailbio/focal"
	"github.com/grailbio/focal/exec"
	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/rastio"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: focal [flags] function input [args...]

Focal applies the named function to every pixel neighborhood of the
input grid. Registered functions:

	%s

Flags:
`, strings.Join(focal.FuncNames(), ", "))
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	var (
		window    = flag.String("window", "3x3", "focal window dimensions, RxC")
		center    = flag.String("center", "", "window center position, row,col (default: natural center)")
		mode      = flag.String("mode", "window", "evaluation mode: window or chunk")
		output    = flag.String("o", "", "output path (default: a temporary file)")
		overwrite = flag.Bool("overwrite", false, "overwrite an existing output file")
		p         = flag.Int("p", 1, "evaluation parallelism")
		retries   = flag.Int("write-retries", 0, "cap on per-write retries (0 retries indefinitely)")
		console   = flag.Bool("status", false, "display evaluation status on stderr")
	)
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("focal: ")
	must.Func = log.Fatal
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 2 {
		flag.Usage()
	}
	name, input := flag.Arg(0), flag.Arg(1)
	var args []interface{}
	for _, arg := range flag.Args()[2:] {
		v, err := strconv.ParseFloat(arg, 64)
		must.Nil(err, "parsing argument ", arg)
		args = append(args, v)
	}

	w, err := parseWindow(*window, *center)
	must.Nil(err)
	m, err := focal.ParseMode(*mode)
	must.Nil(err)
	g, err := openGrid(input)
	must.Nil(err, "opening ", input)

	options := []exec.Option{exec.Local, exec.Parallelism(*p)}
	if *retries > 0 {
		options = append(options, exec.WriteRetries(*retries))
	}
	var stat status.Status
	if *console {
		options = append(options, exec.Status(&stat))
		var reporter status.Reporter
		go reporter.Go(os.Stderr, &stat)
	}
	sess := exec.Start(options...)
	defer sess.Shutdown()

	desc := sess.Must(context.Background(), g, name, exec.RunConfig{
		Window:    w,
		Mode:      m,
		Args:      args,
		Output:    *output,
		Overwrite: *overwrite,
	})
	fmt.Println(desc.Path)
}

func parseWindow(dims, center string) (focal.WindowSpec, error) {
	var rows, cols int
	if _, err := fmt.Sscanf(dims, "%dx%d", &rows, &cols); err != nil {
		return focal.WindowSpec{}, fmt.Errorf("bad window %q: want RxC", dims)
	}
	w := focal.Window(rows, cols)
	if center != "" {
		if _, err := fmt.Sscanf(center, "%d,%d", &w.CenterRow, &w.CenterCol); err != nil {
			return focal.WindowSpec{}, fmt.Errorf("bad center %q: want row,col", center)
		}
	}
	return w, w.Validate()
}

// openGrid opens a raster input: a raw band-sequential file when an
// ENVI header sits alongside it, otherwise a grid snapshot.
func openGrid(path string) (grid.Grid, error) {
	if _, err := os.Stat(path + ".hdr"); err == nil {
		desc, err := rastio.ReadENVIHeader(path)
		if err != nil {
			return nil, err
		}
		return grid.OpenRaw(path, desc.Rows, desc.Cols, desc.Bands, desc.Georef)
	}
	return grid.ReadSnapshot(context.Background(), path)
}
