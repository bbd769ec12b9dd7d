// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package exec runs focal computations. A Session pairs a grid-order
// evaluation loop with an executor that performs block tasks, either
// in-process or on a cluster of bigmachine workers, and writes the
// band-sequential output file as blocks complete.
package exec

import (
	"context"
	"fmt"
	"io/ioutil"
	"sync/atomic"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/focal"
	"github.com/grailbio/focal/grid"
	"github.com/grailbio/focal/rastio"
)

// Session represents a focal compute session. A session shares an
// executor across runs and is valid for the life of the binary; a
// single session can run many focal functions over many grids.
type Session struct {
	index    int32
	p        int
	executor Executor
	status   *status.Status
	retries  int
	shutdown func()

	nextRun int32
}

// nextSessionIndex numbers sessions for status display. There should
// be one session per process, but tests violate this.
var nextSessionIndex int32

// An Option represents a session configuration parameter value.
type Option func(s *Session)

// Local configures a session with the local in-process executor.
var Local Option = func(s *Session) {
	s.executor = newLocalExecutor()
}

// Bigmachine configures a session using the bigmachine executor
// configured with the provided system. If any params are provided,
// they are applied to each machine allocated for the session. The
// bigmachine executor writes output through the workers, so the
// output path must name a filesystem shared by all machines.
func Bigmachine(system bigmachine.System, params ...bigmachine.Param) Option {
	return func(s *Session) {
		s.executor = newBigmachineExecutor(system, params...)
	}
}

// Parallelism configures the session with the provided target
// parallelism.
func Parallelism(p int) Option {
	if p <= 0 {
		panic("exec.Parallelism: p <= 0")
	}
	return func(s *Session) {
		s.p = p
	}
}

// Status configures the session with a status object to which run
// statuses are reported.
func Status(status *status.Status) Option {
	return func(s *Session) {
		s.status = status
	}
}

// WriteRetries caps the number of times a failed output write is
// retried before the run is abandoned. By default failed writes are
// retried indefinitely with backoff.
func WriteRetries(n int) Option {
	if n <= 0 {
		panic("exec.WriteRetries: n <= 0")
	}
	return func(s *Session) {
		s.retries = n
	}
}

// Start creates and starts a new session, configuring it according to
// the provided options. The returned session remains valid for the
// lifetime of the binary. If no executor is configured, the session
// uses the local executor.
func Start(options ...Option) *Session {
	s := &Session{index: atomic.AddInt32(&nextSessionIndex, 1) - 1}
	for _, opt := range options {
		opt(s)
	}
	if s.p == 0 {
		s.p = 1
	}
	if s.executor == nil {
		s.executor = newLocalExecutor()
	}
	s.shutdown = s.executor.Start(s)
	return s
}

// A RunConfig parameterizes a single run.
type RunConfig struct {
	// Window is the focal window geometry.
	Window focal.WindowSpec
	// Mode selects window or chunk evaluation.
	Mode focal.Mode
	// Args are extra arguments bound to the function.
	Args []interface{}

	// Output is the path of the band-sequential output file. If
	// empty, the run writes to a fresh temporary file.
	Output string
	// Overwrite permits clobbering an existing file at Output.
	Overwrite bool

	// MinBlockRows, if positive, sets a row-count floor on planned
	// blocks beyond the mandatory window height.
	MinBlockRows int

	// Header writes the output descriptor after the run. If nil, an
	// ENVI header is written alongside the output file.
	Header rastio.HeaderWriter
}

// Run evaluates fn focally over every pixel of g. fn is a *focal.Func,
// the name of a registered function, or a raw function of an accepted
// focal form. Run probes the function and plans the run before
// creating the output file, so misconfigured runs fail without leaving
// anything behind; it returns the output descriptor once every block
// has been computed, written, and the header emitted.
//
// It is safe to make concurrent calls to Run.
func (s *Session) Run(ctx context.Context, g grid.Grid, fn interface{}, config RunConfig) (rastio.Descriptor, error) {
	f, err := resolveFunc(fn)
	if err != nil {
		return rastio.Descriptor{}, err
	}
	outbands, err := focal.Probe(ctx, g, f, config.Args, config.Window, config.Mode)
	if err != nil {
		return rastio.Descriptor{}, err
	}
	rows, cols, bands := g.Dims()
	plan, err := focal.PlanBlocks(rows, cols, bands, config.Window, s.p, outbands, config.MinBlockRows)
	if err != nil {
		return rastio.Descriptor{}, err
	}
	path, overwrite := config.Output, config.Overwrite
	if path == "" {
		file, err := ioutil.TempFile("", "focal-*.bsq")
		if err != nil {
			return rastio.Descriptor{}, err
		}
		path = file.Name()
		if err := file.Close(); err != nil {
			return rastio.Descriptor{}, err
		}
		overwrite = true
	}
	layout := rastio.Layout{Path: path, Rows: rows, Cols: cols, Bands: outbands}
	if err := layout.Allocate(overwrite); err != nil {
		return rastio.Descriptor{}, err
	}
	var group *status.Group
	if s.status != nil {
		group = s.status.Groupf("focal %s [%d] blocks", f, atomic.AddInt32(&s.nextRun, 1)-1)
	}
	log.Printf("exec: %s over %dx%dx%d grid: %d blocks, %d procs, %d output bands (%s)",
		f, rows, cols, bands, len(plan.Blocks), plan.Procs, outbands, data.Size(layout.Size()))
	nblocks := len(plan.Blocks)
	newTask := func(c *focal.Chunk) *Task {
		return &Task{
			Name:         fmt.Sprintf("%s(%d/%d)", f, c.Index, nblocks),
			Func:         f.Name(),
			Args:         config.Args,
			Window:       config.Window,
			Mode:         config.Mode,
			RowStart:     c.RowStart,
			NumRows:      c.NumRows,
			Cols:         cols,
			OutBands:     outbands,
			Input:        c.Tex,
			Layout:       layout,
			WriteRetries: s.retries,
			fn:           f,
		}
	}
	if err := Eval(ctx, s.executor, g, plan, newTask, group); err != nil {
		return rastio.Descriptor{}, err
	}
	if err := s.executor.Flush(ctx, layout.Path); err != nil {
		return rastio.Descriptor{}, err
	}
	desc, err := rastio.BuildDescriptor(ctx, layout, g.Georef())
	if err != nil {
		return rastio.Descriptor{}, err
	}
	header := config.Header
	if header == nil {
		header = rastio.ENVIHeader{}
	}
	if err := header.WriteHeader(ctx, desc); err != nil {
		return desc, err
	}
	return desc, nil
}

// Must is a version of Run that panics if the run fails.
func (s *Session) Must(ctx context.Context, g grid.Grid, fn interface{}, config RunConfig) rastio.Descriptor {
	desc, err := s.Run(ctx, g, fn, config)
	if err != nil {
		log.Panicf("exec.Run: %v", err)
	}
	return desc
}

// Parallelism returns the desired amount of evaluation parallelism.
func (s *Session) Parallelism() int {
	return s.p
}

// Status returns the session's status aggregator.
func (s *Session) Status() *status.Status {
	return s.status
}

// Shutdown tears down resources associated with this session. It
// should be called when the session is discarded.
func (s *Session) Shutdown() {
	if s.shutdown != nil {
		s.shutdown()
	}
}

func resolveFunc(fn interface{}) (*focal.Func, error) {
	switch fn := fn.(type) {
	case *focal.Func:
		return fn, nil
	case string:
		f, ok := focal.Lookup(fn)
		if !ok {
			return nil, errors.E(errors.Invalid,
				fmt.Sprintf("exec: function %q is not registered (have: %v)", fn, focal.FuncNames()))
		}
		return f, nil
	default:
		return focal.FuncOf(fn)
	}
}
