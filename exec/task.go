// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/focal"
	"github.com/grailbio/focal/rastio"
	"github.com/grailbio/focal/texture"
)

// A Task is one runnable block of a plan: the padded input block
// together with everything a worker needs to evaluate it and write
// its output rows. Tasks are self-contained and gob-encodable so that
// they can be shipped to remote workers; argument values of types
// beyond the gob builtins must be registered with encoding/gob by the
// caller.
//
// Remote execution requires Func to name a function registered with
// focal.RegisterFunc: workers resolve the name against their own
// registry. The local executor additionally accepts unregistered
// functions carried in the unexported fn field.
type Task struct {
	// Name identifies the task in logs and status displays.
	Name string

	// Func is the registered name of the function to evaluate, or ""
	// for an unregistered function (local execution only).
	Func string
	// Args are the function's extra arguments, bound once per task.
	Args []interface{}

	Window focal.WindowSpec
	Mode   focal.Mode

	// RowStart and NumRows give the task's half-open output row range.
	RowStart, NumRows int
	// Cols and OutBands fix the shape of each output row.
	Cols, OutBands int

	// Input is the padded input block, including halo rows and the
	// column halo, with NaN beyond the grid edge.
	Input *texture.Tex

	// Layout locates the output file the task writes into.
	Layout rastio.Layout
	// WriteRetries caps per-write retries; 0 retries indefinitely.
	WriteRetries int

	fn *focal.Func
}

// Resolve returns the task's function, consulting the registry when
// the task does not carry one directly.
func (t *Task) Resolve() (*focal.Func, error) {
	if t.fn != nil {
		return t.fn, nil
	}
	fn, ok := focal.Lookup(t.Func)
	if !ok {
		return nil, errors.E(errors.Fatal,
			fmt.Sprintf("exec: function %q is not registered", t.Func))
	}
	return fn, nil
}

// Policy returns the write retry policy implied by WriteRetries.
func (t *Task) Policy() retry.Policy {
	if t.WriteRetries > 0 {
		return retry.MaxTries(rastio.DefaultRetryPolicy, t.WriteRetries)
	}
	return rastio.DefaultRetryPolicy
}

// Do evaluates the task and writes its output rows through w. In
// window mode each of the task's rows is evaluated and written as a
// unit; in chunk mode the function is invoked once on the whole
// padded block. Do is idempotent: writes are positioned, so rerunning
// a task deposits identical bytes at identical offsets.
func (t *Task) Do(ctx context.Context, w *rastio.Writer) error {
	fn, err := t.Resolve()
	if err != nil {
		return err
	}
	argv, err := fn.Bind(t.Args)
	if err != nil {
		return err
	}
	if t.Mode == focal.ModeChunk {
		vals, err := focal.EvaluateChunk(ctx, fn, argv, t.Input, t.Window, t.NumRows, t.Cols, t.OutBands)
		if err != nil {
			return err
		}
		return w.WriteRows(ctx, t.RowStart, t.NumRows, vals)
	}
	chunk := focal.Chunk{RowStart: t.RowStart, NumRows: t.NumRows, Window: t.Window, Tex: t.Input}
	for i := 0; i < t.NumRows; i++ {
		row, win := chunk.Unit(i)
		vals, err := focal.EvaluateWindow(ctx, fn, argv, win, t.Window, t.Cols, t.OutBands)
		if err != nil {
			return err
		}
		if err := w.WriteUnit(ctx, row, vals); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) String() string { return t.Name }
