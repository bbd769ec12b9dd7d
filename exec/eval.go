// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"io"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/base/status"
	"github.com/grailbio/focal"
	"github.com/grailbio/focal/grid"
	"golang.org/x/sync/errgroup"
)

// Executor defines an interface used to run tasks and to flush their
// output when a run completes.
type Executor interface {
	// Name returns a human-friendly name for this executor.
	Name() string

	// Start starts the executor. It is called before any tasks are
	// run. The returned shutdown function is called to tear down the
	// executor when its session is discarded.
	Start(*Session) (shutdown func())

	// Run evaluates the task and writes its output rows. Run blocks
	// until the task is complete or failed.
	Run(ctx context.Context, task *Task) error

	// Flush finalizes all writes to the named output path, releasing
	// any writer state held for it.
	Flush(ctx context.Context, path string) error
}

// Eval reads the plan's blocks from g in grid order and runs each
// through the executor, reporting progress to group as tasks start
// and finish. Reading stays just ahead of execution: at most one more
// block is resident than the plan's worker count, which bounds memory
// by block size rather than grid size. Eval returns when every block
// has completed; the first task or read error cancels the rest of the
// run.
func Eval(ctx context.Context, executor Executor, g grid.Grid, plan *focal.Plan, newTask func(*focal.Chunk) *Task, group *status.Group) error {
	lim := limiter.New()
	lim.Release(plan.Procs + 1)
	grp, ctx := errgroup.WithContext(ctx)
	chunker := focal.NewChunker(g, plan)
	for {
		if err := lim.Acquire(ctx, 1); err != nil {
			break
		}
		chunk, err := chunker.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			grp.Go(func() error { return err })
			break
		}
		task := newTask(chunk)
		grp.Go(func() error {
			defer lim.Release(1)
			var st *status.Task
			if group != nil {
				st = group.Start(task.Name)
				st.Printf("rows %d:%d", task.RowStart, task.RowStart+task.NumRows)
			}
			err := executor.Run(ctx, task)
			if st != nil {
				if err != nil {
					st.Printf("error: %v", err)
				}
				st.Done()
			}
			return err
		})
	}
	return grp.Wait()
}
