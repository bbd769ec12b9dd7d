// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
	"github.com/grailbio/bigmachine"
	"github.com/grailbio/focal/rastio"
)

func init() {
	gob.Register(&focalWorker{})
}

// BigmachineExecutor is an executor that runs tasks on bigmachine
// machines. Each machine hosts a focalWorker service that evaluates
// tasks and writes their output rows directly; the output path must
// therefore name a filesystem shared by every machine and the driver.
// Tasks are idempotent, so machine call retries are safe.
type bigmachineExecutor struct {
	system bigmachine.System
	params []bigmachine.Param

	sess *Session
	b    *bigmachine.B

	status *status.Group

	once     sync.Once
	machines []*bigmachine.Machine
	starterr error

	next uint32
}

func newBigmachineExecutor(system bigmachine.System, params ...bigmachine.Param) *bigmachineExecutor {
	return &bigmachineExecutor{system: system, params: params}
}

func (*bigmachineExecutor) Name() string { return "bigmachine" }

func (e *bigmachineExecutor) Start(sess *Session) (shutdown func()) {
	e.sess = sess
	e.b = bigmachine.Start(e.system)
	if status := sess.Status(); status != nil {
		e.status = status.Group("bigmachine")
	}
	return e.b.Shutdown
}

// start launches the session's machines on first use, installing the
// worker service on each and waiting for them to boot.
func (e *bigmachineExecutor) start(ctx context.Context) error {
	e.once.Do(func() {
		params := append([]bigmachine.Param{
			bigmachine.Services{"Focal": &focalWorker{}},
		}, e.params...)
		machines, err := e.b.Start(ctx, e.sess.Parallelism(), params...)
		if err != nil {
			e.starterr = err
			return
		}
		for _, m := range machines {
			var st *status.Task
			if e.status != nil {
				st = e.status.Start(m.Addr)
				st.Print("waiting for machine to boot")
			}
			<-m.Wait(bigmachine.Running)
			if err := m.Err(); err != nil {
				log.Error.Printf("exec: machine %s failed to start: %v", m.Addr, err)
				if st != nil {
					st.Printf("failed to start: %v", err)
					st.Done()
				}
				continue
			}
			if st != nil {
				st.Print("running")
				st.Done()
			}
			e.machines = append(e.machines, m)
		}
		if len(e.machines) == 0 {
			e.starterr = errors.E(errors.Unavailable, "exec: no machines started")
		}
	})
	return e.starterr
}

func (e *bigmachineExecutor) Run(ctx context.Context, task *Task) error {
	if task.Func == "" {
		return errors.E(errors.Invalid,
			fmt.Sprintf("exec: task %s: distributed execution requires a registered function", task))
	}
	if err := e.start(ctx); err != nil {
		return err
	}
	m := e.machines[int(atomic.AddUint32(&e.next, 1)-1)%len(e.machines)]
	return m.RetryCall(ctx, "Focal.Run", *task, &taskRunReply{})
}

func (e *bigmachineExecutor) Flush(ctx context.Context, path string) error {
	for _, m := range e.machines {
		if err := m.RetryCall(ctx, "Focal.Flush", path, &taskRunReply{}); err != nil {
			return err
		}
	}
	return nil
}

type taskRunReply struct{}

// A focalWorker is the bigmachine service that evaluates tasks on a
// machine. Each worker keeps one writer per output path, closed when
// the driver flushes the run.
type focalWorker struct {
	// Exported just satisfies gob's persnickety nature: we need at
	// least one exported field.
	Exported struct{}

	mu      sync.Mutex
	writers map[string]*rastio.Writer
}

func (w *focalWorker) Init(b *bigmachine.B) error {
	w.writers = make(map[string]*rastio.Writer)
	return nil
}

// Run evaluates a task and writes its output rows. The task's
// function is resolved against this process's registry, so functions
// must be registered identically in driver and worker binaries.
func (w *focalWorker) Run(ctx context.Context, task Task, _ *taskRunReply) error {
	wr, err := w.writer(&task)
	if err != nil {
		return err
	}
	return task.Do(ctx, wr)
}

// Flush closes the worker's writer for the named output path.
func (w *focalWorker) Flush(_ context.Context, path string, _ *taskRunReply) error {
	w.mu.Lock()
	wr, ok := w.writers[path]
	delete(w.writers, path)
	w.mu.Unlock()
	if !ok {
		return nil
	}
	return wr.Close()
}

func (w *focalWorker) writer(task *Task) (*rastio.Writer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if wr, ok := w.writers[task.Layout.Path]; ok {
		return wr, nil
	}
	wr, err := rastio.NewWriter(task.Layout, task.Policy())
	if err != nil {
		return nil, err
	}
	w.writers[task.Layout.Path] = wr
	return wr, nil
}
