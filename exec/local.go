// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package exec

import (
	"context"
	"sync"

	"github.com/grailbio/base/limiter"
	"github.com/grailbio/focal/rastio"
)

// LocalExecutor is an executor that runs tasks in-process in separate
// goroutines, writing output through a single writer per output path.
// Per-band positioned writes from concurrent tasks never overlap, so
// the shared file handles need no further coordination.
type localExecutor struct {
	limiter *limiter.Limiter
	sess    *Session

	mu      sync.Mutex
	writers map[string]*rastio.Writer
}

func newLocalExecutor() *localExecutor {
	return &localExecutor{
		limiter: limiter.New(),
		writers: make(map[string]*rastio.Writer),
	}
}

func (*localExecutor) Name() string { return "local" }

func (l *localExecutor) Start(sess *Session) (shutdown func()) {
	l.sess = sess
	l.limiter.Release(sess.p)
	return func() {}
}

func (l *localExecutor) Run(ctx context.Context, task *Task) error {
	if err := l.limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.limiter.Release(1)
	w, err := l.writer(task)
	if err != nil {
		return err
	}
	return task.Do(ctx, w)
}

func (l *localExecutor) writer(task *Task) (*rastio.Writer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok := l.writers[task.Layout.Path]; ok {
		return w, nil
	}
	w, err := rastio.NewWriter(task.Layout, task.Policy())
	if err != nil {
		return nil, err
	}
	l.writers[task.Layout.Path] = w
	return w, nil
}

func (l *localExecutor) Flush(_ context.Context, path string) error {
	l.mu.Lock()
	w, ok := l.writers[path]
	delete(l.writers, path)
	l.mu.Unlock()
	if !ok {
		return nil
	}
	return w.Close()
}
