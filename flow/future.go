package flow

import (
	"context"
	"fmt"
)

// Future is a handle to a background side effect spawned by a non-blocking
// event. The task runs to completion independently of the pipeline that
// scheduled it; callers are responsible for awaiting outstanding futures
// after the pipeline finishes.
type Future struct {
	name string
	done chan struct{}
	err  error
}

// Go runs fn on a new goroutine and returns its handle.
func Go(name string, fn func() error) *Future {
	f := &Future{name: name, done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.err = fn()
	}()
	return f
}

// Name identifies the action that scheduled the task.
func (f *Future) Name() string { return f.name }

// Done is closed when the task finishes.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task finishes or the context is cancelled, and
// returns the task's error.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return fmt.Errorf("waiting for %s: %w", f.name, ctx.Err())
	}
}
