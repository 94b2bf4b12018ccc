package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nff/ingestion/internal/logger"
)

// Task states reported by Handle.State.
const (
	StateRunning   = "RUNNING"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
)

// Handle tracks one background task. Callers can wait on Done or poll State;
// Err is valid once Done is closed.
type Handle struct {
	name     string
	started  time.Time
	done     chan struct{}
	mu       sync.Mutex
	err      error
	finished bool
}

// Name returns the task name.
func (h *Handle) Name() string { return h.name }

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task error. Nil until the task finishes.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// State returns the current task state string.
func (h *Handle) State() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.finished {
		return StateRunning
	}
	if h.err != nil {
		return StateFailed
	}
	return StateSucceeded
}

// Wait blocks until the task finishes or the context is cancelled.
// Parameters:
//   - ctx: cancellation context.
// Returns:
//   - error: the task error, or the context error if cancelled first.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) finish(err error) {
	h.mu.Lock()
	h.err = err
	h.finished = true
	h.mu.Unlock()
	close(h.done)
}

// Runner launches named background tasks and keeps them observable. It
// replaces bare goroutines so failures are logged and shutdown can drain
// in-flight work.
type Runner struct {
	log *logger.Logger
	wg  sync.WaitGroup

	mu     sync.Mutex
	recent map[string]*Handle
}

// NewRunner creates a task runner.
func NewRunner(log *logger.Logger) *Runner {
	return &Runner{
		log:    log,
		recent: make(map[string]*Handle),
	}
}

// Go starts fn in a goroutine and returns a handle for it. Panics inside fn
// are recovered and surfaced as task errors.
// Parameters:
//   - ctx: context passed through to fn.
//   - name: task name used for logging and lookup.
//   - fn: task body.
// Returns:
//   - *Handle: handle tracking the task.
func (r *Runner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Handle {
	h := &Handle{
		name:    name,
		started: time.Now(),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.recent[name] = h
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		var err error
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
			if err != nil {
				r.log.WithError(err).WithField("task", name).Error("Background task failed")
			} else {
				r.log.WithFields(logger.Fields{
					"task":     name,
					"duration": time.Since(h.started).String(),
				}).Info("Background task finished")
			}
			h.finish(err)
		}()

		err = fn(ctx)
	}()

	return h
}

// Lookup returns the handle for a previously started task name.
func (r *Runner) Lookup(name string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.recent[name]
	return h, ok
}

// Shutdown waits for all in-flight tasks to finish or the context to expire.
// Parameters:
//   - ctx: deadline for the drain.
// Returns:
//   - error: non-nil if the context expired before tasks finished.
func (r *Runner) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with tasks still running: %w", ctx.Err())
	}
}
