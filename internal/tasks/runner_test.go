package tasks

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nff/ingestion/internal/logger"
)

func newTestRunner() *Runner {
	return NewRunner(logger.New(&logger.Config{Level: "error", Output: io.Discard}))
}

func TestGoReportsSuccess(t *testing.T) {
	r := newTestRunner()

	h := r.Go(context.Background(), "ok-task", func(ctx context.Context) error {
		return nil
	})

	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if h.State() != StateSucceeded {
		t.Errorf("state = %s, want %s", h.State(), StateSucceeded)
	}
}

func TestGoReportsError(t *testing.T) {
	r := newTestRunner()
	boom := errors.New("boom")

	h := r.Go(context.Background(), "failing-task", func(ctx context.Context) error {
		return boom
	})

	if err := h.Wait(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Wait = %v, want boom", err)
	}
	if h.State() != StateFailed {
		t.Errorf("state = %s, want %s", h.State(), StateFailed)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	r := newTestRunner()

	h := r.Go(context.Background(), "panicking-task", func(ctx context.Context) error {
		panic("unexpected")
	})

	err := h.Wait(context.Background())
	if err == nil {
		t.Fatal("expected an error from the panicking task")
	}
	if h.State() != StateFailed {
		t.Errorf("state = %s, want %s", h.State(), StateFailed)
	}
}

func TestLookup(t *testing.T) {
	r := newTestRunner()
	release := make(chan struct{})

	h := r.Go(context.Background(), "slow-task", func(ctx context.Context) error {
		<-release
		return nil
	})

	got, ok := r.Lookup("slow-task")
	if !ok || got != h {
		t.Fatal("Lookup should return the running task handle")
	}
	if got.State() != StateRunning {
		t.Errorf("state = %s, want %s", got.State(), StateRunning)
	}
	close(release)
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if _, ok := r.Lookup("never-started"); ok {
		t.Error("Lookup of unknown task should report false")
	}
}

func TestShutdownDrains(t *testing.T) {
	r := newTestRunner()
	r.Go(context.Background(), "quick", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownTimesOut(t *testing.T) {
	r := newTestRunner()
	release := make(chan struct{})
	defer close(release)

	r.Go(context.Background(), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); err == nil {
		t.Fatal("expected shutdown timeout")
	}
}
