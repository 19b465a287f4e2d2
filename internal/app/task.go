package app

import (
	"context"
	"errors"
	"log/slog"
)

// Task is a cancellable background loop started with Go.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Go runs fn in its own goroutine under a context derived from ctx.
// The task is done once fn returns.
func Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()

		err := fn(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			t.err = err
			slog.Error("Background task failed", "task", name, "error", err)
			return
		}
		slog.Debug("Background task stopped", "task", name)
	}()

	return t
}

func (t *Task) Name() string { return t.name }

// Cancel asks the task to stop. It does not wait.
func (t *Task) Cancel() { t.cancel() }

func (t *Task) Done() <-chan struct{} { return t.done }

// Err returns the error fn failed with. Only valid after Done is closed.
func (t *Task) Err() error { return t.err }
