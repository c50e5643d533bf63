package session

import (
	"context"
	"fmt"
)

// Task is a background unit with its own cancellation, registered as a
// cleanup callback. Cleanup cancels it and waits for it to return.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// StartTask runs fn on its own goroutine until ctx is cancelled.
//
// fn should return promptly once its context is done. A panic in fn is
// recovered and logged, and the task counts as finished.
func (c *Controller) StartTask(name string, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer c.recoverPanic("task", "task", name)
		fn(ctx)
		c.logger.Debug("task exited", "task", name)
	}()

	c.AddCleanupCallback(t)
	return t
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Done is closed when the task function has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cleanup cancels the task and waits for it to exit, or for ctx to end.
func (t *Task) Cleanup(ctx context.Context) error {
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for task %s: %w", t.name, ctx.Err())
	}
}
