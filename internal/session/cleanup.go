package session

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Cleaner is a shutdown action. Cleanups run concurrently with each
// other and must all return before the controller disconnects.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// CleanupFunc adapts a function to Cleaner.
type CleanupFunc func(ctx context.Context) error

// Cleanup calls f(ctx).
func (f CleanupFunc) Cleanup(ctx context.Context) error {
	return f(ctx)
}

// AddCleanupCallback registers a shutdown action. Adding the same
// action again is a no-op.
func (c *Controller) AddCleanupCallback(cb Cleaner) {
	if cb == nil {
		return
	}

	c.regMu.Lock()
	defer c.regMu.Unlock()

	for _, existing := range c.cleanups {
		if sameIdentity(existing, cb) {
			return
		}
	}
	c.cleanups = append(c.cleanups, cb)
}

// runCleanups starts every cleanup and waits for all of them.
// Failures and panics are logged; they never stop the others.
func (c *Controller) runCleanups(ctx context.Context) {
	c.regMu.Lock()
	cleanups := make([]Cleaner, len(c.cleanups))
	copy(cleanups, c.cleanups)
	c.regMu.Unlock()

	var g errgroup.Group
	for _, cb := range cleanups {
		g.Go(func() error {
			defer c.recoverPanic("cleanup callback")
			if err := cb.Cleanup(ctx); err != nil {
				c.logger.Warn("cleanup failed", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // goroutines never return errors
}
