// Package shutdown turns the first interrupt into an orderly exit: polling
// stops, the account is made invisible within a bounded time, and the
// session is discarded. Later interrupts are logged and ignored.
package shutdown

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Presence is the part of the presence controller the coordinator drives.
type Presence interface {
	BeginShutdown() bool
	Finish(ctx context.Context, timeout time.Duration) error
}

// Revoker discards a credential.
type Revoker interface {
	Revoke()
}

// Coordinator runs the shutdown sequence.
type Coordinator struct {
	Presence Presence
	Session  Revoker
	// StopPolling cancels the poll loop's context.
	StopPolling context.CancelFunc
	// PollerDone, if set, is closed when the poll loop returns. The
	// coordinator waits up to Grace for it before returning.
	PollerDone <-chan struct{}
	// Timeout bounds the invisible-status update. Defaults to 5s.
	Timeout time.Duration
	// Grace bounds the wait on PollerDone. Zero means don't wait.
	Grace time.Duration
	// Cleanup runs after the session is revoked, in order.
	Cleanup []func() error
}

// Run blocks until the first signal arrives on signals or ctx is done, then
// performs the shutdown sequence and returns the presence error, if any. The
// error is informational: shutdown has completed either way.
func (c *Coordinator) Run(ctx context.Context, signals <-chan os.Signal) error {
	select {
	case sig := <-signals:
		slog.Info("shutdown requested", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("shutdown requested", "reason", context.Cause(ctx))
	}

	// Repeat signals must not restart or abort the sequence.
	drainDone := make(chan struct{})
	defer close(drainDone)
	go func() {
		for {
			select {
			case sig := <-signals:
				slog.Info("shutdown already in progress, ignoring signal", "signal", sig.String())
			case <-drainDone:
				return
			}
		}
	}()

	return c.shutdown()
}

// shutdown is the sequence proper: SHUTTING_DOWN, stop polling, INVISIBLE
// within Timeout, TERMINATED, revoke, cleanup.
func (c *Coordinator) shutdown() error {
	if !c.Presence.BeginShutdown() {
		slog.Debug("shutdown already started")
		return nil
	}
	if c.StopPolling != nil {
		c.StopPolling()
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// The parent context is already cancelled in the ctx.Done() path, so the
	// update gets its own.
	err := c.Presence.Finish(context.Background(), timeout)
	if err != nil {
		slog.Warn("could not set invisible status before exit", "error", err)
	}

	if c.Session != nil {
		c.Session.Revoke()
	}
	c.waitPoller()

	for _, fn := range c.Cleanup {
		if cerr := fn(); cerr != nil {
			slog.Debug("cleanup failed", "error", cerr)
		}
	}
	slog.Info("shutdown complete")
	return err
}

// waitPoller waits up to Grace for the poll loop to return.
func (c *Coordinator) waitPoller() {
	if c.PollerDone == nil || c.Grace <= 0 {
		return
	}
	t := time.NewTimer(c.Grace)
	defer t.Stop()
	select {
	case <-c.PollerDone:
	case <-t.C:
		slog.Debug("poll cycle still in flight at exit")
	}
}
