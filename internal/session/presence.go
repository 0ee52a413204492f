package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tools.zach/dev/watchbot/internal/chat"
)

// ///////////////////////////////////////////////
// Presence State
// ///////////////////////////////////////////////

// PresenceState is the lifecycle position of the [Presence] controller.
type PresenceState int

const (
	StateUnset PresenceState = iota
	StateActive
	StateShuttingDown
	StateTerminated
)

func (s PresenceState) String() string {
	switch s {
	case StateUnset:
		return "unset"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting-down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a presence transition would move the
// state machine backwards or skip the shutdown step.
var ErrInvalidTransition = errors.New("invalid presence transition")

// PresenceSetter publishes a presence status to the collaborator.
type PresenceSetter interface {
	SetPresence(ctx context.Context, status chat.Status) error
}

// ///////////////////////////////////////////////
// Presence Controller
// ///////////////////////////////////////////////

// Presence wraps a [PresenceSetter] with the forward-only state machine and
// suppresses repeated updates of the same status.
type Presence struct {
	api     PresenceSetter
	session *Session
	// active is the status published while the agent is running.
	active chat.Status

	// gate is held for reading while an admitted action runs and for
	// writing by BeginShutdown, so no action starts after SHUTTING_DOWN.
	gate sync.RWMutex

	mu    sync.Mutex
	state PresenceState
	// last is the most recently acknowledged status; "" before the first
	// successful update.
	last chat.Status
}

// NewPresence returns a controller in [StateUnset]. An invalid active status
// falls back to [chat.StatusOnline].
func NewPresence(api PresenceSetter, sess *Session, active chat.Status) *Presence {
	if !active.Valid() || active == chat.StatusInvisible {
		active = chat.StatusOnline
	}
	return &Presence{api: api, session: sess, active: active}
}

// State returns the current lifecycle state.
func (p *Presence) State() PresenceState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stopping reports whether shutdown has begun.
func (p *Presence) Stopping() bool {
	return p.State() >= StateShuttingDown
}

// Admit runs fn unless shutdown has begun and reports whether it ran.
// BeginShutdown waits for an admitted fn to return before changing state.
func (p *Presence) Admit(fn func()) bool {
	p.gate.RLock()
	defer p.gate.RUnlock()
	if p.Stopping() {
		return false
	}
	fn()
	return true
}

// Activate moves UNSET -> ACTIVE and publishes the active status. The state
// advances even when the update fails; the failure comes back as a
// [*chat.PresenceError] for the caller to log.
func (p *Presence) Activate(ctx context.Context) error {
	p.mu.Lock()
	if p.state != StateUnset {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	if !p.session.Valid() {
		p.mu.Unlock()
		return &chat.PresenceError{Status: p.active, Err: errors.New("no valid session")}
	}
	p.state = StateActive
	p.mu.Unlock()

	return p.Set(ctx, p.active)
}

// Set publishes status unless it equals the last acknowledged one, in which
// case it returns nil without contacting the collaborator. Once shutdown has
// begun only [chat.StatusInvisible] is accepted; anything else returns
// [ErrInvalidTransition].
func (p *Presence) Set(ctx context.Context, status chat.Status) error {
	p.mu.Lock()
	if p.state >= StateShuttingDown && status != chat.StatusInvisible {
		p.mu.Unlock()
		return ErrInvalidTransition
	}
	if p.last == status {
		p.mu.Unlock()
		slog.Debug("presence unchanged", "status", status)
		return nil
	}
	p.mu.Unlock()

	if err := p.api.SetPresence(ctx, status); err != nil {
		var pe *chat.PresenceError
		if errors.As(err, &pe) {
			return pe
		}
		return &chat.PresenceError{Status: status, Err: err}
	}

	p.mu.Lock()
	p.last = status
	p.mu.Unlock()
	slog.Info("presence updated", "status", status)
	return nil
}

// BeginShutdown moves ACTIVE (or UNSET) -> SHUTTING_DOWN. It returns false
// when shutdown is already under way, so a repeated signal is a no-op. It
// blocks until any action running under [Presence.Admit] has returned.
func (p *Presence) BeginShutdown() bool {
	p.gate.Lock()
	defer p.gate.Unlock()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state >= StateShuttingDown {
		return false
	}
	p.state = StateShuttingDown
	return true
}

// Finish publishes the invisible status and moves SHUTTING_DOWN ->
// TERMINATED once the call settles or timeout elapses, whichever is first.
// A failed or timed-out update is returned for logging but the transition
// still happens.
func (p *Presence) Finish(ctx context.Context, timeout time.Duration) error {
	if p.State() != StateShuttingDown {
		return ErrInvalidTransition
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Set(ctx, chat.StatusInvisible) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = &chat.PresenceError{Status: chat.StatusInvisible, Err: ctx.Err()}
	}

	p.mu.Lock()
	p.state = StateTerminated
	p.mu.Unlock()
	return err
}
