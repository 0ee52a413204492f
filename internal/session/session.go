// Package session holds the authenticated identity of the running agent and
// the presence state machine layered on top of it.
//
// A [Session] is created exactly once by [Authenticate] and is read-only for
// the rest of the process lifetime; [Session.Revoke] clears it on shutdown.
// [Presence] owns the collaborator-visible status and only ever moves
// forward: UNSET -> ACTIVE -> SHUTTING_DOWN -> TERMINATED.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"tools.zach/dev/watchbot/internal/chat"
)

// ///////////////////////////////////////////////
// Credentials
// ///////////////////////////////////////////////

// Credentials are the startup inputs used to authenticate.
type Credentials struct {
	// Identity optionally pins the expected account (user ID or username).
	Identity string
	// Secret is the account token.
	Secret string
}

// Authenticator exchanges credentials for an authenticated identity.
type Authenticator interface {
	Authenticate(ctx context.Context, identity, secret string) (chat.Identity, error)
}

// ///////////////////////////////////////////////
// Session
// ///////////////////////////////////////////////

// Session is the authenticated state shared by every component.
type Session struct {
	// ID tags log lines from this process run.
	ID uuid.UUID
	// UserID and Username describe the authenticated account.
	UserID   string
	Username string
	// StartedAt is when the session was established; uptime is measured
	// from it.
	StartedAt time.Time

	mu    sync.RWMutex
	token string
}

// Authenticate establishes a Session. Any failure is returned as a
// [*chat.AuthError]; callers must not start polling when it fails.
func Authenticate(ctx context.Context, auth Authenticator, creds Credentials) (*Session, error) {
	if creds.Secret == "" {
		return nil, &chat.AuthError{Err: errors.New("empty secret")}
	}
	id, err := auth.Authenticate(ctx, creds.Identity, creds.Secret)
	if err != nil {
		var authErr *chat.AuthError
		if errors.As(err, &authErr) {
			return nil, authErr
		}
		return nil, &chat.AuthError{Err: err}
	}
	if id.Token == "" {
		return nil, &chat.AuthError{Err: fmt.Errorf("no token issued for %q", creds.Identity)}
	}
	return &Session{
		ID:        uuid.New(),
		UserID:    id.UserID,
		Username:  id.Username,
		StartedAt: time.Now(),
		token:     id.Token,
	}, nil
}

// Token returns the session credential, or "" once revoked.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Valid reports whether the session still holds a credential.
func (s *Session) Valid() bool {
	return s != nil && s.Token() != ""
}

// Revoke discards the credential. Safe to call more than once.
func (s *Session) Revoke() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Uptime returns the time elapsed between StartedAt and now.
func (s *Session) Uptime(now time.Time) time.Duration {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}
