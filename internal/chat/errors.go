package chat

import (
	"errors"
	"fmt"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrForeignMessage is wrapped by an [EditError] when the target message was
// written by a different account.
var ErrForeignMessage = errors.New("message belongs to another user")

// ErrUnauthorized is wrapped by an [AuthError] when the platform rejected
// the credential outright, as opposed to being unreachable.
var ErrUnauthorized = errors.New("credential rejected")

// ///////////////////////////////////////////////
// Error Kinds
// ///////////////////////////////////////////////

// AuthError reports a failed authentication. It is the only error that is
// allowed to stop the process.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "authenticate: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// PresenceError reports a rejected presence update.
type PresenceError struct {
	Status Status
	Err    error
}

func (e *PresenceError) Error() string {
	return fmt.Sprintf("set presence %s: %v", e.Status, e.Err)
}
func (e *PresenceError) Unwrap() error { return e.Err }

// FetchError reports a failed read of remote records: a message poll or a
// server/user lookup.
type FetchError struct {
	// Op names the read that failed, e.g. "messages", "server", "user".
	Op  string
	ID  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Op, e.ID, e.Err)
}
func (e *FetchError) Unwrap() error { return e.Err }

// SendError reports a message that could not be posted.
type SendError struct {
	ChannelID string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to channel %s: %v", e.ChannelID, e.Err)
}
func (e *SendError) Unwrap() error { return e.Err }

// EditError reports a message that could not be edited.
type EditError struct {
	MessageID string
	Err       error
}

func (e *EditError) Error() string {
	return fmt.Sprintf("edit message %s: %v", e.MessageID, e.Err)
}
func (e *EditError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup for a record that does not exist or is not
// visible to the authenticated account. Handlers treat it like a
// [FetchError].
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// IsNotFound reports whether err is or wraps a [NotFoundError].
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
