// Package pidfile enforces a single running agent per data directory.
//
// The PID file holds "PID:TOKEN". An advisory lock on the open file marks the
// owner as alive; the token lets [Lock.Release] avoid deleting a file written
// by a later instance.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RunningError reports that another instance holds the lock.
type RunningError struct {
	// PID is the process ID read from the file, or 0 if unreadable.
	PID int
}

func (e *RunningError) Error() string {
	if e.PID == 0 {
		return "another instance is already running"
	}
	return fmt.Sprintf("another instance is already running (pid %d)", e.PID)
}

// Lock is a held PID file. Keep it for the lifetime of the process.
type Lock struct {
	path  string
	token string
	f     *os.File
}

// ///////////////////////////////////////////////
// Acquire / Release
// ///////////////////////////////////////////////

// Acquire opens or creates the PID file at path, locks it, and writes the
// current PID. A file left behind by a dead process is reused. Returns a
// [*RunningError] when a live instance holds the lock.
func Acquire(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, &RunningError{PID: readPID(path)}
	}

	token := uuid.NewString()
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	if _, err := f.WriteAt([]byte(fmt.Sprintf("%d:%s", os.Getpid(), token)), 0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return &Lock{path: path, token: token, f: f}, nil
}

// Release unlocks and closes the file, then removes it if it still carries
// this lock's token. Safe to call more than once.
func (l *Lock) Release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unlockFile(l.f)
	l.f.Close()
	l.f = nil

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	if _, token, ok := strings.Cut(string(data), ":"); ok && token == l.token {
		os.Remove(l.path)
	}
}

// IsRunning reports whether err came from a live instance holding the lock.
func IsRunning(err error) bool {
	var re *RunningError
	return errors.As(err, &re)
}

// readPID returns the PID recorded in the file at path, or 0.
func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, _, _ := strings.Cut(string(data), ":")
	n, err := strconv.Atoi(strings.TrimSpace(pid))
	if err != nil {
		return 0
	}
	return n
}
