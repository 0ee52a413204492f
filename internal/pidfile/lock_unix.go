//go:build !windows

package pidfile

import (
	"fmt"
	"os"
	"syscall"
)

// lockFile takes a non-blocking exclusive flock(2) on f. The lock belongs to
// the open file description, so a second open of the same path conflicts
// even inside one process.
func lockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return nil
}

// unlockFile drops the flock. Closing the descriptor also drops it.
func unlockFile(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fmt.Errorf("unflock %s: %w", f.Name(), err)
	}
	return nil
}
