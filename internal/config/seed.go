package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Seed writes data to path unless a file already exists there, and reports
// whether it wrote. The bytes go to a synced temp file in the same directory
// that is then renamed into place, so an interrupted first run never leaves a
// truncated config behind.
func Seed(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return false, fmt.Errorf("create temp config: %w", err)
	}
	tmp := f.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return false, fmt.Errorf("write temp config: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return false, fmt.Errorf("sync temp config: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return false, fmt.Errorf("chmod temp config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("install config: %w", err)
	}
	committed = true
	return true, nil
}
