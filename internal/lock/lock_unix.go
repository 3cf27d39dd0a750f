//go:build unix

package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/Alfurquan/bitcaskpy/internal/bcerrors"
)

// LockDirectory attempts to acquire an exclusive, non-blocking advisory lock
// on the given directory using a sentinel file.
//
// On Unix systems this places an exclusive flock(2) on a file named ".lock"
// inside the directory. If the lock cannot be acquired, the directory is
// assumed to be owned by another store instance.
//
// The returned file handle must remain open for the duration of the lock.
func LockDirectory(path string) (*os.File, error) {
	lockFilePath := filepath.Join(path, ".lock")

	f, err := os.OpenFile(lockFilePath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", lockFilePath, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock: %s: %w", path, bcerrors.ErrAlreadyLocked)
	}

	return f, nil
}

// UnlockDirectory releases a directory lock acquired via LockDirectory.
func UnlockDirectory(f *os.File) {
	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
