// Package fsutil provides small file-system helpers used to keep sidecar
// writes (the segment .hint file) crash-consistent.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes data to path atomically: write to path+".tmp",
// fsync the temp file, then rename it over path. On most filesystems
// rename is atomic within the same directory, so a crash either leaves
// the previous contents of path untouched or the new contents in full —
// never a partial write.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("fsutil: create temp file %s: %w", tmpPath, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: write temp file %s: %w", tmpPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: sync temp file %s: %w", tmpPath, err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: close temp file %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("fsutil: rename %s to %s: %w", tmpPath, path, err)
	}

	// Best-effort: sync the parent directory so the rename's directory
	// entry update survives a crash on filesystems that need it. Unlike
	// the write above, a failure here does not leave path in a torn
	// state — the rename already landed — so it is not propagated.
	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		dir.Sync()
		dir.Close()
	}

	return nil
}
