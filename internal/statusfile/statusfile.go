// Package statusfile atomically publishes a short lifecycle string to a
// file for external watchers, mirroring original_source/src/main.rs's
// write_status_file: write to a sibling ".tmp"-suffixed path, then rename
// over the target so a concurrent reader never observes a partial write.
package statusfile

import (
	"os"
	"path/filepath"
)

// Write writes s to path atomically. An empty path is a no-op, matching
// spec's "no status_file configured" case.
func Write(path, s string) error {
	if path == "" {
		return nil
	}
	tmp := tmpPath(path)
	if err := os.WriteFile(tmp, []byte(s), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Remove deletes the status file. An empty path is a no-op. Callers treat
// a failure here as logged, not fatal.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	return os.Remove(path)
}

func tmpPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ext + ".tmp"
}
