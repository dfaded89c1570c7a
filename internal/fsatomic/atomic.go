// Package fsatomic provides crash-safe file writes. A write either
// leaves the complete new content at the destination path or leaves the
// previous state untouched; readers never observe a half-written file.
package fsatomic

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// maxRetries bounds retries of transient rename/sync failures.
const maxRetries = 3

// retryDelay is the pause between retry attempts.
const retryDelay = 50 * time.Millisecond

// WriteReport describes how a write was performed.
type WriteReport struct {
	// Retries is the number of failed attempts before success.
	Retries int
	// UsedFallback is true when the temp file could not be renamed in
	// place (cross-filesystem temp dir) and a copy fallback was used.
	UsedFallback bool
}

// WriteFile atomically writes data to path with the given mode. The
// temp file is created in the destination directory so the final rename
// stays on one filesystem; if that directory refuses temp-file creation
// the write falls back to the OS temp dir plus a copy.
func WriteFile(path string, data []byte, mode os.FileMode) (WriteReport, error) {
	var report WriteReport

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return report, fmt.Errorf("create directory %s: %w", dir, err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			report.Retries++
			time.Sleep(retryDelay)
		}

		err := writeViaRename(dir, path, data, mode)
		if err == nil {
			return report, nil
		}
		lastErr = err
	}

	// Rename path exhausted; try the cross-filesystem fallback once.
	if err := writeViaCopy(path, data, mode); err == nil {
		report.UsedFallback = true
		return report, nil
	}

	return report, fmt.Errorf("atomic write %s: %w", path, lastErr)
}

// writeViaRename writes to a temp file in dir, fsyncs, and renames over
// the destination.
func writeViaRename(dir, path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Remove the temp file on any failure path.
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}

	return syncDir(dir)
}

// writeViaCopy is the last-resort path when the destination directory
// cannot host a temp file. The window where a partial file is visible
// is avoided by writing to a sibling name and renaming; if even the
// sibling cannot be created this returns the underlying error.
func writeViaCopy(path string, data []byte, mode os.FileMode) error {
	sibling := path + ".tmp"
	if err := os.WriteFile(sibling, data, mode); err != nil {
		return fmt.Errorf("write fallback file: %w", err)
	}
	if err := os.Rename(sibling, path); err != nil {
		os.Remove(sibling)
		return fmt.Errorf("rename fallback file: %w", err)
	}
	return nil
}

// syncDir fsyncs a directory so the rename itself is durable. Some
// filesystems reject directory fsync; that is not a write failure.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	d.Sync()
	return nil
}
