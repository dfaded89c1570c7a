// Package specdir defines the on-disk layout for a single spec. All
// durable state for one spec lives under one directory:
//
//	<root>/<spec-id>/
//	    receipts/            one immutable file per phase attempt
//	    artifacts/           phase outputs; interrupted output keeps
//	                         a .partial suffix until the next attempt
//	    lock.json            present only while an operation is in flight
//	    pin.yaml             version pin, written at init
//	    debug.log            orchestrator debug log
package specdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRoot is the project-relative directory that holds all specs.
const DefaultRoot = ".specpilot/specs"

// PartialSuffix marks an artifact persisted from an interrupted attempt.
const PartialSuffix = ".partial"

// Layout resolves the paths for one spec.
type Layout struct {
	SpecID string
	dir    string
}

// New returns the layout for specID under root. The directories are not
// created; call EnsureDirs before writing.
func New(root, specID string) *Layout {
	return &Layout{
		SpecID: specID,
		dir:    filepath.Join(root, specID),
	}
}

// Dir returns the spec's root directory.
func (l *Layout) Dir() string { return l.dir }

// ReceiptsDir returns the directory holding receipt files.
func (l *Layout) ReceiptsDir() string { return filepath.Join(l.dir, "receipts") }

// ArtifactsDir returns the directory holding phase outputs.
func (l *Layout) ArtifactsDir() string { return filepath.Join(l.dir, "artifacts") }

// LockPath returns the lock file path.
func (l *Layout) LockPath() string { return filepath.Join(l.dir, "lock.json") }

// PinPath returns the version pin file path.
func (l *Layout) PinPath() string { return filepath.Join(l.dir, "pin.yaml") }

// DebugLogPath returns the per-spec debug log path.
func (l *Layout) DebugLogPath() string { return filepath.Join(l.dir, "debug.log") }

// PartialPath returns the partial-artifact path for the given artifact
// file name.
func (l *Layout) PartialPath(name string) string {
	return filepath.Join(l.ArtifactsDir(), name+PartialSuffix)
}

// EnsureDirs creates the spec directory tree if absent.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.ReceiptsDir(), l.ArtifactsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists reports whether the spec directory has been initialized.
func (l *Layout) Exists() bool {
	info, err := os.Stat(l.dir)
	return err == nil && info.IsDir()
}

// Partials returns the partial-artifact files currently present,
// sorted by name.
func (l *Layout) Partials() ([]string, error) {
	entries, err := os.ReadDir(l.ArtifactsDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read artifacts dir: %w", err)
	}

	var partials []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == PartialSuffix {
			partials = append(partials, filepath.Join(l.ArtifactsDir(), e.Name()))
		}
	}
	return partials, nil
}
