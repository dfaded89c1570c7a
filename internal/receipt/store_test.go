package receipt

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"specpilot/internal/phase"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store := NewStore(dir)

	// Deterministic, strictly increasing clock so each write gets a
	// distinct filename.
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	var calls int
	store.SetClock(func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	})
	return store
}

func writeAttempt(t *testing.T, store *Store, p phase.ID, exitCode int) string {
	t.Helper()
	path, err := store.Write(&Receipt{
		SchemaVersion: SchemaVersion,
		SpecID:        "demo",
		Phase:         p.String(),
		ExitCode:      exitCode,
	})
	if err != nil {
		t.Fatalf("Write(%s) error: %v", p, err)
	}
	return path
}

func TestStore_CurrentPhase_Empty(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.CurrentPhase()
	if err != nil {
		t.Fatalf("CurrentPhase() error: %v", err)
	}
	if ok {
		t.Error("CurrentPhase() on empty store reported a phase")
	}
}

func TestStore_CurrentPhase_FailedTailIgnored(t *testing.T) {
	store := newTestStore(t)

	writeAttempt(t, store, phase.Requirements, 0)
	writeAttempt(t, store, phase.Design, 0)
	writeAttempt(t, store, phase.Tasks, 1)

	current, ok, err := store.CurrentPhase()
	if err != nil {
		t.Fatalf("CurrentPhase() error: %v", err)
	}
	if !ok {
		t.Fatal("CurrentPhase() found nothing")
	}
	if current != phase.Design {
		t.Errorf("CurrentPhase() = %s, want design", current)
	}
}

func TestStore_SuccessNotInvalidatedByLaterFailure(t *testing.T) {
	store := newTestStore(t)

	writeAttempt(t, store, phase.Requirements, 0)
	writeAttempt(t, store, phase.Requirements, 1)

	completed, err := store.CompletedPhases()
	if err != nil {
		t.Fatalf("CompletedPhases() error: %v", err)
	}
	if !completed[phase.Requirements] {
		t.Error("a later failed receipt invalidated an earlier success")
	}
}

func TestStore_ReadLatest_Ordering(t *testing.T) {
	store := newTestStore(t)

	writeAttempt(t, store, phase.Requirements, 1)
	writeAttempt(t, store, phase.Requirements, 0)

	latest, err := store.ReadLatest(phase.Requirements)
	if err != nil {
		t.Fatalf("ReadLatest() error: %v", err)
	}
	if latest == nil {
		t.Fatal("ReadLatest() = nil")
	}
	if latest.ExitCode != 0 {
		t.Errorf("ReadLatest().ExitCode = %d, want 0 (the chronologically last attempt)", latest.ExitCode)
	}
}

func TestStore_ReadLatest_NoAttempts(t *testing.T) {
	store := newTestStore(t)

	latest, err := store.ReadLatest(phase.Final)
	if err != nil {
		t.Fatalf("ReadLatest() error: %v", err)
	}
	if latest != nil {
		t.Errorf("ReadLatest() = %+v, want nil", latest)
	}
}

func TestStore_CorruptReceiptIsFatal(t *testing.T) {
	store := newTestStore(t)

	writeAttempt(t, store, phase.Requirements, 0)
	corrupt := filepath.Join(store.Dir(), "requirements-20990101T000000.000000000Z.json")
	if err := os.WriteFile(corrupt, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := store.ReadLatest(phase.Requirements)
	var corruptErr *CorruptReceiptError
	if !errors.As(err, &corruptErr) {
		t.Fatalf("ReadLatest() error = %v, want CorruptReceiptError", err)
	}

	// State reconstruction must also refuse to proceed.
	if _, err := store.CompletedPhases(); err == nil {
		t.Error("CompletedPhases() ignored a corrupt receipt")
	}
}

func TestStore_CanonicalArrayOrder(t *testing.T) {
	emitted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Same content, reversed internal iteration order.
	a := &Receipt{
		SchemaVersion: SchemaVersion,
		EmittedAt:     emitted,
		SpecID:        "demo",
		Phase:         "design",
		OutputFiles: []OutputFile{
			{Path: "b.md", Hash: "bb"},
			{Path: "a.md", Hash: "aa"},
		},
		Warnings: []string{"z warning", "a warning"},
	}
	b := &Receipt{
		SchemaVersion: SchemaVersion,
		EmittedAt:     emitted,
		SpecID:        "demo",
		Phase:         "design",
		OutputFiles: []OutputFile{
			{Path: "a.md", Hash: "aa"},
			{Path: "b.md", Hash: "bb"},
		},
		Warnings: []string{"a warning", "z warning"},
	}

	dirA, dirB := t.TempDir(), t.TempDir()
	pathA, err := NewStore(dirA).Write(a)
	if err != nil {
		t.Fatal(err)
	}
	pathB, err := NewStore(dirB).Write(b)
	if err != nil {
		t.Fatal(err)
	}

	dataA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatal(err)
	}
	dataB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dataA, dataB) {
		t.Errorf("receipts differ byte-wise:\n%s\n---\n%s", dataA, dataB)
	}
}

func TestStore_FilenamesSortChronologically(t *testing.T) {
	store := newTestStore(t)

	first := writeAttempt(t, store, phase.Requirements, 0)
	second := writeAttempt(t, store, phase.Requirements, 0)

	if !(filepath.Base(first) < filepath.Base(second)) {
		t.Errorf("lexical order != chronological order: %s vs %s", first, second)
	}
}
