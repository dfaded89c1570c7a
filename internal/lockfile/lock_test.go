package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "spec", "lock.json")
}

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager()
	path := testLockPath(t)

	handle, err := m.Acquire(path, "demo", Options{})
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing after acquire: %v", err)
	}

	if err := handle.Release(); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("lock file still present after release")
	}

	// Release is idempotent.
	if err := handle.Release(); err != nil {
		t.Errorf("second Release() error: %v", err)
	}
}

func TestManager_ConcurrentExecution(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return true })
	path := testLockPath(t)

	first, err := m.Acquire(path, "demo", Options{})
	if err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}

	_, err = m.Acquire(path, "demo", Options{})
	var concurrent *ConcurrentExecutionError
	if !errors.As(err, &concurrent) {
		t.Fatalf("second Acquire() error = %v, want ConcurrentExecutionError", err)
	}
	if concurrent.PID != os.Getpid() {
		t.Errorf("reported pid = %d, want %d", concurrent.PID, os.Getpid())
	}

	// After release the same call succeeds.
	if err := first.Release(); err != nil {
		t.Fatal(err)
	}
	second, err := m.Acquire(path, "demo", Options{})
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	second.Release()
}

func TestManager_DeadOwnerIsStaleRegardlessOfAge(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return false })
	path := testLockPath(t)

	first, err := m.Acquire(path, "demo", Options{})
	if err != nil {
		t.Fatal(err)
	}
	_ = first // simulate a crash: never released

	// The record was created moments ago, well inside the TTL, but the
	// owner is gone.
	_, err = m.Acquire(path, "demo", Options{})
	var stale *StaleLockError
	if !errors.As(err, &stale) {
		t.Fatalf("Acquire() error = %v, want StaleLockError", err)
	}
	if !stale.OwnerDead {
		t.Error("StaleLockError.OwnerDead = false, want true")
	}
}

func TestManager_TTLStaleness(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return true })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	path := testLockPath(t)
	if _, err := m.Acquire(path, "demo", Options{TTL: 2 * time.Minute}); err != nil {
		t.Fatal(err)
	}

	// Inside the TTL: still a live conflict.
	now = now.Add(1 * time.Minute)
	_, err := m.Acquire(path, "demo", Options{TTL: 2 * time.Minute})
	var concurrent *ConcurrentExecutionError
	if !errors.As(err, &concurrent) {
		t.Fatalf("Acquire() inside TTL error = %v, want ConcurrentExecutionError", err)
	}

	// Past the TTL: stale.
	now = now.Add(5 * time.Minute)
	_, err = m.Acquire(path, "demo", Options{TTL: 2 * time.Minute})
	var stale *StaleLockError
	if !errors.As(err, &stale) {
		t.Fatalf("Acquire() past TTL error = %v, want StaleLockError", err)
	}
	if stale.OwnerDead {
		t.Error("StaleLockError.OwnerDead = true for a live owner")
	}
}

func TestManager_ForceTakesOverStale(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return false })
	path := testLockPath(t)

	if _, err := m.Acquire(path, "demo", Options{}); err != nil {
		t.Fatal(err)
	}

	handle, err := m.Acquire(path, "demo", Options{Force: true})
	if err != nil {
		t.Fatalf("forced Acquire() error: %v", err)
	}
	if handle.TookOverLiveOwner() {
		t.Error("takeover of a dead owner reported as live takeover")
	}
	if !handle.Record().Forced {
		t.Error("forced takeover not recorded in lock record")
	}
	handle.Release()
}

func TestManager_ForceTakesOverLive(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return true })
	path := testLockPath(t)

	if _, err := m.Acquire(path, "demo", Options{}); err != nil {
		t.Fatal(err)
	}

	handle, err := m.Acquire(path, "demo", Options{Force: true})
	if err != nil {
		t.Fatalf("forced Acquire() over live owner error: %v", err)
	}
	if !handle.TookOverLiveOwner() {
		t.Error("live takeover not reported by handle")
	}
	handle.Release()
}

func TestManager_MinTTLEnforced(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return true })

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return now })

	path := testLockPath(t)
	if _, err := m.Acquire(path, "demo", Options{TTL: time.Second}); err != nil {
		t.Fatal(err)
	}

	// 30s later: a 1s TTL would call this stale, but the enforced
	// minimum keeps it a live conflict.
	now = now.Add(30 * time.Second)
	_, err := m.Acquire(path, "demo", Options{TTL: time.Second})
	var concurrent *ConcurrentExecutionError
	if !errors.As(err, &concurrent) {
		t.Fatalf("Acquire() error = %v, want ConcurrentExecutionError (min TTL enforced)", err)
	}
}

func TestManager_IndependentSpecsDoNotContend(t *testing.T) {
	m := NewManager()
	m.SetLivenessProbe(func(pid int) bool { return true })
	dir := t.TempDir()

	a, err := m.Acquire(filepath.Join(dir, "spec-a", "lock.json"), "spec-a", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()

	b, err := m.Acquire(filepath.Join(dir, "spec-b", "lock.json"), "spec-b", Options{})
	if err != nil {
		t.Fatalf("second spec contended with first: %v", err)
	}
	b.Release()
}

func TestManager_Inspect(t *testing.T) {
	m := NewManager()
	path := testLockPath(t)

	record, _, err := m.Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if record != nil {
		t.Error("Inspect() of absent lock returned a record")
	}

	handle, err := m.Acquire(path, "demo", Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer handle.Release()

	record, _, err = m.Inspect(path)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.SpecID != "demo" {
		t.Errorf("Inspect() = %+v, want record for demo", record)
	}
}
