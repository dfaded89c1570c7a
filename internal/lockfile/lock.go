// Package lockfile provides cross-process mutual exclusion for one
// spec, built on exclusive file creation. The lock file records its
// owner; a lock whose owner is dead or older than its TTL is stale and
// may be reclaimed with force.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"specpilot/internal/fsatomic"
	"specpilot/internal/version"
)

// DefaultTTL is the default lock staleness threshold.
const DefaultTTL = 15 * time.Minute

// MinTTL is the enforced lower bound on the staleness threshold; a
// shorter TTL would reclaim locks out from under healthy long phases.
const MinTTL = 1 * time.Minute

// Record is the on-disk lock content identifying the owner.
type Record struct {
	PID          int       `json:"pid"`
	PIDStartTime time.Time `json:"pid_start_time"`
	CreatedAt    time.Time `json:"created_at"`
	SpecID       string    `json:"spec_id"`
	ToolVersion  string    `json:"tool_version"`
	// Forced is true when this ownership was taken over an existing
	// record with --force.
	Forced bool `json:"forced,omitempty"`
}

// ConcurrentExecutionError reports a lock held by a live, non-stale
// process.
type ConcurrentExecutionError struct {
	PID int
	Age time.Duration
}

func (e *ConcurrentExecutionError) Error() string {
	return fmt.Sprintf("another process (pid %d) has been running this spec for %s", e.PID, e.Age.Round(time.Second))
}

// StaleLockError reports a lock whose owner is dead or past its TTL.
// It is resolved only by an explicit force acquisition.
type StaleLockError struct {
	PID       int
	Age       time.Duration
	TTL       time.Duration
	OwnerDead bool
}

func (e *StaleLockError) Error() string {
	if e.OwnerDead {
		return fmt.Sprintf("stale lock: owning process %d no longer exists (use --force to take over)", e.PID)
	}
	return fmt.Sprintf("stale lock: held by pid %d for %s, past the %s TTL (use --force to take over)", e.PID, e.Age.Round(time.Second), e.TTL)
}

// Manager acquires and releases per-spec locks. The zero value is not
// usable; construct with NewManager.
type Manager struct {
	// now is the clock, injectable for tests.
	now func() time.Time
	// pidAlive probes whether a pid exists on this host.
	pidAlive func(pid int) bool
}

// NewManager creates a lock manager using the real clock and the host
// process table.
func NewManager() *Manager {
	return &Manager{
		now:      time.Now,
		pidAlive: pidAlive,
	}
}

// SetClock overrides the manager's clock. Used by tests.
func (m *Manager) SetClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

// SetLivenessProbe overrides the pid liveness check. Used by tests.
func (m *Manager) SetLivenessProbe(probe func(pid int) bool) {
	if probe != nil {
		m.pidAlive = probe
	}
}

// Options configures one acquisition.
type Options struct {
	// Force takes over an existing lock, stale or live. A forced
	// takeover of a live lock is recorded in the new lock record.
	Force bool
	// TTL is the staleness threshold; zero means DefaultTTL. Values
	// below MinTTL are raised to MinTTL.
	TTL time.Duration
}

// Acquire takes the lock at path for specID. It fails with
// ConcurrentExecutionError when a live, non-stale lock exists, or with
// StaleLockError when the existing lock is reclaimable but Force was
// not set. The lock directory is created if absent.
func (m *Manager) Acquire(path, specID string, opts Options) (*Handle, error) {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		ttl = MinTTL
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	record := Record{
		PID:          os.Getpid(),
		PIDStartTime: processStartTime(),
		CreatedAt:    m.now().UTC(),
		SpecID:       specID,
		ToolVersion:  version.Get(),
	}

	// The happy path is an atomic exclusive create, never a
	// check-then-write race.
	err := m.createExclusive(path, record)
	if err == nil {
		return &Handle{path: path, record: record}, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	existing, age, readErr := m.inspect(path)
	if readErr != nil {
		// Unreadable lock content still proves someone created it;
		// only force may replace it.
		if !opts.Force {
			return nil, fmt.Errorf("lock exists but is unreadable at %s: %w (use --force to take over)", path, readErr)
		}
		return m.takeOver(path, record, true)
	}

	alive := m.pidAlive(existing.PID)
	stale := age > ttl

	if alive && !stale {
		if !opts.Force {
			return nil, &ConcurrentExecutionError{PID: existing.PID, Age: age}
		}
		// Forced takeover of a live owner: allowed as an operator
		// escape hatch, recorded in the new record.
		return m.takeOver(path, record, true)
	}

	if !opts.Force {
		return nil, &StaleLockError{PID: existing.PID, Age: age, TTL: ttl, OwnerDead: !alive}
	}
	return m.takeOver(path, record, false)
}

// createExclusive writes the record through O_CREATE|O_EXCL so creation
// fails if any record already exists.
func (m *Manager) createExclusive(path string, record Record) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return err
		}
		return fmt.Errorf("create lock file: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode lock record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("write lock record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("sync lock file: %w", err)
	}
	return f.Close()
}

// takeOver atomically replaces an existing lock record with new
// ownership.
func (m *Manager) takeOver(path string, record Record, liveOwner bool) (*Handle, error) {
	record.Forced = true
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode lock record: %w", err)
	}
	if _, err := fsatomic.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("take over lock: %w", err)
	}
	return &Handle{path: path, record: record, tookOverLive: liveOwner}, nil
}

// inspect loads the existing record and computes its age.
func (m *Manager) inspect(path string) (Record, time.Duration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, 0, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, 0, fmt.Errorf("decode lock record: %w", err)
	}
	return record, m.now().UTC().Sub(record.CreatedAt), nil
}

// Inspect returns the current lock record and its age, or nil if no
// lock is held. Used by read-only status queries.
func (m *Manager) Inspect(path string) (*Record, time.Duration, error) {
	record, age, err := m.inspect(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return &record, age, nil
}

// Handle represents held ownership of a lock. Release removes the
// on-disk record; callers defer Release so any clean unwind of the
// guarded operation releases the lock. A hard process crash leaves the
// record for the next caller's staleness check.
type Handle struct {
	path         string
	record       Record
	tookOverLive bool
	once         sync.Once
}

// Record returns the record this handle wrote.
func (h *Handle) Record() Record { return h.record }

// TookOverLiveOwner reports whether acquisition forcibly displaced a
// live, non-stale owner.
func (h *Handle) TookOverLiveOwner() bool { return h.tookOverLive }

// Release removes the lock record. Safe to call more than once.
func (h *Handle) Release() error {
	var err error
	h.once.Do(func() {
		if rmErr := os.Remove(h.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = fmt.Errorf("release lock: %w", rmErr)
		}
	})
	return err
}
