package receipt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"specpilot/internal/canonical"
	"specpilot/internal/fsatomic"
	"specpilot/internal/phase"
)

// timestampLayout produces filenames whose lexical order equals their
// chronological order. Nanosecond precision keeps rapid successive
// attempts distinct.
const timestampLayout = "20060102T150405.000000000Z"

// CorruptReceiptError reports a receipt file that exists but cannot be
// decoded. This is fatal: silently skipping it would corrupt state
// reconstruction.
type CorruptReceiptError struct {
	Path string
	Err  error
}

func (e *CorruptReceiptError) Error() string {
	return fmt.Sprintf("corrupt receipt %s: %v", e.Path, e.Err)
}

func (e *CorruptReceiptError) Unwrap() error { return e.Err }

// Store reads and writes receipt files in one spec's receipts
// directory. Receipts are immutable once written; any number of
// concurrent readers may scan the directory.
type Store struct {
	dir string
	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewStore creates a store over the given receipts directory.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// SetClock overrides the store's clock. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Dir returns the receipts directory.
func (s *Store) Dir() string { return s.dir }

// Write persists a receipt as a new immutable file and returns its
// path. Embedded arrays are normalized to their stable order before
// encoding, and the write goes through the atomic writer so readers
// never observe a half-written receipt.
func (s *Store) Write(r *Receipt) (string, error) {
	if r.EmittedAt.IsZero() {
		r.EmittedAt = s.now().UTC()
	}
	r.normalize()

	data, err := canonical.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode receipt: %w", err)
	}

	name := fmt.Sprintf("%s-%s.json", r.Phase, r.EmittedAt.UTC().Format(timestampLayout))
	path := filepath.Join(s.dir, name)

	if _, err := fsatomic.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write receipt: %w", err)
	}
	return path, nil
}

// ReadLatest loads the most recent receipt for the given phase, or nil
// if the phase has never been attempted. A structurally invalid receipt
// file surfaces as CorruptReceiptError.
func (s *Store) ReadLatest(p phase.ID) (*Receipt, error) {
	files, err := s.phaseFiles(p)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return s.load(files[len(files)-1])
}

// ReadAll loads every receipt for the given phase in chronological
// order.
func (s *Store) ReadAll(p phase.ID) ([]*Receipt, error) {
	files, err := s.phaseFiles(p)
	if err != nil {
		return nil, err
	}

	receipts := make([]*Receipt, 0, len(files))
	for _, f := range files {
		r, err := s.load(f)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

// CompletedPhases returns the set of phases whose latest state includes
// at least one successful receipt. A later failed receipt does not
// invalidate an earlier success.
func (s *Store) CompletedPhases() (map[phase.ID]bool, error) {
	completed := make(map[phase.ID]bool)
	for _, p := range phase.All {
		receipts, err := s.ReadAll(p)
		if err != nil {
			return nil, err
		}
		for _, r := range receipts {
			if r.Success() {
				completed[p] = true
				break
			}
		}
	}
	return completed, nil
}

// CurrentPhase returns the highest dependency-order phase with at least
// one successful receipt, or false if no phase has succeeded yet.
func (s *Store) CurrentPhase() (phase.ID, bool, error) {
	completed, err := s.CompletedPhases()
	if err != nil {
		return 0, false, err
	}

	var current phase.ID
	found := false
	for _, p := range phase.All {
		if completed[p] {
			current = p
			found = true
		}
	}
	return current, found, nil
}

// phaseFiles returns the receipt file paths for one phase, sorted
// lexically. Lexical order equals chronological order by construction
// of the filenames.
func (s *Store) phaseFiles(p phase.ID) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read receipts dir: %w", err)
	}

	prefix := p.String() + "-"
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".json") {
			files = append(files, filepath.Join(s.dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

// load decodes one receipt file.
func (s *Store) load(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read receipt %s: %w", path, err)
	}

	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &CorruptReceiptError{Path: path, Err: err}
	}
	if r.SpecID == "" || r.Phase == "" {
		return nil, &CorruptReceiptError{Path: path, Err: fmt.Errorf("missing required fields")}
	}
	return &r, nil
}
