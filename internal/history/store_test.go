package history

import (
	"path/filepath"
	"testing"
	"time"

	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testReceipt(specID, phaseName string, emitted time.Time, exitCode int) *receipt.Receipt {
	return &receipt.Receipt{
		SchemaVersion: receipt.SchemaVersion,
		EmittedAt:     emitted,
		SpecID:        specID,
		Phase:         phaseName,
		ExitCode:      exitCode,
		Backend:       &receipt.BackendMeta{Provider: "fake", Model: "test-model"},
		Pipeline:      receipt.PipelineMeta{RunID: "r1", Strategy: "run"},
	}
}

func TestDB_RecordAndList(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := db.Record(testReceipt("demo", "requirements", base, 0)); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := db.Record(testReceipt("demo", "design", base.Add(time.Minute), 1)); err != nil {
		t.Fatal(err)
	}

	entries, err := db.List("demo", 10)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	// Newest first.
	if entries[0].Phase != "design" || entries[1].Phase != "requirements" {
		t.Errorf("order = [%s, %s], want [design, requirements]", entries[0].Phase, entries[1].Phase)
	}
	if entries[0].ExitCode != 1 || entries[0].Model != "test-model" {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestDB_RecordIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	r := testReceipt("demo", "requirements", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), 0)
	if err := db.Record(r); err != nil {
		t.Fatal(err)
	}
	if err := db.Record(r); err != nil {
		t.Fatalf("re-recording the same attempt error: %v", err)
	}

	entries, err := db.List("demo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("List() returned %d entries after duplicate record, want 1", len(entries))
	}
}

func TestDB_ListFiltersBySpec(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := db.Record(testReceipt("alpha", "requirements", base, 0)); err != nil {
		t.Fatal(err)
	}
	if err := db.Record(testReceipt("beta", "requirements", base.Add(time.Second), 0)); err != nil {
		t.Fatal(err)
	}

	entries, err := db.List("alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SpecID != "alpha" {
		t.Errorf("List(alpha) = %+v", entries)
	}

	all, err := db.List("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("List(all) returned %d entries, want 2", len(all))
	}
}

func TestDB_Rebuild(t *testing.T) {
	root := t.TempDir()
	layout := specdir.New(root, "demo")
	if err := layout.EnsureDirs(); err != nil {
		t.Fatal(err)
	}

	store := receipt.NewStore(layout.ReceiptsDir())
	if _, err := store.Write(testReceipt("demo", "requirements", time.Time{}, 0)); err != nil {
		t.Fatal(err)
	}

	db := openTestDB(t)

	// Seed a stale row that the rebuild must discard.
	if err := db.Record(testReceipt("gone", "design", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 1)); err != nil {
		t.Fatal(err)
	}

	if err := db.Rebuild(root); err != nil {
		t.Fatalf("Rebuild() error: %v", err)
	}

	entries, err := db.List("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SpecID != "demo" || entries[0].Phase != "requirements" {
		t.Errorf("rebuilt index = %+v", entries)
	}
}

func TestDB_RebuildMissingRootIsEmpty(t *testing.T) {
	db := openTestDB(t)
	if err := db.Rebuild(filepath.Join(t.TempDir(), "absent")); err != nil {
		t.Fatalf("Rebuild() of missing root error: %v", err)
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath(filepath.Join(".specpilot", "specs"))
	want := filepath.Join(".specpilot", "history.db")
	if got != want {
		t.Errorf("DefaultPath() = %s, want %s", got, want)
	}
}
