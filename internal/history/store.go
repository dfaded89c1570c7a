// Package history maintains a SQLite index of execution summaries for
// fast querying. The index is a convenience cache: it is never
// consulted for orchestration decisions and can be rebuilt at any time
// from the receipt files, which remain the sole source of truth.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"specpilot/internal/phase"
	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
)

// Entry is one indexed execution attempt.
type Entry struct {
	SpecID     string
	Phase      string
	EmittedAt  time.Time
	ExitCode   int
	ErrorClass string
	Strategy   string
	Provider   string
	Model      string
}

// DB wraps the SQLite history database.
type DB struct {
	conn *sql.DB
	path string
}

// DefaultPath returns the project-relative history database path.
func DefaultPath(root string) string {
	return filepath.Join(filepath.Dir(root), "history.db")
}

// Open opens (and migrates) the history database at path, creating
// parent directories as needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode allows concurrent readers while a run is indexing.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema if absent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			spec_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			emitted_at DATETIME NOT NULL,
			exit_code INT NOT NULL,
			error_class TEXT,
			strategy TEXT,
			provider TEXT,
			model TEXT,
			PRIMARY KEY (spec_id, phase, emitted_at)
		)
	`)
	if err != nil {
		return fmt.Errorf("create attempts table: %w", err)
	}
	return nil
}

// Record indexes one receipt. Re-recording the same attempt is a no-op.
func (db *DB) Record(r *receipt.Receipt) error {
	entry := Entry{
		SpecID:     r.SpecID,
		Phase:      r.Phase,
		EmittedAt:  r.EmittedAt,
		ExitCode:   r.ExitCode,
		ErrorClass: r.ErrorClass,
		Strategy:   r.Pipeline.Strategy,
	}
	if r.Backend != nil {
		entry.Provider = r.Backend.Provider
		entry.Model = r.Backend.Model
	}

	_, err := db.conn.Exec(`
		INSERT OR IGNORE INTO attempts (spec_id, phase, emitted_at, exit_code, error_class, strategy, provider, model)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.SpecID, entry.Phase, entry.EmittedAt, entry.ExitCode, entry.ErrorClass, entry.Strategy, entry.Provider, entry.Model)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// List returns indexed attempts, newest first. Empty specID lists all
// specs.
func (db *DB) List(specID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT spec_id, phase, emitted_at, exit_code, COALESCE(error_class, ''), COALESCE(strategy, ''), COALESCE(provider, ''), COALESCE(model, '')
		FROM attempts`
	args := []interface{}{}
	if specID != "" {
		query += " WHERE spec_id = ?"
		args = append(args, specID)
	}
	query += " ORDER BY emitted_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SpecID, &e.Phase, &e.EmittedAt, &e.ExitCode, &e.ErrorClass, &e.Strategy, &e.Provider, &e.Model); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Rebuild drops the index and re-derives it from the receipt files of
// every spec under root.
func (db *DB) Rebuild(root string) error {
	if _, err := db.conn.Exec("DELETE FROM attempts"); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}

	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read specs root: %w", err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		layout := specdir.New(root, e.Name())
		store := receipt.NewStore(layout.ReceiptsDir())
		for _, p := range phase.All {
			receipts, err := store.ReadAll(p)
			if err != nil {
				return fmt.Errorf("spec %s: %w", e.Name(), err)
			}
			for _, r := range receipts {
				if err := db.Record(r); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
