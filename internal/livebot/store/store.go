// Package store opens the livebot SQLite database and brings its schema up
// to date. The tables themselves belong to the packages that use them:
// history (transcript), approvals (gate_audit) and matrix (sync state).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var schemaFiles embed.FS

// pragmas run on the single connection right after it opens.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store owns the database handle.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database file at dbPath and applies
// every migration newer than the recorded schema version.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	// Turns are handled one at a time per room; a single connection keeps
	// writers queued inside database/sql rather than on SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the handle shared by the table owners.
func (s *Store) DB() *sql.DB { return s.db }

// SchemaVersion returns the number of the newest applied migration, 0 for
// a fresh file.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}

// -----------------------------------------------------------------------------
// Migrations
// -----------------------------------------------------------------------------

// schemaStep is one embedded file named NNNN_description.sql.
type schemaStep struct {
	version int
	name    string
	file    string
}

func schemaSteps() ([]schemaStep, error) {
	entries, err := schemaFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("store: list migrations: %w", err)
	}
	steps := make([]schemaStep, 0, len(entries))
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".sql")
		if !ok || e.IsDir() {
			continue
		}
		num, name, ok := strings.Cut(base, "_")
		if !ok {
			return nil, fmt.Errorf("store: migration %q is not NNNN_name.sql", e.Name())
		}
		v, err := strconv.Atoi(num)
		if err != nil {
			return nil, fmt.Errorf("store: migration %q: bad version: %w", e.Name(), err)
		}
		steps = append(steps, schemaStep{version: v, name: name, file: e.Name()})
	}
	slices.SortFunc(steps, func(a, b schemaStep) int { return a.version - b.version })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("store: migrations %q and %q share version %d", steps[i-1].file, steps[i].file, steps[i].version)
		}
	}
	return steps, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TIMESTAMP NOT NULL
		)`); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	steps, err := schemaSteps()
	if err != nil {
		return err
	}
	for _, step := range steps {
		if step.version <= current {
			continue
		}
		if err := s.apply(ctx, step); err != nil {
			return err
		}
		slog.Info("store: schema updated", "version", step.version, "name", step.name)
	}
	return nil
}

// apply runs one migration and records it in the same transaction.
func (s *Store) apply(ctx context.Context, step schemaStep) error {
	body, err := schemaFiles.ReadFile("migrations/" + step.file)
	if err != nil {
		return fmt.Errorf("store: read %s: %w", step.file, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: migration %d: %w", step.version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("store: migration %d (%s): %w", step.version, step.name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		step.version, step.name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("store: record migration %d: %w", step.version, err)
	}
	return tx.Commit()
}
