// Package sqlite implements a slot persisted in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"treewalk/internal/slot/core"
)

const defaultPath = "treewalk.db"

// Slot stores the payload as a BLOB row keyed by slot name.
type Slot struct {
	db   *sql.DB
	name string
	path string
}

// New opens (or creates) the database at path and ensures the slots table exists.
func New(ctx context.Context, path, name string) (*Slot, error) {
	if path == "" {
		path = defaultPath
	}
	if name == "" {
		return nil, core.ErrInvalidName
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create slots table: %w", err)
	}
	return &Slot{db: db, name: name, path: path}, nil
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverSQLite }

// Path returns the configured database path.
func (s *Slot) Path() string { return s.path }

// Read returns the stored payload or core.ErrEmpty when no row exists.
func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM slots WHERE name = ?`, s.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("select slot %s: %w", s.name, err)
	}
	return payload, nil
}

// Write upserts the payload row.
func (s *Slot) Write(ctx context.Context, payload []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO slots(name,payload) VALUES(?,?) ON CONFLICT(name) DO UPDATE SET payload=excluded.payload`,
		s.name, payload); err != nil {
		return fmt.Errorf("upsert slot %s: %w", s.name, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Slot) DB() *sql.DB { return s.db }

// Close closes the database handle.
func (s *Slot) Close() error { return s.db.Close() }
