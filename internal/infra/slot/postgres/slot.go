// Package postgres implements a slot persisted in a Postgres table through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"treewalk/internal/slot/core"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/treewalk?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Slot stores the payload as a BYTEA row keyed by slot name. The column is
// not JSONB so a corrupt payload can still be read back and reported.
type Slot struct {
	db   *sql.DB
	name string
}

// New connects using dsn (falls back to defaultDSN), pings, and ensures the
// slots table exists.
func New(ctx context.Context, dsn, name string) (*Slot, error) {
	if name == "" {
		return nil, core.ErrInvalidName
	}
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		payload BYTEA NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure slots table: %w", err)
	}
	return &Slot{db: db, name: name}, nil
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverPostgres }

// Read returns the stored payload or core.ErrEmpty when no row exists.
func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM slots WHERE name = $1`, s.name).Scan(&payload)
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
		`INSERT INTO slots(name,payload) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET payload=EXCLUDED.payload`,
		s.name, payload); err != nil {
		return fmt.Errorf("upsert slot %s: %w", s.name, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Slot) DB() *sql.DB { return s.db }

// Close closes the connection pool.
func (s *Slot) Close() error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
