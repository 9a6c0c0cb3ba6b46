// Package mysql implements a slot persisted in a MySQL table.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	driver "github.com/go-sql-driver/mysql"

	"treewalk/internal/slot/core"
)

const defaultDSN = "root@tcp(localhost:3306)/treewalk"

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Slot stores the payload as a LONGBLOB row keyed by slot name.
type Slot struct {
	db   *sql.DB
	name string
}

// New validates dsn, connects, and ensures the slots table exists.
func New(ctx context.Context, dsn, name string) (*Slot, error) {
	if name == "" {
		return nil, core.ErrInvalidName
	}
	if dsn == "" {
		dsn = defaultDSN
	}
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	if cfg.DBName == "" {
		return nil, fmt.Errorf("mysql dsn must name a database")
	}
	openMu.Lock()
	db, err := sqlOpen("mysql", cfg.FormatDSN())
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS slots (
		name VARCHAR(191) NOT NULL PRIMARY KEY,
		payload LONGBLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure slots table: %w", err)
	}
	return &Slot{db: db, name: name}, nil
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverMySQL }

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
		`INSERT INTO slots(name,payload) VALUES(?,?) ON DUPLICATE KEY UPDATE payload=VALUES(payload)`,
		s.name, payload); err != nil {
		return fmt.Errorf("upsert slot %s: %w", s.name, err)
	}
	return nil
}

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
