// Package core defines the persisted slot abstraction implemented by the
// storage drivers under internal/infra/slot.
package core

import (
	"context"
	"errors"
	"strings"
)

// Driver identifies a concrete slot backend.
type Driver string

const (
	// DriverMemory keeps the payload in process memory (tests, demos).
	DriverMemory Driver = "memory"
	// DriverFilesystem stores one JSON file per slot under a root directory.
	DriverFilesystem Driver = "fs"
	// DriverSQLite stores slots in a single SQLite table.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores slots in a Postgres table.
	DriverPostgres Driver = "postgres"
	// DriverMySQL stores slots in a MySQL table.
	DriverMySQL Driver = "mysql"
	// DriverS3 stores one object per slot in an S3 compatible bucket.
	DriverS3 Driver = "s3"
)

// Drivers lists the supported drivers.
func Drivers() []Driver {
	return []Driver{DriverMemory, DriverFilesystem, DriverSQLite, DriverPostgres, DriverMySQL, DriverS3}
}

// Slot is a single named value that is read once at startup and overwritten
// on every mutation.
type Slot interface {
	// Name returns the logical slot name, e.g. "treewalk:trees".
	Name() string
	// Read returns the stored payload or ErrEmpty when nothing was written yet.
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the stored payload.
	Write(ctx context.Context, payload []byte) error
	// Driver reports the backend identifier.
	Driver() Driver
	// Close releases connections held by the backend.
	Close() error
}

// ErrEmpty is returned by Read when the slot has never been written.
var ErrEmpty = errors.New("slot: empty")

// ErrInvalidName is returned when a slot name cannot be mapped to a storage key.
var ErrInvalidName = errors.New("slot: invalid name")

// KeyFor maps a slot name onto a flat storage key usable as a file or object
// name: separators and path characters become underscores.
func KeyFor(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || strings.Contains(trimmed, "..") {
		return "", ErrInvalidName
	}
	key := strings.Map(func(r rune) rune {
		switch r {
		case ':', '/', '\\', ' ':
			return '_'
		}
		return r
	}, trimmed)
	return key, nil
}
