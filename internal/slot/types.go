// Package slot re-exports the persisted slot abstraction and wraps the infra
// drivers so callers depend on the interface only.
package slot

import "treewalk/internal/slot/core"

type (
	// Driver identifies a slot backend driver.
	Driver = core.Driver
	// Slot is the interface implemented by every backend.
	Slot = core.Slot
)

const (
	DriverMemory     = core.DriverMemory
	DriverFilesystem = core.DriverFilesystem
	DriverSQLite     = core.DriverSQLite
	DriverPostgres   = core.DriverPostgres
	DriverMySQL      = core.DriverMySQL
	DriverS3         = core.DriverS3
)

// ErrEmpty is returned by Read when nothing has been written to the slot.
var ErrEmpty = core.ErrEmpty

// ErrInvalidName is returned when a slot name cannot be used as a storage key.
var ErrInvalidName = core.ErrInvalidName
