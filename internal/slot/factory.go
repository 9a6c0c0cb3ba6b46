package slot

import (
	"context"
	"fmt"

	"treewalk/internal/infra/slot/fs"
	"treewalk/internal/infra/slot/memory"
	"treewalk/internal/infra/slot/mysql"
	"treewalk/internal/infra/slot/postgres"
	infraS3 "treewalk/internal/infra/slot/s3"
	"treewalk/internal/infra/slot/sqlite"
	"treewalk/internal/slot/core"
)

// DefaultName is the slot holding the observation list.
const DefaultName = "treewalk:trees"

// S3Config re-exports the infra S3 configuration.
type S3Config = infraS3.Config

// Config selects and parameterizes a slot backend.
type Config struct {
	Driver      Driver
	Name        string
	FSRoot      string
	SQLitePath  string
	PostgresDSN string
	MySQLDSN    string
	S3          S3Config
}

// Open constructs the slot described by cfg. An empty driver selects the
// filesystem backend and an empty name selects DefaultName.
func Open(ctx context.Context, cfg Config) (Slot, error) {
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverMemory:
		return NewMemory(name), nil
	case DriverFilesystem:
		return fs.New(cfg.FSRoot, name)
	case DriverSQLite:
		return sqlite.New(ctx, cfg.SQLitePath, name)
	case DriverPostgres:
		return postgres.New(ctx, cfg.PostgresDSN, name)
	case DriverMySQL:
		return mysql.New(ctx, cfg.MySQLDSN, name)
	case DriverS3:
		return infraS3.New(ctx, cfg.S3, name)
	default:
		return nil, fmt.Errorf("unknown slot driver %q", driver)
	}
}

// ValidDriver reports whether d names a supported backend.
func ValidDriver(d Driver) bool {
	for _, known := range core.Drivers() {
		if d == known {
			return true
		}
	}
	return false
}

// Memory is the in-process slot; tests use FailNextWrite to simulate outages.
type Memory = memory.Slot

// NewMemory returns an empty in-process slot.
func NewMemory(name string) *Memory { return memory.New(name) }

// NewMockS3ForTests exposes the in-memory S3 fake for cross-package tests.
func NewMockS3ForTests(name string) (Slot, error) { return infraS3.NewMockForTests(name) }
