// Package kv opens the key-value store that holds fieldmission's local state:
// the offline queue, the session and the user preferences.
package kv

import (
	"context"
	"fmt"
	"os"
	"strings"

	"fieldmission/internal/infra/kv/memory"
	"fieldmission/internal/infra/kv/postgres"
	"fieldmission/internal/infra/kv/sqlite"
	"fieldmission/internal/kv/core"
)

type (
	// Store is the key-value persistence contract.
	Store = core.Store
	// Driver identifies a backend.
	Driver = core.Driver
)

const (
	// DriverMemory keeps values in memory only.
	DriverMemory = core.DriverMemory
	// DriverSQLite persists to an embedded sqlite file.
	DriverSQLite = core.DriverSQLite
	// DriverPostgres persists to PostgreSQL.
	DriverPostgres = core.DriverPostgres
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = core.ErrClosed

// Options selects and configures a backend.
type Options struct {
	Driver      Driver
	SQLitePath  string
	PostgresDSN string
}

// Open constructs the configured store. An empty driver means sqlite.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	switch driver {
	case DriverMemory:
		return memory.New(), nil
	case DriverSQLite:
		return sqlite.Open(ctx, opts.SQLitePath)
	case DriverPostgres:
		return postgres.Open(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenFromEnv selects a backend using environment variables.
//
//	FIELDMISSION_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FIELDMISSION_SQLITE_PATH: sqlite file (default data/fieldmission.db)
//	FIELDMISSION_POSTGRES_DSN: DSN when driver=postgres
func OpenFromEnv(ctx context.Context) (Store, error) {
	return Open(ctx, Options{
		Driver:      Driver(strings.ToLower(os.Getenv("FIELDMISSION_STORAGE_DRIVER"))),
		SQLitePath:  os.Getenv("FIELDMISSION_SQLITE_PATH"),
		PostgresDSN: os.Getenv("FIELDMISSION_POSTGRES_DSN"),
	})
}

// NewMemory returns an in-memory store.
func NewMemory() Store { return memory.New() }
