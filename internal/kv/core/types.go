// Package core defines the key-value persistence contract implemented by the
// infra drivers. Values are opaque; every Set overwrites the whole value.
package core

import (
	"context"
	"errors"
)

// Driver identifies a concrete key-value backend.
type Driver string

const (
	// DriverMemory keeps values in process memory (tests, ephemeral runs).
	DriverMemory Driver = "memory"
	// DriverSQLite persists to an embedded sqlite file (default).
	DriverSQLite Driver = "sqlite"
	// DriverPostgres persists to a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Store is a durable string-keyed byte store.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	// Remove deletes key; removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	Close() error
	Driver() Driver
}

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// ErrEmptyKey is returned when a key is blank.
var ErrEmptyKey = errors.New("kv: empty key")
