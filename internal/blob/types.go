// Package blob opens the object store holding captured photos. Callers depend
// on blob.Store; only this package touches the infra drivers.
package blob

import (
	"fieldmission/internal/blob/core"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a blob write.
	PutOptions = core.PutOptions
	// Info describes stored blob metadata.
	Info = core.Info
	// Store is the interface for blob storage backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory test driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound is returned for a missing blob.
	ErrNotFound = core.ErrNotFound
	// ErrExists is returned when creating an existing key.
	ErrExists = core.ErrExists
)
