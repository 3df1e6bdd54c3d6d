package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"fieldmission/internal/infra/blob/fs"
	memorystore "fieldmission/internal/infra/blob/memory"
	infraS3 "fieldmission/internal/infra/blob/s3"
)

// S3Config configures the S3 driver.
type S3Config = infraS3.Config

// Options selects and configures a blob backend.
type Options struct {
	Driver Driver
	Root   string
	S3     S3Config
}

// Open constructs the configured store. An empty driver means fs.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(opts.Root)
	case DriverS3:
		return infraS3.New(ctx, opts.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// OpenFromEnv selects a blob store using environment variables.
//
//	FIELDMISSION_BLOB_DRIVER: fs|s3|memory (default fs)
//	FIELDMISSION_BLOB_FS_ROOT: directory when driver=fs (default data/photos)
//	FIELDMISSION_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE when driver=s3
func OpenFromEnv(ctx context.Context) (Store, error) {
	return Open(ctx, Options{
		Driver: Driver(strings.ToLower(os.Getenv("FIELDMISSION_BLOB_DRIVER"))),
		Root:   os.Getenv("FIELDMISSION_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("FIELDMISSION_BLOB_S3_BUCKET"),
			Region:    os.Getenv("FIELDMISSION_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("FIELDMISSION_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("FIELDMISSION_BLOB_S3_PATH_STYLE"), "true"),
		},
	})
}

// NewMemory returns an in-memory store for tests.
func NewMemory() Store { return memorystore.New() }
