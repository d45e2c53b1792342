// Package blob re-exports the artifact store abstractions and selects a
// driver for OUTPUT_DIR.
package blob

import (
	"rd3/internal/blob/core"
)

type (
	// Driver identifies an artifact store driver.
	Driver = core.Driver
	// PutOptions configures an artifact write.
	PutOptions = core.PutOptions
	// Info describes stored artifact metadata.
	Info = core.Info
	// Store is the interface for artifact store backends.
	Store = core.Store
)

const (
	// DriverFilesystem is the local directory driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrNotFound indicates a missing artifact.
	ErrNotFound = core.ErrNotFound
	// ErrInvalidKey indicates a key that cannot be stored.
	ErrInvalidKey = core.ErrInvalidKey
)
