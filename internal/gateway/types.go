// Package gateway re-exports the catalog backend contract and opens the
// configured driver.
package gateway

import (
	"rd3/internal/gateway/core"
)

type (
	// Backend is the row-level catalog surface.
	Backend = core.Backend
	// Driver identifies a catalog backend driver.
	Driver = core.Driver
	// FetchOptions narrows a Fetch.
	FetchOptions = core.FetchOptions
	// Filter restricts a Fetch.
	Filter = core.Filter
	// Frame is a tabular batch for the CSV import path.
	Frame = core.Frame
	// RequestError describes one failed catalog request.
	RequestError = core.RequestError
	// WriteError collects the failed chunks of a write.
	WriteError = core.WriteError
	// Span is a row range inside a write.
	Span = core.Span
)

const (
	DriverHTTP     = core.DriverHTTP
	DriverMemory   = core.DriverMemory
	DriverSQLite   = core.DriverSQLite
	DriverPostgres = core.DriverPostgres
)

var (
	// ErrTransport marks failures without a usable response.
	ErrTransport = core.ErrTransport
	// ErrCanonicalDelete is returned for deletes against canonical tables.
	ErrCanonicalDelete = core.ErrCanonicalDelete
	// ErrUnauthenticated is returned when no credential is available.
	ErrUnauthenticated = core.ErrUnauthenticated
)

var (
	Eq            = core.Eq
	NotEq         = core.NotEq
	In            = core.In
	And           = core.And
	NewFrame      = core.NewFrame
	FailedIndexes = core.FailedIndexes
)
