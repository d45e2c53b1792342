// Package core defines the catalog backend contract shared by the gateway
// facade and the concrete drivers.
package core

import (
	"context"

	"rd3/pkg/domain"
)

// Driver identifies a concrete catalog backend implementation.
type Driver string

const (
	// DriverHTTP talks to the catalog REST and import endpoints.
	DriverHTTP Driver = "http"
	// DriverMemory keeps tables in process memory (tests, dry runs).
	DriverMemory Driver = "memory"
	// DriverSQLite mirrors tables into an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres mirrors tables into a PostgreSQL database.
	DriverPostgres Driver = "postgres"
)

const (
	// DefaultBatchSize is the page size used by Fetch.
	DefaultBatchSize = 10000
	// MaxChunkSize bounds the rows sent per write request.
	MaxChunkSize = 1000
)

// FetchOptions narrows a Fetch.
type FetchOptions struct {
	Filter     Filter
	Attributes []string
	BatchSize  int
}

// Backend is the row-level surface of the catalog used by the engine.
type Backend interface {
	// Fetch returns every row of table matching the options, flattened.
	Fetch(ctx context.Context, table domain.Table, opts FetchOptions) ([]domain.Row, error)
	// UpsertRows adds or replaces rows in chunks of at most MaxChunkSize.
	UpsertRows(ctx context.Context, table domain.Table, rows []domain.Row) error
	// UpsertCSV imports a whole frame through the file-import path.
	UpsertCSV(ctx context.Context, table domain.Table, frame Frame) error
	// UpdateAttribute sets a single column on existing rows.
	UpdateAttribute(ctx context.Context, table domain.Table, attr string, rows []domain.Row) error
	// DeleteList removes rows by id. Refused for canonical tables.
	DeleteList(ctx context.Context, table domain.Table, ids []string) error
	// DeleteAll clears a table. Refused for canonical tables.
	DeleteAll(ctx context.Context, table domain.Table) error
	// Logout discards the credentials held by the backend.
	Logout(ctx context.Context) error
	// Driver returns the configured backend driver.
	Driver() Driver
}

// Span is a contiguous range of rows inside a write request.
type Span struct {
	Offset int
	Size   int
}

// Chunks splits n rows into spans of at most size rows.
func Chunks(n, size int) []Span {
	if size <= 0 {
		size = MaxChunkSize
	}
	spans := make([]Span, 0, (n+size-1)/size)
	for offset := 0; offset < n; offset += size {
		end := offset + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Offset: offset, Size: end - offset})
	}
	return spans
}
