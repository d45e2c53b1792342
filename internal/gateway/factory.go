package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"rd3/internal/infra/catalog/httpapi"
	"rd3/internal/infra/catalog/memory"
	"rd3/internal/infra/catalog/postgres"
	"rd3/internal/infra/catalog/sqlite"
)

// Options selects and configures a backend driver.
type Options struct {
	Driver            Driver
	Host              string
	Token             string
	Username          string
	Password          string
	Retries           int
	RequestsPerSecond float64
	Timeout           time.Duration
	SQLitePath        string
	PostgresDSN       string
	Logger            retryablehttp.LeveledLogger
	Observe           func(method string, status int)
}

// Open returns the backend named by opts.Driver (default http).
func Open(ctx context.Context, opts Options) (Backend, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverHTTP
	}
	switch driver {
	case DriverHTTP:
		return httpapi.New(ctx, httpapi.Config{
			Host:              opts.Host,
			Token:             opts.Token,
			Username:          opts.Username,
			Password:          opts.Password,
			Retries:           opts.Retries,
			RequestsPerSecond: opts.RequestsPerSecond,
			Timeout:           opts.Timeout,
			Logger:            opts.Logger,
			Observe:           opts.Observe,
		})
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverSQLite:
		return sqlite.NewStore(ctx, opts.SQLitePath)
	case DriverPostgres:
		return postgres.NewStore(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown backend driver %s", driver)
	}
}

// MemoryStore is the in-process backend, exposed for tests and dry runs
// that seed or inspect tables directly.
type MemoryStore = memory.Store

// NewMemory returns an empty in-process backend.
func NewMemory() *MemoryStore { return memory.NewStore() }
