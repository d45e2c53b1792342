// Package postgres mirrors catalog tables into PostgreSQL, reusing the
// in-memory store for reads and write semantics.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"rd3/internal/gateway/core"
	"rd3/internal/infra/catalog/memory"
	"rd3/pkg/domain"
)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/rd3?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists catalog tables to Postgres, one JSONB payload per table.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

var _ core.Backend = (*Store)(nil)

// NewStore opens a Postgres-backed store using dsn (falls back to defaultDSN),
// ensures the snapshot table exists and hydrates the in-memory tables.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverPostgres }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var table map[string]domain.Row
		if err := json.Unmarshal(payload, &table); err != nil {
			return nil, fmt.Errorf("decode %s: %w", bucket, err)
		}
		snapshot[domain.Table(bucket)] = table
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, table domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.ExportTable(table))
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, string(table), data); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) persistAfter(ctx context.Context, table domain.Table, writeErr error) error {
	if errors.Is(writeErr, core.ErrCanonicalDelete) {
		return writeErr
	}
	if err := s.persist(ctx, table); err != nil {
		return errors.Join(writeErr, err)
	}
	return writeErr
}

// UpsertRows implements core.Backend.
func (s *Store) UpsertRows(ctx context.Context, table domain.Table, rows []domain.Row) error {
	return s.persistAfter(ctx, table, s.Store.UpsertRows(ctx, table, rows))
}

// UpsertCSV implements core.Backend.
func (s *Store) UpsertCSV(ctx context.Context, table domain.Table, frame core.Frame) error {
	return s.persistAfter(ctx, table, s.Store.UpsertCSV(ctx, table, frame))
}

// UpdateAttribute implements core.Backend.
func (s *Store) UpdateAttribute(ctx context.Context, table domain.Table, attr string, rows []domain.Row) error {
	return s.persistAfter(ctx, table, s.Store.UpdateAttribute(ctx, table, attr, rows))
}

// DeleteList implements core.Backend.
func (s *Store) DeleteList(ctx context.Context, table domain.Table, ids []string) error {
	return s.persistAfter(ctx, table, s.Store.DeleteList(ctx, table, ids))
}

// DeleteAll implements core.Backend.
func (s *Store) DeleteAll(ctx context.Context, table domain.Table) error {
	return s.persistAfter(ctx, table, s.Store.DeleteAll(ctx, table))
}

// Logout closes the connection pool.
func (s *Store) Logout(context.Context) error { return s.db.Close() }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
