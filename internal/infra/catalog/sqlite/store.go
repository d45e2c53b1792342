// Package sqlite mirrors catalog tables into a local SQLite file. Every write
// goes through the in-memory store and the touched table is then snapshotted
// as one JSON payload.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"rd3/internal/gateway/core"
	"rd3/internal/infra/catalog/memory"
	"rd3/pkg/domain"
)

// Store is a snapshotting SQLite-backed catalog.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

var _ core.Backend = (*Store)(nil)

// NewStore opens (or creates) the database at path and hydrates the
// in-memory tables from it.
func NewStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "rd3-catalog.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverSQLite }

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var table map[string]domain.Row
		if err := json.Unmarshal(payload, &table); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		snapshot[domain.Table(bucket)] = table
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, table domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(s.ExportTable(table))
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, string(table), data); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// persistAfter snapshots table even when the write partially failed, so the
// applied chunks are kept.
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

// Logout closes the database.
func (s *Store) Logout(context.Context) error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
