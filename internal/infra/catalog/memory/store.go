// Package memory provides an in-process catalog backend. It backs tests and
// dry runs, and is the state holder the sqlite and postgres mirrors build on.
package memory

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"rd3/internal/gateway/core"
	"rd3/pkg/domain"
)

// Snapshot is the serialisable representation of the store: table -> id -> row.
type Snapshot map[domain.Table]map[string]domain.Row

// Store keeps catalog tables in memory. Writes follow the catalog's
// add-or-update semantics: columns present in a written row replace the
// stored values, other columns are kept.
type Store struct {
	mu      sync.RWMutex
	tables  map[domain.Table]map[string]domain.Row
	rejects map[domain.Table]map[string]string
}

var _ core.Backend = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		tables:  make(map[domain.Table]map[string]domain.Row),
		rejects: make(map[domain.Table]map[string]string),
	}
}

// Driver implements core.Backend.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Seed inserts rows directly, bypassing write checks.
func (s *Store) Seed(table domain.Table, rows ...domain.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		s.put(table, row)
	}
}

// Reject makes any write chunk containing id fail with message. Used to
// exercise partial-failure handling.
func (s *Store) Reject(table domain.Table, id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejects[table] == nil {
		s.rejects[table] = make(map[string]string)
	}
	s.rejects[table][id] = message
}

// Get returns a copy of the row with the given id.
func (s *Store) Get(table domain.Table, id string) (domain.Row, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.tables[table][id]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Rows returns copies of every row of table ordered by id.
func (s *Store) Rows(table domain.Table) []domain.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(table, nil)
}

// Fetch implements core.Backend.
func (s *Store) Fetch(ctx context.Context, table domain.Table, opts core.FetchOptions) ([]domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.sorted(table, opts.Filter)
	if len(opts.Attributes) == 0 {
		return rows, nil
	}
	idAttr := table.IDAttribute()
	for i, row := range rows {
		projected := domain.Row{idAttr: row[idAttr]}
		for _, attr := range opts.Attributes {
			projected[attr] = row[attr]
		}
		rows[i] = projected
	}
	return rows, nil
}

func (s *Store) sorted(table domain.Table, filter core.Filter) []domain.Row {
	ids := make([]string, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.Row, 0, len(ids))
	for _, id := range ids {
		row := s.tables[table][id]
		if filter != nil && !filter.Match(row) {
			continue
		}
		out = append(out, row.Clone())
	}
	return out
}

// UpsertRows implements core.Backend.
func (s *Store) UpsertRows(ctx context.Context, table domain.Table, rows []domain.Row) error {
	return s.write(ctx, http.MethodPost, table, rows, func(row domain.Row) { s.put(table, row) })
}

// UpsertCSV implements core.Backend. The whole frame is one request.
func (s *Store) UpsertCSV(ctx context.Context, table domain.Table, frame core.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if failure := s.check(http.MethodPost, table, frame.Rows, 0); failure != nil {
		failure.Size = frame.Len()
		return &core.WriteError{Table: table, Failures: []*core.RequestError{failure}}
	}
	for _, row := range frame.Rows {
		s.put(table, row)
	}
	return nil
}

// UpdateAttribute implements core.Backend.
func (s *Store) UpdateAttribute(ctx context.Context, table domain.Table, attr string, rows []domain.Row) error {
	idAttr := table.IDAttribute()
	return s.write(ctx, http.MethodPut, table, rows, func(row domain.Row) {
		id := domain.FormatValue(row[idAttr])
		existing, ok := s.tables[table][id]
		if !ok {
			return
		}
		existing[attr] = cloneValue(row[attr])
	})
}

func (s *Store) write(ctx context.Context, method string, table domain.Table, rows []domain.Row, apply func(domain.Row)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	werr := &core.WriteError{Table: table}
	for _, span := range core.Chunks(len(rows), core.MaxChunkSize) {
		if err := ctx.Err(); err != nil {
			werr.Failures = append(werr.Failures, &core.RequestError{Method: method, Table: table, Offset: span.Offset, Size: len(rows) - span.Offset, Err: err})
			break
		}
		chunk := rows[span.Offset : span.Offset+span.Size]
		if failure := s.check(method, table, chunk, span.Offset); failure != nil {
			failure.Size = span.Size
			werr.Failures = append(werr.Failures, failure)
			continue
		}
		for _, row := range chunk {
			apply(row)
		}
	}
	if len(werr.Failures) > 0 {
		return werr
	}
	return nil
}

func (s *Store) check(method string, table domain.Table, rows []domain.Row, offset int) *core.RequestError {
	idAttr := table.IDAttribute()
	for _, row := range rows {
		id := domain.FormatValue(row[idAttr])
		if id == "" {
			return &core.RequestError{Method: method, Table: table, Offset: offset, Status: http.StatusBadRequest, Message: fmt.Sprintf("missing %s", idAttr)}
		}
		if msg, ok := s.rejects[table][id]; ok {
			return &core.RequestError{Method: method, Table: table, Offset: offset, Status: http.StatusBadRequest, Message: msg}
		}
	}
	return nil
}

func (s *Store) put(table domain.Table, row domain.Row) {
	id := domain.FormatValue(row[table.IDAttribute()])
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]domain.Row)
	}
	existing, ok := s.tables[table][id]
	if !ok {
		s.tables[table][id] = normalizeRow(row)
		return
	}
	for col, v := range normalizeRow(row) {
		existing[col] = v
	}
}

// DeleteList implements core.Backend.
func (s *Store) DeleteList(ctx context.Context, table domain.Table, ids []string) error {
	if table.IsCanonical() {
		return fmt.Errorf("%w: %s", core.ErrCanonicalDelete, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.tables[table], id)
	}
	return nil
}

// DeleteAll implements core.Backend.
func (s *Store) DeleteAll(ctx context.Context, table domain.Table) error {
	if table.IsCanonical() {
		return fmt.Errorf("%w: %s", core.ErrCanonicalDelete, table)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, table)
	return nil
}

// Logout implements core.Backend; there are no credentials to discard.
func (s *Store) Logout(context.Context) error { return nil }

// ExportState returns a deep copy of every table.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Snapshot, len(s.tables))
	for table, rows := range s.tables {
		out[table] = cloneTable(rows)
	}
	return out
}

// ExportTable returns a deep copy of one table.
func (s *Store) ExportTable(table domain.Table) map[string]domain.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTable(s.tables[table])
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[domain.Table]map[string]domain.Row, len(snapshot))
	for table, rows := range snapshot {
		t := make(map[string]domain.Row, len(rows))
		for id, row := range rows {
			t[id] = normalizeRow(row)
		}
		s.tables[table] = t
	}
}

func cloneTable(rows map[string]domain.Row) map[string]domain.Row {
	out := make(map[string]domain.Row, len(rows))
	for id, row := range rows {
		out[id] = row.Clone()
	}
	return out
}

// normalizeRow copies row, turning decoded JSON lists into []string.
func normalizeRow(row domain.Row) domain.Row {
	out := make(domain.Row, len(row))
	for col, v := range row {
		out[col] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			list = append(list, domain.FormatValue(item))
		}
		return list
	default:
		return v
	}
}
