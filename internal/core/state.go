package core

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"rd3/internal/gateway"
	"rd3/internal/triage"
	"rd3/pkg/domain"
)

// warehouse is the canonical state read at the start of a run. Raw rows
// are kept per table for change detection.
type warehouse struct {
	subjects    []domain.Subject
	samples     []domain.Sample
	experiments []domain.Experiment
	files       []domain.File
	raw         map[domain.Table]map[string]domain.Row
}

func (w *warehouse) state() *triage.State {
	return triage.NewState(w.subjects, w.samples, w.experiments, w.files)
}

func (w *warehouse) subjectIndex() map[string]domain.Subject {
	out := make(map[string]domain.Subject, len(w.subjects))
	for _, s := range w.subjects {
		out[s.SubjectID] = s
	}
	return out
}

// fetchAll reads several tables concurrently.
func (e *Engine) fetchAll(ctx context.Context, tables ...domain.Table) (map[domain.Table][]domain.Row, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	var mu sync.Mutex
	out := make(map[domain.Table][]domain.Row, len(tables))
	for _, table := range tables {
		g.Go(func() error {
			rows, err := e.backend.Fetch(gctx, table, gateway.FetchOptions{})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", table, err)
			}
			mu.Lock()
			out[table] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// loadWarehouse fetches the requested canonical tables.
func (e *Engine) loadWarehouse(ctx context.Context, tables ...domain.Table) (*warehouse, error) {
	fetched, err := e.fetchAll(ctx, tables...)
	if err != nil {
		return nil, err
	}
	w := &warehouse{raw: map[domain.Table]map[string]domain.Row{}}
	for table, rows := range fetched {
		idAttr := table.IDAttribute()
		index := make(map[string]domain.Row, len(rows))
		for _, row := range rows {
			index[domain.FormatValue(row[idAttr])] = row
			switch table {
			case domain.TableSubjects:
				w.subjects = append(w.subjects, domain.SubjectFromRow(row))
			case domain.TableSamples:
				w.samples = append(w.samples, domain.SampleFromRow(row))
			case domain.TableLabinfo:
				w.experiments = append(w.experiments, domain.ExperimentFromRow(row))
			case domain.TableFiles:
				w.files = append(w.files, domain.FileFromRow(row))
			}
		}
		w.raw[table] = index
	}
	return w, nil
}

// loadLookups registers the ids of the given lookup tables in the mapper.
func (e *Engine) loadLookups(ctx context.Context, tables ...domain.Table) error {
	fetched, err := e.fetchAll(ctx, tables...)
	if err != nil {
		return err
	}
	for table, rows := range fetched {
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, domain.LookupFromRow(table, row).ID)
		}
		e.mapper.Register(table, ids...)
	}
	return nil
}

var canonicalTables = []domain.Table{domain.TableSubjects, domain.TableSamples, domain.TableLabinfo, domain.TableFiles}

var stagingLookups = []domain.Table{domain.LookupERN, domain.LookupOrganisation, domain.LookupFileType, domain.LookupSeqType, domain.LookupTissueType}
