package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"rd3/internal/gateway"
	"rd3/internal/triage"
	"rd3/pkg/domain"
)

// writeMode selects the catalog write path.
type writeMode int

const (
	viaRows writeMode = iota
	viaCSV
)

// changed reports whether planned differs from current on the columns it
// carries. Provenance columns never count as a change.
func changed(planned, current domain.Row) bool {
	if current == nil {
		return true
	}
	projected := make(domain.Row, len(planned))
	for col := range planned {
		projected[col] = current[col]
	}
	return !domain.Equal(projected, planned, domain.ProvenanceColumns...)
}

// upsert writes the rows that differ from current and returns the ids the
// catalog did not apply. Canonical rows get provenance stamps. Failed
// chunks are recorded in the report and never abort the run; only a
// cancelled context does.
func (r *run) upsert(ctx context.Context, table domain.Table, rows []domain.Row, current map[string]domain.Row, mode writeMode) (map[string]struct{}, error) {
	idAttr := table.IDAttribute()
	now := r.e.opts.clock.Now().UTC().Format(time.RFC3339)
	pending := make([]domain.Row, 0, len(rows))
	for _, row := range rows {
		id := domain.FormatValue(row[idAttr])
		cur, exists := current[id]
		if !changed(row, cur) {
			continue
		}
		row = row.Clone()
		if table.IsCanonical() {
			if exists {
				row["createdBy"] = cur["createdBy"]
				row["dateRecordCreated"] = cur["dateRecordCreated"]
				row["updatedBy"] = r.e.opts.user
				row["dateRecordUpdated"] = now
			} else {
				row["createdBy"] = r.e.opts.user
				row["dateRecordCreated"] = now
			}
		}
		pending = append(pending, row)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	if r.e.opts.dryRun {
		r.e.opts.logger.Info("dry run: write skipped", "table", table, "rows", len(pending))
		r.report.addWritten(table, len(pending))
		return nil, nil
	}

	var err error
	switch mode {
	case viaCSV:
		err = r.e.backend.UpsertCSV(ctx, table, gateway.NewFrame(table, pending))
	default:
		err = r.e.backend.UpsertRows(ctx, table, pending)
	}
	failedIdx := gateway.FailedIndexes(err, len(pending))
	r.report.addWritten(table, len(pending)-len(failedIdx))
	r.e.opts.metrics.Written(table, len(pending)-len(failedIdx))
	if err == nil {
		r.e.opts.logger.Info("rows written", "table", table, "rows", len(pending))
		return nil, nil
	}
	r.recordFailure(table, err, len(pending))
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	failed := make(map[string]struct{}, len(failedIdx))
	for i := range failedIdx {
		failed[domain.FormatValue(pending[i][idAttr])] = struct{}{}
	}
	return failed, nil
}

// recordFailure adds the failed chunks of err to the report.
func (r *run) recordFailure(table domain.Table, err error, total int) {
	var we *gateway.WriteError
	if errors.As(err, &we) {
		for _, f := range we.Failures {
			r.report.FailedChunks = append(r.report.FailedChunks, ChunkFailure{
				Table: table, Offset: f.Offset, Size: f.Size, Status: f.Status, Message: failureMessage(f),
			})
		}
		r.e.opts.metrics.FailedChunks(table, len(we.Failures))
	} else {
		r.report.FailedChunks = append(r.report.FailedChunks, ChunkFailure{Table: table, Size: total, Message: err.Error()})
		r.e.opts.metrics.FailedChunks(table, 1)
	}
	r.e.opts.logger.Error("write failed", "table", table, "error", err)
}

func failureMessage(f *gateway.RequestError) string {
	if f.Message != "" {
		return f.Message
	}
	if f.Err != nil {
		return f.Err.Error()
	}
	return fmt.Sprintf("status %d", f.Status)
}

// applyPlan writes a triage plan in dependency order: lookups, subjects,
// samples, experiments, files. A record whose parent or lookup was not
// accepted is withheld and counted as failed, so the catalog never holds a
// reference to a missing row. It returns the records the catalog did not
// accept.
func (r *run) applyPlan(ctx context.Context, plan *triage.Plan, w *warehouse) (map[triage.Ref]struct{}, error) {
	failed, err := r.writeLookups(ctx, plan.Lookups)
	if err != nil {
		return nil, err
	}

	// rows are built only once the previous table is written
	steps := []struct {
		table domain.Table
		mode  writeMode
		rows  func() ([]domain.Row, int)
	}{
		{domain.TableSubjects, viaCSV, func() ([]domain.Row, int) {
			return withhold(failed, domain.TableSubjects, plan.Subjects, subjectRefs)
		}},
		{domain.TableSamples, viaRows, func() ([]domain.Row, int) {
			return withhold(failed, domain.TableSamples, plan.Samples, sampleRefs)
		}},
		{domain.TableLabinfo, viaRows, func() ([]domain.Row, int) {
			return withhold(failed, domain.TableLabinfo, plan.Experiments, experimentRefs)
		}},
		{domain.TableFiles, viaRows, func() ([]domain.Row, int) {
			return withhold(failed, domain.TableFiles, plan.Files, fileRefs)
		}},
	}
	for _, step := range steps {
		if err := r.checkStop("write " + string(step.table)); err != nil {
			return nil, err
		}
		rows, dropped := step.rows()
		if dropped > 0 {
			r.e.opts.logger.Warn("rows withheld: referenced record not written", "table", step.table, "rows", dropped)
		}
		ids, err := r.upsert(ctx, step.table, rows, w.raw[step.table], step.mode)
		if err != nil {
			return nil, err
		}
		for id := range ids {
			failed[triage.Ref{Table: step.table, ID: id}] = struct{}{}
		}
	}
	return failed, nil
}

// withhold converts records to rows, leaving out those with a reference in
// failed. Ids of the dropped records are added to failed so their own
// dependents and staging rows follow.
func withhold[T interface{ Row() domain.Row }](failed map[triage.Ref]struct{}, table domain.Table, records []T, refs func(T) (string, []triage.Ref)) ([]domain.Row, int) {
	keep := make([]domain.Row, 0, len(records))
	dropped := 0
	for _, rec := range records {
		id, parents := refs(rec)
		if !anyFailed(failed, parents) {
			keep = append(keep, rec.Row())
			continue
		}
		failed[triage.Ref{Table: table, ID: id}] = struct{}{}
		dropped++
	}
	return keep, dropped
}

func anyFailed(failed map[triage.Ref]struct{}, refs []triage.Ref) bool {
	for _, ref := range refs {
		if _, ok := failed[ref]; ok {
			return true
		}
	}
	return false
}

func subjectRefs(s domain.Subject) (string, []triage.Ref) {
	var refs []triage.Ref
	if s.Organisation != nil {
		refs = append(refs, triage.Ref{Table: domain.LookupOrganisation, ID: *s.Organisation})
	}
	for _, code := range s.Disease {
		refs = append(refs, triage.Ref{Table: domain.LookupDisease, ID: code})
	}
	for _, code := range domain.Union(s.Phenotype, s.HasNotPhenotype) {
		refs = append(refs, triage.Ref{Table: domain.LookupPhenotype, ID: code})
	}
	return s.SubjectID, refs
}

func sampleRefs(s domain.Sample) (string, []triage.Ref) {
	refs := []triage.Ref{{Table: domain.TableSubjects, ID: s.BelongsToSubject}}
	if s.Organisation != nil {
		refs = append(refs, triage.Ref{Table: domain.LookupOrganisation, ID: *s.Organisation})
	}
	return s.SampleID, refs
}

func experimentRefs(e domain.Experiment) (string, []triage.Ref) {
	return e.ExperimentID, []triage.Ref{{Table: domain.TableSamples, ID: e.SampleID}}
}

func fileRefs(f domain.File) (string, []triage.Ref) {
	var refs []triage.Ref
	if f.SubjectID != nil {
		refs = append(refs, triage.Ref{Table: domain.TableSubjects, ID: *f.SubjectID})
	}
	if f.SampleID != nil {
		refs = append(refs, triage.Ref{Table: domain.TableSamples, ID: *f.SampleID})
	}
	if f.ExperimentID != nil {
		refs = append(refs, triage.Ref{Table: domain.TableLabinfo, ID: *f.ExperimentID})
	}
	return f.EGA, refs
}

// writeLookups inserts proposed lookup rows, grouped by table. Only the ids
// the catalog accepted are registered with the mapper; the rejected ones
// are returned.
func (r *run) writeLookups(ctx context.Context, lookups []domain.Lookup) (map[triage.Ref]struct{}, error) {
	failed := map[triage.Ref]struct{}{}
	byTable := map[domain.Table][]domain.Row{}
	var tables []domain.Table
	for _, l := range lookups {
		if _, ok := byTable[l.Table]; !ok {
			tables = append(tables, l.Table)
		}
		byTable[l.Table] = append(byTable[l.Table], l.Row())
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	for _, table := range tables {
		rejected, err := r.upsert(ctx, table, byTable[table], nil, viaRows)
		if err != nil {
			return nil, err
		}
		for _, row := range byTable[table] {
			id := domain.FormatValue(row["id"])
			if _, ok := rejected[id]; ok {
				failed[triage.Ref{Table: table, ID: id}] = struct{}{}
				continue
			}
			r.e.mapper.Register(table, id)
		}
	}
	return failed, nil
}

// flip writes the staging bookkeeping columns.
func (r *run) flip(ctx context.Context, updates []domain.StagingUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	table := updates[0].Table
	idAttr := table.IDAttribute()
	columns := map[string][]domain.Row{}
	for _, u := range updates {
		var errorType any
		if u.ErrorType != "" {
			errorType = u.ErrorType
		}
		columns["processed"] = append(columns["processed"], domain.Row{idAttr: u.MolgenisID, "processed": u.Processed})
		columns["has_error"] = append(columns["has_error"], domain.Row{idAttr: u.MolgenisID, "has_error": u.HasError})
		columns["error_type"] = append(columns["error_type"], domain.Row{idAttr: u.MolgenisID, "error_type": errorType})
	}
	if r.e.opts.dryRun {
		r.e.opts.logger.Info("dry run: staging update skipped", "table", table, "rows", len(updates))
		return nil
	}
	// error columns first, so a row is never processed with stale errors
	for _, attr := range []string{"has_error", "error_type", "processed"} {
		rows := columns[attr]
		if err := r.e.backend.UpdateAttribute(ctx, table, attr, rows); err != nil {
			r.recordFailure(table, err, len(rows))
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
		}
	}
	return nil
}

// writeErrorCounts replaces the error-count rows of stream.
func (r *run) writeErrorCounts(ctx context.Context, stream string, summary []ErrorCount) error {
	table := domain.TableErrorCounts
	rows := make([]domain.Row, 0, len(summary))
	keep := map[string]struct{}{}
	for _, c := range summary {
		id := stream + ":" + c.Error
		keep[id] = struct{}{}
		rows = append(rows, domain.Row{"id": id, "stream": stream, "error_type": c.Error, "count": c.Count})
	}
	if r.e.opts.dryRun {
		return nil
	}
	existing, err := r.e.backend.Fetch(ctx, table, gateway.FetchOptions{Filter: gateway.Eq("stream", stream)})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", table, err)
	}
	var stale []string
	for _, row := range existing {
		id := domain.FormatValue(row["id"])
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		if err := r.e.backend.DeleteList(ctx, table, stale); err != nil {
			r.recordFailure(table, err, len(stale))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	if err := r.e.backend.UpsertRows(ctx, table, rows); err != nil {
		r.recordFailure(table, err, len(rows))
		return ctx.Err()
	}
	r.report.addWritten(table, len(rows))
	return nil
}

func subjectRows(records []domain.Subject) []domain.Row {
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows
}

func sampleRows(records []domain.Sample) []domain.Row {
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows
}

func experimentRows(records []domain.Experiment) []domain.Row {
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows
}

func fileRows(records []domain.File) []domain.Row {
	rows := make([]domain.Row, len(records))
	for i, rec := range records {
		rows[i] = rec.Row()
	}
	return rows
}
