package core

import (
	"context"

	"rd3/internal/aggregate"
	"rd3/pkg/domain"
)

// AggregateDatasets recomputes the statistics of every dataset.
func (e *Engine) AggregateDatasets(ctx context.Context) (*Report, error) {
	r := e.start("aggregate-datasets")
	err := r.phase(ctx, "aggregate", func() error { return r.aggregate(ctx) })
	return e.finish(ctx, r, err)
}

func (r *run) aggregate(ctx context.Context) error {
	fetched, err := r.e.fetchAll(ctx, domain.TableSubjects, domain.TableSamples, domain.TableLabinfo, domain.LookupRelease, domain.TableDatasets)
	if err != nil {
		return err
	}
	var in aggregate.Input
	for _, row := range fetched[domain.TableSubjects] {
		in.Subjects = append(in.Subjects, domain.SubjectFromRow(row))
	}
	for _, row := range fetched[domain.TableSamples] {
		in.Samples = append(in.Samples, domain.SampleFromRow(row))
	}
	for _, row := range fetched[domain.TableLabinfo] {
		in.Experiments = append(in.Experiments, domain.ExperimentFromRow(row))
	}
	for _, row := range fetched[domain.LookupRelease] {
		in.Releases = append(in.Releases, domain.LookupFromRow(domain.LookupRelease, row))
	}
	current := make(map[string]domain.Row, len(fetched[domain.TableDatasets]))
	for _, row := range fetched[domain.TableDatasets] {
		d := domain.DatasetFromRow(row)
		in.Datasets = append(in.Datasets, d)
		current[d.ID] = row
	}

	datasets := aggregate.Aggregate(in)
	rows := make([]domain.Row, len(datasets))
	for i, d := range datasets {
		rows[i] = d.Row()
	}
	_, err = r.upsert(ctx, domain.TableDatasets, rows, current, viaRows)
	return err
}
