package core

import (
	"context"
	"fmt"

	"rd3/internal/gateway"
	"rd3/internal/triage"
	"rd3/pkg/domain"
)

// IngestShipments triages the unprocessed shipment staging rows and applies
// the resulting plan.
func (e *Engine) IngestShipments(ctx context.Context) (*Report, error) {
	return e.ingest(ctx, triage.StreamShipment)
}

// IngestExperiments triages the unprocessed experiment staging rows and
// applies the resulting plan.
func (e *Engine) IngestExperiments(ctx context.Context) (*Report, error) {
	return e.ingest(ctx, triage.StreamExperiment)
}

func (e *Engine) ingest(ctx context.Context, stream triage.Stream) (*Report, error) {
	r := e.start("ingest-" + string(stream))
	err := r.ingest(ctx, stream)
	return e.finish(ctx, r, err)
}

func (r *run) ingest(ctx context.Context, stream triage.Stream) error {
	var (
		w      *warehouse
		staged []domain.Row
	)
	err := r.phase(ctx, "load", func() error {
		if err := r.e.loadLookups(ctx, stagingLookups...); err != nil {
			return err
		}
		var err error
		if w, err = r.e.loadWarehouse(ctx, canonicalTables...); err != nil {
			return err
		}
		staged, err = r.e.backend.Fetch(ctx, stream.Table(), gateway.FetchOptions{Filter: gateway.NotEq("processed", true)})
		if err != nil {
			return fmt.Errorf("fetch %s: %w", stream.Table(), err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(staged) == 0 {
		r.e.opts.logger.Info("no staging rows to process", "table", stream.Table())
		return nil
	}
	var plan *triage.Plan
	err = r.phase(ctx, "triage", func() error {
		t := triage.New(r.e.mapper, w.state(),
			triage.WithClock(r.e.opts.clock.Now),
			triage.WithInterrupt(func() error { return r.checkStop("triage row") }))
		var err error
		switch stream {
		case triage.StreamExperiment:
			rows := make([]domain.ExperimentRow, len(staged))
			for i, row := range staged {
				rows[i] = domain.ExperimentFromStagingRow(row)
			}
			plan, err = t.Experiments(rows)
		default:
			rows := make([]domain.ShipmentRow, len(staged))
			for i, row := range staged {
				rows[i] = domain.ShipmentFromRow(row)
			}
			plan, err = t.Shipments(rows)
		}
		if err != nil {
			return err
		}
		r.recordPlan(plan)
		return nil
	})
	if err != nil {
		return err
	}

	var failed map[triage.Ref]struct{}
	err = r.phase(ctx, "write", func() error {
		var err error
		failed, err = r.applyPlan(ctx, plan, w)
		return err
	})
	if err != nil {
		return err
	}
	err = r.phase(ctx, "staging", func() error {
		if err := r.flip(ctx, plan.StagingUpdates(failed)); err != nil {
			return err
		}
		return r.writeErrorCounts(ctx, string(stream), r.report.Errors)
	})
	if err != nil {
		return err
	}
	return r.phase(ctx, "aggregate", func() error { return r.aggregate(ctx) })
}

// recordPlan copies the triage outcome into the report and metrics.
func (r *run) recordPlan(plan *triage.Plan) {
	stream := string(plan.Stream)
	counts := plan.Counts()
	r.report.Outcomes = make(map[string]int, len(counts))
	for _, o := range triage.Outcomes {
		if n := counts[o]; n > 0 {
			r.report.Outcomes[string(o)] = n
			r.e.opts.metrics.Triaged(stream, string(o), n)
		}
	}
	for _, c := range plan.ErrorSummary() {
		r.report.Errors = append(r.report.Errors, ErrorCount{Error: c.Error, Count: c.Count})
	}
	for _, d := range plan.Decisions {
		for _, w := range d.Warnings {
			r.e.opts.logger.Debug("triage warning", "molgenis_id", d.MolgenisID, "warning", w)
		}
	}
	r.e.opts.logger.Info("triage finished", "stream", stream, "rows", len(plan.Decisions), "errors", len(r.report.Errors))
}
