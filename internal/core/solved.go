package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rd3/internal/gateway"
	"rd3/internal/solved"
	"rd3/pkg/domain"
)

// ReconcileSolved merges the new solved-status portal rows dated date (or
// every date when date is "all") into the subjects.
func (e *Engine) ReconcileSolved(ctx context.Context, date string) (*Report, error) {
	r := e.start("reconcile-solved", date)
	err := r.reconcileSolved(ctx, date)
	return e.finish(ctx, r, err)
}

func validDate(date string) error {
	if date == solved.AllDates {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return fmt.Errorf("%w: date %q is neither %q nor YYYY-MM-DD", ErrValidation, date, solved.AllDates)
	}
	return nil
}

func (r *run) reconcileSolved(ctx context.Context, date string) error {
	if err := validDate(date); err != nil {
		return err
	}
	var (
		w      *warehouse
		portal []domain.Row
	)
	err := r.phase(ctx, "load", func() error {
		var err error
		if w, err = r.e.loadWarehouse(ctx, domain.TableSubjects); err != nil {
			return err
		}
		portal, err = r.e.backend.Fetch(ctx, domain.TableSolvedStatus, gateway.FetchOptions{Filter: gateway.Eq("process_status", domain.ProcessNew)})
		if err != nil {
			return fmt.Errorf("fetch %s: %w", domain.TableSolvedStatus, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := r.checkStop("reconcile"); err != nil {
		return err
	}

	events := make([]domain.SolvedStatusEvent, len(portal))
	current := make(map[string]domain.Row, len(portal))
	for i, row := range portal {
		events[i] = domain.SolvedEventFromRow(row)
		current[events[i].MolgenisID] = row
	}
	var res *solved.Result
	err = r.phase(ctx, "reconcile", func() error {
		var err error
		res, err = solved.Reconcile(events, w.subjectIndex(), solved.Options{
			Date:  date,
			Today: r.e.opts.clock.Now().UTC().Format(time.DateOnly),
		})
		if errors.Is(err, solved.ErrInvalidStatus) {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return err
	})
	if err != nil {
		return err
	}
	r.report.Outcomes = map[string]int{
		"updated":         res.Updated,
		"no_new_info":     res.NoNewInfo,
		"unknown_subject": res.UnknownSubject,
	}
	for _, e := range res.Events {
		if domain.Deref(e.Remark) == solved.RemarkUnknownSubject {
			r.report.Unresolved = append(r.report.Unresolved, e.Subject)
		}
	}

	return r.phase(ctx, "write", func() error {
		rows := make([]domain.Row, len(res.Subjects))
		for i, s := range res.Subjects {
			rows[i] = s.Row()
		}
		failed, err := r.upsert(ctx, domain.TableSubjects, rows, w.raw[domain.TableSubjects], viaCSV)
		if err != nil {
			return err
		}
		// portal rows stay new while their subject write is outstanding
		var eventRows []domain.Row
		for _, e := range res.Events {
			if _, ok := failed[e.Subject]; ok {
				continue
			}
			eventRows = append(eventRows, e.Row())
		}
		_, err = r.upsert(ctx, domain.TableSolvedStatus, eventRows, current, viaRows)
		return err
	})
}
