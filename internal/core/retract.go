package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode"

	"rd3/pkg/domain"
)

// ReadIDs reads identifiers separated by whitespace or commas. Text after
// '#' on a line is ignored and duplicates are dropped.
func ReadIDs(r io.Reader) ([]string, error) {
	var ids []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, id := range strings.FieldsFunc(line, func(c rune) bool { return c == ',' || unicode.IsSpace(c) }) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no identifiers to retract", ErrValidation)
	}
	return ids, nil
}

type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

func (s idSet) has(p *string) bool {
	if p == nil {
		return false
	}
	_, ok := s[*p]
	return ok
}

// Retract tombstones the records named by ids together with everything
// that depends on them: a subject takes its samples, a sample its
// experiments, and files follow any retracted owner. Rows are rewritten,
// never deleted. Ids may name subjects, samples, experiments or files.
func (e *Engine) Retract(ctx context.Context, ids []string) (*Report, error) {
	r := e.start("retract", ids...)
	err := r.retract(ctx, ids)
	return e.finish(ctx, r, err)
}

func (r *run) retract(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no identifiers to retract", ErrValidation)
	}
	var w *warehouse
	err := r.phase(ctx, "load", func() error {
		var err error
		w, err = r.e.loadWarehouse(ctx, canonicalTables...)
		return err
	})
	if err != nil {
		return err
	}

	subjects, samples, experiments, files := idSet{}, idSet{}, idSet{}, idSet{}
	for _, id := range ids {
		found := false
		for table, set := range map[domain.Table]idSet{
			domain.TableSubjects: subjects,
			domain.TableSamples:  samples,
			domain.TableLabinfo:  experiments,
			domain.TableFiles:    files,
		} {
			if _, ok := w.raw[table][id]; ok {
				set.add(id)
				found = true
			}
		}
		if !found {
			r.unresolved(id)
		}
	}

	var plan struct {
		subjects    []domain.Subject
		samples     []domain.Sample
		experiments []domain.Experiment
		files       []domain.File
	}
	for _, s := range w.subjects {
		if subjects.has(&s.SubjectID) {
			plan.subjects = append(plan.subjects, s.Tombstone())
		}
	}
	for _, s := range w.samples {
		if samples.has(&s.SampleID) || subjects.has(&s.BelongsToSubject) {
			samples.add(s.SampleID)
			plan.samples = append(plan.samples, s.Tombstone())
		}
	}
	for _, x := range w.experiments {
		if experiments.has(&x.ExperimentID) || samples.has(&x.SampleID) {
			experiments.add(x.ExperimentID)
			plan.experiments = append(plan.experiments, x.Tombstone())
		}
	}
	for _, f := range w.files {
		if files.has(&f.EGA) || subjects.has(f.SubjectID) || samples.has(f.SampleID) || experiments.has(f.ExperimentID) {
			plan.files = append(plan.files, f.Tombstone())
		}
	}
	r.report.Outcomes = map[string]int{
		string(domain.TableSubjects): len(plan.subjects),
		string(domain.TableSamples):  len(plan.samples),
		string(domain.TableLabinfo):  len(plan.experiments),
		string(domain.TableFiles):    len(plan.files),
	}

	err = r.phase(ctx, "write", func() error {
		steps := []struct {
			table domain.Table
			rows  []domain.Row
			mode  writeMode
		}{
			{domain.TableSubjects, subjectRows(plan.subjects), viaCSV},
			{domain.TableSamples, sampleRows(plan.samples), viaRows},
			{domain.TableLabinfo, experimentRows(plan.experiments), viaRows},
			{domain.TableFiles, fileRows(plan.files), viaRows},
		}
		for _, step := range steps {
			if err := r.checkStop("retract " + string(step.table)); err != nil {
				return err
			}
			if _, err := r.upsert(ctx, step.table, step.rows, w.raw[step.table], step.mode); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.phase(ctx, "aggregate", func() error { return r.aggregate(ctx) })
}
