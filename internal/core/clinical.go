package core

import (
	"context"
	"fmt"
	"path"
	"strings"

	"rd3/internal/cluster"
	"rd3/pkg/domain"
)

// Cluster sub-directories of a release.
const (
	pedDir         = "ped"
	phenopacketDir = "phenopacket"
)

// subjectEdits accumulates subject updates in first-touch order.
type subjectEdits struct {
	base  map[string]domain.Subject
	next  map[string]domain.Subject
	order []string
}

func newSubjectEdits(base map[string]domain.Subject) *subjectEdits {
	return &subjectEdits{base: base, next: map[string]domain.Subject{}}
}

func (s *subjectEdits) get(id string) (domain.Subject, bool) {
	if subj, ok := s.next[id]; ok {
		return subj, true
	}
	subj, ok := s.base[id]
	return subj, ok
}

func (s *subjectEdits) put(subj domain.Subject) {
	if _, ok := s.next[subj.SubjectID]; !ok {
		s.order = append(s.order, subj.SubjectID)
	}
	s.next[subj.SubjectID] = subj
}

func (s *subjectEdits) records() []domain.Subject {
	out := make([]domain.Subject, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.next[id])
	}
	return out
}

func (s *subjectEdits) rows() []domain.Row { return subjectRows(s.records()) }

func validRelease(release string) error {
	release = strings.TrimSpace(release)
	if release == "" || strings.ContainsAny(release, `/\`) || release == "." || release == ".." {
		return fmt.Errorf("%w: invalid release %q", ErrValidation, release)
	}
	return nil
}

// scanRelease lists the files with ext below {root}/{release}/{sub}.
func (r *run) scanRelease(ctx context.Context, release, sub, ext string) (cluster.Listing, error) {
	dir := path.Join(r.e.opts.clusterRoot, release, sub)
	listing, err := cluster.Scan(ctx, r.e.opts.cluster, dir, ext)
	if err != nil {
		return cluster.Listing{}, fmt.Errorf("scan %s: %w", dir, err)
	}
	r.e.opts.logger.Info("release scanned", "dir", dir, "files", len(listing.Files))
	return listing, nil
}

// IngestPED applies the pedigree files of a release to known subjects.
func (e *Engine) IngestPED(ctx context.Context, release string) (*Report, error) {
	r := e.start("ingest-ped", release)
	err := r.ingestPED(ctx, release)
	return e.finish(ctx, r, err)
}

func (r *run) ingestPED(ctx context.Context, release string) error {
	if err := validRelease(release); err != nil {
		return err
	}
	var (
		w       *warehouse
		listing cluster.Listing
	)
	err := r.phase(ctx, "load", func() error {
		var err error
		if w, err = r.e.loadWarehouse(ctx, domain.TableSubjects); err != nil {
			return err
		}
		listing, err = r.scanRelease(ctx, release, pedDir, ".ped")
		return err
	})
	if err != nil {
		return err
	}

	known := w.subjectIndex()
	edits := newSubjectEdits(known)
	err = r.phase(ctx, "parse", func() error {
		for _, file := range listing.Files {
			if err := r.checkStop(file.Path); err != nil {
				return err
			}
			records, err := r.readPED(ctx, listing, file)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.structuralError(err)
				continue
			}
			for _, rec := range records {
				subj, ok := edits.get(rec.SubjectID)
				if !ok {
					r.unresolved(rec.SubjectID)
					continue
				}
				edits.put(applyPedigree(subj, rec, known))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.phase(ctx, "write", func() error {
		_, err := r.upsert(ctx, domain.TableSubjects, edits.rows(), w.raw[domain.TableSubjects], viaCSV)
		return err
	})
}

func (r *run) readPED(ctx context.Context, listing cluster.Listing, file cluster.Entry) ([]cluster.PedRecord, error) {
	if err := listing.VerifyChecksum(ctx, r.e.opts.cluster, file); err != nil {
		return nil, err
	}
	rc, err := r.e.opts.cluster.Open(ctx, file.Path)
	if err != nil {
		return nil, &cluster.StructuralError{Path: file.Path, Reason: "open", Err: err}
	}
	defer func() { _ = rc.Close() }()
	records, skipped, err := cluster.ReadPED(rc, file.Path, r.e.mapper)
	if err != nil {
		return nil, &cluster.StructuralError{Path: file.Path, Reason: "read", Err: err}
	}
	for _, s := range skipped {
		r.structuralError(s)
	}
	return records, nil
}

// applyPedigree copies one PED line onto a subject. Parents that are "0",
// family ids or unknown subjects are kept only in the error columns.
func applyPedigree(subj domain.Subject, rec cluster.PedRecord, known map[string]domain.Subject) domain.Subject {
	subj.FamilyID = domain.StringPtr(rec.FamilyID)
	if rec.Sex != nil {
		subj.Sex1 = rec.Sex
	}
	if rec.Affected != nil {
		subj.ClinicalStatus = rec.Affected
	}
	subj.MaternalID, subj.ErrorMaternalID = parent(rec.MaternalID, known)
	subj.PaternalID, subj.ErrorPaternalID = parent(rec.PaternalID, known)
	return subj
}

func parent(raw string, known map[string]domain.Subject) (id, rejected *string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if raw == "0" || strings.HasPrefix(raw, "FAM") {
		return nil, &raw
	}
	if _, ok := known[raw]; !ok {
		return nil, &raw
	}
	return &raw, nil
}

func (r *run) unresolved(id string) {
	r.e.opts.logger.Warn("subject not found", "subject", id)
	r.report.Unresolved = append(r.report.Unresolved, id)
}

// IngestPhenopackets applies the phenopackets of a release to known subjects.
func (e *Engine) IngestPhenopackets(ctx context.Context, release string) (*Report, error) {
	r := e.start("ingest-phenopackets", release)
	err := r.ingestPhenopackets(ctx, release)
	return e.finish(ctx, r, err)
}

func (r *run) ingestPhenopackets(ctx context.Context, release string) error {
	if err := validRelease(release); err != nil {
		return err
	}
	var (
		w       *warehouse
		listing cluster.Listing
	)
	err := r.phase(ctx, "load", func() error {
		if err := r.e.loadLookups(ctx, domain.LookupDisease, domain.LookupPhenotype); err != nil {
			return err
		}
		var err error
		if w, err = r.e.loadWarehouse(ctx, domain.TableSubjects); err != nil {
			return err
		}
		listing, err = r.scanRelease(ctx, release, phenopacketDir, ".json")
		return err
	})
	if err != nil {
		return err
	}

	edits := newSubjectEdits(w.subjectIndex())
	var proposals []domain.Lookup
	proposed := map[string]struct{}{}
	propose := func(table domain.Table, codes []string) {
		for _, code := range codes {
			if _, ok := r.e.mapper.Known(table, code); ok {
				continue
			}
			key := string(table) + "/" + code
			if _, ok := proposed[key]; ok {
				continue
			}
			proposed[key] = struct{}{}
			proposals = append(proposals, domain.Lookup{Table: table, ID: code})
		}
	}

	err = r.phase(ctx, "parse", func() error {
		for _, file := range listing.Files {
			if err := r.checkStop(file.Path); err != nil {
				return err
			}
			if err := listing.VerifyChecksum(ctx, r.e.opts.cluster, file); err != nil {
				r.structuralError(err)
				continue
			}
			pp, err := cluster.ReadPhenopacket(ctx, r.e.opts.cluster, file.Path, r.e.opts.phenopacketTimeout, r.e.mapper)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.structuralError(err)
				continue
			}
			for _, warning := range pp.Warnings {
				r.warnings = append(r.warnings, pp.Path+": "+warning)
			}
			subj, ok := edits.get(pp.SubjectID)
			if !ok {
				r.unresolved(pp.SubjectID)
				continue
			}
			subj = applyPhenopacket(subj, pp, r.e.mapper.Diseases(pp.Diseases))
			propose(domain.LookupPhenotype, subj.Phenotype)
			propose(domain.LookupPhenotype, subj.HasNotPhenotype)
			propose(domain.LookupDisease, subj.Disease)
			edits.put(subj)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.phase(ctx, "write", func() error {
		failed, err := r.writeLookups(ctx, proposals)
		if err != nil {
			return err
		}
		rows, dropped := withhold(failed, domain.TableSubjects, edits.records(), subjectRefs)
		if dropped > 0 {
			r.e.opts.logger.Warn("rows withheld: referenced record not written", "table", domain.TableSubjects, "rows", dropped)
		}
		_, err = r.upsert(ctx, domain.TableSubjects, rows, w.raw[domain.TableSubjects], viaCSV)
		return err
	})
}

// applyPhenopacket replaces the clinical codes of subj. Sex is only filled
// when the subject has none.
func applyPhenopacket(subj domain.Subject, pp cluster.Phenopacket, diseases []string) domain.Subject {
	subj.Phenotype = pp.Phenotypes
	subj.HasNotPhenotype = pp.NegatedPhenotypes
	subj.Disease = diseases
	if subj.Sex1 == nil && pp.Sex != nil {
		subj.Sex1 = pp.Sex
	}
	if pp.DateOfBirth != nil {
		subj.DateOfBirth = pp.DateOfBirth
	}
	if len(pp.Onsets) > 0 {
		subj.AgeOfOnset = domain.StringPtr(strings.Join(pp.Onsets, ","))
	}
	return subj
}
