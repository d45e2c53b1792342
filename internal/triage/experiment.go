package triage

import (
	"rd3/internal/vocab"
	"rd3/pkg/domain"
)

// experiment is an experiment row after mapping, with the canonical records it touches.
type experiment struct {
	row       domain.ExperimentRow
	seqType   *string
	layout    *string
	fileType  *domain.Lookup
	fileKnown bool

	sample        domain.Sample
	hasSample     bool
	experiment    domain.Experiment
	hasExperiment bool
	file          domain.File
	hasFile       bool
}

type experimentRule struct {
	name string
	eval func(t *Triager, e *experiment, res *domain.Result)
}

var experimentRules = []experimentRule{
	{name: "required_fields", eval: func(_ *Triager, e *experiment, res *domain.Result) {
		if e.row.ExperimentID == "" {
			res.Add(block("required_fields", "missing experiment", domain.TableLabinfo, e.row.MolgenisID))
		}
		if e.row.SampleID == "" {
			res.Add(block("required_fields", "missing sample", domain.TableLabinfo, e.row.MolgenisID))
		}
		if e.row.FileEGA != "" && e.row.FilePath == "" {
			res.Add(block("required_fields", "missing file path", domain.TableFiles, e.row.FileEGA))
		}
	}},
	{name: "references", eval: func(_ *Triager, e *experiment, res *domain.Result) {
		if e.row.SampleID != "" && !e.hasSample {
			res.Add(block("references", "unknown sample", domain.TableSamples, e.row.SampleID))
		}
	}},
	{name: "vocabulary", eval: func(t *Triager, e *experiment, res *domain.Result) {
		var err error
		e.seqType, err = t.mapper.SeqType(e.row.LibraryStrategy)
		mapped(res, "vocabulary", domain.LookupSeqType, e.row.ExperimentID, err)
		e.layout, err = vocab.LibraryLayout(e.row.LibraryLayout)
		mapped(res, "vocabulary", domain.TableLabinfo, e.row.ExperimentID, err)
		if e.row.FileEGA == "" || e.row.FilePath == "" {
			return
		}
		code, err := t.mapper.FileType(e.row.FileType, e.row.FilePath)
		if ue, ok := vocab.AsUnknown(err); ok && ue.Open() {
			e.fileType = &domain.Lookup{Table: domain.LookupFileType, ID: ue.Value, Label: ue.Value}
			res.Add(warn("vocabulary", "new file type "+ue.Value, domain.LookupFileType, ue.Value))
			return
		}
		mapped(res, "vocabulary", domain.LookupFileType, e.row.FileEGA, err)
		if err == nil {
			e.fileType = &domain.Lookup{Table: domain.LookupFileType, ID: code, Label: code}
			e.fileKnown = true
		}
	}},
	{name: "sample_subject", eval: func(_ *Triager, e *experiment, res *domain.Result) {
		if e.hasSample && e.row.SubjectID != "" && e.sample.BelongsToSubject != e.row.SubjectID {
			res.Add(block("sample_subject", "conflicting participant", domain.TableSamples, e.row.SampleID))
		}
	}},
	{name: "fixed_fields", eval: func(t *Triager, e *experiment, res *domain.Result) {
		if e.hasExperiment {
			if e.row.SampleID != "" && e.experiment.SampleID != e.row.SampleID {
				res.Add(block("fixed_fields", "conflicting sample", domain.TableLabinfo, e.row.ExperimentID))
			}
			if differs(e.experiment.Capture, domain.StringPtr(e.row.CaptureKit), nil) {
				res.Add(block("fixed_fields", "conflicting kit", domain.TableLabinfo, e.row.ExperimentID))
			}
			if differs(e.experiment.SeqType, e.seqType, t.mapper.SeqType) {
				res.Add(block("fixed_fields", "conflicting seq type", domain.TableLabinfo, e.row.ExperimentID))
			}
		}
		if e.hasFile {
			if e.row.ExperimentID != "" && differs(e.file.ExperimentID, domain.StringPtr(e.row.ExperimentID), nil) {
				res.Add(block("fixed_fields", "conflicting experiment", domain.TableFiles, e.row.FileEGA))
			}
			if differs(e.file.MD5, domain.StringPtr(e.row.FileMD5), nil) {
				res.Add(block("fixed_fields", "conflicting md5", domain.TableFiles, e.row.FileEGA))
			}
		}
	}},
}

// Experiments triages experiment staging rows. The referenced sample must
// already be in the warehouse; the experiment and its file are created or
// extended.
func (t *Triager) Experiments(rows []domain.ExperimentRow) (*Plan, error) {
	plan := newPlan(StreamExperiment)
	for _, row := range rows {
		if err := t.interrupted(); err != nil {
			return nil, err
		}
		if row.Processed {
			plan.Decisions = append(plan.Decisions, Decision{MolgenisID: row.MolgenisID, Outcome: OutcomeSkip})
			continue
		}
		e := &experiment{row: row}
		if row.SampleID != "" {
			e.sample, e.hasSample = t.state.Samples[row.SampleID]
		}
		if row.ExperimentID != "" {
			if e.experiment, e.hasExperiment = plan.experiment(row.ExperimentID); !e.hasExperiment {
				e.experiment, e.hasExperiment = t.state.Experiments[row.ExperimentID]
			}
		}
		if row.FileEGA != "" {
			if e.file, e.hasFile = plan.file(row.FileEGA); !e.hasFile {
				e.file, e.hasFile = t.state.Files[row.FileEGA]
			}
		}

		var res domain.Result
		for _, r := range experimentRules {
			r.eval(t, e, &res)
		}
		refs := []Ref{{domain.TableLabinfo, row.ExperimentID}}
		if row.FileEGA != "" {
			refs = append(refs, Ref{domain.TableFiles, row.FileEGA})
		}
		d := decide(row.MolgenisID, res, !e.hasExperiment, refs)
		plan.Decisions = append(plan.Decisions, d)
		if d.Outcome != OutcomeNew && d.Outcome != OutcomeExtend {
			continue
		}
		if e.fileType != nil && !e.fileKnown {
			plan.propose(*e.fileType)
		}
		plan.putExperiment(e.buildExperiment())
		if row.FileEGA != "" {
			plan.putFile(e.buildFile(t.now().UTC().Format("2006-01-02")))
		}
	}
	return plan, nil
}

func (e *experiment) buildExperiment() domain.Experiment {
	exp := domain.Experiment{
		ExperimentID: e.row.ExperimentID,
		SampleID:     e.row.SampleID,
		Retracted:    domain.StringPtr(domain.RetractedNo),
	}
	if e.hasExperiment {
		exp = e.experiment
	}
	fill(&exp.Capture, domain.StringPtr(e.row.CaptureKit))
	fill(&exp.LibraryType, domain.StringPtr(e.row.LibraryType))
	fill(&exp.LibraryLayout, e.layout)
	fill(&exp.Sequencer, domain.StringPtr(e.row.SequencerModel))
	fill(&exp.SequencingCentre, domain.StringPtr(e.row.SequencingCentre))
	fill(&exp.SeqType, e.seqType)
	fillFloat(&exp.MedianCoverage, e.row.MedianCoverage)
	fillFloat(&exp.MeanCoverage, e.row.MeanCoverage)
	exp.PartOfRelease = extend(exp.PartOfRelease, e.row.Release)
	exp.IncludedInDatasets = extend(exp.IncludedInDatasets, e.row.Dataset)
	return exp
}

func (e *experiment) buildFile(today string) domain.File {
	f := domain.File{
		EGA:          e.row.FileEGA,
		ExperimentID: domain.StringPtr(e.row.ExperimentID),
		SampleID:     domain.StringPtr(e.row.SampleID),
		SubjectID:    domain.StringPtr(e.sample.BelongsToSubject),
		DateCreated:  domain.StringPtr(today),
		Retracted:    domain.StringPtr(domain.RetractedNo),
	}
	if e.hasFile {
		f = e.file
	}
	fill(&f.Path, domain.StringPtr(e.row.FilePath))
	fill(&f.MD5, domain.StringPtr(e.row.FileMD5))
	if e.fileType != nil {
		fill(&f.FileType, domain.StringPtr(e.fileType.ID))
	}
	f.IncludedInDatasets = extend(f.IncludedInDatasets, e.row.Dataset)
	return f
}
