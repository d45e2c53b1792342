package triage

import (
	"strings"

	"rd3/pkg/domain"
)

// shipment is a shipment row after identifier resolution and vocabulary mapping.
type shipment struct {
	row          domain.ShipmentRow
	subjectID    string
	sampleID     string
	ern          *string
	tissue       *string
	material     *string
	organisation *domain.Lookup
	orgKnown     bool

	subject   domain.Subject
	hasSubj   bool
	sample    domain.Sample
	hasSample bool
}

// SampleID resolves the sample identifier of a shipment row. Novel-omics
// rows that only carry a subproject are keyed by "VS" + rdconnect_id.
func SampleID(row domain.ShipmentRow) string {
	if row.SampleID != "" {
		return row.SampleID
	}
	if row.Subproject != "" && row.RDConnectID != "" {
		return "VS" + row.RDConnectID
	}
	return ""
}

type shipmentRule struct {
	name string
	eval func(t *Triager, s *shipment, res *domain.Result)
}

var shipmentRules = []shipmentRule{
	{name: "required_fields", eval: func(_ *Triager, s *shipment, res *domain.Result) {
		if s.subjectID == "" {
			res.Add(block("required_fields", "missing participant", domain.TableSubjects, s.row.MolgenisID))
		}
		if s.sampleID == "" {
			res.Add(block("required_fields", "missing sample", domain.TableSamples, s.row.MolgenisID))
		}
	}},
	{name: "vocabulary", eval: func(t *Triager, s *shipment, res *domain.Result) {
		var err error
		s.ern, err = t.mapper.ERN(s.row.ERN)
		mapped(res, "vocabulary", domain.LookupERN, s.subjectID, err)
		s.tissue, err = t.mapper.Tissue(s.row.TissueType)
		mapped(res, "vocabulary", domain.LookupTissueType, s.sampleID, err)
		s.material, err = t.mapper.Material(s.row.SampleType, s.row.TissueType)
		mapped(res, "vocabulary", domain.TableSamples, s.sampleID, err)
		s.organisation, s.orgKnown = t.mapper.Organisation(s.row.Organisation)
		if s.organisation != nil && !s.orgKnown {
			res.Add(warn("vocabulary", "new organisation "+s.organisation.ID, domain.LookupOrganisation, s.organisation.ID))
		}
	}},
	{name: "sample_subject", eval: func(_ *Triager, s *shipment, res *domain.Result) {
		if s.hasSample && s.subjectID != "" && s.sample.BelongsToSubject != s.subjectID {
			res.Add(block("sample_subject", "conflicting participant", domain.TableSamples, s.sampleID))
		}
	}},
	{name: "fixed_fields", eval: func(t *Triager, s *shipment, res *domain.Result) {
		if s.hasSample && differs(s.sample.TissueType, s.tissue, t.mapper.Tissue) {
			res.Add(block("fixed_fields", "conflicting tissue", domain.TableSamples, s.sampleID))
		}
		if s.hasSubj && differs(s.subject.ERN, s.ern, t.mapper.ERN) {
			res.Add(block("fixed_fields", "conflicting ERN", domain.TableSubjects, s.subjectID))
		}
		if s.hasSubj && s.organisation != nil && differs(s.subject.Organisation, &s.organisation.ID, nil) {
			res.Add(block("fixed_fields", "conflicting organisation", domain.TableSubjects, s.subjectID))
		}
	}},
}

// Shipments triages shipment staging rows. Rows are evaluated in order and
// each accepted row is visible to the rows after it, so a subject introduced
// earlier in the slice is extended rather than created twice.
func (t *Triager) Shipments(rows []domain.ShipmentRow) (*Plan, error) {
	plan := newPlan(StreamShipment)
	for _, row := range rows {
		if err := t.interrupted(); err != nil {
			return nil, err
		}
		if row.Processed {
			plan.Decisions = append(plan.Decisions, Decision{MolgenisID: row.MolgenisID, Outcome: OutcomeSkip})
			continue
		}
		s := &shipment{row: row, subjectID: strings.TrimSpace(row.ParticipantSubject), sampleID: SampleID(row)}
		s.subject, s.hasSubj = t.lookupSubject(plan, s.subjectID)
		s.sample, s.hasSample = t.lookupSample(plan, s.sampleID)

		var res domain.Result
		for _, r := range shipmentRules {
			r.eval(t, s, &res)
		}
		refs := []Ref{{domain.TableSubjects, s.subjectID}, {domain.TableSamples, s.sampleID}}
		d := decide(row.MolgenisID, res, !s.hasSubj, refs)
		plan.Decisions = append(plan.Decisions, d)
		if d.Outcome != OutcomeNew && d.Outcome != OutcomeExtend {
			continue
		}
		if s.organisation != nil && !s.orgKnown {
			plan.propose(*s.organisation)
		}
		plan.putSubject(s.buildSubject())
		plan.putSample(s.buildSample())
	}
	return plan, nil
}

func (t *Triager) lookupSubject(plan *Plan, id string) (domain.Subject, bool) {
	if id == "" {
		return domain.Subject{}, false
	}
	if s, ok := plan.subject(id); ok {
		return s, true
	}
	s, ok := t.state.Subjects[id]
	return s, ok
}

func (t *Triager) lookupSample(plan *Plan, id string) (domain.Sample, bool) {
	if id == "" {
		return domain.Sample{}, false
	}
	if s, ok := plan.sample(id); ok {
		return s, true
	}
	s, ok := t.state.Samples[id]
	return s, ok
}

func (s *shipment) orgID() *string {
	if s.organisation == nil {
		return nil
	}
	return domain.StringPtr(s.organisation.ID)
}

func (s *shipment) buildSubject() domain.Subject {
	subj := domain.Subject{SubjectID: s.subjectID, Retracted: domain.StringPtr(domain.RetractedNo)}
	if s.hasSubj {
		subj = s.subject
	}
	fill(&subj.ERN, s.ern)
	fill(&subj.Organisation, s.orgID())
	subj.PartOfRelease = extend(subj.PartOfRelease, s.row.Release)
	subj.IncludedInDatasets = extend(subj.IncludedInDatasets, s.row.Dataset)
	return subj
}

func (s *shipment) buildSample() domain.Sample {
	smp := domain.Sample{
		SampleID:         s.sampleID,
		BelongsToSubject: s.subjectID,
		Retracted:        domain.StringPtr(domain.RetractedNo),
	}
	if s.hasSample {
		smp = s.sample
	}
	fill(&smp.TissueType, s.tissue)
	fill(&smp.MaterialType, s.material)
	fill(&smp.Batch, domain.StringPtr(s.row.Batch))
	fill(&smp.ERN, s.ern)
	fill(&smp.Organisation, s.orgID())
	fill(&smp.AnalysisType, domain.StringPtr(s.row.AnalysisType))
	if s.row.RDConnectID != "" && s.row.RDConnectID != s.sampleID {
		smp.AlternativeIDs = extend(smp.AlternativeIDs, s.row.RDConnectID)
	}
	smp.PartOfRelease = extend(smp.PartOfRelease, s.row.Release)
	smp.IncludedInDatasets = extend(smp.IncludedInDatasets, s.row.Dataset)
	return smp
}
