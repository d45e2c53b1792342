// Package triage classifies unprocessed staging rows against the warehouse
// and turns the importable ones into per-table plans.
package triage

import (
	"sort"
	"strings"
	"time"

	"rd3/internal/vocab"
	"rd3/pkg/domain"
)

// Outcome is the classification of one staging row.
type Outcome string

const (
	// OutcomeNew creates the subject (and its dependents).
	OutcomeNew Outcome = "NEW"
	// OutcomeExtend attaches new data to an existing subject, sample or experiment.
	OutcomeExtend Outcome = "EXTEND"
	// OutcomeConflict leaves canonical rows untouched.
	OutcomeConflict Outcome = "CONFLICT"
	// OutcomeUnknownRef parks the row until a closed lookup or reference exists.
	OutcomeUnknownRef Outcome = "UNKNOWN_REF"
	// OutcomeMissing reports an empty required field.
	OutcomeMissing Outcome = "MISSING"
	// OutcomeSkip marks rows already processed.
	OutcomeSkip Outcome = "SKIP"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{OutcomeNew, OutcomeExtend, OutcomeConflict, OutcomeUnknownRef, OutcomeMissing, OutcomeSkip}

// Stream names the staging table a plan was built from.
type Stream string

const (
	StreamShipment   Stream = "shipment"
	StreamExperiment Stream = "experiment"
)

// Table returns the staging table backing the stream.
func (s Stream) Table() domain.Table {
	if s == StreamExperiment {
		return domain.TableExperimentStaging
	}
	return domain.TableShipmentStaging
}

// ImportFailed is recorded on staging rows whose canonical writes failed.
const ImportFailed = "import failed"

// Ref names a canonical record touched by a staging row.
type Ref struct {
	Table domain.Table
	ID    string
}

// Decision is the triage result for one staging row.
type Decision struct {
	MolgenisID string
	Outcome    Outcome
	// Errors are the blocking tokens, sorted and de-duplicated.
	Errors   []string
	Warnings []string
	// Refs are the canonical records the row contributes to.
	Refs []Ref
}

// ErrorType is the value stored in the staging error_type column.
func (d Decision) ErrorType() string { return strings.Join(d.Errors, ",") }

// State is the warehouse content staging rows are compared against.
type State struct {
	Subjects    map[string]domain.Subject
	Samples     map[string]domain.Sample
	Experiments map[string]domain.Experiment
	Files       map[string]domain.File
}

// NewState indexes canonical records by primary key.
func NewState(subjects []domain.Subject, samples []domain.Sample, experiments []domain.Experiment, files []domain.File) *State {
	s := &State{
		Subjects:    make(map[string]domain.Subject, len(subjects)),
		Samples:     make(map[string]domain.Sample, len(samples)),
		Experiments: make(map[string]domain.Experiment, len(experiments)),
		Files:       make(map[string]domain.File, len(files)),
	}
	for _, v := range subjects {
		s.Subjects[v.SubjectID] = v
	}
	for _, v := range samples {
		s.Samples[v.SampleID] = v
	}
	for _, v := range experiments {
		s.Experiments[v.ExperimentID] = v
	}
	for _, v := range files {
		s.Files[v.EGA] = v
	}
	return s
}

// Option configures a Triager.
type Option func(*Triager)

// WithClock overrides the time source used for dateCreated.
func WithClock(now func() time.Time) Option {
	return func(t *Triager) {
		if now != nil {
			t.now = now
		}
	}
}

// WithInterrupt installs a check run before each staging row; a non-nil
// error stops triage and is returned to the caller.
func WithInterrupt(check func() error) Option {
	return func(t *Triager) { t.interrupt = check }
}

// Triager classifies staging rows. It is not safe for concurrent use.
type Triager struct {
	mapper    *vocab.Mapper
	state     *State
	now       func() time.Time
	interrupt func() error
}

func (t *Triager) interrupted() error {
	if t.interrupt == nil {
		return nil
	}
	return t.interrupt()
}

// New builds a triager over the given warehouse state.
func New(m *vocab.Mapper, state *State, opts ...Option) *Triager {
	if state == nil {
		state = NewState(nil, nil, nil, nil)
	}
	t := &Triager{mapper: m, state: state, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Plan is the import-ready output of one triage pass.
type Plan struct {
	Stream      Stream
	Subjects    []domain.Subject
	Samples     []domain.Sample
	Experiments []domain.Experiment
	Files       []domain.File
	// Lookups are rows proposed for open lookup tables.
	Lookups   []domain.Lookup
	Decisions []Decision

	subjectIdx    map[string]int
	sampleIdx     map[string]int
	experimentIdx map[string]int
	fileIdx       map[string]int
	lookupIdx     map[Ref]struct{}
}

func newPlan(stream Stream) *Plan {
	return &Plan{
		Stream:        stream,
		subjectIdx:    map[string]int{},
		sampleIdx:     map[string]int{},
		experimentIdx: map[string]int{},
		fileIdx:       map[string]int{},
		lookupIdx:     map[Ref]struct{}{},
	}
}

func (p *Plan) subject(id string) (domain.Subject, bool) {
	if i, ok := p.subjectIdx[id]; ok {
		return p.Subjects[i], true
	}
	return domain.Subject{}, false
}

func (p *Plan) putSubject(s domain.Subject) {
	if i, ok := p.subjectIdx[s.SubjectID]; ok {
		p.Subjects[i] = s
		return
	}
	p.subjectIdx[s.SubjectID] = len(p.Subjects)
	p.Subjects = append(p.Subjects, s)
}

func (p *Plan) sample(id string) (domain.Sample, bool) {
	if i, ok := p.sampleIdx[id]; ok {
		return p.Samples[i], true
	}
	return domain.Sample{}, false
}

func (p *Plan) putSample(s domain.Sample) {
	if i, ok := p.sampleIdx[s.SampleID]; ok {
		p.Samples[i] = s
		return
	}
	p.sampleIdx[s.SampleID] = len(p.Samples)
	p.Samples = append(p.Samples, s)
}

func (p *Plan) experiment(id string) (domain.Experiment, bool) {
	if i, ok := p.experimentIdx[id]; ok {
		return p.Experiments[i], true
	}
	return domain.Experiment{}, false
}

func (p *Plan) putExperiment(e domain.Experiment) {
	if i, ok := p.experimentIdx[e.ExperimentID]; ok {
		p.Experiments[i] = e
		return
	}
	p.experimentIdx[e.ExperimentID] = len(p.Experiments)
	p.Experiments = append(p.Experiments, e)
}

func (p *Plan) file(id string) (domain.File, bool) {
	if i, ok := p.fileIdx[id]; ok {
		return p.Files[i], true
	}
	return domain.File{}, false
}

func (p *Plan) putFile(f domain.File) {
	if i, ok := p.fileIdx[f.EGA]; ok {
		p.Files[i] = f
		return
	}
	p.fileIdx[f.EGA] = len(p.Files)
	p.Files = append(p.Files, f)
}

func (p *Plan) propose(l domain.Lookup) {
	key := Ref{Table: l.Table, ID: l.ID}
	if _, ok := p.lookupIdx[key]; ok {
		return
	}
	p.lookupIdx[key] = struct{}{}
	p.Lookups = append(p.Lookups, l)
}

// Counts returns the number of decisions per outcome.
func (p *Plan) Counts() map[Outcome]int {
	out := make(map[Outcome]int, len(Outcomes))
	for _, d := range p.Decisions {
		out[d.Outcome]++
	}
	return out
}

// ErrorCount is one line of the error summary.
type ErrorCount struct {
	Error string
	Count int
}

// ErrorSummary groups the blocking errors of the plan by error string,
// most frequent first.
func (p *Plan) ErrorSummary() []ErrorCount {
	counts := map[string]int{}
	for _, d := range p.Decisions {
		for _, e := range d.Errors {
			counts[e]++
		}
	}
	out := make([]ErrorCount, 0, len(counts))
	for e, n := range counts {
		out = append(out, ErrorCount{Error: e, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Error < out[j].Error
	})
	return out
}

// StagingUpdates returns the bookkeeping for every triaged row. Rows that
// contributed to a record in failed stay unprocessed and are flagged
// ImportFailed.
func (p *Plan) StagingUpdates(failed map[Ref]struct{}) []domain.StagingUpdate {
	table := p.Stream.Table()
	out := make([]domain.StagingUpdate, 0, len(p.Decisions))
	for _, d := range p.Decisions {
		if d.Outcome == OutcomeSkip {
			continue
		}
		u := domain.StagingUpdate{Table: table, MolgenisID: d.MolgenisID}
		switch {
		case len(d.Errors) > 0:
			u.HasError = true
			u.ErrorType = d.ErrorType()
		case touchesAny(d.Refs, failed):
			u.HasError = true
			u.ErrorType = ImportFailed
		default:
			u.Processed = true
		}
		out = append(out, u)
	}
	return out
}

func touchesAny(refs []Ref, failed map[Ref]struct{}) bool {
	for _, r := range refs {
		if _, ok := failed[r]; ok {
			return true
		}
	}
	return false
}

// decide finalises a row: errors are sorted and de-duplicated, a missing
// field suppresses the conflict on the same field, and the outcome follows
// the most severe class present.
func decide(molgenisID string, res domain.Result, fresh bool, refs []Ref) Decision {
	errs := domain.SortedSet(res.Messages(domain.SeverityBlock))
	missing := map[string]struct{}{}
	for _, e := range errs {
		if field, ok := strings.CutPrefix(e, "missing "); ok {
			missing[field] = struct{}{}
		}
	}
	kept := errs[:0]
	for _, e := range errs {
		if field, ok := strings.CutPrefix(e, "conflicting "); ok {
			if _, dup := missing[field]; dup {
				continue
			}
		}
		kept = append(kept, e)
	}
	d := Decision{MolgenisID: molgenisID, Warnings: domain.SortedSet(res.Messages(domain.SeverityWarn))}
	if len(kept) > 0 {
		d.Errors = kept
	}
	switch {
	case hasPrefix(d.Errors, "missing "):
		d.Outcome = OutcomeMissing
	case hasPrefix(d.Errors, "unknown "):
		d.Outcome = OutcomeUnknownRef
	case len(d.Errors) > 0:
		d.Outcome = OutcomeConflict
	case fresh:
		d.Outcome = OutcomeNew
		d.Refs = refs
	default:
		d.Outcome = OutcomeExtend
		d.Refs = refs
	}
	return d
}

func hasPrefix(values []string, prefix string) bool {
	for _, v := range values {
		if strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return false
}

func block(rule, message string, table domain.Table, id string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityBlock, Message: message, Table: table, EntityID: id}
}

func warn(rule, message string, table domain.Table, id string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityWarn, Message: message, Table: table, EntityID: id}
}

// mapped turns a mapper error into an "unknown X" violation.
func mapped(res *domain.Result, rule string, table domain.Table, id string, err error) {
	if err == nil {
		return
	}
	label := "unknown value"
	if ue, ok := vocab.AsUnknown(err); ok {
		label = ue.Label()
	}
	res.Add(block(rule, label, table, id))
}

// differs reports a conflict between two set values after normalisation.
func differs(canonical, staged *string, norm func(string) (*string, error)) bool {
	if canonical == nil || staged == nil {
		return false
	}
	a, b := *canonical, *staged
	if norm != nil {
		if v, err := norm(a); err == nil && v != nil {
			a = *v
		}
	}
	return a != b
}

func fill(dst **string, v *string) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

func fillFloat(dst **float64, v *float64) {
	if *dst == nil && v != nil {
		*dst = v
	}
}

func extend(set []string, v string) []string {
	if strings.TrimSpace(v) == "" {
		return set
	}
	return domain.Union(set, []string{v})
}
