package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"rd3/internal/vocab"
	"rd3/pkg/domain"
)

// DefaultPhenopacketTimeout bounds a single phenopacket read.
const DefaultPhenopacketTimeout = 30 * time.Second

// ErrTimeout is wrapped by the StructuralError of a read that timed out.
var ErrTimeout = errors.New("read timed out")

// Phenopacket holds the fields extracted from one phenopacket file. Codes are
// normalised (HP_, ORDO_, MIM_) and de-duplicated.
type Phenopacket struct {
	Path              string
	ID                string
	SubjectID         string
	DateOfBirth       *string
	Sex               *string
	Phenotypes        []string
	NegatedPhenotypes []string
	Diseases          []string
	Onsets            []string
	// Warnings lists codes that appeared more than once in the file.
	Warnings []string
}

type ontologyClass struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type packet struct {
	ID      string `json:"id"`
	Subject struct {
		ID          string          `json:"id"`
		DateOfBirth string          `json:"dateOfBirth"`
		Sex         json.RawMessage `json:"sex"`
	} `json:"subject"`
	PhenotypicFeatures []struct {
		Type     ontologyClass `json:"type"`
		Negated  bool          `json:"negated"`
		Excluded bool          `json:"excluded"`
	} `json:"phenotypicFeatures"`
	Diseases []struct {
		Term         ontologyClass  `json:"term"`
		ClassOfOnset *ontologyClass `json:"classOfOnset"`
		Onset        *struct {
			OntologyClass *ontologyClass `json:"ontologyClass"`
		} `json:"onset"`
	} `json:"diseases"`
}

// ReadPhenopacket loads and parses a phenopacket, giving up after timeout.
func ReadPhenopacket(ctx context.Context, fsys FS, path string, timeout time.Duration, m *vocab.Mapper) (Phenopacket, error) {
	if timeout <= 0 {
		timeout = DefaultPhenopacketTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		rc, err := fsys.Open(ctx, path)
		if err != nil {
			done <- result{err: err}
			return
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		done <- result{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Phenopacket{}, &StructuralError{Path: path, Reason: "phenopacket read", Err: ErrTimeout}
		}
		return Phenopacket{}, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return Phenopacket{}, &StructuralError{Path: path, Reason: "phenopacket read", Err: res.err}
		}
		pp, err := ParsePhenopacket(bytes.NewReader(res.data), m)
		if err != nil {
			return Phenopacket{}, &StructuralError{Path: path, Reason: "phenopacket parse", Err: err}
		}
		pp.Path = path
		return pp, nil
	}
}

// ParsePhenopacket decodes a phenopacket document, either bare or wrapped
// in a top-level "phenopacket" object.
func ParsePhenopacket(r io.Reader, m *vocab.Mapper) (Phenopacket, error) {
	var doc struct {
		Phenopacket *packet `json:"phenopacket"`
		packet
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Phenopacket{}, err
	}
	p := doc.packet
	if doc.Phenopacket != nil {
		p = *doc.Phenopacket
	}
	subjectID := strings.TrimSpace(p.Subject.ID)
	if subjectID == "" {
		return Phenopacket{}, errors.New("missing subject id")
	}
	out := Phenopacket{ID: strings.TrimSpace(p.ID), SubjectID: subjectID}
	if year := birthYear(p.Subject.DateOfBirth); year != "" {
		out.DateOfBirth = &year
	}
	if raw := sexTerm(p.Subject.Sex); raw != "" {
		sex, err := m.Sex(raw)
		if err != nil {
			return Phenopacket{}, err
		}
		out.Sex = sex
	}

	var observed, negated, diseases, onsets codeSet
	for _, f := range p.PhenotypicFeatures {
		code := vocab.Phenotype(f.Type.ID)
		if code == "" {
			continue
		}
		if f.Negated || f.Excluded {
			negated.add(code, "phenotype")
		} else {
			observed.add(code, "phenotype")
		}
	}
	for _, d := range p.Diseases {
		if code := vocab.NormalizeCode(d.Term.ID); code != "" {
			diseases.add(code, "disease")
		}
		onset := d.ClassOfOnset
		if onset == nil && d.Onset != nil {
			onset = d.Onset.OntologyClass
		}
		if onset != nil {
			if code := vocab.NormalizeCode(onset.ID); code != "" {
				onsets.add(code, "onset")
			}
		}
	}
	out.Phenotypes = observed.values()
	out.NegatedPhenotypes = negated.values()
	out.Diseases = diseases.values()
	out.Onsets = onsets.values()
	for _, s := range []*codeSet{&observed, &negated, &diseases, &onsets} {
		out.Warnings = append(out.Warnings, s.dups...)
	}
	return out, nil
}

type codeSet struct {
	seen  map[string]struct{}
	order []string
	dups  []string
}

func (s *codeSet) add(code, kind string) {
	if s.seen == nil {
		s.seen = map[string]struct{}{}
	}
	if _, ok := s.seen[code]; ok {
		s.dups = append(s.dups, fmt.Sprintf("duplicate %s %s", kind, code))
		return
	}
	s.seen[code] = struct{}{}
	s.order = append(s.order, code)
}

func (s *codeSet) values() []string { return domain.SortedSet(s.order) }

// sexTerm accepts both the enum string form and the ontology class form.
func sexTerm(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var oc ontologyClass
	if err := json.Unmarshal(raw, &oc); err == nil {
		if oc.Label != "" {
			return oc.Label
		}
		return oc.ID
	}
	return ""
}

func birthYear(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < 4 {
		return ""
	}
	for _, r := range v[:4] {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return v[:4]
}
