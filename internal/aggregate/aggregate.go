// Package aggregate derives per-dataset statistics from the canonical tables.
package aggregate

import (
	"path"
	"sort"
	"strings"

	"rd3/pkg/domain"
)

// FreezeAnalysisType is the analysis type of experiments in freeze releases.
const FreezeAnalysisType = "WES/WGS"

const ordoPrefix = "ORDO_"

// Input is the canonical state the statistics are computed from.
type Input struct {
	Subjects    []domain.Subject
	Samples     []domain.Sample
	Experiments []domain.Experiment
	// Releases is the release registry used for display names.
	Releases []domain.Lookup
	// Datasets are the existing dataset rows; their type is preserved.
	Datasets []domain.Dataset
}

// AnalysisType derives the analysis type of an experiment from a release id.
func AnalysisType(release string, labels map[string]string) string {
	if ok, _ := path.Match("freeze*_*", release); ok {
		return FreezeAnalysisType
	}
	if label := strings.TrimSpace(labels[release]); label != "" {
		return label
	}
	return release
}

type acc struct {
	ds       domain.Dataset
	ern      []string
	analysis []string
	ordo     []string
	hpo      []string
}

// Aggregate recomputes every dataset observed in the input. Retracted
// records keep their memberships but are not counted. The result is
// ordered by dataset id and depends only on the input.
func Aggregate(in Input) []domain.Dataset {
	labels := make(map[string]string, len(in.Releases))
	for _, r := range in.Releases {
		labels[r.ID] = r.Label
	}
	byID := map[string]*acc{}
	get := func(id string) *acc {
		a, ok := byID[id]
		if !ok {
			a = &acc{ds: domain.Dataset{ID: id}}
			byID[id] = a
		}
		return a
	}
	for _, d := range in.Datasets {
		if d.ID == "" {
			continue
		}
		get(d.ID).ds.Type = d.Type
	}

	for _, s := range in.Subjects {
		if retracted(s.Retracted) {
			continue
		}
		for _, id := range s.IncludedInDatasets {
			a := get(id)
			a.ds.NumberOfPatients++
			switch domain.Deref(s.Sex1) {
			case "M":
				a.ds.NumberOfMales++
			case "F":
				a.ds.NumberOfFemales++
			default:
				a.ds.NumberOfUnknown++
			}
			if s.ERN != nil {
				a.ern = append(a.ern, *s.ERN)
			}
			a.ordo = append(a.ordo, ordo(flatten(s.Disease))...)
			a.hpo = append(a.hpo, flatten(s.Phenotype)...)
		}
	}
	for _, s := range in.Samples {
		if retracted(s.Retracted) {
			continue
		}
		for _, id := range s.IncludedInDatasets {
			get(id).ds.NumberOfSamples++
		}
	}
	for _, e := range in.Experiments {
		if retracted(e.Retracted) {
			continue
		}
		var types []string
		for _, r := range e.PartOfRelease {
			types = append(types, AnalysisType(r, labels))
		}
		for _, id := range e.IncludedInDatasets {
			a := get(id)
			a.ds.NumberOfExperiments++
			a.analysis = append(a.analysis, types...)
		}
	}

	out := make([]domain.Dataset, 0, len(byID))
	for _, a := range byID {
		a.ds.ERN = domain.SortedSet(a.ern)
		a.ds.AnalysisTypes = domain.SortedSet(a.analysis)
		a.ds.OrdoCodes = domain.SortedSet(a.ordo)
		a.ds.HPOCodes = domain.SortedSet(a.hpo)
		out = append(out, a.ds)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func retracted(v *string) bool { return domain.Deref(v) == domain.RetractedYes }

// ordo keeps the Orphanet codes of a disease set; OMIM codes are not listed.
func ordo(codes []string) []string {
	var out []string
	for _, c := range codes {
		if strings.HasPrefix(strings.TrimSpace(c), ordoPrefix) {
			out = append(out, c)
		}
	}
	return out
}

// flatten splits values that still hold comma separated codes.
func flatten(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
