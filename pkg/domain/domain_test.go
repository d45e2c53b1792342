package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowAccessors(t *testing.T) {
	row := Row{
		"name":   "  P001 ",
		"blank":  "   ",
		"flag":   "true",
		"bad":    "maybe",
		"cov":    "31.5",
		"count":  3,
		"codes":  "HP_2, HP_1,HP_2",
		"tags":   []any{"b", "a"},
		"direct": []string{"z", "y", "z"},
	}
	assert.Equal(t, "P001", *row.Ptr("name"))
	assert.Nil(t, row.Ptr("blank"))
	assert.Nil(t, row.Ptr("missing"))
	assert.True(t, *row.Bool("flag"))
	assert.Nil(t, row.Bool("bad"))
	assert.InDelta(t, 31.5, *row.Float("cov"), 1e-9)
	assert.InDelta(t, 3.0, *row.Float("count"), 1e-9)
	assert.Equal(t, []string{"HP_1", "HP_2"}, row.List("codes"))
	assert.Equal(t, []string{"a", "b"}, row.List("tags"))
	assert.Equal(t, []string{"y", "z"}, row.List("direct"))
	assert.Nil(t, row.List("missing"))
	assert.Equal(t, []string{"bad", "blank", "codes", "count", "cov", "direct", "flag", "name", "tags"}, row.Keys())
}

func TestCloneCopiesLists(t *testing.T) {
	row := Row{"codes": []string{"a"}}
	clone := row.Clone()
	clone["codes"].([]string)[0] = "b"
	assert.Equal(t, "a", row["codes"].([]string)[0])
	assert.Nil(t, Row(nil).Clone())
}

func TestFormatValue(t *testing.T) {
	var nilStr *string
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "", FormatValue(nilStr))
	assert.Equal(t, "false", FormatValue(false))
	assert.Equal(t, "12", FormatValue(12))
	assert.Equal(t, "0.25", FormatValue(0.25))
	assert.Equal(t, "a,b", FormatValue([]string{"a", "b"}))
	assert.Equal(t, "true", FormatValue(BoolPtr(true)))
}

func TestSetHelpers(t *testing.T) {
	assert.Nil(t, SortedSet([]string{" ", ""}))
	assert.Equal(t, []string{"a", "b", "c"}, Union([]string{"c", "a"}, nil, []string{"b", "a"}))
	assert.True(t, Contains([]string{"x", "y"}, "y"))
	assert.False(t, Contains(nil, "y"))
	assert.Nil(t, SplitList(" "))
	assert.Nil(t, StringPtr("  "))
	assert.Equal(t, "", Deref(nil))
}

func TestEqualIgnoresOrderTypesAndProvenance(t *testing.T) {
	a := Row{"codes": []string{"b", "a"}, "n": 3, "flag": true, "updatedBy": "x", "note": nil}
	b := Row{"codes": "a,b", "n": 3.0, "flag": "true", "updatedBy": "y"}
	assert.True(t, Equal(a, b, ProvenanceColumns...))
	assert.False(t, Equal(a, b))

	b["note"] = "changed"
	assert.False(t, Equal(a, b, ProvenanceColumns...))
}

func TestTables(t *testing.T) {
	assert.Equal(t, "subjectID", TableSubjects.IDAttribute())
	assert.Equal(t, "EGA", TableFiles.IDAttribute())
	assert.Equal(t, "molgenis_id", TableShipmentStaging.IDAttribute())
	assert.Equal(t, "id", LookupERN.IDAttribute())
	assert.True(t, TableLabinfo.IsCanonical())
	assert.False(t, TableDatasets.IsCanonical())
	assert.True(t, LookupDisease.IsOpenLookup())
	assert.False(t, LookupERN.IsOpenLookup())
	assert.Equal(t, "rd3_release", LookupRelease.String())
}

func TestSubjectRowRoundTrip(t *testing.T) {
	s := Subject{
		SubjectID:      "P001",
		FamilyID:       StringPtr("FAM1"),
		Sex1:           StringPtr("M"),
		ClinicalStatus: BoolPtr(true),
		Disease:        []string{"ORDO_2", "ORDO_1"},
		PartOfRelease:  []string{"freeze1"},
		Provenance:     Provenance{CreatedBy: StringPtr("rd3-bot")},
	}
	row := s.Row()
	assert.Equal(t, []string{"ORDO_1", "ORDO_2"}, row["disease"])
	assert.Nil(t, row["mid"])
	assert.Nil(t, row["phenotype"])

	back := SubjectFromRow(row)
	assert.Equal(t, "FAM1", *back.FamilyID)
	assert.True(t, *back.ClinicalStatus)
	assert.Equal(t, []string{"ORDO_1", "ORDO_2"}, back.Disease)
	assert.Equal(t, "rd3-bot", *back.CreatedBy)
}

func TestTombstonesKeepIdentityOnly(t *testing.T) {
	subject := Subject{SubjectID: "P001", Sex1: StringPtr("F"), PartOfRelease: []string{"freeze1"}}.Tombstone()
	assert.Nil(t, subject.Sex1)
	assert.Equal(t, []string{"freeze1"}, subject.PartOfRelease)
	assert.Equal(t, RetractedYes, *subject.Retracted)

	sample := Sample{SampleID: "S1", BelongsToSubject: "P001", TissueType: StringPtr("Whole Blood")}.Tombstone()
	assert.Nil(t, sample.TissueType)
	assert.Equal(t, "P001", sample.BelongsToSubject)

	exp := Experiment{ExperimentID: "E1", SampleID: "S1", Capture: StringPtr("kit")}.Tombstone()
	assert.Nil(t, exp.Capture)
	assert.Equal(t, "S1", exp.SampleID)

	file := File{EGA: "EGAF1", Path: StringPtr("/x.cram"), ExperimentID: StringPtr("E1")}.Tombstone()
	assert.Nil(t, file.Path)
	assert.Equal(t, "E1", *file.ExperimentID)
	assert.Equal(t, RetractedYes, file.Row()["retracted"])
}

func TestStagingRows(t *testing.T) {
	ship := ShipmentFromRow(Row{"molgenis_id": " 7 ", "participant_subject": "P001", "processed": true, "has_error": "false"})
	assert.Equal(t, "7", ship.MolgenisID)
	assert.True(t, ship.Processed)
	assert.False(t, ship.HasError)
	assert.Equal(t, "P001", ship.Row()["participant_subject"])

	exp := ExperimentFromStagingRow(Row{"project_experiment_dataset_id": "E1", "mean_coverage": "30"})
	assert.Equal(t, "E1", exp.ExperimentID)
	require.NotNil(t, exp.MeanCoverage)
	assert.Nil(t, exp.MedianCoverage)

	ev := SolvedEventFromRow(Row{"molgenis_id": "1", "subject": "P001", "solved": "solved", "remark": ""})
	assert.Nil(t, ev.Remark)
	assert.Nil(t, ev.Row()["remark"])
}

func TestDatasetAndLookupRows(t *testing.T) {
	row := Dataset{ID: "freeze1", Type: StringPtr("WES/WGS"), NumberOfPatients: 2, ERN: []string{"ern_genturis", "ern_rnd"}}.Row()
	assert.Equal(t, "ern_genturis,ern_rnd", row["ERN"])
	assert.Equal(t, 2, row["numberOfPatients"])
	assert.Equal(t, "WES/WGS", *DatasetFromRow(row).Type)

	assert.Equal(t, Row{"id": "HP_1", "label": "HP_1"}, Lookup{Table: LookupPhenotype, ID: "HP_1"}.Row())
	assert.Equal(t, Lookup{Table: LookupERN, ID: "ern_rnd", Label: "ERN-RND"}, LookupFromRow(LookupERN, Row{"id": "ern_rnd", "label": " ERN-RND "}))
}

func TestResult(t *testing.T) {
	var r Result
	r.Add(Violation{Rule: "a", Severity: SeverityWarn, Message: "w"})
	assert.False(t, r.HasBlocking())
	r.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock, Message: "b"}}})
	r.Merge(Result{})
	assert.True(t, r.HasBlocking())
	assert.Equal(t, []string{"b"}, r.Messages(SeverityBlock))
	assert.Equal(t, []string{"w"}, r.Messages(SeverityWarn))
}
