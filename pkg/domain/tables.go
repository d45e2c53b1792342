// Package domain defines the canonical RD3 records, the staging row shapes,
// and the flat row representation exchanged with the catalog.
package domain

// Table identifies a catalog table.
type Table string

// Canonical tables written by the engine.
const (
	TableSubjects    Table = "rd3_subjects"
	TableSamples     Table = "rd3_samples"
	TableLabinfo     Table = "rd3_labinfo"
	TableFiles       Table = "rd3_files"
	TableDatasets    Table = "rd3_datasets"
	TableErrorCounts Table = "rd3_portal_error_counts"
)

// Staging tables filled by partner uploads.
const (
	TableShipmentStaging   Table = "rd3_portal_shipment"
	TableExperimentStaging Table = "rd3_portal_experiment"
	TableSolvedStatus      Table = "rd3_portal_recontact_solved"
)

// Lookup tables. Closed lookups reject unknown codes; open lookups grow.
const (
	LookupERN          Table = "rd3_ern"
	LookupOrganisation Table = "rd3_organisation"
	LookupFileType     Table = "rd3_filetype"
	LookupSeqType      Table = "rd3_seqtype"
	LookupTissueType   Table = "rd3_tissueType"
	LookupDisease      Table = "rd3_disease"
	LookupPhenotype    Table = "rd3_phenotype"
	LookupRelease      Table = "rd3_release"
)

var idAttributes = map[Table]string{
	TableSubjects:          "subjectID",
	TableSamples:           "sampleID",
	TableLabinfo:           "experimentID",
	TableFiles:             "EGA",
	TableDatasets:          "id",
	TableErrorCounts:       "id",
	TableShipmentStaging:   "molgenis_id",
	TableExperimentStaging: "molgenis_id",
	TableSolvedStatus:      "molgenis_id",
}

// IDAttribute returns the primary key column of table. Lookups use "id".
func (t Table) IDAttribute() string {
	if attr, ok := idAttributes[t]; ok {
		return attr
	}
	return "id"
}

// IsCanonical reports whether rows of t must never be deleted.
func (t Table) IsCanonical() bool {
	switch t {
	case TableSubjects, TableSamples, TableLabinfo, TableFiles:
		return true
	}
	return false
}

// IsOpenLookup reports whether unknown codes may be registered on the fly.
func (t Table) IsOpenLookup() bool {
	switch t {
	case LookupOrganisation, LookupFileType, LookupDisease, LookupPhenotype:
		return true
	}
	return false
}

func (t Table) String() string { return string(t) }
