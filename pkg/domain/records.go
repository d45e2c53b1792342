package domain

import "strings"

// Retraction states stored in the `retracted` column.
const (
	RetractedYes     = "Y"
	RetractedNo      = "N"
	RetractedUnknown = "U"
)

// Provenance carries the record bookkeeping columns shared by canonical tables.
type Provenance struct {
	CreatedBy         *string
	UpdatedBy         *string
	DateRecordCreated *string
	DateRecordUpdated *string
	Comments          *string
}

func (p Provenance) put(row Row) {
	row["createdBy"] = str(p.CreatedBy)
	row["updatedBy"] = str(p.UpdatedBy)
	row["dateRecordCreated"] = str(p.DateRecordCreated)
	row["dateRecordUpdated"] = str(p.DateRecordUpdated)
	row["comments"] = str(p.Comments)
}

func provenanceFromRow(row Row) Provenance {
	return Provenance{
		CreatedBy:         row.Ptr("createdBy"),
		UpdatedBy:         row.Ptr("updatedBy"),
		DateRecordCreated: row.Ptr("dateRecordCreated"),
		DateRecordUpdated: row.Ptr("dateRecordUpdated"),
		Comments:          row.Ptr("comments"),
	}
}

// ProvenanceColumns never participate in change detection.
var ProvenanceColumns = []string{"createdBy", "updatedBy", "dateRecordCreated", "dateRecordUpdated"}

// Subject is a patient or relative registered by a partner.
type Subject struct {
	SubjectID          string
	FamilyID           *string
	MaternalID         *string
	PaternalID         *string
	ErrorMaternalID    *string
	ErrorPaternalID    *string
	Sex1               *string
	Sex2               *string
	ClinicalStatus     *bool
	Phenotype          []string
	HasNotPhenotype    []string
	Disease            []string
	ERN                *string
	Organisation       *string
	DateOfBirth        *string
	AgeOfOnset         *string
	Solved             *bool
	DateSolved         *string
	Recontact          *string
	Contact            *string
	Remarks            *string
	PartOfRelease      []string
	IncludedInDatasets []string
	Retracted          *string
	Provenance
}

// Row converts the subject into its flat catalog representation.
func (s Subject) Row() Row {
	row := Row{
		"subjectID":          s.SubjectID,
		"fid":                str(s.FamilyID),
		"mid":                str(s.MaternalID),
		"pid":                str(s.PaternalID),
		"error_mid":          str(s.ErrorMaternalID),
		"error_pid":          str(s.ErrorPaternalID),
		"sex1":               str(s.Sex1),
		"sex2":               str(s.Sex2),
		"clinical_status":    boolean(s.ClinicalStatus),
		"phenotype":          list(s.Phenotype),
		"hasNotPhenotype":    list(s.HasNotPhenotype),
		"disease":            list(s.Disease),
		"ERN":                str(s.ERN),
		"organisation":       str(s.Organisation),
		"dateofBirth":        str(s.DateOfBirth),
		"ageOfOnset":         str(s.AgeOfOnset),
		"solved":             boolean(s.Solved),
		"date_solved":        str(s.DateSolved),
		"recontact":          str(s.Recontact),
		"contact":            str(s.Contact),
		"remarks":            str(s.Remarks),
		"partOfRelease":      list(s.PartOfRelease),
		"includedInDatasets": list(s.IncludedInDatasets),
		"retracted":          str(s.Retracted),
	}
	s.Provenance.put(row)
	return row
}

// SubjectFromRow decodes a flat subject row.
func SubjectFromRow(row Row) Subject {
	return Subject{
		SubjectID:          strings.TrimSpace(row.String("subjectID")),
		FamilyID:           row.Ptr("fid"),
		MaternalID:         row.Ptr("mid"),
		PaternalID:         row.Ptr("pid"),
		ErrorMaternalID:    row.Ptr("error_mid"),
		ErrorPaternalID:    row.Ptr("error_pid"),
		Sex1:               row.Ptr("sex1"),
		Sex2:               row.Ptr("sex2"),
		ClinicalStatus:     row.Bool("clinical_status"),
		Phenotype:          row.List("phenotype"),
		HasNotPhenotype:    row.List("hasNotPhenotype"),
		Disease:            row.List("disease"),
		ERN:                row.Ptr("ERN"),
		Organisation:       row.Ptr("organisation"),
		DateOfBirth:        row.Ptr("dateofBirth"),
		AgeOfOnset:         row.Ptr("ageOfOnset"),
		Solved:             row.Bool("solved"),
		DateSolved:         row.Ptr("date_solved"),
		Recontact:          row.Ptr("recontact"),
		Contact:            row.Ptr("contact"),
		Remarks:            row.Ptr("remarks"),
		PartOfRelease:      row.List("partOfRelease"),
		IncludedInDatasets: row.List("includedInDatasets"),
		Retracted:          row.Ptr("retracted"),
		Provenance:         provenanceFromRow(row),
	}
}

// Tombstone keeps identifiers and release membership only.
func (s Subject) Tombstone() Subject {
	return Subject{
		SubjectID:          s.SubjectID,
		PartOfRelease:      s.PartOfRelease,
		IncludedInDatasets: s.IncludedInDatasets,
		Retracted:          StringPtr(RetractedYes),
		Provenance:         s.Provenance,
	}
}

// Sample is a biological specimen taken from a subject.
type Sample struct {
	SampleID           string
	BelongsToSubject   string
	TissueType         *string
	MaterialType       *string
	Batch              *string
	ERN                *string
	Organisation       *string
	AnalysisType       *string
	AlternativeIDs     []string
	PartOfRelease      []string
	IncludedInDatasets []string
	Retracted          *string
	Provenance
}

// Row converts the sample into its flat catalog representation.
func (s Sample) Row() Row {
	row := Row{
		"sampleID":              s.SampleID,
		"belongsToSubject":      s.BelongsToSubject,
		"tissueType":            str(s.TissueType),
		"materialType":          str(s.MaterialType),
		"batch":                 str(s.Batch),
		"ERN":                   str(s.ERN),
		"organisation":          str(s.Organisation),
		"analysisType":          str(s.AnalysisType),
		"alternativeIdentifier": list(s.AlternativeIDs),
		"partOfRelease":         list(s.PartOfRelease),
		"includedInDatasets":    list(s.IncludedInDatasets),
		"retracted":             str(s.Retracted),
	}
	s.Provenance.put(row)
	return row
}

// SampleFromRow decodes a flat sample row.
func SampleFromRow(row Row) Sample {
	return Sample{
		SampleID:           strings.TrimSpace(row.String("sampleID")),
		BelongsToSubject:   strings.TrimSpace(row.String("belongsToSubject")),
		TissueType:         row.Ptr("tissueType"),
		MaterialType:       row.Ptr("materialType"),
		Batch:              row.Ptr("batch"),
		ERN:                row.Ptr("ERN"),
		Organisation:       row.Ptr("organisation"),
		AnalysisType:       row.Ptr("analysisType"),
		AlternativeIDs:     row.List("alternativeIdentifier"),
		PartOfRelease:      row.List("partOfRelease"),
		IncludedInDatasets: row.List("includedInDatasets"),
		Retracted:          row.Ptr("retracted"),
		Provenance:         provenanceFromRow(row),
	}
}

// Tombstone keeps identifiers and release membership only.
func (s Sample) Tombstone() Sample {
	return Sample{
		SampleID:           s.SampleID,
		BelongsToSubject:   s.BelongsToSubject,
		PartOfRelease:      s.PartOfRelease,
		IncludedInDatasets: s.IncludedInDatasets,
		Retracted:          StringPtr(RetractedYes),
		Provenance:         s.Provenance,
	}
}

// Experiment is a sequencing run (labinfo) performed on a sample.
type Experiment struct {
	ExperimentID       string
	SampleID           string
	Capture            *string
	LibraryType        *string
	LibraryLayout      *string
	Sequencer          *string
	SequencingCentre   *string
	SeqType            *string
	MedianCoverage     *float64
	MeanCoverage       *float64
	PartOfRelease      []string
	IncludedInDatasets []string
	Retracted          *string
	Provenance
}

// Row converts the experiment into its flat catalog representation.
func (e Experiment) Row() Row {
	row := Row{
		"experimentID":       e.ExperimentID,
		"sampleID":           e.SampleID,
		"capture":            str(e.Capture),
		"libraryType":        str(e.LibraryType),
		"library":            str(e.LibraryLayout),
		"sequencer":          str(e.Sequencer),
		"sequencingCentre":   str(e.SequencingCentre),
		"seqType":            str(e.SeqType),
		"medianCoverage":     number(e.MedianCoverage),
		"meanCoverage":       number(e.MeanCoverage),
		"partOfRelease":      list(e.PartOfRelease),
		"includedInDatasets": list(e.IncludedInDatasets),
		"retracted":          str(e.Retracted),
	}
	e.Provenance.put(row)
	return row
}

// ExperimentFromRow decodes a flat labinfo row.
func ExperimentFromRow(row Row) Experiment {
	return Experiment{
		ExperimentID:       strings.TrimSpace(row.String("experimentID")),
		SampleID:           strings.TrimSpace(row.String("sampleID")),
		Capture:            row.Ptr("capture"),
		LibraryType:        row.Ptr("libraryType"),
		LibraryLayout:      row.Ptr("library"),
		Sequencer:          row.Ptr("sequencer"),
		SequencingCentre:   row.Ptr("sequencingCentre"),
		SeqType:            row.Ptr("seqType"),
		MedianCoverage:     row.Float("medianCoverage"),
		MeanCoverage:       row.Float("meanCoverage"),
		PartOfRelease:      row.List("partOfRelease"),
		IncludedInDatasets: row.List("includedInDatasets"),
		Retracted:          row.Ptr("retracted"),
		Provenance:         provenanceFromRow(row),
	}
}

// Tombstone keeps identifiers and release membership only.
func (e Experiment) Tombstone() Experiment {
	return Experiment{
		ExperimentID:       e.ExperimentID,
		SampleID:           e.SampleID,
		PartOfRelease:      e.PartOfRelease,
		IncludedInDatasets: e.IncludedInDatasets,
		Retracted:          StringPtr(RetractedYes),
		Provenance:         e.Provenance,
	}
}

// File is a data file produced for an experiment, sample or subject.
type File struct {
	EGA                string
	Path               *string
	MD5                *string
	FileType           *string
	SubjectID          *string
	SampleID           *string
	ExperimentID       *string
	IncludedInDatasets []string
	DateCreated        *string
	Retracted          *string
	Provenance
}

// Row converts the file into its flat catalog representation.
func (f File) Row() Row {
	row := Row{
		"EGA":                f.EGA,
		"name":               str(f.Path),
		"md5":                str(f.MD5),
		"typeFile":           str(f.FileType),
		"subjectID":          str(f.SubjectID),
		"sampleID":           str(f.SampleID),
		"experimentID":       str(f.ExperimentID),
		"includedInDatasets": list(f.IncludedInDatasets),
		"dateCreated":        str(f.DateCreated),
		"retracted":          str(f.Retracted),
	}
	f.Provenance.put(row)
	return row
}

// FileFromRow decodes a flat file row.
func FileFromRow(row Row) File {
	return File{
		EGA:                strings.TrimSpace(row.String("EGA")),
		Path:               row.Ptr("name"),
		MD5:                row.Ptr("md5"),
		FileType:           row.Ptr("typeFile"),
		SubjectID:          row.Ptr("subjectID"),
		SampleID:           row.Ptr("sampleID"),
		ExperimentID:       row.Ptr("experimentID"),
		IncludedInDatasets: row.List("includedInDatasets"),
		DateCreated:        row.Ptr("dateCreated"),
		Retracted:          row.Ptr("retracted"),
		Provenance:         provenanceFromRow(row),
	}
}

// Tombstone keeps identifiers and dataset membership only.
func (f File) Tombstone() File {
	return File{
		EGA:                f.EGA,
		SubjectID:          f.SubjectID,
		SampleID:           f.SampleID,
		ExperimentID:       f.ExperimentID,
		IncludedInDatasets: f.IncludedInDatasets,
		Retracted:          StringPtr(RetractedYes),
		Provenance:         f.Provenance,
	}
}

// Dataset holds the derived statistics of a release or EGA dataset.
type Dataset struct {
	ID                  string
	Type                *string
	NumberOfPatients    int
	NumberOfMales       int
	NumberOfFemales     int
	NumberOfUnknown     int
	NumberOfSamples     int
	NumberOfExperiments int
	ERN                 []string
	AnalysisTypes       []string
	OrdoCodes           []string
	HPOCodes            []string
}

// Row converts the dataset into its flat catalog representation.
func (d Dataset) Row() Row {
	return Row{
		"id":                  d.ID,
		"datasetType":         str(d.Type),
		"numberOfPatients":    d.NumberOfPatients,
		"numberOfMales":       d.NumberOfMales,
		"numberOfFemales":     d.NumberOfFemales,
		"numberOfUnknown":     d.NumberOfUnknown,
		"numberOfSamples":     d.NumberOfSamples,
		"numberOfExperiments": d.NumberOfExperiments,
		"ERN":                 strings.Join(d.ERN, ","),
		"analysisTypes":       strings.Join(d.AnalysisTypes, ","),
		"ordoCodes":           strings.Join(d.OrdoCodes, ","),
		"hpoCodes":            strings.Join(d.HPOCodes, ","),
	}
}

// DatasetFromRow decodes the identity columns of a dataset row.
func DatasetFromRow(row Row) Dataset {
	return Dataset{
		ID:   strings.TrimSpace(row.String("id")),
		Type: row.Ptr("datasetType"),
	}
}

// Lookup is a row of a lookup table.
type Lookup struct {
	Table Table
	ID    string
	Label string
}

// Row converts the lookup into its flat catalog representation.
func (l Lookup) Row() Row {
	label := l.Label
	if label == "" {
		label = l.ID
	}
	return Row{"id": l.ID, "label": label}
}

// LookupFromRow decodes a lookup row of table.
func LookupFromRow(table Table, row Row) Lookup {
	return Lookup{Table: table, ID: strings.TrimSpace(row.String("id")), Label: strings.TrimSpace(row.String("label"))}
}
