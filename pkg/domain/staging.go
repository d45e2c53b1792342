package domain

import "strings"

// ShipmentRow is a partner-supplied subject + sample record awaiting triage.
type ShipmentRow struct {
	MolgenisID         string
	ParticipantSubject string
	SampleID           string
	RDConnectID        string
	Subproject         string
	TissueType         string
	SampleType         string
	ERN                string
	Organisation       string
	Batch              string
	AnalysisType       string
	Release            string
	Dataset            string
	Processed          bool
	HasError           bool
	ErrorType          string
}

// ShipmentFromRow decodes a shipment staging row.
func ShipmentFromRow(row Row) ShipmentRow {
	return ShipmentRow{
		MolgenisID:         strings.TrimSpace(row.String("molgenis_id")),
		ParticipantSubject: strings.TrimSpace(row.String("participant_subject")),
		SampleID:           strings.TrimSpace(row.String("sample_id")),
		RDConnectID:        strings.TrimSpace(row.String("rdconnect_id")),
		Subproject:         strings.TrimSpace(row.String("subproject")),
		TissueType:         row.String("tissue_type"),
		SampleType:         row.String("sample_type"),
		ERN:                row.String("ERN"),
		Organisation:       row.String("organisation"),
		Batch:              strings.TrimSpace(row.String("batch")),
		AnalysisType:       strings.TrimSpace(row.String("type_of_analysis")),
		Release:            strings.TrimSpace(row.String("release")),
		Dataset:            strings.TrimSpace(row.String("dataset")),
		Processed:          derefBool(row.Bool("processed")),
		HasError:           derefBool(row.Bool("has_error")),
		ErrorType:          row.String("error_type"),
	}
}

// Row converts the shipment back into a staging row.
func (s ShipmentRow) Row() Row {
	return Row{
		"molgenis_id":         s.MolgenisID,
		"participant_subject": s.ParticipantSubject,
		"sample_id":           s.SampleID,
		"rdconnect_id":        s.RDConnectID,
		"subproject":          s.Subproject,
		"tissue_type":         s.TissueType,
		"sample_type":         s.SampleType,
		"ERN":                 s.ERN,
		"organisation":        s.Organisation,
		"batch":               s.Batch,
		"type_of_analysis":    s.AnalysisType,
		"release":             s.Release,
		"dataset":             s.Dataset,
		"processed":           s.Processed,
		"has_error":           s.HasError,
		"error_type":          s.ErrorType,
	}
}

// ExperimentRow is a partner-supplied sequencing run and the file it produced.
type ExperimentRow struct {
	MolgenisID       string
	ExperimentID     string
	SampleID         string
	SubjectID        string
	CaptureKit       string
	LibraryStrategy  string
	LibraryType      string
	LibraryLayout    string
	SequencerModel   string
	SequencingCentre string
	MedianCoverage   *float64
	MeanCoverage     *float64
	FileEGA          string
	FilePath         string
	FileMD5          string
	FileType         string
	Release          string
	Dataset          string
	Processed        bool
	HasError         bool
	ErrorType        string
}

// ExperimentFromStagingRow decodes an experiment staging row.
func ExperimentFromStagingRow(row Row) ExperimentRow {
	return ExperimentRow{
		MolgenisID:       strings.TrimSpace(row.String("molgenis_id")),
		ExperimentID:     strings.TrimSpace(row.String("project_experiment_dataset_id")),
		SampleID:         strings.TrimSpace(row.String("sample_id")),
		SubjectID:        strings.TrimSpace(row.String("participant_subject")),
		CaptureKit:       strings.TrimSpace(row.String("capture")),
		LibraryStrategy:  strings.TrimSpace(row.String("library_strategy")),
		LibraryType:      strings.TrimSpace(row.String("library_source")),
		LibraryLayout:    strings.TrimSpace(row.String("library_layout")),
		SequencerModel:   strings.TrimSpace(row.String("sequencer")),
		SequencingCentre: strings.TrimSpace(row.String("sequencing_center")),
		MedianCoverage:   row.Float("median_coverage"),
		MeanCoverage:     row.Float("mean_coverage"),
		FileEGA:          strings.TrimSpace(row.String("file_ega_id")),
		FilePath:         strings.TrimSpace(row.String("file_path")),
		FileMD5:          strings.TrimSpace(row.String("unencrypted_md5_checksum")),
		FileType:         strings.TrimSpace(row.String("file_type")),
		Release:          strings.TrimSpace(row.String("release")),
		Dataset:          strings.TrimSpace(row.String("dataset")),
		Processed:        derefBool(row.Bool("processed")),
		HasError:         derefBool(row.Bool("has_error")),
		ErrorType:        row.String("error_type"),
	}
}

// StagingUpdate is the bookkeeping written back to a staging row after triage.
type StagingUpdate struct {
	Table      Table
	MolgenisID string
	Processed  bool
	HasError   bool
	ErrorType  string
}

// Solved-status portal states.
const (
	ProcessNew       = "N"
	ProcessProcessed = "P"
	ProcessDeferred  = "D"
)

// SolvedStatusEvent is a row of the recontact-and-solved portal table.
type SolvedStatusEvent struct {
	MolgenisID    string
	Subject       string
	Solved        string
	DateSolved    *string
	Recontact     *string
	Contact       *string
	Remark        *string
	History       *string
	ProcessStatus string
}

// SolvedEventFromRow decodes a portal row.
func SolvedEventFromRow(row Row) SolvedStatusEvent {
	return SolvedStatusEvent{
		MolgenisID:    strings.TrimSpace(row.String("molgenis_id")),
		Subject:       strings.TrimSpace(row.String("subject")),
		Solved:        strings.TrimSpace(row.String("solved")),
		DateSolved:    row.Ptr("date_solved"),
		Recontact:     row.Ptr("recontact"),
		Contact:       row.Ptr("contact"),
		Remark:        row.Ptr("remark"),
		History:       row.Ptr("history"),
		ProcessStatus: strings.TrimSpace(row.String("process_status")),
	}
}

// Row converts the event back into a portal row.
func (e SolvedStatusEvent) Row() Row {
	return Row{
		"molgenis_id":    e.MolgenisID,
		"subject":        e.Subject,
		"solved":         e.Solved,
		"date_solved":    str(e.DateSolved),
		"recontact":      str(e.Recontact),
		"contact":        str(e.Contact),
		"remark":         str(e.Remark),
		"history":        str(e.History),
		"process_status": e.ProcessStatus,
	}
}

func derefBool(b *bool) bool {
	return b != nil && *b
}
