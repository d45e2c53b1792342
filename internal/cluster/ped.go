package cluster

import (
	"bufio"
	"io"
	"strings"

	"rd3/internal/vocab"
)

// PedRecord is one recoded pedigree line.
type PedRecord struct {
	FamilyID   string
	SubjectID  string
	PaternalID string
	MaternalID string
	Sex        *string
	Affected   *bool
	Line       int
}

// ReadPED parses pedigree text. A valid line has exactly six whitespace
// separated tokens: fid, iid, pid, mid, sex, affected. Invalid lines are
// returned as *StructuralError values and skipped; the error result is
// reserved for read failures.
func ReadPED(r io.Reader, path string, m *vocab.Mapper) ([]PedRecord, []*StructuralError, error) {
	var records []PedRecord
	var skipped []*StructuralError
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(sc.Text(), "\ufeff"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Fields(line)
		if len(tokens) != 6 {
			skipped = append(skipped, &StructuralError{Path: path, Line: lineNo, Reason: "expected 6 columns"})
			continue
		}
		sex, err := m.Sex(tokens[4])
		if err != nil {
			skipped = append(skipped, &StructuralError{Path: path, Line: lineNo, Reason: "invalid sex", Err: err})
			continue
		}
		affected, err := vocab.Affected(tokens[5])
		if err != nil {
			skipped = append(skipped, &StructuralError{Path: path, Line: lineNo, Reason: "invalid affected status", Err: err})
			continue
		}
		records = append(records, PedRecord{
			FamilyID:   tokens[0],
			SubjectID:  tokens[1],
			PaternalID: tokens[2],
			MaternalID: tokens[3],
			Sex:        sex,
			Affected:   affected,
			Line:       lineNo,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return records, skipped, nil
}
