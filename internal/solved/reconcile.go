// Package solved merges the recontact-and-solved portal into subject records.
package solved

import (
	"errors"
	"fmt"
	"strings"

	"rd3/pkg/domain"
)

// ProjectStart is the date_solved given to subjects solved before the project began.
const ProjectStart = "2019-10-01"

// Remarks written to subjects and portal rows.
const (
	RemarkUnknownSubject  = "subject not yet in RD3"
	RemarkNoNewInfo       = "No new information"
	RemarkRecontact       = "Recontact info updated"
	RemarkContact         = "Contact info updated"
	solvedBeforeStartMark = "solved before start"
)

// AllDates disables the date filter.
const AllDates = "all"

// ErrInvalidStatus aborts a batch containing a solved value outside the portal vocabulary.
var ErrInvalidStatus = errors.New("invalid solved status")

// StatusError names the offending portal row.
type StatusError struct {
	MolgenisID string
	Subject    string
	Value      string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal row %s (subject %s): %s %q", e.MolgenisID, e.Subject, ErrInvalidStatus, e.Value)
}

func (e *StatusError) Unwrap() error { return ErrInvalidStatus }

// ParseStatus maps the portal vocabulary: solved is true, unsolved is false,
// nA is unknown.
func ParseStatus(v string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "solved":
		return domain.BoolPtr(true), nil
	case "unsolved":
		return domain.BoolPtr(false), nil
	case "na":
		return nil, nil
	default:
		return nil, ErrInvalidStatus
	}
}

// Result holds the writes produced by a reconciliation batch.
type Result struct {
	// Subjects are the subject records whose solved fields changed.
	Subjects []domain.Subject
	// Events are the portal rows to write back.
	Events []domain.SolvedStatusEvent

	Updated        int
	NoNewInfo      int
	UnknownSubject int
}

// Selected reports whether an event belongs to the batch for date: it must
// be new and, unless date is AllDates, carry that date_solved.
func Selected(e domain.SolvedStatusEvent, date string) bool {
	if e.ProcessStatus != domain.ProcessNew {
		return false
	}
	if date == "" || date == AllDates {
		return true
	}
	return day(domain.Deref(e.DateSolved)) == date
}

// Options selects the batch and dates the provenance remarks.
type Options struct {
	// Date is the date_solved to process, or AllDates.
	Date string
	// Today stands in for events that carry no date_solved.
	Today string
}

// Reconcile compares the selected events with the current subjects. Every
// solved value is validated before anything is computed, so a bad row
// yields no writes at all. Events for the same subject apply in order.
func Reconcile(events []domain.SolvedStatusEvent, subjects map[string]domain.Subject, opts Options) (*Result, error) {
	batch := make([]domain.SolvedStatusEvent, 0, len(events))
	status := make([]*bool, 0, len(events))
	for _, e := range events {
		if !Selected(e, opts.Date) {
			continue
		}
		s, err := ParseStatus(e.Solved)
		if err != nil {
			return nil, &StatusError{MolgenisID: e.MolgenisID, Subject: e.Subject, Value: e.Solved}
		}
		batch = append(batch, e)
		status = append(status, s)
	}

	res := &Result{}
	current := make(map[string]domain.Subject)
	var order []string
	for i, e := range batch {
		subj, ok := current[e.Subject]
		if !ok {
			subj, ok = subjects[e.Subject]
		}
		if !ok {
			e.History = domain.StringPtr("Y")
			e.ProcessStatus = domain.ProcessNew
			e.Remark = domain.StringPtr(RemarkUnknownSubject)
			res.Events = append(res.Events, e)
			res.UnknownSubject++
			continue
		}
		if solvedBeforeStart(subj) {
			e.History = domain.StringPtr("Y")
			e.ProcessStatus = domain.ProcessProcessed
			e.Remark = domain.StringPtr(RemarkNoNewInfo)
			res.Events = append(res.Events, e)
			res.NoNewInfo++
			continue
		}

		next, lines := diff(subj, e, status[i], opts.Today)
		e.ProcessStatus = domain.ProcessProcessed
		if len(lines) == 0 {
			e.Remark = domain.StringPtr(RemarkNoNewInfo)
			res.Events = append(res.Events, e)
			res.NoNewInfo++
			continue
		}
		e.Remark = MergeRemarks(e.Remark, lines...)
		next.Remarks = MergeRemarks(subj.Remarks, lines...)
		if _, seen := current[next.SubjectID]; !seen {
			order = append(order, next.SubjectID)
		}
		current[next.SubjectID] = next
		res.Events = append(res.Events, e)
		res.Updated++
	}
	for _, id := range order {
		res.Subjects = append(res.Subjects, current[id])
	}
	return res, nil
}

// diff applies one event to a subject and returns the provenance lines.
func diff(subj domain.Subject, e domain.SolvedStatusEvent, solved *bool, today string) (domain.Subject, []string) {
	var lines []string
	when := day(domain.Deref(e.DateSolved))
	if when == "" {
		when = today
	}
	// nA carries no information and never clears a recorded status.
	if solved != nil && (subj.Solved == nil || *subj.Solved != *solved) {
		if subj.Solved != nil {
			lines = append(lines, fmt.Sprintf("Solved status changed from %s to %s on %s", word(*subj.Solved), word(*solved), when))
		} else {
			lines = append(lines, fmt.Sprintf("Solved status set to %s on %s", word(*solved), when))
		}
		subj.Solved = solved
		subj.DateSolved = e.DateSolved
	}
	if e.Recontact != nil && domain.Deref(subj.Recontact) != *e.Recontact {
		subj.Recontact = e.Recontact
		lines = append(lines, RemarkRecontact)
	}
	if e.Contact != nil && domain.Deref(subj.Contact) != *e.Contact {
		subj.Contact = e.Contact
		lines = append(lines, RemarkContact)
	}
	return subj, lines
}

func word(solved bool) string {
	if solved {
		return "solved"
	}
	return "unsolved"
}

func solvedBeforeStart(s domain.Subject) bool {
	return day(domain.Deref(s.DateSolved)) == ProjectStart &&
		strings.Contains(strings.ToLower(domain.Deref(s.Remarks)), solvedBeforeStartMark)
}

// MergeRemarks appends the non-blank lines to an existing remark using
// "; ". The existing text is kept as written.
func MergeRemarks(existing *string, lines ...string) *string {
	merged := strings.TrimSpace(domain.Deref(existing))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if merged != "" {
			merged += "; "
		}
		merged += l
	}
	if merged == "" {
		return nil
	}
	return &merged
}

func day(v string) string {
	v = strings.TrimSpace(v)
	if len(v) > 10 {
		return v[:10]
	}
	return v
}
