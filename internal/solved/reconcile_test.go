package solved

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/pkg/domain"
)

func ptr(s string) *string { return &s }

func event(id, subject, solved, date string) domain.SolvedStatusEvent {
	e := domain.SolvedStatusEvent{MolgenisID: id, Subject: subject, Solved: solved, ProcessStatus: domain.ProcessNew}
	if date != "" {
		e.DateSolved = ptr(date)
	}
	return e
}

func TestSolvedToUnsolvedRecordsProvenance(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P003": {SubjectID: "P003", Solved: domain.BoolPtr(true), DateSolved: ptr("2022-01-01")},
	}
	res, err := Reconcile([]domain.SolvedStatusEvent{event("1", "P003", "unsolved", "2024-05-01")}, subjects, Options{Date: "2024-05-01"})
	require.NoError(t, err)

	require.Len(t, res.Subjects, 1)
	subj := res.Subjects[0]
	assert.False(t, *subj.Solved)
	assert.Equal(t, "2024-05-01", *subj.DateSolved)
	assert.True(t, strings.HasSuffix(*subj.Remarks, "Solved status changed from solved to unsolved on 2024-05-01"))

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, domain.ProcessProcessed, ev.ProcessStatus)
	assert.True(t, strings.HasSuffix(*ev.Remark, "Solved status changed from solved to unsolved on 2024-05-01"))
	assert.Equal(t, 1, res.Updated)
	assert.True(t, *subjects["P003"].Solved, "input subjects are not modified")
}

func TestUndatedEventClearsDateSolved(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P004": {SubjectID: "P004", Solved: domain.BoolPtr(true), DateSolved: ptr("2021-03-03")},
	}
	res, err := Reconcile([]domain.SolvedStatusEvent{event("2", "P004", "unsolved", "")}, subjects, Options{Date: AllDates, Today: "2024-06-01"})
	require.NoError(t, err)
	subj := res.Subjects[0]
	assert.False(t, *subj.Solved)
	assert.Nil(t, subj.DateSolved)
	assert.Contains(t, *subj.Remarks, "Solved status changed from solved to unsolved")
	assert.Contains(t, *subj.Remarks, "on 2024-06-01")
}

func TestInvalidStatusAbortsBatch(t *testing.T) {
	subjects := map[string]domain.Subject{"P001": {SubjectID: "P001"}}
	events := []domain.SolvedStatusEvent{
		event("1", "P001", "solved", "2024-05-01"),
		event("2", "P001", "probably", "2024-05-01"),
	}
	res, err := Reconcile(events, subjects, Options{Date: "2024-05-01"})
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "2", se.MolgenisID)
	assert.Equal(t, "probably", se.Value)
}

func TestUnknownSubjectStaysNew(t *testing.T) {
	res, err := Reconcile([]domain.SolvedStatusEvent{event("1", "P404", "solved", "")}, nil, Options{})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, "Y", *ev.History)
	assert.Equal(t, domain.ProcessNew, ev.ProcessStatus)
	assert.Equal(t, RemarkUnknownSubject, *ev.Remark)
	assert.Empty(t, res.Subjects)
	assert.Equal(t, 1, res.UnknownSubject)
}

func TestSolvedBeforeStartIsLeftAlone(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P005": {SubjectID: "P005", Solved: domain.BoolPtr(true), DateSolved: ptr(ProjectStart), Remarks: ptr("Solved before start of the project")},
	}
	res, err := Reconcile([]domain.SolvedStatusEvent{event("1", "P005", "unsolved", "")}, subjects, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Subjects)
	ev := res.Events[0]
	assert.Equal(t, "Y", *ev.History)
	assert.Equal(t, domain.ProcessProcessed, ev.ProcessStatus)
	assert.Equal(t, RemarkNoNewInfo, *ev.Remark)
}

func TestContactAndRecontactUpdates(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P006": {SubjectID: "P006", Solved: domain.BoolPtr(false), Recontact: ptr("yes"), Remarks: ptr("first visit")},
	}
	e := event("1", "P006", "unsolved", "")
	e.Recontact = ptr("no")
	e.Contact = ptr("dr. who")
	e.Remark = ptr("partner note")
	res, err := Reconcile([]domain.SolvedStatusEvent{e}, subjects, Options{})
	require.NoError(t, err)
	subj := res.Subjects[0]
	assert.Equal(t, "no", *subj.Recontact)
	assert.Equal(t, "dr. who", *subj.Contact)
	assert.Equal(t, "first visit; Recontact info updated; Contact info updated", *subj.Remarks)
	assert.Equal(t, "partner note; Recontact info updated; Contact info updated", *res.Events[0].Remark)
}

func TestNoChangeAndNotApplicable(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P007": {SubjectID: "P007", Solved: domain.BoolPtr(true)},
	}
	events := []domain.SolvedStatusEvent{
		event("1", "P007", "solved", ""),
		event("2", "P007", "nA", ""),
	}
	res, err := Reconcile(events, subjects, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Subjects)
	require.Len(t, res.Events, 2)
	for _, ev := range res.Events {
		assert.Equal(t, RemarkNoNewInfo, *ev.Remark)
		assert.Equal(t, domain.ProcessProcessed, ev.ProcessStatus)
	}
	assert.Equal(t, 2, res.NoNewInfo)
}

func TestUnsolvedToSolvedAndSequentialEvents(t *testing.T) {
	subjects := map[string]domain.Subject{"P008": {SubjectID: "P008", Solved: domain.BoolPtr(false)}}
	events := []domain.SolvedStatusEvent{
		event("1", "P008", "solved", "2024-01-01"),
		event("2", "P008", "unsolved", "2024-02-01"),
	}
	res, err := Reconcile(events, subjects, Options{})
	require.NoError(t, err)
	require.Len(t, res.Subjects, 1)
	assert.False(t, *res.Subjects[0].Solved)
	assert.Equal(t, "Solved status changed from unsolved to solved on 2024-01-01; Solved status changed from solved to unsolved on 2024-02-01", *res.Subjects[0].Remarks)
}

func TestSelectedFiltersByStatusAndDate(t *testing.T) {
	e := event("1", "P001", "solved", "2024-05-01T10:00:00")
	assert.True(t, Selected(e, "2024-05-01"))
	assert.False(t, Selected(e, "2024-05-02"))
	assert.True(t, Selected(e, AllDates))
	e.ProcessStatus = domain.ProcessDeferred
	assert.False(t, Selected(e, AllDates))

	res, err := Reconcile([]domain.SolvedStatusEvent{e, event("2", "P001", "bogus", "2023-01-01")}, nil, Options{Date: "2024-05-01"})
	require.NoError(t, err, "rows outside the batch are not validated")
	assert.Empty(t, res.Events)
}

func TestMergeRemarks(t *testing.T) {
	assert.Nil(t, MergeRemarks(nil))
	assert.Nil(t, MergeRemarks(ptr(" "), "", "  "))
	assert.Equal(t, "a; b; a", *MergeRemarks(ptr(" a "), "b", "a", ""))
	assert.Equal(t, "dose 1; dose 2; Contact info updated", *MergeRemarks(ptr("dose 1; dose 2"), RemarkContact))
}

func TestRepeatedProvenanceLinesAreKept(t *testing.T) {
	subjects := map[string]domain.Subject{
		"P009": {SubjectID: "P009", Recontact: ptr("yes"), Remarks: ptr("Recontact info updated")},
	}
	e := event("1", "P009", "nA", "")
	e.Recontact = ptr("no")
	res, err := Reconcile([]domain.SolvedStatusEvent{e}, subjects, Options{})
	require.NoError(t, err)
	require.Len(t, res.Subjects, 1)
	assert.Equal(t, "Recontact info updated; Recontact info updated", *res.Subjects[0].Remarks)
}
