package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/internal/core"
	"rd3/internal/gateway"
	"rd3/internal/solved"
	"rd3/pkg/domain"
)

func portalEvent(id, subject, status, date string) domain.Row {
	return domain.SolvedStatusEvent{
		MolgenisID:    id,
		Subject:       subject,
		Solved:        status,
		DateSolved:    domain.StringPtr(date),
		ProcessStatus: domain.ProcessNew,
	}.Row()
}

func TestReconcileSolvedRecordsStatusChange(t *testing.T) {
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects, domain.Subject{
		SubjectID:  "P003",
		Solved:     domain.BoolPtr(true),
		DateSolved: domain.StringPtr("2022-01-01"),
	}.Row())
	backend.Seed(domain.TableSolvedStatus,
		portalEvent("1", "P003", "unsolved", "2024-05-01"),
		portalEvent("2", "P999", "solved", "2024-05-01"),
		portalEvent("3", "P003", "solved", "2024-04-30"),
	)

	rep, err := newEngine(backend).ReconcileSolved(context.Background(), "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"P999"}, rep.Unresolved)
	assert.Equal(t, 1, rep.Outcomes["updated"])

	subj := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P003"))
	assert.False(t, *subj.Solved)
	assert.Equal(t, "2024-05-01", *subj.DateSolved)
	assert.True(t, strings.HasSuffix(*subj.Remarks, "Solved status changed from solved to unsolved on 2024-05-01"))
	assert.Equal(t, "rd3-engine", *subj.UpdatedBy)

	ev := domain.SolvedEventFromRow(mustGet(t, backend, domain.TableSolvedStatus, "1"))
	assert.Equal(t, domain.ProcessProcessed, ev.ProcessStatus)
	unknown := domain.SolvedEventFromRow(mustGet(t, backend, domain.TableSolvedStatus, "2"))
	assert.Equal(t, domain.ProcessNew, unknown.ProcessStatus)
	assert.Equal(t, solved.RemarkUnknownSubject, *unknown.Remark)
	other := domain.SolvedEventFromRow(mustGet(t, backend, domain.TableSolvedStatus, "3"))
	assert.Equal(t, domain.ProcessNew, other.ProcessStatus, "rows of other dates are left alone")
}

func TestReconcileSolvedInvalidStatusWritesNothing(t *testing.T) {
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects, domain.Subject{SubjectID: "P001"}.Row())
	backend.Seed(domain.TableSolvedStatus,
		portalEvent("1", "P001", "solved", "2024-05-01"),
		portalEvent("2", "P001", "maybe", "2024-05-01"),
	)

	rep, err := newEngine(backend).ReconcileSolved(context.Background(), solved.AllDates)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
	assert.True(t, errors.Is(err, solved.ErrInvalidStatus))
	assert.Equal(t, core.StatusFailed, rep.Status)
	assert.Nil(t, domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P001")).Solved)
	assert.Equal(t, domain.ProcessNew, mustGet(t, backend, domain.TableSolvedStatus, "1")["process_status"])
}

func TestReconcileSolvedRejectsBadDate(t *testing.T) {
	_, err := newEngine(gateway.NewMemory()).ReconcileSolved(context.Background(), "yesterday")
	assert.True(t, errors.Is(err, core.ErrValidation))
}
