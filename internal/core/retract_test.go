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
	"rd3/pkg/domain"
)

func TestReadIDs(t *testing.T) {
	ids, err := core.ReadIDs(strings.NewReader("P001, P002\n# comment\nS001 P001 # trailing\n\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"P001", "P002", "S001"}, ids)

	_, err = core.ReadIDs(strings.NewReader("# nothing\n"))
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestRetractTombstonesDependents(t *testing.T) {
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects,
		domain.Subject{SubjectID: "P001", FamilyID: domain.StringPtr("FAM1"), PartOfRelease: []string{"freeze1"}, IncludedInDatasets: []string{"D1"}}.Row(),
		domain.Subject{SubjectID: "P002", FamilyID: domain.StringPtr("FAM2"), IncludedInDatasets: []string{"D1"}}.Row(),
	)
	backend.Seed(domain.TableSamples, domain.Sample{SampleID: "S001", BelongsToSubject: "P001", TissueType: domain.StringPtr("Whole Blood")}.Row())
	backend.Seed(domain.TableLabinfo, domain.Experiment{ExperimentID: "E001", SampleID: "S001", SeqType: domain.StringPtr("WGS")}.Row())
	backend.Seed(domain.TableFiles, domain.File{EGA: "EGAF1", ExperimentID: domain.StringPtr("E001"), Path: domain.StringPtr("/x.cram")}.Row())

	rep, err := newEngine(backend).Retract(context.Background(), []string{"P001", "X404"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X404"}, rep.Unresolved)

	p1 := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P001"))
	assert.Equal(t, domain.RetractedYes, *p1.Retracted)
	assert.Nil(t, p1.FamilyID)
	assert.Equal(t, []string{"freeze1"}, p1.PartOfRelease)

	assert.Equal(t, domain.RetractedYes, *domain.SampleFromRow(mustGet(t, backend, domain.TableSamples, "S001")).Retracted)
	assert.Equal(t, domain.RetractedYes, *domain.ExperimentFromRow(mustGet(t, backend, domain.TableLabinfo, "E001")).Retracted)
	assert.Equal(t, domain.RetractedYes, *domain.FileFromRow(mustGet(t, backend, domain.TableFiles, "EGAF1")).Retracted)

	p2 := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P002"))
	assert.Nil(t, p2.Retracted)
	assert.Equal(t, "FAM2", *p2.FamilyID)

	// retracted subjects no longer count
	assert.Equal(t, 1, mustGet(t, backend, domain.TableDatasets, "D1")["numberOfPatients"])

	// a second pass changes nothing
	rep, err = newEngine(backend).Retract(context.Background(), []string{"P001"})
	require.NoError(t, err)
	assert.Empty(t, rep.Written)
}
