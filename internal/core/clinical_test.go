package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/internal/cluster"
	"rd3/internal/core"
	"rd3/internal/gateway"
	"rd3/pkg/domain"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return root
}

func TestIngestPEDUpdatesKnownSubjects(t *testing.T) {
	root := writeTree(t, map[string]string{
		"freeze1/ped/fam1.ped": "FAM1 P001 0 0 1 2\nFAM1 P404 0 0 2 1\nbroken line\n",
		"freeze1/ped/fam2.ped": "FAM2 P002 P001 FAM2-M 2 -9\n",
	})
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects,
		domain.Subject{SubjectID: "P001"}.Row(),
		domain.Subject{SubjectID: "P002", ClinicalStatus: domain.BoolPtr(false)}.Row(),
	)

	rep, err := newEngine(backend, core.WithCluster(cluster.Local{}, root)).IngestPED(context.Background(), "freeze1")
	require.NoError(t, err)
	assert.Equal(t, []string{"P404"}, rep.Unresolved)
	require.Len(t, rep.Structural, 1)
	assert.Contains(t, rep.Structural[0], "fam1.ped")

	p1 := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P001"))
	assert.Equal(t, "FAM1", *p1.FamilyID)
	assert.Nil(t, p1.MaternalID)
	assert.Nil(t, p1.PaternalID)
	assert.Equal(t, "0", *p1.ErrorMaternalID)
	assert.Equal(t, "M", *p1.Sex1)
	assert.True(t, *p1.ClinicalStatus)

	p2 := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P002"))
	assert.Equal(t, "P001", *p2.PaternalID)
	assert.Nil(t, p2.ErrorPaternalID)
	assert.Nil(t, p2.MaternalID)
	assert.Equal(t, "FAM2-M", *p2.ErrorMaternalID)
	assert.Equal(t, "F", *p2.Sex1)
	assert.False(t, *p2.ClinicalStatus, "unknown affected status keeps the recorded value")
}

func TestIngestPEDSkipsChecksumMismatch(t *testing.T) {
	root := writeTree(t, map[string]string{
		"r1/ped/fam1.ped":     "FAM1 P001 0 0 1 2\n",
		"r1/ped/fam1.ped.md5": "00000000000000000000000000000000  fam1.ped\n",
	})
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects, domain.Subject{SubjectID: "P001"}.Row())

	rep, err := newEngine(backend, core.WithCluster(cluster.Local{}, root)).IngestPED(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, rep.Structural, 1)
	assert.Nil(t, domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P001")).FamilyID)
	assert.Contains(t, rep.Artifacts[0], core.StructuralArtifact)
}

func TestIngestPEDRejectsBadRelease(t *testing.T) {
	_, err := newEngine(gateway.NewMemory()).IngestPED(context.Background(), "../etc")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

const phenopacketP002 = `{
  "phenopacket": {
    "id": "PP-P002",
    "subject": {"id": "P002", "sex": "FEMALE", "dateOfBirth": "1990-04-01"},
    "phenotypicFeatures": [
      {"type": {"id": "HP:0001"}},
      {"type": {"id": "HP:0002"}, "negated": true}
    ],
    "diseases": [
      {"term": {"id": "MIM:159000"}},
      {"term": {"id": "ORDO:856"}}
    ]
  }
}`

func TestIngestPhenopacketsRecodesAndProposesLookups(t *testing.T) {
	root := writeTree(t, map[string]string{
		"freeze1/phenopacket/P002.json": phenopacketP002,
		"freeze1/phenopacket/bad.json":  "{",
	})
	backend := gateway.NewMemory()
	backend.Seed(domain.TableSubjects, domain.Subject{SubjectID: "P002", Sex1: domain.StringPtr("M")}.Row())
	backend.Seed(domain.LookupPhenotype, domain.Row{"id": "HP_0001", "label": "known"})

	rep, err := newEngine(backend, core.WithCluster(cluster.Local{}, root)).IngestPhenopackets(context.Background(), "freeze1")
	require.NoError(t, err)
	require.Len(t, rep.Structural, 1)
	assert.Contains(t, rep.Structural[0], "bad.json")

	subj := domain.SubjectFromRow(mustGet(t, backend, domain.TableSubjects, "P002"))
	assert.Equal(t, []string{"HP_0001"}, subj.Phenotype)
	assert.Equal(t, []string{"HP_0002"}, subj.HasNotPhenotype)
	assert.Equal(t, []string{"MIM_609200"}, subj.Disease)
	assert.Equal(t, "M", *subj.Sex1, "a recorded sex is kept")
	assert.Equal(t, "1990", *subj.DateOfBirth)

	assert.Equal(t, "known", mustGet(t, backend, domain.LookupPhenotype, "HP_0001")["label"])
	mustGet(t, backend, domain.LookupPhenotype, "HP_0002")
	mustGet(t, backend, domain.LookupDisease, "MIM_609200")
}
