package vocab

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/pkg/domain"
	"rd3/testutil"
)

func TestSexRecoding(t *testing.T) {
	m := New()
	cases := map[string]string{
		"1":                        "M",
		"male":                     "M",
		"M":                        "M",
		"2":                        "F",
		"female":                   "F",
		"F":                        "F",
		"other":                    "U",
		"unknown_sex":              "U",
		"U":                        "U",
		"assigned male at birth":   "M",
		"assigned female at birth": "F",
		"assigned other at birth":  "U",
	}
	for in, want := range cases {
		got, err := m.Sex(in)
		require.NoError(t, err, in)
		require.NotNil(t, got, in)
		assert.Equal(t, want, *got, in)
	}
	got, err := m.Sex("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = m.Sex("3")
	ue, ok := AsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, "3", ue.Value)
	assert.Equal(t, "unknown sex", ue.Label())
}

func TestAffectedRecoding(t *testing.T) {
	for _, in := range []string{"-9", "0"} {
		got, err := Affected(in)
		require.NoError(t, err)
		assert.Nil(t, got, in)
	}
	got, err := Affected("1")
	require.NoError(t, err)
	assert.False(t, *got)
	got, err = Affected("2")
	require.NoError(t, err)
	assert.True(t, *got)
	_, err = Affected("affected")
	assert.Error(t, err)
}

func TestTissueAndMaterial(t *testing.T) {
	m := New()
	tissue, err := m.Tissue("blood")
	require.NoError(t, err)
	assert.Equal(t, "Whole Blood", *tissue)
	tissue, err = m.Tissue("PBMC")
	require.NoError(t, err)
	assert.Equal(t, "Peripheral Blood Mononuclear Cells", *tissue)
	tissue, err = m.Tissue("Muscle - Skeletal")
	require.NoError(t, err)
	assert.Equal(t, "Muscle - Skeletal", *tissue)

	_, err = m.Tissue("bone marrow")
	ue, ok := AsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, domain.LookupTissueType, ue.Table)
	assert.False(t, ue.Open())

	material, err := m.Material("Total RNA", "blood")
	require.NoError(t, err)
	assert.Equal(t, "RNA", *material)
	material, err = m.Material("DNA", "FFPE")
	require.NoError(t, err)
	assert.Equal(t, "TISSUE (FFPE)", *material)
	tissue, err = m.Tissue("FFPE")
	require.NoError(t, err)
	assert.Equal(t, "Tumor", *tissue)
}

func TestLibraryLayout(t *testing.T) {
	got, err := LibraryLayout("PAIRED")
	require.NoError(t, err)
	assert.Equal(t, "1", *got)
	got, err = LibraryLayout("single")
	require.NoError(t, err)
	assert.Equal(t, "0", *got)
	_, err = LibraryLayout("triple")
	assert.Error(t, err)
}

func TestERNNormalisation(t *testing.T) {
	m := New()
	cases := map[string]string{
		"genturis":     "ERN-GENTURIS",
		"ERN GENTURIS": "ERN-GENTURIS",
		"ern-rnd":      "ERN-RND",
		"Euro NMD":     "ERN-EURO-NMD",
		"ERN-ITHACA":   "ERN-ITHACA",
	}
	for in, want := range cases {
		got, err := m.ERN(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, *got, in)
	}
	got, err := m.ERN("not applicable")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = m.ERN("ern-skin")
	ue, ok := AsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, "unknown ERN", ue.Label())

	m.Register(domain.LookupERN, "ERN-SKIN")
	got, err = m.ERN("ern skin")
	require.NoError(t, err)
	assert.Equal(t, "ERN-SKIN", *got)
}

func TestOrganisationProposesLookup(t *testing.T) {
	m := New()
	lookup, known := m.Organisation(" Malgorzata  Dec-Cwiek ")
	require.NotNil(t, lookup)
	assert.False(t, known)
	assert.Equal(t, "malgorzata-dec-cwiek", lookup.ID)
	assert.Equal(t, "Malgorzata Dec-Cwiek", lookup.Label)
	assert.Equal(t, domain.LookupOrganisation, lookup.Table)

	m.Register(domain.LookupOrganisation, lookup.ID)
	again, known := m.Organisation("malgorzata dec-cwiek")
	assert.True(t, known)
	assert.Equal(t, "malgorzata-dec-cwiek", again.ID)

	none, known := m.Organisation("   ")
	assert.Nil(t, none)
	assert.True(t, known)
}

func TestSeqType(t *testing.T) {
	m := New()
	got, err := m.SeqType("WGS")
	require.NoError(t, err)
	assert.Equal(t, "WGS", *got)
	got, err = m.SeqType("wxs")
	require.NoError(t, err)
	assert.Equal(t, "WES", *got)
	_, err = m.SeqType("nanopore")
	ue, ok := AsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, "unknown seq type", ue.Label())
}

func TestFileFormat(t *testing.T) {
	m := New()
	cases := map[string]string{
		"/groups/rd3/freeze1/ped/P001.ped": "PED",
		"P001.json":                        "JSON",
		"sample.g.vcf.gz":                  "VCF",
		"R1.fastq.gz.gpg":                  "FASTQ",
		"aln.bam":                          "BAM",
		"aln.bam.bai":                      "BAI",
		"ALN.CRAM":                         "CRAM",
	}
	for in, want := range cases {
		got, err := m.FileFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := m.FileFormat("reads.h5")
	ue, ok := AsUnknown(err)
	require.True(t, ok)
	assert.Equal(t, "H5", ue.Value)
	assert.True(t, ue.Open())

	_, err = m.FileFormat("README")
	ue, ok = AsUnknown(err)
	require.True(t, ok)
	assert.False(t, ue.Open())

	got, err := m.FileType("", "x.vcf")
	require.NoError(t, err)
	assert.Equal(t, "VCF", got)
	got, err = m.FileType("bam", "x.vcf")
	require.NoError(t, err)
	assert.Equal(t, "BAM", got)
}

func TestDiseaseRecoding(t *testing.T) {
	m := New()
	got, ok := m.Disease("MIM:159000")
	require.True(t, ok)
	assert.Equal(t, "MIM_609200", got)
	_, ok = m.Disease("ORDO:856")
	assert.False(t, ok)
	got, ok = m.Disease("Orphanet:123")
	require.True(t, ok)
	assert.Equal(t, "ORDO_123", got)
	assert.Equal(t, []string{"MIM_181350", "MIM_603689", "MIM_609200"},
		m.Diseases([]string{"OMIM:159001", "MIM_607569", "ORDO_856", "MIM:159000", "MIM_609200"}))
	assert.Equal(t, "HP_0001250", Phenotype("HP:0001250"))
	assert.Equal(t, "HP_0001250", Phenotype("HP_0001250"))
}

func TestLoadAliases(t *testing.T) {
	m := New()
	err := m.LoadAliases(strings.NewReader(`
ern:
  "skin network": ERN-SKIN
organisation:
  "umc groningen": umcg
tissue:
  marrow: Bone Marrow
disease:
  "MIM:100": MIM_200
`))
	require.NoError(t, err)

	got, err := m.ERN("Skin Network")
	require.NoError(t, err)
	assert.Equal(t, "ERN-SKIN", *got)
	org, _ := m.Organisation("UMC  Groningen")
	assert.Equal(t, "umcg", org.ID)
	tissue, err := m.Tissue("Bone Marrow")
	require.NoError(t, err)
	assert.Equal(t, "Bone Marrow", *tissue)
	code, ok := m.Disease("MIM_100")
	require.True(t, ok)
	assert.Equal(t, "MIM_200", code)

	assert.Error(t, m.LoadAliases(strings.NewReader("colours:\n  red: blue\n")))
}

func TestVocabularyHasNoIO(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.IOImportForbidden, "vocabulary mapping must stay pure")
}
