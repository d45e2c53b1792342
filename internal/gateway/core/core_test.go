package core

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/pkg/domain"
)

func TestFilterQueryAndMatch(t *testing.T) {
	f := And(Eq("processed", false), In("subjectID", []string{"P2", "P1"}), nil, NotEq("ERN", "ERN RND"))
	assert.Equal(t, `processed==false;subjectID=in=(P1,P2);ERN!="ERN RND"`, f.Query())

	assert.True(t, f.Match(domain.Row{"processed": false, "subjectID": "P1", "ERN": "ERN-GENTURIS"}))
	assert.False(t, f.Match(domain.Row{"processed": false, "subjectID": "P3"}))
	assert.False(t, f.Match(domain.Row{"processed": true, "subjectID": "P1"}))
	assert.False(t, f.Match(domain.Row{"processed": false, "subjectID": "P1", "ERN": "ERN RND"}))
}

func TestEqMatchesListMembership(t *testing.T) {
	f := Eq("includedInDatasets", "EGAD1")
	assert.True(t, f.Match(domain.Row{"includedInDatasets": []string{"EGAD0", "EGAD1"}}))
	assert.True(t, f.Match(domain.Row{"includedInDatasets": "EGAD1,EGAD2"}))
	assert.False(t, f.Match(domain.Row{"includedInDatasets": "EGAD10"}))
}

func TestFlatten(t *testing.T) {
	row := Flatten(map[string]any{
		"_href":     "/api/v2/rd3_subjects/P1",
		"subjectID": "P1",
		"ERN":       map[string]any{"_href": "/x", "id": "ERN-RND", "label": "Rare neuro"},
		"sex1":      map[string]any{"value": "M"},
		"mid":       map[string]any{"subjectID": "P0"},
		"phenotype": []any{map[string]any{"id": "HP_1"}, map[string]any{"id": "HP_2"}},
		"disease":   []any{},
		"empty":     map[string]any{},
		"count":     float64(3),
	})
	assert.Equal(t, domain.Row{
		"subjectID": "P1",
		"ERN":       "ERN-RND",
		"sex1":      "M",
		"mid":       "P0",
		"phenotype": "HP_1,HP_2",
		"disease":   nil,
		"empty":     nil,
		"count":     float64(3),
	}, row)
}

func TestFrameCSVRoundTrip(t *testing.T) {
	frame := NewFrame(domain.TableSamples, []domain.Row{
		{"belongsToSubject": "P1", "sampleID": "S1", "partOfRelease": []string{"freeze1", "freeze2"}},
		{"sampleID": "S2", "batch": `b "x"`},
	})
	assert.Equal(t, []string{"sampleID", "batch", "belongsToSubject", "partOfRelease"}, frame.Columns)

	var buf bytes.Buffer
	require.NoError(t, frame.WriteCSV(&buf))
	assert.Equal(t,
		"\"sampleID\",\"batch\",\"belongsToSubject\",\"partOfRelease\"\n"+
			"\"S1\",\"\",\"P1\",\"freeze1,freeze2\"\n"+
			"\"S2\",\"b \"\"x\"\"\",\"\",\"\"\n",
		buf.String())

	back, err := ReadCSV(domain.TableSamples, &buf)
	require.NoError(t, err)
	require.Len(t, back.Rows, 2)
	assert.Equal(t, `b "x"`, back.Rows[1]["batch"])
	assert.Nil(t, back.Rows[1]["belongsToSubject"])
}

func TestChunks(t *testing.T) {
	assert.Equal(t, []Span{{0, 1000}, {1000, 1000}, {2000, 5}}, Chunks(2005, MaxChunkSize))
	assert.Empty(t, Chunks(0, MaxChunkSize))
}

func TestFailedIndexes(t *testing.T) {
	werr := &WriteError{Table: domain.TableFiles, Failures: []*RequestError{{Offset: 2, Size: 2, Status: 400, Message: "bad"}}}
	got := FailedIndexes(werr, 5)
	assert.Equal(t, map[int]struct{}{2: {}, 3: {}}, got)
	assert.Nil(t, FailedIndexes(nil, 5))
	assert.Len(t, FailedIndexes(errors.New("boom"), 3), 3)
	assert.Contains(t, werr.Error(), "status 400: bad")
}
