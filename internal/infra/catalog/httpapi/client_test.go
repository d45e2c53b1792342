package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rd3/internal/gateway/core"
	"rd3/pkg/domain"
)

type fakeCatalog struct {
	mu       sync.Mutex
	requests []string
	tokens   []string
	posts    [][]map[string]any
	puts     []string
	imports  []string
	deletes  []string
	queries  []url.Values
	items    []map[string]any
	failPost map[int]bool
	logouts  int
}

func (f *fakeCatalog) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/api/v1/login":
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
			return
		case r.URL.Path == "/api/v1/logout":
			f.logouts++
			return
		}
		f.tokens = append(f.tokens, r.Header.Get(tokenHeader))
		switch {
		case r.Method == http.MethodGet:
			f.queries = append(f.queries, r.URL.Query())
			start, _ := strconv.Atoi(r.URL.Query().Get("start"))
			num, _ := strconv.Atoi(r.URL.Query().Get("num"))
			end := start + num
			if end > len(f.items) {
				end = len(f.items)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"items": f.items[start:end], "total": len(f.items)})
		case r.Method == http.MethodPost && r.URL.Path == importPath:
			require.NoError(t, r.ParseMultipartForm(1<<20))
			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(file)
			f.imports = append(f.imports, r.URL.RawQuery+"\n"+string(data))
		case r.Method == http.MethodPost:
			var body struct {
				Entities []map[string]any `json:"entities"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			idx := len(f.posts)
			f.posts = append(f.posts, body.Entities)
			if f.failPost[idx] {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"errors":[{"message":"unknown xref value"}]}`))
			}
		case r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.puts = append(f.puts, r.URL.Path+" "+string(body))
		case r.Method == http.MethodDelete:
			f.deletes = append(f.deletes, r.URL.Path)
		}
	})
}

func newTestClient(t *testing.T, fc *fakeCatalog, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(fc.handler(t))
	t.Cleanup(srv.Close)
	cfg.Host = srv.URL
	cfg.Retries = -1
	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return client
}

func TestLoginAttachesTokenAndLogoutDiscardsIt(t *testing.T) {
	fc := &fakeCatalog{}
	client := newTestClient(t, fc, Config{Username: "admin", Password: "secret"})

	_, err := client.Fetch(context.Background(), domain.TableSubjects, core.FetchOptions{})
	require.NoError(t, err)
	require.NoError(t, client.Logout(context.Background()))

	assert.Equal(t, []string{"tok-1"}, fc.tokens)
	assert.Equal(t, 1, fc.logouts)
	_, err = client.Fetch(context.Background(), domain.TableSubjects, core.FetchOptions{})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestNewRequiresCredential(t *testing.T) {
	_, err := New(context.Background(), Config{Host: "catalog.example.org"})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestFetchPagesAndFlattens(t *testing.T) {
	fc := &fakeCatalog{}
	for i := 0; i < 5; i++ {
		fc.items = append(fc.items, map[string]any{
			"_href":            "/api/v2/rd3_samples/S" + strconv.Itoa(i),
			"sampleID":         "S" + strconv.Itoa(i),
			"belongsToSubject": map[string]any{"_href": "x", "subjectID": "P" + strconv.Itoa(i)},
			"partOfRelease":    []any{map[string]any{"id": "freeze1"}, map[string]any{"id": "freeze2"}},
			"tissueType":       map[string]any{},
		})
	}
	client := newTestClient(t, fc, Config{Token: "static"})

	rows, err := client.Fetch(context.Background(), domain.TableSamples, core.FetchOptions{
		Filter:     core.Eq("retracted", "N"),
		Attributes: []string{"sampleID", "belongsToSubject"},
		BatchSize:  2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "P3", rows[3]["belongsToSubject"])
	assert.Equal(t, "freeze1,freeze2", rows[0]["partOfRelease"])
	assert.Nil(t, rows[0]["tissueType"])
	_, hasHref := rows[0]["_href"]
	assert.False(t, hasHref)
	assert.Len(t, fc.requests, 3)
	assert.Equal(t, []string{"static", "static", "static"}, fc.tokens)
	assert.Equal(t, "sampleID,belongsToSubject", fc.queries[0].Get("attributes"))
	assert.Empty(t, fc.queries[0].Get("attrs"))
}

func TestUpsertRowsContinuesAfterFailedChunk(t *testing.T) {
	fc := &fakeCatalog{failPost: map[int]bool{1: true}}
	client := newTestClient(t, fc, Config{Token: "static"})
	rows := make([]domain.Row, 2500)
	for i := range rows {
		rows[i] = domain.Row{"subjectID": "P" + strconv.Itoa(i)}
	}

	err := client.UpsertRows(context.Background(), domain.TableSubjects, rows)

	var werr *core.WriteError
	require.True(t, errors.As(err, &werr))
	require.Len(t, werr.Failures, 1)
	failure := werr.Failures[0]
	assert.Equal(t, domain.TableSubjects, failure.Table)
	assert.Equal(t, 1000, failure.Offset)
	assert.Equal(t, 1000, failure.Size)
	assert.Equal(t, http.StatusBadRequest, failure.Status)
	assert.Equal(t, "unknown xref value", failure.Message)
	require.Len(t, fc.posts, 3)
	assert.Len(t, fc.posts[2], 500)

	failed := core.FailedIndexes(err, len(rows))
	assert.Len(t, failed, 1000)
	_, ok := failed[1500]
	assert.True(t, ok)
}

func TestUpdateAttributeSendsIDAndColumnOnly(t *testing.T) {
	fc := &fakeCatalog{}
	client := newTestClient(t, fc, Config{Token: "static"})
	err := client.UpdateAttribute(context.Background(), domain.TableShipmentStaging, "processed", []domain.Row{
		{"molgenis_id": "m1", "processed": true, "error_type": "ignored"},
	})
	require.NoError(t, err)
	require.Len(t, fc.puts, 1)
	assert.True(t, strings.HasPrefix(fc.puts[0], "/api/v2/rd3_portal_shipment/processed "))
	assert.Contains(t, fc.puts[0], `"molgenis_id":"m1"`)
	assert.NotContains(t, fc.puts[0], "error_type")
}

func TestUpsertCSVPostsQuotedFile(t *testing.T) {
	fc := &fakeCatalog{}
	client := newTestClient(t, fc, Config{Token: "static"})
	frame := core.NewFrame(domain.TableSubjects, []domain.Row{{"subjectID": "P001", "sex1": "M"}})

	require.NoError(t, client.UpsertCSV(context.Background(), domain.TableSubjects, frame))

	require.Len(t, fc.imports, 1)
	assert.Contains(t, fc.imports[0], "action=add_update_existing")
	assert.Contains(t, fc.imports[0], "metadataAction=ignore")
	assert.Contains(t, fc.imports[0], "\"subjectID\",\"sex1\"\n\"P001\",\"M\"\n")
}

func TestDeleteRefusesCanonicalTables(t *testing.T) {
	fc := &fakeCatalog{}
	client := newTestClient(t, fc, Config{Token: "static"})
	err := client.DeleteList(context.Background(), domain.TableSubjects, []string{"P001"})
	assert.ErrorIs(t, err, core.ErrCanonicalDelete)
	err = client.DeleteAll(context.Background(), domain.TableSamples)
	assert.ErrorIs(t, err, core.ErrCanonicalDelete)
	assert.Empty(t, fc.deletes)
}

func TestDeleteListRemovesEachID(t *testing.T) {
	fc := &fakeCatalog{}
	client := newTestClient(t, fc, Config{Token: "static"})
	require.NoError(t, client.DeleteList(context.Background(), domain.TableErrorCounts, []string{"a", "b", "c"}))
	assert.ElementsMatch(t, []string{
		"/api/v2/rd3_portal_error_counts/a",
		"/api/v2/rd3_portal_error_counts/b",
		"/api/v2/rd3_portal_error_counts/c",
	}, fc.deletes)
	require.NoError(t, client.DeleteAll(context.Background(), domain.TableErrorCounts))
}

func TestTransportFailureIsMarked(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()
	client, err := New(context.Background(), Config{Host: host, Token: "static", Retries: -1})
	require.NoError(t, err)

	_, err = client.Fetch(context.Background(), domain.TableSubjects, core.FetchOptions{})
	var rerr *core.RequestError
	require.True(t, errors.As(err, &rerr))
	assert.True(t, rerr.Transport())
	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestObserveReportsStatuses(t *testing.T) {
	fc := &fakeCatalog{}
	var mu sync.Mutex
	var seen []int
	client := newTestClient(t, fc, Config{Token: "static", Observe: func(_ string, status int) {
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
	}})
	_, err := client.Fetch(context.Background(), domain.TableSubjects, core.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{http.StatusOK}, seen)
}
