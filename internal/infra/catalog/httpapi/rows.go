package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"rd3/internal/gateway/core"
	"rd3/pkg/domain"
)

const importPath = "/plugin/importwizard/importFile"

type page struct {
	Items []map[string]any `json:"items"`
	Total int              `json:"total"`
}

// Fetch pages through GET /api/v2/{table} and flattens every item.
func (c *Client) Fetch(ctx context.Context, table domain.Table, opts core.FetchOptions) ([]domain.Row, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = core.DefaultBatchSize
	}
	query := url.Values{}
	if opts.Filter != nil {
		if q := opts.Filter.Query(); q != "" {
			query.Set("q", q)
		}
	}
	if len(opts.Attributes) > 0 {
		query.Set("attributes", strings.Join(opts.Attributes, ","))
	}
	var rows []domain.Row
	for start := 0; ; {
		query.Set("start", strconv.Itoa(start))
		query.Set("num", strconv.Itoa(batch))
		resp, err := c.do(ctx, http.MethodGet, "/api/v2/"+url.PathEscape(string(table)), query, "", nil, true)
		if err != nil {
			return nil, c.requestError(http.MethodGet, table, start, 0, err)
		}
		if resp.StatusCode/100 != 2 {
			rerr := c.statusError(http.MethodGet, table, start, 0, resp)
			_ = resp.Body.Close()
			return nil, rerr
		}
		var p page
		err = json.NewDecoder(resp.Body).Decode(&p)
		drain(resp)
		if err != nil {
			return nil, c.requestError(http.MethodGet, table, start, 0, fmt.Errorf("decode page: %w", err))
		}
		for _, item := range p.Items {
			rows = append(rows, core.Flatten(item))
		}
		start += len(p.Items)
		if len(p.Items) < batch || (p.Total > 0 && start >= p.Total) {
			return rows, nil
		}
	}
}

// UpsertRows posts rows in chunks. Failed chunks are collected into a
// *core.WriteError; the remaining chunks are still sent.
func (c *Client) UpsertRows(ctx context.Context, table domain.Table, rows []domain.Row) error {
	path := "/api/v2/" + url.PathEscape(string(table))
	return c.chunked(ctx, http.MethodPost, path, table, rows, func(chunk []domain.Row) any {
		return map[string]any{"entities": chunk}
	})
}

// UpdateAttribute sends PUT /api/v2/{table}/{attr} in chunks. Each row must
// carry the id attribute and attr.
func (c *Client) UpdateAttribute(ctx context.Context, table domain.Table, attr string, rows []domain.Row) error {
	idAttr := table.IDAttribute()
	path := "/api/v2/" + url.PathEscape(string(table)) + "/" + url.PathEscape(attr)
	return c.chunked(ctx, http.MethodPut, path, table, rows, func(chunk []domain.Row) any {
		entities := make([]map[string]any, 0, len(chunk))
		for _, row := range chunk {
			entities = append(entities, map[string]any{idAttr: row[idAttr], attr: row[attr]})
		}
		return map[string]any{"entities": entities}
	})
}

func (c *Client) chunked(ctx context.Context, method, path string, table domain.Table, rows []domain.Row, body func([]domain.Row) any) error {
	werr := &core.WriteError{Table: table}
	for _, span := range core.Chunks(len(rows), core.MaxChunkSize) {
		if err := ctx.Err(); err != nil {
			werr.Failures = append(werr.Failures, &core.RequestError{Method: method, Table: table, Offset: span.Offset, Size: len(rows) - span.Offset, Err: err})
			break
		}
		payload, err := encode(body(rows[span.Offset : span.Offset+span.Size]))
		if err != nil {
			werr.Failures = append(werr.Failures, &core.RequestError{Method: method, Table: table, Offset: span.Offset, Size: span.Size, Err: err})
			continue
		}
		resp, err := c.do(ctx, method, path, nil, "application/json", payload, true)
		if err != nil {
			werr.Failures = append(werr.Failures, c.requestError(method, table, span.Offset, span.Size, err))
			continue
		}
		if resp.StatusCode/100 != 2 {
			werr.Failures = append(werr.Failures, c.statusError(method, table, span.Offset, span.Size, resp))
		}
		drain(resp)
	}
	if len(werr.Failures) > 0 {
		return werr
	}
	return nil
}

// UpsertCSV writes the frame to a temporary CSV file and posts it to the
// import endpoint with add-or-update semantics.
func (c *Client) UpsertCSV(ctx context.Context, table domain.Table, frame core.Frame) error {
	if frame.Len() == 0 {
		return nil
	}
	dir, err := os.MkdirTemp("", "rd3-import-*")
	if err != nil {
		return fmt.Errorf("httpapi: temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()
	name := string(table) + ".csv"
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("httpapi: create csv: %w", err)
	}
	if err := frame.WriteCSV(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("httpapi: write csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("httpapi: close csv: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("httpapi: read csv: %w", err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}
	query := url.Values{}
	query.Set("action", "add_update_existing")
	query.Set("metadataAction", "ignore")
	resp, err := c.do(ctx, http.MethodPost, importPath, query, mw.FormDataContentType(), body.Bytes(), true)
	if err != nil {
		return &core.WriteError{Table: table, Failures: []*core.RequestError{c.requestError(http.MethodPost, table, 0, frame.Len(), err)}}
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return &core.WriteError{Table: table, Failures: []*core.RequestError{c.statusError(http.MethodPost, table, 0, frame.Len(), resp)}}
	}
	return nil
}

// DeleteList removes rows one request per id, chunked and bounded-parallel.
func (c *Client) DeleteList(ctx context.Context, table domain.Table, ids []string) error {
	if table.IsCanonical() {
		return fmt.Errorf("%w: %s", core.ErrCanonicalDelete, table)
	}
	werr := &core.WriteError{Table: table}
	for _, span := range core.Chunks(len(ids), core.MaxChunkSize) {
		chunk := ids[span.Offset : span.Offset+span.Size]
		failures := make([]*core.RequestError, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(deleteParallelism)
		for i, id := range chunk {
			g.Go(func() error {
				path := "/api/v2/" + url.PathEscape(string(table)) + "/" + url.PathEscape(id)
				resp, err := c.do(gctx, http.MethodDelete, path, nil, "", nil, true)
				if err != nil {
					failures[i] = c.requestError(http.MethodDelete, table, span.Offset+i, 1, err)
					return nil
				}
				if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
					failures[i] = c.statusError(http.MethodDelete, table, span.Offset+i, 1, resp)
				}
				drain(resp)
				return nil
			})
		}
		_ = g.Wait()
		for _, f := range failures {
			if f != nil {
				werr.Failures = append(werr.Failures, f)
			}
		}
	}
	if len(werr.Failures) > 0 {
		return werr
	}
	return nil
}

// DeleteAll clears a non-canonical table.
func (c *Client) DeleteAll(ctx context.Context, table domain.Table) error {
	if table.IsCanonical() {
		return fmt.Errorf("%w: %s", core.ErrCanonicalDelete, table)
	}
	resp, err := c.do(ctx, http.MethodDelete, "/api/v2/"+url.PathEscape(string(table)), nil, "", nil, true)
	if err != nil {
		return c.requestError(http.MethodDelete, table, 0, 0, err)
	}
	defer drain(resp)
	if resp.StatusCode/100 != 2 {
		return c.statusError(http.MethodDelete, table, 0, 0, resp)
	}
	return nil
}
