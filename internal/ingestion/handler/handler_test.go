package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCatalog keeps catalog rows in insertion order.
type memoryCatalog struct {
	mu      sync.Mutex
	records []catalog.Record
	err     error
}

func (c *memoryCatalog) Upsert(ctx context.Context, rec catalog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.records {
		if c.records[i].Key == rec.Key {
			c.records[i] = rec
			return nil
		}
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *memoryCatalog) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.records {
		if c.records[i].Key == key {
			c.records = append(c.records[:i], c.records[i+1:]...)
			break
		}
	}
	return nil
}

func (c *memoryCatalog) Reconcile(ctx context.Context, live []catalog.Record) (catalog.ReconcileResult, error) {
	return catalog.ReconcileResult{}, nil
}

func (c *memoryCatalog) Get(ctx context.Context, key string) (*catalog.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	for _, rec := range c.records {
		if rec.Key == key {
			return &rec, nil
		}
	}
	return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound, "document %q is not in the catalog", key)
}

func (c *memoryCatalog) List(ctx context.Context, limit, offset int) ([]catalog.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if offset >= len(c.records) {
		return nil, nil
	}
	end := min(offset+limit, len(c.records))
	return append([]catalog.Record(nil), c.records[offset:end]...), nil
}

func (c *memoryCatalog) Count(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return len(c.records), nil
}

func newServer(t *testing.T) (*indexer.Engine, *http.ServeMux) {
	t.Helper()
	return newServerWithCatalog(t, nil)
}

func newServerWithCatalog(t *testing.T, docs *memoryCatalog) (*indexer.Engine, *http.ServeMux) {
	t.Helper()
	opts := indexer.Options{}
	var reader DocumentCatalog
	if docs != nil {
		opts.Catalog = docs
		reader = docs
	}
	e := indexer.NewEngine(index.NewMemoryIndex(ranker.DefaultParams()), opts)
	h := New(e, reader)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/index", h.Index)
	mux.HandleFunc("POST /api/v1/index-directory", h.IndexDirectory)
	mux.HandleFunc("GET /api/v1/documents", h.ListDocuments)
	mux.HandleFunc("GET /api/v1/documents/{key}", h.GetDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{key}", h.Remove)
	return e, mux
}

func send(mux http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestIndexInlineDocument(t *testing.T) {
	e, mux := newServer(t)

	rec := send(mux, http.MethodPost, "/api/v1/index", `{"key":"a","content":"cat dog cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ingestion.IndexResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ingestion.IndexResponse{Key: "a", Length: 3, Terms: 2, Status: "indexed"}, resp)
	assert.Equal(t, 1, e.DocumentCount())
}

func TestIndexFile(t *testing.T) {
	e, mux := newServer(t)
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("cats and dogs"), 0644))

	body, _ := json.Marshal(ingestion.IndexRequest{FilePath: path})
	rec := send(mux, http.MethodPost, "/api/v1/index", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"key":"notes"`)
	assert.Equal(t, 1, e.TermDocumentFrequency("cat"))
}

func TestIndexMissingFile(t *testing.T) {
	e, mux := newServer(t)
	body, _ := json.Marshal(ingestion.IndexRequest{FilePath: filepath.Join(t.TempDir(), "gone.txt")})

	rec := send(mux, http.MethodPost, "/api/v1/index", string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "does not exist")
	assert.Zero(t, e.DocumentCount())
}

func TestIndexValidation(t *testing.T) {
	_, mux := newServer(t)

	rec := send(mux, http.MethodPost, "/api/v1/index", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation failed")

	rec = send(mux, http.MethodPost, "/api/v1/index", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIndexDirectory(t *testing.T) {
	e, mux := newServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("cat"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("dog"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.csv"), []byte("bird"), 0644))

	body, _ := json.Marshal(ingestion.IndexDirectoryRequest{DirPath: dir})
	rec := send(mux, http.MethodPost, "/api/v1/index-directory", string(body))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ingestion.IndexDirectoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Indexed)
	assert.Equal(t, 1, resp.Skipped)
	assert.Equal(t, "indexed", resp.Status)
	assert.Equal(t, 2, e.DocumentCount())

	body, _ = json.Marshal(ingestion.IndexDirectoryRequest{DirPath: filepath.Join(dir, "missing")})
	rec = send(mux, http.MethodPost, "/api/v1/index-directory", string(body))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveDocument(t *testing.T) {
	_, mux := newServer(t)
	require.Equal(t, http.StatusOK, send(mux, http.MethodPost, "/api/v1/index", `{"key":"a","content":"cat"}`).Code)

	rec := send(mux, http.MethodDelete, "/api/v1/documents/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"removed"`)

	rec = send(mux, http.MethodDelete, "/api/v1/documents/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentCatalogEndpoints(t *testing.T) {
	docs := &memoryCatalog{}
	_, mux := newServerWithCatalog(t, docs)
	for _, body := range []string{
		`{"key":"a","content":"cat dog cat"}`,
		`{"key":"b","content":"dog"}`,
		`{"key":"c","content":"bird bird"}`,
	} {
		require.Equal(t, http.StatusOK, send(mux, http.MethodPost, "/api/v1/index", body).Code)
	}

	rec := send(mux, http.MethodGet, "/api/v1/documents?limit=2&offset=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list ingestion.DocumentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 3, list.Total)
	assert.Equal(t, 2, list.Limit)
	assert.Equal(t, 1, list.Offset)
	require.Len(t, list.Documents, 2)
	assert.Equal(t, "b", list.Documents[0].Key)
	assert.Equal(t, "c", list.Documents[1].Key)

	rec = send(mux, http.MethodGet, "/api/v1/documents/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var doc catalog.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "a", doc.Key)
	assert.Equal(t, 3, doc.Length)
	assert.Equal(t, 2, doc.TermCount)

	require.Equal(t, http.StatusOK, send(mux, http.MethodDelete, "/api/v1/documents/a", "").Code)
	rec = send(mux, http.MethodGet, "/api/v1/documents/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not in the catalog")

	rec = send(mux, http.MethodGet, "/api/v1/documents?offset=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"documents":[]`)

	rec = send(mux, http.MethodGet, "/api/v1/documents?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentCatalogUnavailable(t *testing.T) {
	docs := &memoryCatalog{err: apperrors.Wrap(apperrors.ErrUnavailable, http.StatusServiceUnavailable,
		errors.New("connection refused"), "catalog get failed after 3 attempts")}
	_, mux := newServerWithCatalog(t, docs)

	rec := send(mux, http.MethodGet, "/api/v1/documents/a", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")

	rec = send(mux, http.MethodGet, "/api/v1/documents", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocumentCatalogDisabled(t *testing.T) {
	_, mux := newServer(t)
	assert.Equal(t, http.StatusServiceUnavailable, send(mux, http.MethodGet, "/api/v1/documents", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, send(mux, http.MethodGet, "/api/v1/documents/a", "").Code)
}
