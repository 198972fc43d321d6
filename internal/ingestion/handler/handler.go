// Package handler serves the HTTP endpoints that add documents to the index,
// remove them, and browse the document catalog.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/logger"
)

// Indexer is the write side of the index engine.
type Indexer interface {
	IndexDocument(ctx context.Context, key string, content string) (index.DocStats, error)
	IndexFile(ctx context.Context, path string) (index.DocStats, error)
	IndexDirectory(ctx context.Context, dir string) (*indexer.DirectoryResult, error)
	RemoveDocument(ctx context.Context, key string) bool
}

// DocumentCatalog is the read side of the document catalog.
type DocumentCatalog interface {
	Get(ctx context.Context, key string) (*catalog.Record, error)
	List(ctx context.Context, limit, offset int) ([]catalog.Record, error)
	Count(ctx context.Context) (int, error)
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Handler struct {
	indexer Indexer
	docs    DocumentCatalog
	logger  *slog.Logger
}

// New builds a Handler. docs may be nil, in which case the catalog
// endpoints answer 503.
func New(idx Indexer, docs DocumentCatalog) *Handler {
	return &Handler{
		indexer: idx,
		docs:    docs,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

// Index handles POST /api/v1/index.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIndexRequest(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	var stats index.DocStats
	var err error
	if req.FilePath != "" {
		stats, err = h.indexer.IndexFile(ctx, req.FilePath)
	} else {
		stats, err = h.indexer.IndexDocument(ctx, req.Key, req.Content)
	}
	if err != nil {
		h.writeEngineError(w, log, "indexing failed", err)
		return
	}

	log.Info("document indexed",
		"key", stats.DocID,
		"length", stats.DocLen,
		"terms", stats.TermCount,
	)
	h.writeJSON(w, http.StatusOK, ingestion.IndexResponse{
		Key:    stats.DocID,
		Length: stats.DocLen,
		Terms:  stats.TermCount,
		Status: "indexed",
	})
}

// IndexDirectory handles POST /api/v1/index-directory.
func (h *Handler) IndexDirectory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var req ingestion.IndexDirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validator.ValidateIndexDirectoryRequest(&req); err != nil {
		h.writeValidationError(w, err)
		return
	}

	res, err := h.indexer.IndexDirectory(ctx, req.DirPath)
	if err != nil {
		h.writeEngineError(w, log, "directory indexing failed", err)
		return
	}

	status := "indexed"
	if len(res.Failed) > 0 {
		status = "partial"
	}
	h.writeJSON(w, http.StatusOK, ingestion.IndexDirectoryResponse{
		Directory: req.DirPath,
		Indexed:   len(res.Indexed),
		Skipped:   len(res.Skipped),
		Failed:    res.Failed,
		Status:    status,
	})
}

// Remove handles DELETE /api/v1/documents/{key}.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.PathValue("key")
	if err := validator.ValidateKey(key); err != nil {
		h.writeValidationError(w, err)
		return
	}
	if !h.indexer.RemoveDocument(ctx, key) {
		h.writeError(w, http.StatusNotFound, "document not found")
		return
	}
	logger.FromContext(ctx).Info("document removed", "key", key)
	h.writeJSON(w, http.StatusOK, ingestion.RemoveResponse{Key: key, Status: "removed"})
}

// ListDocuments handles GET /api/v1/documents?limit=...&offset=...
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "document catalog is disabled")
		return
	}
	ctx := r.Context()
	log := logger.FromContext(ctx)

	limit, ok := h.intParam(w, r, "limit", defaultListLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	offset, ok := h.intParam(w, r, "offset", 0)
	if !ok {
		return
	}

	total, err := h.docs.Count(ctx)
	if err != nil {
		h.writeEngineError(w, log, "listing documents failed", err)
		return
	}
	records, err := h.docs.List(ctx, limit, offset)
	if err != nil {
		h.writeEngineError(w, log, "listing documents failed", err)
		return
	}
	if records == nil {
		records = []catalog.Record{}
	}
	h.writeJSON(w, http.StatusOK, ingestion.DocumentListResponse{
		Total:     total,
		Limit:     limit,
		Offset:    offset,
		Documents: records,
	})
}

// GetDocument handles GET /api/v1/documents/{key}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if h.docs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "document catalog is disabled")
		return
	}
	ctx := r.Context()
	key := r.PathValue("key")
	if err := validator.ValidateKey(key); err != nil {
		h.writeValidationError(w, err)
		return
	}
	rec, err := h.docs.Get(ctx, key)
	if err != nil {
		h.writeEngineError(w, logger.FromContext(ctx), "document lookup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// intParam reads a non-negative integer query parameter, writing a 400 when
// it is malformed.
func (h *Handler) intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		h.writeError(w, http.StatusBadRequest, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (h *Handler) writeValidationError(w http.ResponseWriter, err error) {
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
}

// writeEngineError reports client errors verbatim and hides server-side
// detail behind fallback.
func (h *Handler) writeEngineError(w http.ResponseWriter, log *slog.Logger, fallback string, err error) {
	statusCode := apperrors.HTTPStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		log.Error(fallback, "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, fallback)
		return
	}
	log.Warn(fallback, "error", err, "status_code", statusCode)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		h.writeError(w, statusCode, appErr.Message)
		return
	}
	h.writeError(w, statusCode, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
