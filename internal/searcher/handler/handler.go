// Package handler serves the search and index-inspection HTTP endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/executor"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
)

type SearchExecutor interface {
	Execute(ctx context.Context, query string, limit int) (*executor.SearchResult, error)
}

// IndexInspector exposes index statistics and postings.
type IndexInspector interface {
	Stats() indexer.Stats
	TermPostings(term string) (string, index.PostingList, error)
}

// SearchRequest is the JSON body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit *int   `json:"limit,omitempty"`
}

// TermResponse describes one index term.
type TermResponse struct {
	Term              string            `json:"term"`
	Normalized        string            `json:"normalized"`
	DocumentFrequency int               `json:"document_frequency"`
	Postings          index.PostingList `json:"postings"`
}

type Handler struct {
	executor     SearchExecutor
	inspector    IndexInspector
	cache        *cache.QueryCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. queryCache and m may be nil.
func New(exec SearchExecutor, inspector IndexInspector, queryCache *cache.QueryCache, m *metrics.Metrics, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		inspector:    inspector,
		cache:        queryCache,
		metrics:      m,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?q=...&limit=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	h.search(w, r, query, limit)
}

// SearchPost handles POST /api/v1/search with a SearchRequest body.
func (h *Handler) SearchPost(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	limit := h.defaultLimit
	if req.Limit != nil {
		if *req.Limit < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = *req.Limit
	}
	h.search(w, r, req.Query, limit)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, query string, limit int) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if strings.TrimSpace(query) == "" {
		h.writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if h.maxResults > 0 && (limit == 0 || limit > h.maxResults) {
		limit = h.maxResults
	}

	var result *executor.SearchResult
	var err error
	cacheStatus := "disabled"

	if h.cache != nil {
		var cacheHit bool
		result, cacheHit, err = h.cache.GetOrCompute(ctx, query, limit, func() (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, query, limit)
		})
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		if h.metrics != nil && err == nil {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	} else {
		result, err = h.executor.Execute(ctx, query, limit)
	}

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	elapsed := time.Since(start)
	if h.metrics != nil {
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	}
	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache", cacheStatus,
		"latency_ms", elapsed.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, result)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.inspector.Stats())
}

// Term handles GET /api/v1/terms/{term}.
func (h *Handler) Term(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("term")
	if strings.TrimSpace(raw) == "" {
		h.writeError(w, http.StatusBadRequest, "term is required")
		return
	}
	normalized, postings, err := h.inspector.TermPostings(raw)
	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		message := "term lookup failed"
		var appErr *apperrors.AppError
		if status < http.StatusInternalServerError && errors.As(err, &appErr) {
			message = appErr.Message
		}
		h.writeError(w, status, message)
		return
	}
	if postings == nil {
		postings = index.PostingList{}
	}
	h.writeJSON(w, http.StatusOK, TermResponse{
		Term:              raw,
		Normalized:        normalized,
		DocumentFrequency: len(postings),
		Postings:          postings,
	})
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
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
