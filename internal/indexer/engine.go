// Package indexer is the service layer over the in-memory index. Engine turns
// files, directories and raw text into index mutations and ranked searches;
// Persistor keeps a durable snapshot of the index on disk.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// DocumentExt is the only extension IndexDirectory picks up.
const DocumentExt = ".txt"

// Catalog mirrors index membership into an external store.
type Catalog interface {
	Upsert(ctx context.Context, rec catalog.Record) error
	Delete(ctx context.Context, key string) error
	Reconcile(ctx context.Context, live []catalog.Record) (catalog.ReconcileResult, error)
}

type Options struct {
	// DirectoryWorkers bounds concurrent file reads in IndexDirectory.
	DirectoryWorkers int
	// MaxResults caps the length of a ranked result list. Zero means no cap.
	MaxResults int
	Catalog    Catalog
	Notifier   events.Notifier
	Metrics    *metrics.Metrics
}

type Engine struct {
	idx      *index.MemoryIndex
	workers  int
	maxHits  int
	catalog  Catalog
	notifier events.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Stats summarises the index.
type Stats struct {
	Documents        int     `json:"documents"`
	AverageDocLength float64 `json:"average_doc_length"`
	Terms            int     `json:"terms"`
	Generation       uint64  `json:"generation"`
}

// DirectoryResult reports what IndexDirectory did with each entry. Failed
// maps a file path to the reason it could not be indexed.
type DirectoryResult struct {
	Indexed []string          `json:"indexed"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func NewEngine(idx *index.MemoryIndex, opts Options) *Engine {
	if opts.DirectoryWorkers <= 0 {
		opts.DirectoryWorkers = 4
	}
	if opts.Notifier == nil {
		opts.Notifier = events.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	e := &Engine{
		idx:      idx,
		workers:  opts.DirectoryWorkers,
		maxHits:  opts.MaxResults,
		catalog:  opts.Catalog,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "indexer"),
	}
	e.RefreshGauges()
	return e
}

// Index returns the underlying index.
func (e *Engine) Index() *index.MemoryIndex {
	return e.idx
}

// IndexDocument indexes content under key, replacing any previous version.
func (e *Engine) IndexDocument(ctx context.Context, key string, content string) (index.DocStats, error) {
	return e.indexDocument(ctx, key, content, "")
}

func (e *Engine) indexDocument(ctx context.Context, key, content, source string) (index.DocStats, error) {
	if strings.TrimSpace(key) == "" {
		e.metrics.IndexFailuresTotal.WithLabelValues("invalid_key").Inc()
		return index.DocStats{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "document key is required")
	}
	if err := ctx.Err(); err != nil {
		return index.DocStats{}, fmt.Errorf("indexing %s: %w", key, err)
	}

	stats := e.idx.IndexDocument(key, content)
	e.metrics.DocsIndexedTotal.Inc()
	e.RefreshGauges()
	e.logger.Debug("document indexed",
		"key", key,
		"length", stats.DocLen,
		"terms", stats.TermCount,
	)

	if e.catalog != nil {
		rec := catalog.Record{Key: key, Source: source, Length: stats.DocLen, TermCount: stats.TermCount}
		if err := e.catalog.Upsert(ctx, rec); err != nil {
			e.logger.Warn("catalog upsert failed", "key", key, "error", err)
		}
	}
	e.notifier.Notify(events.DocumentEvent{
		Type:        events.EventDocumentIndexed,
		DocumentKey: key,
		Source:      source,
		Length:      stats.DocLen,
		Terms:       stats.TermCount,
		Generation:  e.idx.Generation(),
	})
	return stats, nil
}

// DocumentKey derives the index key for a file: its base name without the
// extension.
func DocumentKey(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IndexFile reads path in full and indexes it under DocumentKey(path). The
// index is untouched when the file cannot be read.
func (e *Engine) IndexFile(ctx context.Context, path string) (index.DocStats, error) {
	content, err := readDocument(path)
	if err != nil {
		e.metrics.IndexFailuresTotal.WithLabelValues("unreadable").Inc()
		return index.DocStats{}, err
	}
	return e.indexDocument(ctx, DocumentKey(path), content, path)
}

func readDocument(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperrors.Newf(apperrors.ErrUnreadableSource, http.StatusNotFound, "file %s does not exist", path)
		}
		return "", apperrors.Newf(apperrors.ErrUnreadableSource, http.StatusBadRequest, "reading %s: %v", path, err)
	}
	if !utf8.Valid(data) {
		return "", apperrors.Newf(apperrors.ErrUnreadableSource, http.StatusBadRequest, "file %s is not valid UTF-8", path)
	}
	return string(data), nil
}

// IndexDirectory indexes every *.txt file directly inside dir. Other entries
// are skipped. A file that cannot be read is reported in Failed and does not
// stop the others.
func (e *Engine) IndexDirectory(ctx context.Context, dir string) (*DirectoryResult, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "directory path is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrUnreadableSource, http.StatusNotFound, "directory %s does not exist", dir)
		}
		return nil, apperrors.Newf(apperrors.ErrUnreadableSource, http.StatusBadRequest, "listing %s: %v", dir, err)
	}

	start := time.Now()
	result := &DirectoryResult{
		Indexed: []string{},
		Skipped: []string{},
		Failed:  make(map[string]string),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() || filepath.Ext(entry.Name()) != DocumentExt {
			e.logger.Debug("skipping non-document entry", "path", path)
			result.Skipped = append(result.Skipped, path)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := e.IndexFile(gctx, path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("failed to index file", "path", path, "error", err)
				result.Failed[path] = err.Error()
				return nil
			}
			result.Indexed = append(result.Indexed, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexing directory %s: %w", dir, err)
	}

	sort.Strings(result.Indexed)
	sort.Strings(result.Skipped)
	e.logger.Info("directory indexed",
		"dir", dir,
		"indexed", len(result.Indexed),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// RemoveDocument deletes key from the index and reports whether it was there.
func (e *Engine) RemoveDocument(ctx context.Context, key string) bool {
	if key == "" || !e.idx.RemoveDocument(key) {
		return false
	}
	e.metrics.DocsRemovedTotal.Inc()
	e.RefreshGauges()
	e.logger.Debug("document removed", "key", key)

	if e.catalog != nil {
		if err := e.catalog.Delete(ctx, key); err != nil {
			e.logger.Warn("catalog delete failed", "key", key, "error", err)
		}
	}
	e.notifier.Notify(events.DocumentEvent{
		Type:        events.EventDocumentRemoved,
		DocumentKey: key,
		Generation:  e.idx.Generation(),
	})
	return true
}

// Query returns the unordered BM25 score of every document matching text.
func (e *Engine) Query(ctx context.Context, text string) map[string]float64 {
	return e.idx.Query(text)
}

// Search ranks the documents matching text, best first, and reports how many
// documents matched in total. A limit of zero or less returns every match,
// subject to MaxResults.
func (e *Engine) Search(ctx context.Context, text string, limit int) ([]ranker.ScoredDoc, int) {
	if e.maxHits > 0 && (limit <= 0 || limit > e.maxHits) {
		limit = e.maxHits
	}
	scores := e.idx.Query(text)
	results := ranker.Rank(scores, limit)

	resultType := "hit"
	if len(scores) == 0 {
		resultType = "zero_result"
	}
	e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	e.metrics.SearchResultsCount.Observe(float64(len(scores)))
	return results, len(scores)
}

// NormalizeTerm maps raw text to the index term it would produce. A string
// that is already an index term is returned unchanged. Text that produces no
// term yields "" and no error; text that produces several terms is rejected
// with ErrInvalidInput.
func (e *Engine) NormalizeTerm(term string) (string, error) {
	if e.idx.DocFrequency(term) > 0 {
		return term, nil
	}
	terms := tokenizer.Terms(term)
	switch len(terms) {
	case 0:
		return "", nil
	case 1:
		return terms[0], nil
	default:
		return "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"%q produces %d terms, expected one", term, len(terms))
	}
}

// TermDocumentFrequency returns how many documents contain term. Input that
// does not normalise to a single term has frequency 0.
func (e *Engine) TermDocumentFrequency(term string) int {
	normalized, err := e.NormalizeTerm(term)
	if err != nil || normalized == "" {
		return 0
	}
	return e.idx.DocFrequency(normalized)
}

// TermPostings returns the normalised term and its postings.
func (e *Engine) TermPostings(term string) (string, index.PostingList, error) {
	normalized, err := e.NormalizeTerm(term)
	if err != nil || normalized == "" {
		return "", nil, err
	}
	return normalized, e.idx.Search(normalized), nil
}

func (e *Engine) DocumentCount() int {
	return e.idx.DocCount()
}

func (e *Engine) AverageDocumentLength() float64 {
	return e.idx.AvgDocLength()
}

func (e *Engine) Generation() uint64 {
	return e.idx.Generation()
}

func (e *Engine) Stats() Stats {
	return Stats{
		Documents:        e.idx.DocCount(),
		AverageDocLength: e.idx.AvgDocLength(),
		Terms:            e.idx.TermCount(),
		Generation:       e.idx.Generation(),
	}
}

// SyncCatalog makes the catalog list exactly the documents the index holds,
// typically after a snapshot load: stale rows go, missing rows are added. It
// is a no-op without a catalog.
func (e *Engine) SyncCatalog(ctx context.Context) error {
	if e.catalog == nil {
		return nil
	}
	docs := e.idx.Documents()
	live := make([]catalog.Record, 0, len(docs))
	for _, d := range docs {
		live = append(live, catalog.Record{Key: d.DocID, Length: d.DocLen, TermCount: d.TermCount})
	}
	if _, err := e.catalog.Reconcile(ctx, live); err != nil {
		return fmt.Errorf("reconciling catalog: %w", err)
	}
	return nil
}

// RefreshGauges publishes the current document and term counts. Call it after
// loading a snapshot into the index.
func (e *Engine) RefreshGauges() {
	e.metrics.IndexDocuments.Set(float64(e.idx.DocCount()))
	e.metrics.IndexTerms.Set(float64(e.idx.TermCount()))
}
