package indexer

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/events"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu      sync.Mutex
	records map[string]catalog.Record
	err     error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{records: make(map[string]catalog.Record)}
}

func (c *fakeCatalog) Upsert(ctx context.Context, rec catalog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.records[rec.Key] = rec
	return nil
}

func (c *fakeCatalog) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, key)
	return c.err
}

func (c *fakeCatalog) Reconcile(ctx context.Context, live []catalog.Record) (catalog.ReconcileResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res catalog.ReconcileResult
	keep := make(map[string]bool, len(live))
	for _, rec := range live {
		keep[rec.Key] = true
		if _, ok := c.records[rec.Key]; !ok {
			c.records[rec.Key] = rec
			res.Added++
		}
	}
	for k := range c.records {
		if !keep[k] {
			delete(c.records, k)
			res.Removed++
		}
	}
	return res, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []events.DocumentEvent
}

func (l *eventLog) Notify(e events.DocumentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []events.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func newTestEngine(opts Options) *Engine {
	return NewEngine(index.NewMemoryIndex(ranker.DefaultParams()), opts)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestIndexDocumentUpdatesCollaborators(t *testing.T) {
	cat := newFakeCatalog()
	log := &eventLog{}
	m := metrics.NewUnregistered()
	e := newTestEngine(Options{Catalog: cat, Notifier: log, Metrics: m})
	ctx := context.Background()

	stats, err := e.IndexDocument(ctx, "a", "cat dog cat")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.DocLen)
	assert.Equal(t, 2, stats.TermCount)

	assert.Equal(t, 3, cat.records["a"].Length)
	assert.Equal(t, []events.EventType{events.EventDocumentIndexed}, log.types())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IndexDocuments))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IndexTerms))

	assert.True(t, e.RemoveDocument(ctx, "a"))
	assert.False(t, e.RemoveDocument(ctx, "a"))
	assert.Empty(t, cat.records)
	assert.Equal(t, []events.EventType{events.EventDocumentIndexed, events.EventDocumentRemoved}, log.types())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.IndexDocuments))
}

func TestIndexDocumentRejectsEmptyKey(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.IndexDocument(context.Background(), "  ", "cat")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 0, e.DocumentCount())
}

func TestCatalogFailureDoesNotFailIndexing(t *testing.T) {
	cat := newFakeCatalog()
	cat.err = errors.New("connection refused")
	e := newTestEngine(Options{Catalog: cat})

	_, err := e.IndexDocument(context.Background(), "a", "cat")
	require.NoError(t, err)
	assert.Equal(t, 1, e.DocumentCount())
}

func TestIndexFileUsesBaseNameAsKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "report.final.txt", "cats chase dogs")
	e := newTestEngine(Options{})

	stats, err := e.IndexFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "report.final", stats.DocID)
	_, ok := e.Index().DocLength("report.final")
	assert.True(t, ok)
}

func TestIndexFileUnreadableLeavesIndexUnchanged(t *testing.T) {
	dir := t.TempDir()
	e := newTestEngine(Options{})
	_, err := e.IndexDocument(context.Background(), "missing", "original content")
	require.NoError(t, err)
	gen := e.Generation()

	_, err = e.IndexFile(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.ErrorIs(t, err, apperrors.ErrUnreadableSource)

	bad := writeFile(t, dir, "bad.txt", "\xff\xfe\xfd")
	_, err = e.IndexFile(context.Background(), bad)
	assert.ErrorIs(t, err, apperrors.ErrUnreadableSource)

	assert.Equal(t, gen, e.Generation())
	assert.Equal(t, 1, e.DocumentCount())
	assert.Equal(t, 1, e.TermDocumentFrequency("original"))
}

func TestIndexDirectoryOnlyTextFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "cat dog")
	writeFile(t, dir, "b.txt", "dog dog")
	writeFile(t, dir, "notes.md", "cat")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0755))
	e := newTestEngine(Options{DirectoryWorkers: 2})

	res, err := e.IndexDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, res.Indexed)
	assert.Equal(t, []string{filepath.Join(dir, "notes.md"), filepath.Join(dir, "sub.txt")}, res.Skipped)
	assert.Empty(t, res.Failed)
	assert.Equal(t, 2, e.DocumentCount())
	assert.Equal(t, 2, e.TermDocumentFrequency("dogs"))
	assert.Equal(t, 1, e.TermDocumentFrequency("cat"))
}

func TestIndexDirectoryReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.txt", "cat")
	bad := writeFile(t, dir, "bad.txt", "\xff\xfe")
	e := newTestEngine(Options{})

	res, err := e.IndexDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, res.Indexed, 1)
	assert.Contains(t, res.Failed, bad)
	assert.Equal(t, 1, e.DocumentCount())
}

func TestIndexDirectoryMissing(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.IndexDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, apperrors.ErrUnreadableSource)
}

func TestIndexDirectoryCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "cat")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(Options{})

	_, err := e.IndexDirectory(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchRanksAndLimits(t *testing.T) {
	m := metrics.NewUnregistered()
	e := newTestEngine(Options{Metrics: m, MaxResults: 2})
	ctx := context.Background()
	for key, content := range map[string]string{
		"a": "cat dog cat",
		"b": "dog dog dog dog",
		"c": "dog",
		"d": "bird",
	} {
		_, err := e.IndexDocument(ctx, key, content)
		require.NoError(t, err)
	}

	all := e.Query(ctx, "dog")
	assert.Len(t, all, 3)

	results, total := e.Search(ctx, "dog", 0)
	require.Len(t, results, 2)
	assert.Equal(t, 3, total)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	limited, _ := e.Search(ctx, "dog", 1)
	assert.Len(t, limited, 1)
	none, total := e.Search(ctx, "unicorn", 10)
	assert.Empty(t, none)
	assert.Zero(t, total)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("zero_result")))
}

func TestTermLookupNormalizes(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.IndexDocument(context.Background(), "a", "Running runners ran")
	require.NoError(t, err)

	term, postings, err := e.TermPostings("running")
	require.NoError(t, err)
	require.NotEmpty(t, term)
	require.Len(t, postings, 1)
	assert.Equal(t, "a", postings[0].DocID)

	same, _, err := e.TermPostings(term)
	require.NoError(t, err)
	assert.Equal(t, term, same)

	assert.Equal(t, 0, e.TermDocumentFrequency("the"))
	assert.Equal(t, 0, e.TermDocumentFrequency("..."))

	// Stop words do not count towards the term limit.
	single, err := e.NormalizeTerm("the running")
	require.NoError(t, err)
	assert.Equal(t, term, single)
}

func TestTermLookupRejectsMultipleTerms(t *testing.T) {
	e := newTestEngine(Options{})
	_, err := e.IndexDocument(context.Background(), "a", "cat dog")
	require.NoError(t, err)

	term, postings, err := e.TermPostings("cat dog")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
	assert.Empty(t, term)
	assert.Nil(t, postings)
	assert.Equal(t, 0, e.TermDocumentFrequency("cat dog"))
}

func TestStats(t *testing.T) {
	e := newTestEngine(Options{})
	assert.Equal(t, Stats{}, e.Stats())

	ctx := context.Background()
	_, err := e.IndexDocument(ctx, "a", "cat dog cat")
	require.NoError(t, err)
	_, err = e.IndexDocument(ctx, "b", "dog")
	require.NoError(t, err)

	stats := e.Stats()
	assert.Equal(t, 2, stats.Documents)
	assert.InDelta(t, 2.0, stats.AverageDocLength, 1e-9)
	assert.Equal(t, 2, stats.Terms)
	assert.Equal(t, uint64(2), stats.Generation)
}

func TestSyncCatalogMatchesIndex(t *testing.T) {
	cat := newFakeCatalog()
	cat.records["ghost"] = catalog.Record{Key: "ghost"}
	cat.records["a"] = catalog.Record{Key: "a", Source: "/docs/a.txt", Length: 1, TermCount: 1}
	e := newTestEngine(Options{Catalog: cat})
	// As after a snapshot load: documents reach the index without catalog writes.
	e.Index().IndexDocument("a", "cat")
	e.Index().IndexDocument("b", "dog dog bird")

	require.NoError(t, e.SyncCatalog(context.Background()))
	require.Len(t, cat.records, 2)
	assert.NotContains(t, cat.records, "ghost")
	assert.Equal(t, "/docs/a.txt", cat.records["a"].Source)
	assert.Equal(t, catalog.Record{Key: "b", Length: 3, TermCount: 2}, cat.records["b"])

	assert.NoError(t, newTestEngine(Options{}).SyncCatalog(context.Background()))
}

func TestDocumentKey(t *testing.T) {
	assert.Equal(t, "doc", DocumentKey("/data/doc.txt"))
	assert.Equal(t, "archive.tar", DocumentKey("archive.tar.gz"))
	assert.Equal(t, "README", DocumentKey("README"))
}
