// Package executor runs a free-text query against the index and shapes the
// ranked outcome into a SearchResult.
package executor

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/ranker"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats,omitempty"`
}

// Searcher is the part of the index engine the executor needs.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]ranker.ScoredDoc, int)
	TermDocumentFrequency(term string) int
}

type Executor struct {
	searcher Searcher
	logger   *slog.Logger
}

func New(searcher Searcher) *Executor {
	return &Executor{
		searcher: searcher,
		logger:   slog.Default().With("component", "query-executor"),
	}
}

// Execute scores query and returns at most limit results. TermStats holds the
// document frequency of each distinct query term, including terms that match
// nothing.
func (e *Executor) Execute(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenizer.Terms(query)
	if len(terms) == 0 {
		return &SearchResult{
			Query:   query,
			Results: []ranker.ScoredDoc{},
		}, nil
	}

	termStats := make(map[string]int, len(terms))
	for _, term := range terms {
		if _, seen := termStats[term]; !seen {
			termStats[term] = e.searcher.TermDocumentFrequency(term)
		}
	}

	results, total := e.searcher.Search(ctx, query, limit)
	if results == nil {
		results = []ranker.ScoredDoc{}
	}
	e.logger.Debug("query executed",
		"terms", len(terms),
		"total_hits", total,
		"returned", len(results),
	)
	return &SearchResult{
		Query:     query,
		TotalHits: total,
		Results:   results,
		TermStats: termStats,
	}, nil
}
