// Package index holds the in-memory inverted index: term postings, document
// lengths, and the per-document term sets needed to delete a document cleanly.
package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/bm25-search-index/internal/searcher/ranker"
)

// MemoryIndex is safe for concurrent use. Every mutation and every Capture
// runs under the exclusive lock; queries take the shared lock. Postings lists
// are never edited in place: removal builds a replacement slice.
type MemoryIndex struct {
	mu          sync.RWMutex
	postings    map[string]PostingList
	docLengths  map[string]int
	docTerms    map[string]map[string]struct{}
	totalLength int64
	params      ranker.Params
	generation  atomic.Uint64
}

func NewMemoryIndex(params ranker.Params) *MemoryIndex {
	return &MemoryIndex{
		postings:   make(map[string]PostingList),
		docLengths: make(map[string]int),
		docTerms:   make(map[string]map[string]struct{}),
		params:     params,
	}
}

// IndexDocument replaces whatever the index holds for docID with postings
// computed from content. Tokenisation happens before the lock is taken, so a
// reader never observes the document half-replaced.
func (m *MemoryIndex) IndexDocument(docID string, content string) DocStats {
	termFreq := make(map[string]int)
	length := 0
	for _, token := range tokenizer.Tokenize(content) {
		termFreq[token.Term]++
		length++
	}
	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(docID)

	termSet := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		m.postings[term] = append(m.postings[term], Posting{
			DocID:     docID,
			Frequency: termFreq[term],
		})
		termSet[term] = struct{}{}
	}
	m.docLengths[docID] = length
	m.docTerms[docID] = termSet
	m.totalLength += int64(length)
	m.generation.Add(1)

	return DocStats{DocID: docID, DocLen: length, TermCount: len(terms)}
}

// RemoveDocument drops every posting, the length entry and the term set of
// docID. It reports whether the document was present.
func (m *MemoryIndex) RemoveDocument(docID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := m.removeLocked(docID)
	if removed {
		m.generation.Add(1)
	}
	return removed
}

func (m *MemoryIndex) removeLocked(docID string) bool {
	length, indexed := m.docLengths[docID]
	if !indexed {
		return false
	}
	termSet, ok := m.docTerms[docID]
	if !ok {
		panic(fmt.Sprintf("index invariant violated: document %q has a length but no term set", docID))
	}
	for term := range termSet {
		current := m.postings[term]
		kept := make(PostingList, 0, len(current))
		for _, p := range current {
			if p.DocID != docID {
				kept = append(kept, p)
			}
		}
		if len(kept) == 0 {
			delete(m.postings, term)
			continue
		}
		m.postings[term] = kept
	}
	delete(m.docTerms, docID)
	delete(m.docLengths, docID)
	m.totalLength -= int64(length)
	return true
}

// Query scores every document sharing at least one term with text using BM25.
// A term repeated in the query contributes once per occurrence. Documents
// without a matching term are absent from the result.
func (m *MemoryIndex) Query(text string) map[string]float64 {
	scores := make(map[string]float64)
	terms := tokenizer.Terms(text)
	if len(terms) == 0 {
		return scores
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	totalDocs := len(m.docLengths)
	avgLen := m.avgDocLengthLocked()
	for _, term := range terms {
		postings, ok := m.postings[term]
		if !ok {
			continue
		}
		idf := ranker.IDF(totalDocs, len(postings))
		for _, p := range postings {
			docLen, ok := m.docLengths[p.DocID]
			if !ok {
				panic(fmt.Sprintf("index invariant violated: term %q has a posting for unknown document %q", term, p.DocID))
			}
			scores[p.DocID] += ranker.Contribution(p.Frequency, idf, docLen, avgLen, m.params)
		}
	}
	return scores
}

// Search returns a copy of the postings for an already-normalised term,
// ordered by document ID.
func (m *MemoryIndex) Search(term string) PostingList {
	m.mu.RLock()
	defer m.mu.RUnlock()
	postings, exists := m.postings[term]
	if !exists {
		return nil
	}
	result := make(PostingList, len(postings))
	copy(result, postings)
	sort.Slice(result, func(i, j int) bool {
		return result[i].DocID < result[j].DocID
	})
	return result
}

// DocFrequency returns the number of documents containing the normalised term.
func (m *MemoryIndex) DocFrequency(term string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings[term])
}

func (m *MemoryIndex) DocLength(docID string) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	length, ok := m.docLengths[docID]
	return length, ok
}

// Documents returns length and distinct-term count for every indexed
// document, ordered by ID.
func (m *MemoryIndex) Documents() []DocStats {
	m.mu.RLock()
	docs := make([]DocStats, 0, len(m.docLengths))
	for id, length := range m.docLengths {
		docs = append(docs, DocStats{DocID: id, DocLen: length, TermCount: len(m.docTerms[id])})
	}
	m.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].DocID < docs[j].DocID })
	return docs
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docLengths)
}

func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.postings)
}

// AvgDocLength returns the mean document length, or 0 for an empty index.
func (m *MemoryIndex) AvgDocLength() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.avgDocLengthLocked()
}

func (m *MemoryIndex) avgDocLengthLocked() float64 {
	if len(m.docLengths) == 0 {
		return 0
	}
	return float64(m.totalLength) / float64(len(m.docLengths))
}

// Generation increases on every mutation and every Load. Caches use it to
// detect stale results.
func (m *MemoryIndex) Generation() uint64 {
	return m.generation.Load()
}

// Validate checks the structural invariants between the three tables.
func (m *MemoryIndex) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for docID := range m.docLengths {
		termSet, ok := m.docTerms[docID]
		if !ok {
			return fmt.Errorf("document %q has no term set", docID)
		}
		for term := range termSet {
			found := 0
			for _, p := range m.postings[term] {
				if p.DocID != docID {
					continue
				}
				if p.Frequency <= 0 {
					return fmt.Errorf("term %q has non-positive frequency %d for %q", term, p.Frequency, docID)
				}
				found++
			}
			if found != 1 {
				return fmt.Errorf("term %q has %d postings for %q, want 1", term, found, docID)
			}
		}
	}
	for docID := range m.docTerms {
		if _, ok := m.docLengths[docID]; !ok {
			return fmt.Errorf("term set recorded for unknown document %q", docID)
		}
	}
	for term, postings := range m.postings {
		if len(postings) == 0 {
			return fmt.Errorf("term %q has an empty postings list", term)
		}
		for _, p := range postings {
			if _, ok := m.docTerms[p.DocID][term]; !ok {
				return fmt.Errorf("posting for %q under %q is missing from its term set", p.DocID, term)
			}
		}
	}
	return nil
}
