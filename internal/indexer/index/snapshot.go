package index

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
)

// Snapshot is a point-in-time deep copy of the three index tables. The JSON
// field names are the durable format and must not change.
type Snapshot struct {
	Index      map[string]PostingList `json:"index"`
	DocLengths map[string]int         `json:"doc_lengths"`
	DocTerms   map[string][]string    `json:"doc_terms"`
}

// DocCount returns the number of documents captured.
func (s *Snapshot) DocCount() int {
	return len(s.DocLengths)
}

// TermCount returns the number of distinct terms captured.
func (s *Snapshot) TermCount() int {
	return len(s.Index)
}

// Capture copies the index under the exclusive lock so no mutation can
// interleave with the copy.
func (m *MemoryIndex) Capture() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		Index:      make(map[string]PostingList, len(m.postings)),
		DocLengths: make(map[string]int, len(m.docLengths)),
		DocTerms:   make(map[string][]string, len(m.docTerms)),
	}
	for term, postings := range m.postings {
		cp := make(PostingList, len(postings))
		copy(cp, postings)
		snap.Index[term] = cp
	}
	for docID, length := range m.docLengths {
		snap.DocLengths[docID] = length
	}
	for docID, termSet := range m.docTerms {
		terms := make([]string, 0, len(termSet))
		for term := range termSet {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		snap.DocTerms[docID] = terms
	}
	return snap
}

// Load replaces the index tables wholesale with the snapshot contents. The
// document term sets are rebuilt from the postings; the snapshot's DocTerms
// field is not trusted. On error the index is left untouched.
func (m *MemoryIndex) Load(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", apperrors.ErrSnapshotCorrupt)
	}
	postings := make(map[string]PostingList, len(snap.Index))
	docLengths := make(map[string]int, len(snap.DocLengths))
	docTerms := make(map[string]map[string]struct{}, len(snap.DocLengths))
	sums := make(map[string]int, len(snap.DocLengths))
	var totalLength int64

	for docID, length := range snap.DocLengths {
		if length < 0 {
			return fmt.Errorf("%w: document %q has negative length %d", apperrors.ErrSnapshotCorrupt, docID, length)
		}
		docLengths[docID] = length
		docTerms[docID] = make(map[string]struct{})
		totalLength += int64(length)
	}
	for term, list := range snap.Index {
		if len(list) == 0 {
			continue
		}
		cp := make(PostingList, 0, len(list))
		for _, p := range list {
			termSet, ok := docTerms[p.DocID]
			if !ok {
				return fmt.Errorf("%w: term %q has a posting for unknown document %q", apperrors.ErrSnapshotCorrupt, term, p.DocID)
			}
			if p.Frequency <= 0 {
				return fmt.Errorf("%w: term %q has non-positive frequency for %q", apperrors.ErrSnapshotCorrupt, term, p.DocID)
			}
			if _, dup := termSet[term]; dup {
				return fmt.Errorf("%w: term %q lists document %q twice", apperrors.ErrSnapshotCorrupt, term, p.DocID)
			}
			termSet[term] = struct{}{}
			sums[p.DocID] += p.Frequency
			cp = append(cp, p)
		}
		postings[term] = cp
	}
	for docID, length := range docLengths {
		if sums[docID] != length {
			return fmt.Errorf("%w: document %q has length %d but postings sum to %d", apperrors.ErrSnapshotCorrupt, docID, length, sums[docID])
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = postings
	m.docLengths = docLengths
	m.docTerms = docTerms
	m.totalLength = totalLength
	m.generation.Add(1)
	return nil
}
