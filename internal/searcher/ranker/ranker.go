// Package ranker implements Okapi BM25 scoring primitives and the ordering of
// scored documents into a ranked result list.
package ranker

import (
	"math"
	"sort"
)

const (
	DefaultK1 = 2.0
	DefaultB  = 0.75
)

// Params holds the tunable BM25 constants. K1 controls term-frequency
// saturation and B controls document-length normalisation.
type Params struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
}

// DefaultParams returns k1=2.0, b=0.75.
func DefaultParams() Params {
	return Params{K1: DefaultK1, B: DefaultB}
}

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// IDF returns ln(1 + (N - df + 0.5) / (df + 0.5)).
func IDF(totalDocs int, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

// TFNorm returns (k1 + 1) / (tf + k1 * (1 - b + b * docLen/avgDocLen)). An
// average length of zero is treated as a length ratio of one.
func TFNorm(termFreq, docLength, avgDocLength float64, p Params) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + p.K1*(1-p.B+p.B*lengthRatio)
	return (p.K1 + 1) / denominator
}

// Contribution is the score a single posting adds to its document:
// tf * idf * norm.
func Contribution(termFreq int, idf float64, docLength int, avgDocLength float64, p Params) float64 {
	tf := float64(termFreq)
	return tf * idf * TFNorm(tf, float64(docLength), avgDocLength, p)
}

// Rank orders scores by descending score, breaking ties by document key, and
// truncates to limit when limit > 0.
func Rank(scores map[string]float64, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: score,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}
