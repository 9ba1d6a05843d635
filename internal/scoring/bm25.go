// Package scoring implements BM25 relevance for the in-memory engine.
package scoring

import "math"

// Default BM25 parameters.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// FieldStats are the per-field collection statistics a snapshot freezes at
// refresh time.
type FieldStats struct {
	DocCount   int64 // documents with at least one term in the field
	TotalTerms int64
}

// AvgLen returns the average field length in terms, or 1 for an empty field.
func (f FieldStats) AvgLen() float32 {
	if f.DocCount == 0 || f.TotalTerms == 0 {
		return 1
	}
	return float32(float64(f.TotalTerms) / float64(f.DocCount))
}

// BM25 holds the model parameters.
type BM25 struct {
	K1 float32
	B  float32
}

// Default returns BM25 with the usual k1=1.2, b=0.75.
func Default() BM25 {
	return BM25{K1: DefaultK1, B: DefaultB}
}

// IDF computes the inverse document frequency of a term.
//
//	IDF(qi) = ln(1 + (N - n(qi) + 0.5) / (n(qi) + 0.5))
func (m BM25) IDF(docFreq, docCount int64) float32 {
	n := float64(docFreq)
	N := float64(docCount)
	return float32(math.Log(1 + (N-n+0.5)/(n+0.5)))
}

// Score computes the contribution of one term to one document.
//
//	score = IDF × (tf × (k1 + 1)) / (tf + k1 × (1 - b + b × dl / avgdl))
func (m BM25) Score(termFreq, docLen uint32, docFreq int64, stats FieldStats) float32 {
	if termFreq == 0 {
		return 0
	}
	tf := float32(termFreq)
	norm := 1 - m.B + m.B*float32(docLen)/stats.AvgLen()
	denominator := tf + m.K1*norm
	if denominator == 0 {
		return 0
	}
	return m.IDF(docFreq, stats.DocCount) * tf * (m.K1 + 1) / denominator
}
