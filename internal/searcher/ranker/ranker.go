// Package ranker scores term matches. Scorers are pure functions of index
// statistics and the matching posting, so equal index state and query give
// equal scores.
package ranker

import (
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Stats is the view of the index a Scorer needs.
type Stats interface {
	// MaxDoc counts every document of the snapshot, deleted ones included,
	// so that it never falls below a document frequency.
	MaxDoc() uint32
	FieldLength(field string, docID uint32) uint32
	AvgFieldLength(field string) float64
}

// Scorer weighs one posting: docID holds the term freq times, and docFreq
// documents hold the term overall.
type Scorer interface {
	Name() string
	Score(s Stats, field string, docID uint32, freq, docFreq int) float64
}

// New returns the scorer called name ("tfidf" or "bm25").
func New(name string, k1, b float64) (Scorer, error) {
	switch name {
	case "", "tfidf":
		return TFIDF{}, nil
	case "bm25":
		if k1 <= 0 {
			k1 = DefaultK1
		}
		if b < 0 || b > 1 {
			b = DefaultB
		}
		return BM25{K1: k1, B: b}, nil
	}
	return nil, apperrors.Configf("unknown scoring %q", name)
}

// TFIDF scores (1 + ln tf) * (1 + ln(N / (1 + df))). It is positive for
// every tf >= 1 and df <= N.
type TFIDF struct{}

func (TFIDF) Name() string { return "tfidf" }

func (TFIDF) Score(s Stats, _ string, _ uint32, freq, docFreq int) float64 {
	if freq < 1 {
		return 0
	}
	tf := 1 + math.Log(float64(freq))
	idf := 1 + math.Log(float64(s.MaxDoc())/float64(1+docFreq))
	return tf * idf
}

// BM25 is Okapi BM25 over per-field token counts.
type BM25 struct {
	K1 float64
	B  float64
}

func (BM25) Name() string { return "bm25" }

func (r BM25) Score(s Stats, field string, docID uint32, freq, docFreq int) float64 {
	if freq < 1 {
		return 0
	}
	idf := computeIDF(int64(s.MaxDoc()), int64(docFreq))
	tfNorm := r.computeTFNorm(
		float64(freq),
		float64(s.FieldLength(field, docID)),
		s.AvgFieldLength(field),
	)
	return idf * tfNorm
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func (r BM25) computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	lengthRatio := 1.0
	if avgDocLength > 0 {
		lengthRatio = docLength / avgDocLength
	}
	denominator := termFreq + r.K1*(1-r.B+r.B*lengthRatio)
	return (termFreq * (r.K1 + 1)) / denominator
}
