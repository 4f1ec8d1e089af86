// Package merger selects the best k scored documents without sorting every
// candidate.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
)

// Better reports whether a ranks before b: higher score first, then lower
// doc ID.
func Better(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// TopK keeps the k best documents offered to it. The zero value is not
// usable; call NewTopK.
type TopK struct {
	limit int
	h     scoredDocHeap
	seen  int
}

func NewTopK(limit int) *TopK {
	if limit < 0 {
		limit = 0
	}
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, min(limit, 1024))}
}

// Collect offers doc to the collector.
func (t *TopK) Collect(doc ranker.ScoredDoc) {
	t.seen++
	if t.limit == 0 {
		return
	}
	if t.h.Len() < t.limit {
		heap.Push(&t.h, doc)
		return
	}
	if Better(doc, t.h[0]) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

// Total is the number of documents offered so far.
func (t *TopK) Total() int { return t.seen }

// Results drains the collector into best-first order.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap whose root is the worst kept document.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return Better(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
