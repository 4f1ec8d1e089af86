package executor

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/automaton"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

const DefaultFuzzyMaxExpansions = 50

// Index is the read side of an index snapshot that evaluation needs.
// *indexer.Reader implements it.
type Index interface {
	ranker.Stats
	Postings(t index.Term) (index.PostingList, bool, error)
	DocFreq(t index.Term) (int, error)
	Terms(field, from string) (iter.Seq[string], error)
	StoredFields(docID uint32) (map[string]string, error)
}

type ScoredResult struct {
	DocID  uint32
	Score  float64
	Fields map[string]string
}

// Evaluator resolves a query tree against an Index. The zero value scores
// with TF-IDF and uses the default expansion limits.
type Evaluator struct {
	Scorer ranker.Scorer
	// FuzzyMaxExpansions caps the terms one fuzzy leaf expands to, closest
	// first.
	FuzzyMaxExpansions int
	// MaxTermExpansions, when positive, fails a prefix or wildcard leaf that
	// matches more dictionary terms. Zero expands every matching term.
	MaxTermExpansions int
}

// Evaluate returns at most limit documents matching node, best first.
func Evaluate(node query.Node, idx Index, limit int, scorer ranker.Scorer) ([]ScoredResult, error) {
	e := &Evaluator{Scorer: scorer}
	results, _, err := e.Evaluate(context.Background(), node, idx, limit)
	return results, err
}

// Evaluate returns at most limit documents matching node ordered by score
// descending then DocID ascending, and the total number of matches.
func (e *Evaluator) Evaluate(ctx context.Context, node query.Node, idx Index, limit int) ([]ScoredResult, int, error) {
	if query.Empty(node) || limit <= 0 {
		return []ScoredResult{}, 0, nil
	}
	run := &evaluation{
		ctx:       ctx,
		idx:       idx,
		scorer:    e.Scorer,
		fuzzyMax:  e.FuzzyMaxExpansions,
		expandMax: e.MaxTermExpansions,
	}
	if run.scorer == nil {
		run.scorer = ranker.TFIDF{}
	}
	if run.fuzzyMax <= 0 {
		run.fuzzyMax = DefaultFuzzyMaxExpansions
	}

	m, err := run.eval(node)
	if err != nil {
		return nil, 0, err
	}

	top := merger.NewTopK(limit)
	it := m.docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		top.Collect(ranker.ScoredDoc{DocID: doc, Score: m.scores[doc]})
	}
	ranked := top.Results()
	results := make([]ScoredResult, 0, len(ranked))
	for _, d := range ranked {
		fields, err := idx.StoredFields(d.DocID)
		if err != nil {
			return nil, 0, fmt.Errorf("loading stored fields of document %d: %w", d.DocID, err)
		}
		results = append(results, ScoredResult{DocID: d.DocID, Score: d.Score, Fields: fields})
	}
	return results, top.Total(), nil
}

// matchSet is the evaluated form of a node: the matching documents and
// their accumulated scores.
type matchSet struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func emptyMatch() *matchSet {
	return &matchSet{docs: roaring.New(), scores: map[uint32]float64{}}
}

type evaluation struct {
	ctx       context.Context
	idx       Index
	scorer    ranker.Scorer
	fuzzyMax  int
	expandMax int
}

// expansion is one dictionary term a leaf matched, with the weight its
// postings are scored at.
type expansion struct {
	text   string
	weight float64
}

func (ev *evaluation) eval(n query.Node) (*matchSet, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	switch q := n.(type) {
	case *query.Boolean:
		return ev.boolean(q)
	case *query.Term:
		return ev.leaf(q.Field, []expansion{{text: q.Text, weight: 1}})
	case *query.Prefix:
		terms, err := ev.scan(q.Field, automaton.NewPrefix(q.Prefix))
		if err != nil {
			return nil, err
		}
		return ev.leaf(q.Field, terms)
	case *query.Wildcard:
		w, err := automaton.NewWildcard(q.Pattern)
		if err != nil {
			return nil, apperrors.Parsef("wildcard %q: %v", q.Pattern, err)
		}
		terms, err := ev.scan(q.Field, w)
		if err != nil {
			return nil, err
		}
		return ev.leaf(q.Field, terms)
	case *query.Fuzzy:
		l, err := automaton.NewLevenshtein(q.Text, q.MaxEdits)
		if err != nil {
			return nil, apperrors.Parsef("fuzzy %q: %v", q.Text, err)
		}
		terms, err := ev.fuzzy(q.Field, l)
		if err != nil {
			return nil, err
		}
		return ev.leaf(q.Field, terms)
	case nil:
		return emptyMatch(), nil
	default:
		return nil, fmt.Errorf("unsupported query node %T", n)
	}
}

// scan walks the dictionary range m can match and returns every matching
// term.
func (ev *evaluation) scan(field string, m automaton.Matcher) ([]expansion, error) {
	terms, err := ev.idx.Terms(field, m.Seek())
	if err != nil {
		return nil, fmt.Errorf("scanning terms of %s: %w", field, err)
	}
	var out []expansion
	for term := range terms {
		if !m.Continue(term) {
			break
		}
		if !m.Match(term) {
			continue
		}
		if ev.expandMax > 0 && len(out) == ev.expandMax {
			return nil, apperrors.Parsef("query matches more than %d terms in %s", ev.expandMax, field)
		}
		out = append(out, expansion{text: term, weight: 1})
	}
	return out, nil
}

// fuzzy keeps the fuzzyMax closest terms within the edit bound. Closer terms
// weigh more; exact matches weigh 1.
func (ev *evaluation) fuzzy(field string, l *automaton.Levenshtein) ([]expansion, error) {
	terms, err := ev.idx.Terms(field, l.Seek())
	if err != nil {
		return nil, fmt.Errorf("scanning terms of %s: %w", field, err)
	}
	type candidate struct {
		term string
		dist int
	}
	var candidates []candidate
	for term := range terms {
		if d, ok := l.Distance(term); ok {
			candidates = append(candidates, candidate{term: term, dist: d})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})
	if len(candidates) > ev.fuzzyMax {
		candidates = candidates[:ev.fuzzyMax]
	}
	out := make([]expansion, 0, len(candidates))
	for _, c := range candidates {
		weight := 1 - float64(c.dist)/float64(l.MaxDistance()+1)
		out = append(out, expansion{text: c.term, weight: weight})
	}
	return out, nil
}

// leaf unions the postings of every expansion. A document matching several
// expansions sums their scores.
func (ev *evaluation) leaf(field string, terms []expansion) (*matchSet, error) {
	m := emptyMatch()
	for _, x := range terms {
		t := index.Term{Field: field, Text: x.text}
		postings, ok, err := ev.idx.Postings(t)
		if err != nil {
			return nil, fmt.Errorf("reading postings of %s: %w", t, err)
		}
		if !ok {
			continue
		}
		df, err := ev.idx.DocFreq(t)
		if err != nil {
			return nil, fmt.Errorf("reading document frequency of %s: %w", t, err)
		}
		for _, p := range postings {
			m.docs.Add(p.DocID)
			m.scores[p.DocID] += x.weight * ev.scorer.Score(ev.idx, field, p.DocID, p.Frequency, df)
		}
	}
	return m, nil
}

// boolean requires every MUST clause, excludes every MUST_NOT clause and,
// when there is no MUST clause, requires at least one SHOULD clause.
// Matching MUST and SHOULD clauses add their scores.
func (ev *evaluation) boolean(b *query.Boolean) (*matchSet, error) {
	var must, should, mustNot []*matchSet
	for _, c := range b.Clauses {
		m, err := ev.eval(c.Node)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.Must:
			must = append(must, m)
		case query.MustNot:
			mustNot = append(mustNot, m)
		default:
			should = append(should, m)
		}
	}

	var docs *roaring.Bitmap
	switch {
	case len(must) > 0:
		docs = must[0].docs.Clone()
		for _, m := range must[1:] {
			docs.And(m.docs)
		}
	case len(should) > 0:
		docs = roaring.New()
		for _, m := range should {
			docs.Or(m.docs)
		}
	default:
		return emptyMatch(), nil
	}
	for _, m := range mustNot {
		docs.AndNot(m.docs)
	}

	boost := b.EffectiveBoost()
	scores := make(map[uint32]float64, docs.GetCardinality())
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var s float64
		for _, m := range must {
			s += m.scores[doc]
		}
		for _, m := range should {
			s += m.scores[doc]
		}
		scores[doc] = s * boost
	}
	return &matchSet{docs: docs, scores: scores}, nil
}
