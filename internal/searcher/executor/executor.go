// Package executor evaluates parsed queries against an index snapshot and
// turns the best matches into highlighted hits.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

const (
	DefaultLimit      = 100
	DefaultMaxResults = 1000
)

type Options struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder

	// Scorer defaults to TF-IDF.
	Scorer ranker.Scorer
	// DefaultFields and DefaultOccurs apply to requests naming no fields.
	// They default to fileName and content, both SHOULD.
	DefaultFields []string
	DefaultOccurs []query.Occur
	Boosts        map[string]float64

	DefaultLimit       int
	MaxResults         int
	FuzzyMaxExpansions int
	MaxTermExpansions  int

	// SnippetField is the stored field snippets are cut from.
	SnippetField string
	Highlight    highlight.Options
}

type Request struct {
	Query  string
	Fields []string
	// Occurs pairs with Fields. When empty every field is SHOULD.
	Occurs []query.Occur
	Limit  int
}

type Hit struct {
	DocID       uint32  `json:"doc_id"`
	DisplayName string  `json:"display_name"`
	Path        string  `json:"path"`
	Snippet     string  `json:"snippet"`
	Score       float64 `json:"score"`
}

type SearchResult struct {
	Query      string `json:"query"`
	Generation uint64 `json:"generation"`
	TotalHits  int    `json:"total_hits"`
	Hits       []Hit  `json:"hits"`
}

// Executor answers search requests from the latest committed generation it
// has opened. Reload swaps in a newer generation without blocking searches
// for longer than the swap itself.
type Executor struct {
	dir         store.Directory
	analyzer    *tokenizer.Analyzer
	opts        Options
	evaluator   *Evaluator
	highlighter *highlight.Highlighter
	logger      *slog.Logger

	mu     sync.RWMutex
	reader *indexer.Reader
}

// New opens the current generation of dir. An index with no committed
// generation is not an error; searches return no hits until Reload finds one.
func New(dir store.Directory, analyzer *tokenizer.Analyzer, opts Options) (*Executor, error) {
	if analyzer == nil {
		return nil, apperrors.Configf("executor requires an analyzer")
	}
	if len(opts.DefaultFields) == 0 {
		opts.DefaultFields = []string{index.FieldFileName, index.FieldContent}
		opts.DefaultOccurs = []query.Occur{query.Should, query.Should}
	}
	if len(opts.DefaultOccurs) == 0 {
		opts.DefaultOccurs = shouldAll(len(opts.DefaultFields))
	}
	if len(opts.DefaultFields) != len(opts.DefaultOccurs) {
		return nil, apperrors.Configf("%d default fields but %d default occurrences",
			len(opts.DefaultFields), len(opts.DefaultOccurs))
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultLimit
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.SnippetField == "" {
		opts.SnippetField = index.FieldContent
	}
	if opts.Scorer == nil {
		opts.Scorer = ranker.TFIDF{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}

	e := &Executor{
		dir:      dir,
		analyzer: analyzer,
		opts:     opts,
		evaluator: &Evaluator{
			Scorer:             opts.Scorer,
			FuzzyMaxExpansions: opts.FuzzyMaxExpansions,
			MaxTermExpansions:  opts.MaxTermExpansions,
		},
		highlighter: highlight.New(analyzer, opts.Highlight),
		logger:      logger.OrDefault(opts.Logger, "query-executor"),
	}

	r, err := indexer.OpenReader(dir, e.readerOptions())
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		e.logger.Warn("index has no committed generation yet")
	case err != nil:
		return nil, fmt.Errorf("opening index reader: %w", err)
	default:
		e.reader = r
		e.logger.Info("index opened",
			"generation", r.Generation(),
			"documents", r.DocumentCount(),
			"segments", r.SegmentCount(),
		)
	}
	return e, nil
}

func (e *Executor) readerOptions() indexer.ReaderOptions {
	return indexer.ReaderOptions{Logger: e.opts.Logger, Analyzer: e.analyzer}
}

func shouldAll(n int) []query.Occur {
	occurs := make([]query.Occur, n)
	for i := range occurs {
		occurs[i] = query.Should
	}
	return occurs
}

// Reload opens the newest committed generation if it differs from the one
// being served. It reports whether the generation changed.
func (e *Executor) Reload() (bool, error) {
	e.mu.RLock()
	current := e.reader
	e.mu.RUnlock()

	var (
		next    *indexer.Reader
		changed bool
		err     error
	)
	if current == nil {
		next, err = indexer.OpenReader(e.dir, e.readerOptions())
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		changed = err == nil
	} else {
		next, changed, err = indexer.OpenIfChanged(e.dir, current, e.readerOptions())
	}
	if err != nil {
		return false, fmt.Errorf("reloading index: %w", err)
	}
	if !changed {
		return false, nil
	}

	e.mu.Lock()
	if e.reader != current {
		// A concurrent Reload won the swap.
		e.mu.Unlock()
		next.Close()
		return false, nil
	}
	e.reader = next
	e.mu.Unlock()
	if current != nil {
		current.Close()
	}
	e.logger.Info("index reloaded", "generation", next.Generation(), "documents", next.DocumentCount())
	return true, nil
}

// Generation is the generation being served, 0 before the first commit.
func (e *Executor) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.reader == nil {
		return 0
	}
	return e.reader.Generation()
}

// Ready reports whether a committed generation is open.
func (e *Executor) Ready() bool {
	return e.Generation() > 0
}

// Normalize fills in the default fields, occurrences and limit and clamps
// the limit to MaxResults.
func (e *Executor) Normalize(req Request) Request {
	if len(req.Fields) == 0 {
		req.Fields = e.opts.DefaultFields
		req.Occurs = e.opts.DefaultOccurs
	}
	if len(req.Occurs) == 0 {
		req.Occurs = shouldAll(len(req.Fields))
	}
	if req.Limit <= 0 {
		req.Limit = e.opts.DefaultLimit
	}
	if req.Limit > e.opts.MaxResults {
		req.Limit = e.opts.MaxResults
	}
	return req
}

// Execute parses req.Query, evaluates it against the served generation and
// returns up to req.Limit highlighted hits.
func (e *Executor) Execute(ctx context.Context, req Request) (*SearchResult, error) {
	req = e.Normalize(req)
	log := logger.FromContext(ctx).With("component", "query-executor")

	e.mu.RLock()
	defer e.mu.RUnlock()

	var fingerprint string
	if e.reader != nil {
		fingerprint = e.reader.Fingerprint()
	}
	node, err := parser.Parse(req.Query, req.Fields, req.Occurs, e.analyzer, parser.Options{
		Boosts:      e.opts.Boosts,
		Fingerprint: fingerprint,
	})
	if err != nil {
		e.failed(reasonOf(err))
		return nil, err
	}

	result := &SearchResult{Query: req.Query, Hits: []Hit{}}
	if e.reader == nil {
		return result, nil
	}
	result.Generation = e.reader.Generation()

	scored, total, err := e.evaluator.Evaluate(ctx, node, e.reader, req.Limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.failed("timeout")
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTimeout, ctxErr)
		}
		e.failed(reasonOf(err))
		return nil, fmt.Errorf("evaluating %s: %w", node, err)
	}
	result.TotalHits = total
	for _, s := range scored {
		result.Hits = append(result.Hits, e.hit(node, s))
	}

	log.Debug("query executed",
		"query", req.Query,
		"parsed", node.String(),
		"generation", result.Generation,
		"total_hits", total,
		"returned", len(result.Hits),
	)
	return result, nil
}

func (e *Executor) hit(node query.Node, s ScoredResult) Hit {
	text := s.Fields[e.opts.SnippetField]
	snippet, ok := e.highlighter.BestFragment(node, e.opts.SnippetField, text)
	if !ok {
		snippet = e.highlighter.Plain(e.opts.SnippetField, text)
	}
	return Hit{
		DocID:       s.DocID,
		DisplayName: s.Fields[index.FieldFileName],
		Path:        s.Fields[index.FieldFilePath],
		Snippet:     snippet,
		Score:       s.Score,
	}
}

func (e *Executor) failed(reason string) {
	e.opts.Metrics.SearchFailed(reason)
}

func reasonOf(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrParse):
		return "parse_error"
	case errors.Is(err, apperrors.ErrConfig):
		return "config_error"
	default:
		return "error"
	}
}

// Close releases the served generation.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reader == nil {
		return nil
	}
	err := e.reader.Close()
	e.reader = nil
	return err
}
