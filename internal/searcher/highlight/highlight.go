// Package highlight extracts the fragment of a stored field that best
// matches a query and marks the matching terms in it.
package highlight

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/automaton"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
)

const (
	DefaultPreTag       = `<span style="background:red">`
	DefaultPostTag      = `</span>`
	DefaultFragmentSize = 100
)

type Options struct {
	Pre  string
	Post string
	// FragmentSize bounds the fragment length in bytes. Texts no longer
	// than it are returned whole.
	FragmentSize int
}

type Highlighter struct {
	analyzer *tokenizer.Analyzer
	opts     Options
}

// New builds a Highlighter. Empty markers and a non-positive fragment size
// fall back to the defaults.
func New(analyzer *tokenizer.Analyzer, opts Options) *Highlighter {
	if opts.Pre == "" && opts.Post == "" {
		opts.Pre, opts.Post = DefaultPreTag, DefaultPostTag
	}
	if opts.FragmentSize <= 0 {
		opts.FragmentSize = DefaultFragmentSize
	}
	return &Highlighter{analyzer: analyzer, opts: opts}
}

// termMatcher decides whether an analyzed token of the field satisfies some
// positive leaf of the query.
type termMatcher struct {
	exact    map[string]struct{}
	matchers []automaton.Matcher
}

func newTermMatcher(node query.Node, field string) *termMatcher {
	m := &termMatcher{exact: make(map[string]struct{})}
	query.Positive(node, func(n query.Node) {
		if query.Field(n) != field {
			return
		}
		switch q := n.(type) {
		case *query.Term:
			m.exact[q.Text] = struct{}{}
		case *query.Prefix:
			m.matchers = append(m.matchers, automaton.NewPrefix(q.Prefix))
		case *query.Wildcard:
			if w, err := automaton.NewWildcard(q.Pattern); err == nil {
				m.matchers = append(m.matchers, w)
			}
		case *query.Fuzzy:
			if l, err := automaton.NewLevenshtein(q.Text, q.MaxEdits); err == nil {
				m.matchers = append(m.matchers, l)
			}
		}
	})
	return m
}

func (m *termMatcher) empty() bool {
	return len(m.exact) == 0 && len(m.matchers) == 0
}

func (m *termMatcher) match(term string) bool {
	if _, ok := m.exact[term]; ok {
		return true
	}
	for _, a := range m.matchers {
		if a.Match(term) {
			return true
		}
	}
	return false
}

type span struct {
	start, end int
	term       string
}

// BestFragment returns the marked fragment of text that holds the most
// distinct query terms for field. The earliest such fragment wins ties. It
// returns false when no query term occurs in text.
func (h *Highlighter) BestFragment(node query.Node, field, text string) (string, bool) {
	m := newTermMatcher(node, field)
	if m.empty() || text == "" {
		return "", false
	}
	tokens := h.analyzer.Tokens(field, text)
	var hits []span
	for _, tok := range tokens {
		if m.match(tok.Term) {
			hits = append(hits, span{start: tok.Start, end: tok.End, term: tok.Term})
		}
	}
	if len(hits) == 0 {
		return "", false
	}

	size := h.opts.FragmentSize
	if len(text) <= size {
		return h.mark(text, 0, len(text), hits), true
	}

	best, bestScore, bestLast := 0, -1, 0
	for i := range hits {
		distinct := map[string]struct{}{hits[i].term: {}}
		last := i
		for j := i + 1; j < len(hits) && hits[j].end-hits[i].start <= size; j++ {
			distinct[hits[j].term] = struct{}{}
			last = j
		}
		if len(distinct) > bestScore {
			best, bestScore, bestLast = i, len(distinct), last
		}
	}

	winStart, winEnd := hits[best].start, hits[bestLast].end
	start, end := winStart, winEnd
	if slack := size - (winEnd - winStart); slack > 0 {
		start = max(0, winStart-slack/2)
		end = min(len(text), start+size)
		start = max(0, min(start, end-size))
	}
	start, end = snap(tokens, start, end, winStart, winEnd)
	return h.mark(text, start, end, hits), true
}

// snap moves the fragment bounds onto token boundaries without losing the
// window [winStart, winEnd).
func snap(tokens []tokenizer.Token, start, end, winStart, winEnd int) (int, int) {
	newStart, newEnd := winStart, winEnd
	for _, tok := range tokens {
		if tok.Start >= start && tok.Start < newStart {
			newStart = tok.Start
			break
		}
	}
	for _, tok := range tokens {
		if tok.End <= end && tok.End > newEnd {
			newEnd = tok.End
		}
	}
	return newStart, newEnd
}

// mark copies text[start:end] and wraps every hit inside it. Overlapping
// hits, as produced by bigram analysis, are merged into one marked span.
func (h *Highlighter) mark(text string, start, end int, hits []span) string {
	var sb strings.Builder
	sb.Grow(end - start + 16)
	cursor := start
	for i := 0; i < len(hits); i++ {
		s, e := hits[i].start, hits[i].end
		if e <= start || s >= end {
			continue
		}
		for i+1 < len(hits) && hits[i+1].start < e {
			i++
			e = max(e, hits[i].end)
		}
		s, e = max(s, cursor), min(e, end)
		if s >= e {
			continue
		}
		sb.WriteString(text[cursor:s])
		sb.WriteString(h.opts.Pre)
		sb.WriteString(text[s:e])
		sb.WriteString(h.opts.Post)
		cursor = e
	}
	sb.WriteString(text[cursor:end])
	return sb.String()
}

// Plain returns up to FragmentSize bytes from the start of text, cut at a
// token boundary, for hits whose text holds no query term.
func (h *Highlighter) Plain(field, text string) string {
	if len(text) <= h.opts.FragmentSize {
		return text
	}
	end := 0
	for tok := range h.analyzer.Tokenize(field, text) {
		if tok.End > h.opts.FragmentSize {
			break
		}
		end = tok.End
	}
	if end == 0 {
		end = h.opts.FragmentSize
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
	}
	return text[:end]
}
