// Package automaton expands prefix, wildcard and fuzzy query leaves into
// dictionary terms. Matchers work on runes so that ideographic terms match
// character by character.
package automaton

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const (
	MaxEditDistance          = 2
	MaxWildcardPatternLength = 256
)

var (
	ErrEditDistanceTooLarge   = errors.New("edit distance exceeds maximum of 2")
	ErrWildcardPatternTooLong = errors.New("wildcard pattern exceeds maximum length")
)

// Matcher selects dictionary terms. A dictionary scan starts at Seek and
// stops at the first term for which Continue is false.
type Matcher interface {
	Match(term string) bool
	Seek() string
	Continue(term string) bool
}

// Prefix matches terms beginning with a fixed string.
type Prefix struct {
	prefix string
}

func NewPrefix(prefix string) *Prefix { return &Prefix{prefix: prefix} }

func (p *Prefix) Match(term string) bool    { return strings.HasPrefix(term, p.prefix) }
func (p *Prefix) Seek() string              { return p.prefix }
func (p *Prefix) Continue(term string) bool { return strings.HasPrefix(term, p.prefix) }

// Wildcard matches terms against a pattern where '*' is any run of runes
// and '?' exactly one rune.
type Wildcard struct {
	pattern []rune
	literal string
}

func NewWildcard(pattern string) (*Wildcard, error) {
	if len(pattern) > MaxWildcardPatternLength {
		return nil, ErrWildcardPatternTooLong
	}
	literal := pattern
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		literal = pattern[:i]
	}
	return &Wildcard{pattern: []rune(pattern), literal: literal}, nil
}

func (w *Wildcard) Seek() string              { return w.literal }
func (w *Wildcard) Continue(term string) bool { return strings.HasPrefix(term, w.literal) }

// Match runs the classic two-pointer glob match: on a mismatch it backtracks
// to the most recent star and lets it absorb one more rune.
func (w *Wildcard) Match(term string) bool {
	p := w.pattern
	s := []rune(term)
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star = pi
			mark = si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// Levenshtein matches terms within a bounded edit distance of a target.
type Levenshtein struct {
	target  []rune
	maxDist int
}

func NewLevenshtein(target string, maxDist int) (*Levenshtein, error) {
	if maxDist < 0 || maxDist > MaxEditDistance {
		return nil, ErrEditDistanceTooLarge
	}
	return &Levenshtein{target: []rune(target), maxDist: maxDist}, nil
}

func (l *Levenshtein) Seek() string         { return "" }
func (l *Levenshtein) Continue(string) bool { return true }
func (l *Levenshtein) MaxDistance() int     { return l.maxDist }
func (l *Levenshtein) Match(term string) bool {
	_, ok := l.Distance(term)
	return ok
}

// Distance returns the edit distance between term and the target when it is
// within the bound. Rows of the dynamic program are abandoned as soon as
// every cell exceeds the bound.
func (l *Levenshtein) Distance(term string) (int, bool) {
	n := utf8.RuneCountInString(term)
	if abs(n-len(l.target)) > l.maxDist {
		return 0, false
	}
	prev := make([]int, len(l.target)+1)
	cur := make([]int, len(l.target)+1)
	for j := range prev {
		prev[j] = j
	}
	i := 0
	for _, r := range term {
		i++
		cur[0] = i
		best := cur[0]
		for j, t := range l.target {
			cost := 1
			if r == t {
				cost = 0
			}
			cur[j+1] = min(prev[j+1]+1, cur[j]+1, prev[j]+cost)
			best = min(best, cur[j+1])
		}
		if best > l.maxDist {
			return 0, false
		}
		prev, cur = cur, prev
	}
	d := prev[len(l.target)]
	return d, d <= l.maxDist
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
