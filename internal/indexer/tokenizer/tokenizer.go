// Package tokenizer provides text analysis for the search engine. It
// segments text on UAX#29 word boundaries, keeps runs of ideographs
// together (adding their character pairs so words inside unspaced text
// stay findable), normalises every token (NFKC, case folding), removes stop-words
// and optionally applies Snowball stemming. Token offsets always refer to the
// original, unnormalised text so that highlighting can mark it verbatim.
package tokenizer

import (
	"iter"
	"unicode"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Token represents a single normalised term, its ordinal among the emitted
// tokens of a field, and the byte span it came from in the original text.
// The character pairs of an ideograph run share the run's position.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Analyzer turns field text into tokens. It is immutable after New and safe
// for concurrent use.
type Analyzer struct {
	cfg         Config
	stop        map[string]struct{}
	fingerprint string
}

// New validates cfg and builds an Analyzer.
func New(cfg Config) (*Analyzer, error) {
	cfg, err := cfg.canonical()
	if err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg:  cfg,
		stop: make(map[string]struct{}),
	}
	if cfg.StopWordSet == "english" {
		for w := range englishStopWords {
			a.stop[w] = struct{}{}
		}
	}
	folder := cases.Fold()
	for _, w := range cfg.StopWords {
		a.stop[folder.String(norm.NFKC.String(w))] = struct{}{}
	}
	fp, err := cfg.Fingerprint()
	if err != nil {
		return nil, err
	}
	a.fingerprint = fp
	return a, nil
}

// MustNew is New for configurations known to be valid.
func MustNew(cfg Config) *Analyzer {
	a, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return a
}

// Default returns an analyzer built from DefaultConfig.
func Default() *Analyzer {
	return MustNew(DefaultConfig())
}

func (a *Analyzer) Config() Config { return a.cfg }

// Fingerprint identifies the analyzer configuration. Indexes record it so
// queries and readers can refuse a mismatched analyzer.
func (a *Analyzer) Fingerprint() string { return a.fingerprint }

// Tokenize returns a lazy sequence of the tokens of text in field. The
// sequence can be ranged over any number of times.
func (a *Analyzer) Tokenize(field, text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		lower, stem := a.cfg.fieldOptions(field)
		t := tokenStream{
			a:     a,
			text:  text,
			lower: lower,
			stem:  stem,
			fold:  cases.Fold(),
			yield: yield,
		}
		t.run()
	}
}

// Tokens collects Tokenize into a slice.
func (a *Analyzer) Tokens(field, text string) []Token {
	var out []Token
	for tok := range a.Tokenize(field, text) {
		out = append(out, tok)
	}
	return out
}

// Terms returns only the normalised terms of text, in order.
func (a *Analyzer) Terms(field, text string) []string {
	var out []string
	for tok := range a.Tokenize(field, text) {
		out = append(out, tok.Term)
	}
	return out
}

// NormalizeTerm applies character normalisation to a single query word
// without segmenting, stop-word filtering or stemming it. Prefix, wildcard
// and fuzzy patterns go through here so their metacharacters survive.
func (a *Analyzer) NormalizeTerm(field, word string) string {
	lower, _ := a.cfg.fieldOptions(field)
	word = norm.NFKC.String(word)
	if lower {
		word = cases.Fold().String(word)
	}
	return word
}

type tokenStream struct {
	a     *Analyzer
	text  string
	lower bool
	stem  bool
	fold  cases.Caser
	yield func(Token) bool
	pos   int
	// runPos is the position the current ideograph run was emitted at, or -1.
	runPos int
}

func (t *tokenStream) run() {
	seg := words.FromString(t.text)
	offset := 0
	runStart, runEnd := -1, -1
	for seg.Next() {
		v := seg.Value()
		start, end := offset, offset+len(v)
		offset = end

		if isIdeographic(v) {
			if runStart < 0 {
				runStart = start
			}
			runEnd = end
			continue
		}
		if runStart >= 0 {
			if !t.flushRun(runStart, runEnd) {
				return
			}
			runStart = -1
		}
		if !hasWordRune(v) {
			continue
		}
		if !t.emit(v, start, end, false, false) {
			return
		}
	}
	if runStart >= 0 {
		t.flushRun(runStart, runEnd)
	}
}

func (t *tokenStream) flushRun(start, end int) bool {
	switch t.a.cfg.CJKMode {
	case CJKUnigram:
		for i, r := range t.text[start:end] {
			s := start + i
			if !t.emit(t.text[s:s+utf8.RuneLen(r)], s, s+utf8.RuneLen(r), true, false) {
				return false
			}
		}
		return true
	case CJKBigram:
		if utf8.RuneCountInString(t.text[start:end]) == 1 {
			return t.emit(t.text[start:end], start, end, true, false)
		}
		return t.pairs(start, end, false)
	default:
		t.runPos = -1
		if !t.emit(t.text[start:end], start, end, true, true) {
			return false
		}
		if utf8.RuneCountInString(t.text[start:end]) <= 2 {
			return true
		}
		return t.pairs(start, end, true)
	}
}

// pairs emits the overlapping two-ideograph tokens of text[start:end].
func (t *tokenStream) pairs(start, end int, stacked bool) bool {
	run := t.text[start:end]
	prev := -1
	for i := range run {
		if prev >= 0 {
			_, size := utf8.DecodeRuneInString(run[i:])
			if !t.emit(run[prev:i+size], start+prev, start+i+size, true, stacked) {
				return false
			}
		}
		prev = i
	}
	return true
}

// emit yields one token. A stacked token reuses the position of the
// ideograph run it belongs to.
func (t *tokenStream) emit(raw string, start, end int, ideographic, stacked bool) bool {
	term := norm.NFKC.String(raw)
	if t.lower {
		term = t.fold.String(term)
	}
	if term == "" || utf8.RuneCountInString(term) < t.a.cfg.MinTokenLength {
		return true
	}
	if _, stop := t.a.stop[term]; stop {
		return true
	}
	if t.stem && !ideographic {
		term = english.Stem(term, false)
		if term == "" {
			return true
		}
	}
	pos := t.pos
	if stacked && t.runPos >= 0 {
		pos = t.runPos
	} else {
		t.pos++
	}
	if stacked {
		t.runPos = pos
	}
	return t.yield(Token{Term: term, Position: pos, Start: start, End: end})
}

func isIdeographic(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana) {
			return false
		}
	}
	return true
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

var englishStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}
