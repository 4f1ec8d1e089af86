// Package parser turns a free-text query and a list of target fields into a
// query tree.
//
// Inside each field the classic syntax applies: words are whitespace
// separated and default to SHOULD; AND makes both neighbours required, NOT
// and a leading '-' exclude the next clause, a leading '+' requires it, and
// parentheses group clauses. A trailing '*' asks for a prefix, embedded '*'
// or '?' a wildcard and a trailing '~' or '~N' a fuzzy match.
package parser

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/automaton"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

const DefaultFuzzyEdits = automaton.MaxEditDistance

type Options struct {
	// Boosts multiplies the score of each field's sub-query.
	Boosts map[string]float64
	// Fingerprint is the analyzer fingerprint of the index being searched.
	// When set it must equal the fingerprint of the parsing analyzer.
	Fingerprint string
}

// Parse builds Boolean(occurs[i]: subquery(fields[i])) for text. No partial
// tree is returned on error.
func Parse(text string, fields []string, occurs []query.Occur, analyzer *tokenizer.Analyzer, opts Options) (query.Node, error) {
	if len(fields) == 0 {
		return nil, apperrors.Configf("no fields to search")
	}
	if len(fields) != len(occurs) {
		return nil, apperrors.Configf("%d fields but %d occurrences", len(fields), len(occurs))
	}
	if analyzer == nil {
		return nil, apperrors.Configf("parser requires an analyzer")
	}
	if opts.Fingerprint != "" && opts.Fingerprint != analyzer.Fingerprint() {
		return nil, apperrors.Configf("analyzer fingerprint %s does not match index fingerprint %s",
			analyzer.Fingerprint(), opts.Fingerprint)
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Parsef("empty query")
	}
	clauses, err := parseSyntax(text)
	if err != nil {
		return nil, err
	}

	root := &query.Boolean{Clauses: make([]query.Clause, 0, len(fields))}
	for i, field := range fields {
		sub, err := bind(clauses, field, analyzer)
		if err != nil {
			return nil, err
		}
		sub.Boost = opts.Boosts[field]
		root.Clauses = append(root.Clauses, query.Clause{Occur: occurs[i], Node: sub})
	}
	return root, nil
}

// clause is a field-independent parsed clause: either a word or a group.
type clause struct {
	occur query.Occur
	word  string
	pos   int
	group []clause
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokAnd
	tokOr
	tokNot
	tokPlus
	tokMinus
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func lex(text string) []token {
	var tokens []token
	i := 0
	for i < len(text) {
		r := rune(text[i])
		switch {
		case r < 0x80 && unicode.IsSpace(r):
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokOpen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokClose, text: ")", pos: i})
			i++
		case (r == '+' || r == '-') && (len(tokens) == 0 || startsClause(text, i)):
			kind := tokPlus
			if r == '-' {
				kind = tokMinus
			}
			tokens = append(tokens, token{kind: kind, text: string(r), pos: i})
			i++
		default:
			start := i
			for i < len(text) && !isDelimiter(text[i]) {
				i++
			}
			word := text[start:i]
			kind := tokWord
			switch word {
			case "AND", "&&":
				kind = tokAnd
			case "OR", "||":
				kind = tokOr
			case "NOT", "!":
				kind = tokNot
			}
			tokens = append(tokens, token{kind: kind, text: word, pos: start})
		}
	}
	return tokens
}

// startsClause reports whether the sign at i begins a clause rather than
// sitting inside a word.
func startsClause(text string, i int) bool {
	return i == 0 || isDelimiter(text[i-1])
}

func isDelimiter(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '(' || b == ')'
}

type syntaxParser struct {
	tokens []token
	pos    int
}

func parseSyntax(text string) ([]clause, error) {
	p := &syntaxParser{tokens: lex(text)}
	clauses, err := p.clauses(0)
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.tokens) {
		t := p.tokens[p.pos]
		return nil, apperrors.Parsef("unbalanced parentheses: unexpected %q at position %d", t.text, t.pos)
	}
	return clauses, nil
}

func (p *syntaxParser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

// clauses parses a clause list up to a closing parenthesis or the end of
// input. depth > 0 means a ')' is expected.
func (p *syntaxParser) clauses(depth int) ([]clause, error) {
	var out []clause
	conjAnd := false
	for {
		t, ok := p.peek()
		if !ok || t.kind == tokClose {
			if conjAnd {
				return nil, apperrors.Parsef("dangling operator AND at end of group")
			}
			if ok && depth == 0 {
				return nil, apperrors.Parsef("unbalanced parentheses: unexpected ')' at position %d", t.pos)
			}
			return out, nil
		}
		switch t.kind {
		case tokAnd, tokOr:
			if len(out) == 0 || conjAnd {
				return nil, apperrors.Parsef("dangling operator %s at position %d", t.text, t.pos)
			}
			p.pos++
			if next, ok := p.peek(); !ok || next.kind == tokClose || next.kind == tokAnd || next.kind == tokOr {
				return nil, apperrors.Parsef("dangling operator %s at position %d", t.text, t.pos)
			}
			if t.kind == tokAnd {
				conjAnd = true
				if out[len(out)-1].occur == query.Should {
					out[len(out)-1].occur = query.Must
				}
			}
			continue
		}
		c, err := p.clause(depth)
		if err != nil {
			return nil, err
		}
		if conjAnd && c.occur == query.Should {
			c.occur = query.Must
		}
		conjAnd = false
		out = append(out, c)
	}
}

func (p *syntaxParser) clause(depth int) (clause, error) {
	occur := query.Should
	t, _ := p.peek()
	switch t.kind {
	case tokPlus, tokMinus, tokNot:
		occur = query.Must
		if t.kind != tokPlus {
			occur = query.MustNot
		}
		p.pos++
		next, ok := p.peek()
		if !ok || (next.kind != tokWord && next.kind != tokOpen) {
			return clause{}, apperrors.Parsef("dangling operator %s at position %d", t.text, t.pos)
		}
		t = next
	}

	switch t.kind {
	case tokOpen:
		p.pos++
		group, err := p.clauses(depth + 1)
		if err != nil {
			return clause{}, err
		}
		if _, ok := p.peek(); !ok {
			return clause{}, apperrors.Parsef("unbalanced parentheses: '(' at position %d is never closed", t.pos)
		}
		p.pos++
		return clause{occur: occur, group: group, pos: t.pos}, nil
	case tokWord:
		p.pos++
		return clause{occur: occur, word: t.text, pos: t.pos}, nil
	}
	return clause{}, apperrors.Parsef("unexpected %q at position %d", t.text, t.pos)
}

// bind resolves the syntax tree against one field.
func bind(clauses []clause, field string, analyzer *tokenizer.Analyzer) (*query.Boolean, error) {
	out := &query.Boolean{Clauses: make([]query.Clause, 0, len(clauses))}
	for _, c := range clauses {
		var node query.Node
		if c.group != nil {
			sub, err := bind(c.group, field, analyzer)
			if err != nil {
				return nil, err
			}
			node = sub
		} else {
			n, err := leaf(c, field, analyzer)
			if err != nil {
				return nil, err
			}
			if n == nil {
				continue
			}
			node = n
		}
		out.Clauses = append(out.Clauses, query.Clause{Occur: c.occur, Node: node})
	}
	return out, nil
}

// leaf classifies a word. It returns nil when analysis leaves nothing to
// search for, such as a stop word.
func leaf(c clause, field string, analyzer *tokenizer.Analyzer) (query.Node, error) {
	word := c.word
	if i := strings.LastIndexByte(word, '~'); i > 0 {
		edits := DefaultFuzzyEdits
		if digits := word[i+1:]; digits != "" {
			n, err := strconv.Atoi(digits)
			if err != nil || n < 0 || n > automaton.MaxEditDistance {
				return nil, apperrors.Parsef("bad fuzzy distance %q at position %d (0-%d)", digits, c.pos+i+1, automaton.MaxEditDistance)
			}
			edits = n
		}
		text := analyzer.NormalizeTerm(field, word[:i])
		if text == "" {
			return nil, nil
		}
		return &query.Fuzzy{Field: field, Text: text, MaxEdits: edits}, nil
	}

	if star := strings.IndexAny(word, "*?"); star >= 0 {
		if star == len(word)-1 && word[star] == '*' {
			prefix := analyzer.NormalizeTerm(field, word[:star])
			return &query.Prefix{Field: field, Prefix: prefix}, nil
		}
		return &query.Wildcard{Field: field, Pattern: normalizePattern(word, field, analyzer)}, nil
	}

	terms := analyzer.Terms(field, word)
	switch len(terms) {
	case 0:
		return nil, nil
	case 1:
		return &query.Term{Field: field, Text: terms[0]}, nil
	}
	group := &query.Boolean{Clauses: make([]query.Clause, 0, len(terms))}
	for _, t := range terms {
		group.Clauses = append(group.Clauses, query.Clause{Occur: query.Should, Node: &query.Term{Field: field, Text: t}})
	}
	return group, nil
}

// normalizePattern normalizes the literal runs of a wildcard pattern and
// keeps its metacharacters.
func normalizePattern(pattern, field string, analyzer *tokenizer.Analyzer) string {
	var sb strings.Builder
	start := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] != '*' && pattern[i] != '?' {
			continue
		}
		sb.WriteString(analyzer.NormalizeTerm(field, pattern[start:i]))
		sb.WriteByte(pattern[i])
		start = i + 1
	}
	sb.WriteString(analyzer.NormalizeTerm(field, pattern[start:]))
	return sb.String()
}
