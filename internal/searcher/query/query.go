// Package query defines the typed query tree produced by the parser and
// consumed by the evaluator and highlighter. The set of node types is
// closed: every node is one of Term, Prefix, Wildcard, Fuzzy or Boolean.
package query

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// Occur is the requirement a Boolean clause places on a document.
type Occur int

const (
	Should Occur = iota
	Must
	MustNot
)

func (o Occur) String() string {
	switch o {
	case Must:
		return "must"
	case MustNot:
		return "must_not"
	default:
		return "should"
	}
}

// ParseOccur accepts the names printed by Occur.String plus the query
// syntax aliases AND, OR and NOT.
func ParseOccur(s string) (Occur, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "should", "or", "":
		return Should, nil
	case "must", "and":
		return Must, nil
	case "must_not", "mustnot", "not":
		return MustNot, nil
	}
	return Should, apperrors.Configf("unknown occurrence %q", s)
}

// Node is a query tree node.
type Node interface {
	String() string
	sealed()
}

// Term matches documents containing Text in Field.
type Term struct {
	Field string
	Text  string
}

// Prefix matches every term of Field starting with Prefix.
type Prefix struct {
	Field  string
	Prefix string
}

// Wildcard matches terms of Field against Pattern, where * matches any run
// of characters and ? exactly one.
type Wildcard struct {
	Field   string
	Pattern string
}

// Fuzzy matches terms of Field within MaxEdits Levenshtein edits of Text.
type Fuzzy struct {
	Field    string
	Text     string
	MaxEdits int
}

// Clause is one child of a Boolean node.
type Clause struct {
	Occur Occur
	Node  Node
}

// Boolean combines clauses. Boost scales the score of every match; zero
// means 1.
type Boolean struct {
	Clauses []Clause
	Boost   float64
}

func (*Term) sealed()     {}
func (*Prefix) sealed()   {}
func (*Wildcard) sealed() {}
func (*Fuzzy) sealed()    {}
func (*Boolean) sealed()  {}

func (q *Term) String() string     { return q.Field + ":" + q.Text }
func (q *Prefix) String() string   { return q.Field + ":" + q.Prefix + "*" }
func (q *Wildcard) String() string { return q.Field + ":" + q.Pattern }
func (q *Fuzzy) String() string    { return fmt.Sprintf("%s:%s~%d", q.Field, q.Text, q.MaxEdits) }

func (q *Boolean) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, c := range q.Clauses {
		if i > 0 {
			sb.WriteByte(' ')
		}
		switch c.Occur {
		case Must:
			sb.WriteByte('+')
		case MustNot:
			sb.WriteByte('-')
		}
		sb.WriteString(c.Node.String())
	}
	sb.WriteByte(')')
	if q.Boost != 0 && q.Boost != 1 {
		sb.WriteByte('^')
		sb.WriteString(strconv.FormatFloat(q.Boost, 'g', -1, 64))
	}
	return sb.String()
}

// EffectiveBoost is the multiplier applied to matches of q.
func (q *Boolean) EffectiveBoost() float64 {
	if q.Boost == 0 {
		return 1
	}
	return q.Boost
}

// Walk visits n and its descendants in depth-first order. Returning false
// from fn skips the children of the node just visited.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	if b, ok := n.(*Boolean); ok {
		for _, c := range b.Clauses {
			Walk(c.Node, fn)
		}
	}
}

// Positive yields the leaves of n that can contribute to a match, skipping
// subtrees under a MustNot clause.
func Positive(n Node, fn func(Node)) {
	switch q := n.(type) {
	case nil:
	case *Boolean:
		for _, c := range q.Clauses {
			if c.Occur != MustNot {
				Positive(c.Node, fn)
			}
		}
	default:
		fn(q)
	}
}

// Field returns the field a leaf targets, or "" for a Boolean.
func Field(n Node) string {
	switch q := n.(type) {
	case *Term:
		return q.Field
	case *Prefix:
		return q.Field
	case *Wildcard:
		return q.Field
	case *Fuzzy:
		return q.Field
	}
	return ""
}

// Empty reports whether n contains no leaves.
func Empty(n Node) bool {
	empty := true
	Walk(n, func(c Node) bool {
		if _, ok := c.(*Boolean); !ok {
			empty = false
		}
		return empty
	})
	return empty
}
