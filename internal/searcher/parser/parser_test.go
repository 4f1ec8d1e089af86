package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

var (
	contentOnly = []string{"content"}
	should      = []query.Occur{query.Should}
)

func parseContent(t *testing.T, text string) string {
	t.Helper()
	n, err := Parse(text, contentOnly, should, tokenizer.Default(), Options{})
	require.NoError(t, err)
	return n.String()
}

func TestParseMultiField(t *testing.T) {
	n, err := Parse("读取 导出",
		[]string{"fileName", "content"},
		[]query.Occur{query.Should, query.Should},
		tokenizer.Default(), Options{},
	)
	require.NoError(t, err)
	assert.Equal(t, "((fileName:读取 fileName:导出) (content:读取 content:导出))", n.String())

	root := n.(*query.Boolean)
	require.Len(t, root.Clauses, 2)
	assert.Equal(t, query.Should, root.Clauses[0].Occur)
}

func TestParseClassifiesWords(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Hello", "((content:hello))"},
		{"数据*", "((content:数据*))"},
		{"re?d*", "((content:re?d*))"},
		{"*", "((content:*))"},
		{"Repo~", "((content:repo~2))"},
		{"repo~1", "((content:repo~1))"},
		{"repo~0", "((content:repo~0))"},
		{"foo-bar", "(((content:foo content:bar)))"},
		{"a AND b", "((+content:a +content:b))"},
		{"a OR b", "((content:a content:b))"},
		{"a b NOT c", "((content:a content:b -content:c))"},
		{"a AND NOT c", "((+content:a -content:c))"},
		{"+foo -(bar baz)", "((+content:foo -(content:bar content:baz)))"},
		{"(a OR b) AND c", "((+(content:a content:b) +content:c))"},
		{"e-mail", "(((content:e content:mail)))"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, parseContent(t, tt.text))
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"blank", "   \t"},
		{"unclosed group", "(a b"},
		{"stray close", "a b)"},
		{"trailing and", "a AND"},
		{"leading or", "OR a"},
		{"double operator", "a AND OR b"},
		{"lone minus", "-"},
		{"dangling not", "a NOT"},
		{"fuzzy distance too large", "repo~3"},
		{"fuzzy distance not a number", "repo~x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := Parse(tt.text, contentOnly, should, tokenizer.Default(), Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrParse)
			assert.Nil(t, n)
		})
	}
}

func TestParseConfigErrors(t *testing.T) {
	a := tokenizer.Default()
	_, err := Parse("x", []string{"fileName", "content"}, should, a, Options{})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = Parse("x", nil, nil, a, Options{})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = Parse("x", contentOnly, should, a, Options{Fingerprint: "deadbeef"})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	_, err = Parse("x", contentOnly, should, a, Options{Fingerprint: a.Fingerprint()})
	assert.NoError(t, err)
}

func TestParseOccursAndBoosts(t *testing.T) {
	n, err := Parse("report",
		[]string{"fileName", "content"},
		[]query.Occur{query.Must, query.MustNot},
		tokenizer.Default(),
		Options{Boosts: map[string]float64{"fileName": 2}},
	)
	require.NoError(t, err)
	assert.Equal(t, "(+(fileName:report)^2 -(content:report))", n.String())
}

func TestParseStopWordsLeaveEmptyField(t *testing.T) {
	cfg := tokenizer.DefaultConfig()
	cfg.StopWordSet = "english"
	n, err := Parse("the", contentOnly, should, tokenizer.MustNew(cfg), Options{})
	require.NoError(t, err)
	assert.True(t, query.Empty(n))
}

func BenchmarkParse(b *testing.B) {
	a := tokenizer.Default()
	fields := []string{"fileName", "content"}
	occurs := []query.Occur{query.Should, query.Should}
	for b.Loop() {
		if _, err := Parse("(report OR summary) AND 数据* -draft repo~1", fields, occurs, a, Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
