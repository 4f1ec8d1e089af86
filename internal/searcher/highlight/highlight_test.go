package highlight

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
)

func parse(t *testing.T, a *tokenizer.Analyzer, text string) query.Node {
	t.Helper()
	n, err := parser.Parse(text,
		[]string{"fileName", "content"},
		[]query.Occur{query.Should, query.Should},
		a, parser.Options{},
	)
	require.NoError(t, err)
	return n
}

func TestBestFragmentChineseTerms(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{})
	node := parse(t, a, "读取 导出")

	got, ok := h.BestFragment(node, "content", "读取 文件 内容")
	require.True(t, ok)
	assert.Equal(t, `<span style="background:red">读取</span> 文件 内容`, got)

	got, ok = h.BestFragment(node, "content", "导出 数据")
	require.True(t, ok)
	assert.Equal(t, `<span style="background:red">导出</span> 数据`, got)
}

func TestBestFragmentPrefix(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{Pre: "[", Post: "]"})

	got, ok := h.BestFragment(parse(t, a, "数据*"), "content", "导出 数据库 备份")
	require.True(t, ok)
	assert.Equal(t, "导出 [数据库] 备份", got)
	assert.Contains(t, got, "数据库")
}

func TestBestFragmentNoMatch(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{})

	_, ok := h.BestFragment(parse(t, a, "missing"), "content", "导出 数据")
	assert.False(t, ok)
	_, ok = h.BestFragment(parse(t, a, "导出"), "content", "")
	assert.False(t, ok)

	excluded := parse(t, a, "-导出")
	_, ok = h.BestFragment(excluded, "content", "导出 数据")
	assert.False(t, ok, "excluded terms are not highlighted")
}

func TestBestFragmentWindowKeepsSurroundingText(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{Pre: "[", Post: "]", FragmentSize: 40})
	text := strings.Repeat("filler ", 30) + "alpha beta" + strings.Repeat(" filler", 30)

	got, ok := h.BestFragment(parse(t, a, "alpha beta"), "content", text)
	require.True(t, ok)
	assert.Equal(t, "filler [alpha] [beta] filler filler", got)

	plain := strings.NewReplacer("[", "", "]", "").Replace(got)
	assert.LessOrEqual(t, len(plain), 40)
	assert.Contains(t, text, plain, "unmarked bytes are copied verbatim")
}

func TestBestFragmentPrefersMoreDistinctTerms(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{Pre: "[", Post: "]", FragmentSize: 20})
	text := "alpha " + strings.Repeat("x ", 50) + "alpha  beta" + strings.Repeat(" x", 50)

	got, ok := h.BestFragment(parse(t, a, "alpha beta"), "content", text)
	require.True(t, ok)
	assert.Contains(t, got, "[alpha]  [beta]", "whitespace inside the fragment is preserved")
	assert.False(t, strings.HasPrefix(got, "[alpha] x"))
}

func TestBestFragmentEarliestOnTie(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{Pre: "[", Post: "]", FragmentSize: 10})
	text := "one " + strings.Repeat("pad ", 20) + "one"

	got, ok := h.BestFragment(parse(t, a, "one"), "content", text)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(got, "[one]"), got)
}

func TestBestFragmentWildcardAndFuzzy(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{Pre: "[", Post: "]"})

	got, ok := h.BestFragment(parse(t, a, "rep?rt"), "content", "Quarterly Report draft")
	require.True(t, ok)
	assert.Equal(t, "Quarterly [Report] draft", got)

	got, ok = h.BestFragment(parse(t, a, "raport~1"), "content", "Quarterly Report draft")
	require.True(t, ok)
	assert.Equal(t, "Quarterly [Report] draft", got)
}

func TestBestFragmentMergesOverlappingBigrams(t *testing.T) {
	cfg := tokenizer.DefaultConfig()
	cfg.CJKMode = tokenizer.CJKBigram
	a := tokenizer.MustNew(cfg)
	h := New(a, Options{Pre: "[", Post: "]"})

	got, ok := h.BestFragment(parse(t, a, "数据库"), "content", "导出 数据库 备份")
	require.True(t, ok)
	assert.Equal(t, "导出 [数据库] 备份", got)
}

func TestPlain(t *testing.T) {
	a := tokenizer.Default()
	h := New(a, Options{FragmentSize: 12})
	assert.Equal(t, "short", h.Plain("content", "short"))
	assert.Equal(t, "hello world", h.Plain("content", "hello world again"))
	assert.Equal(t, "数据库数", h.Plain("content", "数据库数据库数据库"))
}
