package tokenizer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

func terms(toks []Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Term
	}
	return out
}

func TestTokenizeLatin(t *testing.T) {
	a := Default()
	text := "Hello, World! 2024 report"
	toks := a.Tokens("content", text)

	assert.Equal(t, []string{"hello", "world", "2024", "report"}, terms(toks))
	for i, tok := range toks {
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, "Hello", text[toks[0].Start:toks[0].End])
	assert.Equal(t, "World", text[toks[1].Start:toks[1].End])
}

func TestTokenizeIdeographRuns(t *testing.T) {
	a := Default()
	text := "读取 文件 内容"
	toks := a.Tokens("content", text)

	require.Len(t, toks, 3)
	assert.Equal(t, []string{"读取", "文件", "内容"}, terms(toks))
	for _, tok := range toks {
		assert.Equal(t, tok.Term, text[tok.Start:tok.End])
	}
}

func TestTokenizeUnspacedIdeographs(t *testing.T) {
	a := Default()
	text := "本程序用于读取文件。导出"
	toks := a.Tokens("content", text)

	require.NotEmpty(t, toks)
	assert.Equal(t, "本程序用于读取文件", toks[0].Term)
	assert.Contains(t, terms(toks), "读取")
	assert.Contains(t, terms(toks), "文件")
	for _, tok := range toks {
		assert.Equal(t, tok.Term, text[tok.Start:tok.End])
	}

	last := toks[len(toks)-1]
	assert.Equal(t, "导出", last.Term, "two ideographs are not split further")
	assert.Equal(t, 1, last.Position)
	for _, tok := range toks[:len(toks)-1] {
		assert.Equal(t, 0, tok.Position, "pairs share the position of their run")
	}
	assert.Len(t, toks, 1+8+1)
}

func TestTokenizeCJKModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CJKMode = CJKUnigram
	assert.Equal(t, []string{"数", "据", "库"}, MustNew(cfg).Terms("content", "数据库"))

	cfg.CJKMode = CJKBigram
	text := "数据库"
	toks := MustNew(cfg).Tokens("content", text)
	assert.Equal(t, []string{"数据", "据库"}, terms(toks))
	assert.Equal(t, "据库", text[toks[1].Start:toks[1].End])

	assert.Equal(t, []string{"库"}, MustNew(cfg).Terms("content", "库"))
}

func TestTokenizeNormalizesWidthAndCase(t *testing.T) {
	a := Default()
	text := "ＡＢＣ"
	toks := a.Tokens("content", text)
	require.Len(t, toks, 1)
	assert.Equal(t, "abc", toks[0].Term)
	assert.Equal(t, 0, toks[0].Start)
	assert.Equal(t, len(text), toks[0].End)
}

func TestStopWordsAndPositions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopWordSet = "english"
	cfg.StopWords = []string{"Quick"}
	toks := MustNew(cfg).Tokens("content", "the quick brown fox")

	assert.Equal(t, []string{"brown", "fox"}, terms(toks))
	assert.Equal(t, 0, toks[0].Position)
	assert.Equal(t, 1, toks[1].Position)
}

func TestStemming(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stemming = true
	assert.Equal(t, []string{"run", "connect"}, MustNew(cfg).Terms("content", "running connections"))
}

func TestFieldOverrides(t *testing.T) {
	off := false
	cfg := DefaultConfig()
	cfg.Fields = map[string]FieldConfig{"filePath": {Lowercase: &off}}
	a := MustNew(cfg)

	assert.Equal(t, []string{"Report"}, a.Terms("filePath", "Report"))
	assert.Equal(t, []string{"report"}, a.Terms("content", "Report"))
	assert.Equal(t, "Report", a.NormalizeTerm("filePath", "Report"))
}

func TestMinTokenLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinTokenLength = 2
	assert.Equal(t, []string{"bc"}, MustNew(cfg).Terms("content", "a bc"))
}

func TestTokenizeIsRestartable(t *testing.T) {
	seq := Default().Tokenize("content", "导出 数据")
	var first, second []Token
	for tok := range seq {
		first = append(first, tok)
	}
	for tok := range seq {
		second = append(second, tok)
	}
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestTokenizeEarlyBreak(t *testing.T) {
	n := 0
	for range Default().Tokenize("content", "one two three four") {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestTokenizeEmptyAndPunctuation(t *testing.T) {
	a := Default()
	assert.Empty(t, a.Tokens("content", ""))
	assert.Empty(t, a.Tokens("content", " ,.;!? "))
}

func TestNormalizeTermKeepsMetacharacters(t *testing.T) {
	a := Default()
	assert.Equal(t, "数据*", a.NormalizeTerm("content", "数据*"))
	assert.Equal(t, "re?ort", a.NormalizeTerm("content", "RE?ORT"))
}

func TestFingerprint(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.StopWords = []string{"x", "y"}
	b.StopWords = []string{"y", "x"}
	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)

	b.CJKMode = CJKBigram
	fb, err = b.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	empty := Config{Lowercase: true, MinTokenLength: 1}
	fe, err := empty.Fingerprint()
	require.NoError(t, err)
	fd, err := DefaultConfig().Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fd, fe, "empty cjk mode canonicalises to run")
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CJKMode = "trigram"
	_, err := New(cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConfig))
}

func BenchmarkTokenize(b *testing.B) {
	a := Default()
	text := "The quick brown fox jumps over the lazy dog. 读取 文件 内容 导出 数据库 备份."
	b.ReportAllocs()
	for b.Loop() {
		for range a.Tokenize("content", text) {
		}
	}
}
