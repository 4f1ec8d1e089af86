package automaton

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scan drives m over a sorted dictionary the way the evaluator does.
func scan(m Matcher, dict []string) []string {
	var out []string
	start, _ := slices.BinarySearch(dict, m.Seek())
	for _, term := range dict[start:] {
		if !m.Continue(term) {
			break
		}
		if m.Match(term) {
			out = append(out, term)
		}
	}
	return out
}

var dict = []string{"apple", "application", "apply", "banana", "band", "bandana", "数据", "数据库", "读取"}

func TestPrefix(t *testing.T) {
	assert.Equal(t, []string{"apple", "application", "apply"}, scan(NewPrefix("app"), dict))
	assert.Equal(t, []string{"数据", "数据库"}, scan(NewPrefix("数据"), dict))
	assert.Empty(t, scan(NewPrefix("zzz"), dict))
	assert.Len(t, scan(NewPrefix(""), dict), len(dict))
}

func TestWildcardMatch(t *testing.T) {
	tests := []struct {
		pattern string
		term    string
		want    bool
	}{
		{"h*o", "hello", true},
		{"h*o", "ho", true},
		{"h*o", "help", false},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"*", "", true},
		{"*", "anything", true},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
		{"*ana", "banana", true},
		{"数?库", "数据库", true},
		{"数*", "读取", false},
		{"**x", "x", true},
	}
	for _, tt := range tests {
		w, err := NewWildcard(tt.pattern)
		require.NoError(t, err)
		assert.Equal(t, tt.want, w.Match(tt.term), "%s ~ %s", tt.pattern, tt.term)
	}
}

func TestWildcardScanUsesLiteralPrefix(t *testing.T) {
	w, err := NewWildcard("ban*a")
	require.NoError(t, err)
	assert.Equal(t, "ban", w.Seek())
	assert.Equal(t, []string{"banana", "bandana"}, scan(w, dict))

	w, err = NewWildcard("?pp*")
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "application", "apply"}, scan(w, dict))
}

func TestWildcardPatternTooLong(t *testing.T) {
	_, err := NewWildcard(string(make([]byte, MaxWildcardPatternLength+1)))
	assert.ErrorIs(t, err, ErrWildcardPatternTooLong)
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		target string
		term   string
		max    int
		want   int
		ok     bool
	}{
		{"kitten", "kitten", 2, 0, true},
		{"kitten", "sitten", 1, 1, true},
		{"kitten", "sittin", 2, 2, true},
		{"kitten", "sitting", 2, 0, false},
		{"band", "bnad", 2, 2, true},
		{"band", "ban", 1, 1, true},
		{"band", "bands", 1, 1, true},
		{"数据", "数据库", 1, 1, true},
		{"数据", "读取", 1, 0, false},
		{"", "ab", 2, 2, true},
	}
	for _, tt := range tests {
		l, err := NewLevenshtein(tt.target, tt.max)
		require.NoError(t, err)
		d, ok := l.Distance(tt.term)
		assert.Equal(t, tt.ok, ok, "%s vs %s", tt.target, tt.term)
		if tt.ok {
			assert.Equal(t, tt.want, d, "%s vs %s", tt.target, tt.term)
		}
	}
}

func TestLevenshteinScan(t *testing.T) {
	l, err := NewLevenshtein("bnd", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"band"}, scan(l, dict))
	assert.Equal(t, 1, l.MaxDistance())

	_, err = NewLevenshtein("x", 3)
	assert.ErrorIs(t, err, ErrEditDistanceTooLarge)
	_, err = NewLevenshtein("x", -1)
	assert.ErrorIs(t, err, ErrEditDistanceTooLarge)
}

func FuzzWildcardStarMatchesEverything(f *testing.F) {
	f.Add("hello")
	f.Add("数据库")
	f.Fuzz(func(t *testing.T, s string) {
		w, err := NewWildcard("*")
		require.NoError(t, err)
		if !w.Match(s) {
			t.Fatalf("* rejected %q", s)
		}
	})
}

func BenchmarkLevenshtein(b *testing.B) {
	l, _ := NewLevenshtein("application", 2)
	for b.Loop() {
		for _, term := range dict {
			l.Distance(term)
		}
	}
}
