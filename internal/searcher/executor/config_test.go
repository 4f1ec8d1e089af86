package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Search
	cfg.Scoring = "bm25"
	cfg.DefaultOccurs = []string{"must", "should"}
	cfg.FieldBoosts = map[string]float64{"fileName": 2}

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "bm25", opts.Scorer.Name())
	assert.Equal(t, ranker.BM25{K1: 1.2, B: 0.75}, opts.Scorer)
	assert.Equal(t, []query.Occur{query.Must, query.Should}, opts.DefaultOccurs)
	assert.Equal(t, []string{"fileName", "content"}, opts.DefaultFields)
	assert.Equal(t, 2.0, opts.Boosts["fileName"])
	assert.Equal(t, 100, opts.Highlight.FragmentSize)
	assert.Equal(t, `<span style="background:red">`, opts.Highlight.Pre)

	cfg.Scoring = "pagerank"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, apperrors.ErrConfig)
}
