package executor

import (
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/highlight"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
)

// OptionsFromConfig maps the search section of the configuration onto
// Options. Logger and Metrics are left for the caller.
func OptionsFromConfig(cfg config.SearchConfig) (Options, error) {
	scorer, err := ranker.New(cfg.Scoring, cfg.BM25K1, cfg.BM25B)
	if err != nil {
		return Options{}, err
	}
	occurs := make([]query.Occur, len(cfg.DefaultOccurs))
	for i, s := range cfg.DefaultOccurs {
		if occurs[i], err = query.ParseOccur(s); err != nil {
			return Options{}, err
		}
	}
	return Options{
		Scorer:             scorer,
		DefaultFields:      cfg.DefaultFields,
		DefaultOccurs:      occurs,
		Boosts:             cfg.FieldBoosts,
		DefaultLimit:       cfg.DefaultLimit,
		MaxResults:         cfg.MaxResults,
		FuzzyMaxExpansions: cfg.FuzzyMaxExpansions,
		SnippetField:       cfg.SnippetField,
		Highlight: highlight.Options{
			Pre:          cfg.PreTag,
			Post:         cfg.PostTag,
			FragmentSize: cfg.FragmentSize,
		},
	}, nil
}
