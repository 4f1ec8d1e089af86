package tokenizer

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// CJKMode controls how runs of adjacent ideographs become tokens.
type CJKMode string

const (
	// CJKRun keeps a whitespace or punctuation delimited run as one token
	// and stacks its overlapping pairs at the same position.
	CJKRun CJKMode = "run"
	// CJKUnigram emits one token per ideograph.
	CJKUnigram CJKMode = "unigram"
	// CJKBigram emits overlapping pairs of ideographs.
	CJKBigram CJKMode = "bigram"
)

// Config is the serialisable description of an Analyzer. Two analyzers with
// equal canonical configs produce identical tokens.
type Config struct {
	Lowercase      bool                   `json:"lowercase"`
	CJKMode        CJKMode                `json:"cjkMode"`
	MinTokenLength int                    `json:"minTokenLength"`
	StopWords      []string               `json:"stopWords,omitempty"`
	StopWordSet    string                 `json:"stopWordSet,omitempty"`
	Stemming       bool                   `json:"stemming"`
	Fields         map[string]FieldConfig `json:"fields,omitempty"`
}

// FieldConfig overrides Lowercase or Stemming for one field.
type FieldConfig struct {
	Lowercase *bool `json:"lowercase,omitempty"`
	Stemming  *bool `json:"stemming,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Lowercase:      true,
		CJKMode:        CJKRun,
		MinTokenLength: 1,
	}
}

// ConfigFrom converts the application configuration section.
func ConfigFrom(c config.AnalyzerConfig) Config {
	out := Config{
		Lowercase:      c.Lowercase,
		CJKMode:        CJKMode(c.CJKMode),
		MinTokenLength: c.MinTokenLength,
		StopWords:      slices.Clone(c.StopWords),
		StopWordSet:    c.StopWordSet,
		Stemming:       c.Stemming,
	}
	if len(c.Fields) > 0 {
		out.Fields = make(map[string]FieldConfig, len(c.Fields))
		for name, f := range c.Fields {
			out.Fields[name] = FieldConfig{Lowercase: f.Lowercase, Stemming: f.Stemming}
		}
	}
	return out
}

func (c Config) canonical() (Config, error) {
	switch c.CJKMode {
	case "":
		c.CJKMode = CJKRun
	case CJKRun, CJKUnigram, CJKBigram:
	default:
		return c, apperrors.Configf("unknown cjk mode %q", c.CJKMode)
	}
	switch c.StopWordSet {
	case "none":
		c.StopWordSet = ""
	case "", "english":
	default:
		return c, apperrors.Configf("unknown stop word set %q", c.StopWordSet)
	}
	if c.MinTokenLength < 0 {
		return c, apperrors.Configf("min token length must be >= 0, got %d", c.MinTokenLength)
	}
	if len(c.StopWords) > 0 {
		c.StopWords = slices.Clone(c.StopWords)
		slices.Sort(c.StopWords)
		c.StopWords = slices.Compact(c.StopWords)
	}
	if len(c.Fields) == 0 {
		c.Fields = nil
	}
	return c, nil
}

// Fingerprint is the hex sha256 of the canonical JSON encoding of c.
// encoding/json sorts map keys, so the result is stable across runs.
func (c Config) Fingerprint() (string, error) {
	c, err := c.canonical()
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding analyzer config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c Config) fieldOptions(field string) (lower, stem bool) {
	lower, stem = c.Lowercase, c.Stemming
	if fc, ok := c.Fields[field]; ok {
		if fc.Lowercase != nil {
			lower = *fc.Lowercase
		}
		if fc.Stemming != nil {
			stem = *fc.Stemming
		}
	}
	return lower, stem
}
