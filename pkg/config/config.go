// Package config loads and validates application configuration from YAML or
// TOML files with environment-variable overrides. It provides typed structs
// for every subsystem (Server, Index, Source, Search, Postgres, Kafka, Redis,
// Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Index    IndexConfig    `yaml:"index" toml:"index"`
	Source   SourceConfig   `yaml:"source" toml:"source"`
	Search   SearchConfig   `yaml:"search" toml:"search"`
	Postgres PostgresConfig `yaml:"postgres" toml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka" toml:"kafka"`
	Redis    RedisConfig    `yaml:"redis" toml:"redis"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout" toml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout" toml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" toml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout" toml:"requestTimeout"`
	// RateLimit is the per-client request quota per RateLimitWindow. Zero
	// disables limiting.
	RateLimit       int           `yaml:"rateLimit" toml:"rateLimit"`
	RateLimitWindow time.Duration `yaml:"rateLimitWindow" toml:"rateLimitWindow"`
	CORSOrigins     []string      `yaml:"corsOrigins" toml:"corsOrigins"`
}

// IndexConfig locates the index and describes how text is analyzed. The
// analyzer settings are recorded in every committed manifest, so changing
// them requires a rebuild.
type IndexConfig struct {
	Dir      string         `yaml:"dir" toml:"dir"`
	Analyzer AnalyzerConfig `yaml:"analyzer" toml:"analyzer"`
	// ReloadInterval is how often the searcher polls for a new generation.
	// Zero disables polling.
	ReloadInterval time.Duration `yaml:"reloadInterval" toml:"reloadInterval"`
}

type AnalyzerConfig struct {
	Lowercase      bool                           `yaml:"lowercase" toml:"lowercase"`
	CJKMode        string                         `yaml:"cjkMode" toml:"cjkMode"`
	MinTokenLength int                            `yaml:"minTokenLength" toml:"minTokenLength"`
	StopWords      []string                       `yaml:"stopWords" toml:"stopWords"`
	StopWordSet    string                         `yaml:"stopWordSet" toml:"stopWordSet"`
	Stemming       bool                           `yaml:"stemming" toml:"stemming"`
	Fields         map[string]FieldAnalyzerConfig `yaml:"fields" toml:"fields"`
}

// FieldAnalyzerConfig overrides analyzer behaviour for a single field. Nil
// values inherit the analyzer-wide setting.
type FieldAnalyzerConfig struct {
	Lowercase *bool `yaml:"lowercase" toml:"lowercase"`
	Stemming  *bool `yaml:"stemming" toml:"stemming"`
}

// SourceConfig selects where documents come from during a rebuild.
type SourceConfig struct {
	Type         string   `yaml:"type" toml:"type"`
	Root         string   `yaml:"root" toml:"root"`
	Include      []string `yaml:"include" toml:"include"`
	Extensions   []string `yaml:"extensions" toml:"extensions"`
	MaxFileBytes int64    `yaml:"maxFileBytes" toml:"maxFileBytes"`
	Workers      int      `yaml:"workers" toml:"workers"`

	Table         string `yaml:"table" toml:"table"`
	PathColumn    string `yaml:"pathColumn" toml:"pathColumn"`
	NameColumn    string `yaml:"nameColumn" toml:"nameColumn"`
	ContentColumn string `yaml:"contentColumn" toml:"contentColumn"`
	ModTimeColumn string `yaml:"modTimeColumn" toml:"modTimeColumn"`
}

// SearchConfig controls query parsing, scoring and highlighting.
type SearchConfig struct {
	DefaultFields      []string           `yaml:"defaultFields" toml:"defaultFields"`
	DefaultOccurs      []string           `yaml:"defaultOccurs" toml:"defaultOccurs"`
	FieldBoosts        map[string]float64 `yaml:"fieldBoosts" toml:"fieldBoosts"`
	DefaultLimit       int                `yaml:"defaultLimit" toml:"defaultLimit"`
	MaxResults         int                `yaml:"maxResults" toml:"maxResults"`
	Scoring            string             `yaml:"scoring" toml:"scoring"`
	BM25K1             float64            `yaml:"bm25K1" toml:"bm25K1"`
	BM25B              float64            `yaml:"bm25B" toml:"bm25B"`
	FuzzyMaxExpansions int                `yaml:"fuzzyMaxExpansions" toml:"fuzzyMaxExpansions"`
	SnippetField       string             `yaml:"snippetField" toml:"snippetField"`
	FragmentSize       int                `yaml:"fragmentSize" toml:"fragmentSize"`
	PreTag             string             `yaml:"preTag" toml:"preTag"`
	PostTag            string             `yaml:"postTag" toml:"postTag"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	Database        string        `yaml:"database" toml:"database"`
	User            string        `yaml:"user" toml:"user"`
	Password        string        `yaml:"password" toml:"password"`
	SSLMode         string        `yaml:"sslMode" toml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns" toml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns" toml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" toml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled" toml:"enabled"`
	Brokers       []string    `yaml:"brokers" toml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup" toml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics" toml:"topics"`
}

type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete" toml:"indexComplete"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled" toml:"enabled"`
	Addr     string        `yaml:"addr" toml:"addr"`
	Password string        `yaml:"password" toml:"password"`
	DB       int           `yaml:"db" toml:"db"`
	PoolSize int           `yaml:"poolSize" toml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL" toml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled"`
	Port    int  `yaml:"port" toml:"port"`
}

// Load reads a YAML or TOML config file (if provided), chosen by extension,
// and applies environment-variable overrides. Missing values keep their
// defaults. The result is validated before it is returned.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Configf("parsing config file %s: %v", path, err)
			}
		case ".yaml", ".yml", "":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Configf("parsing config file %s: %v", path, err)
			}
		default:
			return nil, apperrors.Configf("unsupported config format %q", filepath.Ext(path))
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
			RateLimitWindow: time.Minute,
		},
		Index: IndexConfig{
			Dir:            "./data/index",
			ReloadInterval: 30 * time.Second,
			Analyzer: AnalyzerConfig{
				Lowercase:      true,
				CJKMode:        "run",
				MinTokenLength: 1,
			},
		},
		Source: SourceConfig{
			Type:          "file",
			Root:          "./docs",
			MaxFileBytes:  10 << 20,
			Workers:       4,
			Table:         "documents",
			PathColumn:    "path",
			NameColumn:    "name",
			ContentColumn: "content",
			ModTimeColumn: "updated_at",
		},
		Search: SearchConfig{
			DefaultFields:      []string{"fileName", "content"},
			DefaultOccurs:      []string{"should", "should"},
			DefaultLimit:       100,
			MaxResults:         1000,
			Scoring:            "tfidf",
			BM25K1:             1.2,
			BM25B:              0.75,
			FuzzyMaxExpansions: 50,
			SnippetField:       "content",
			FragmentSize:       100,
			PreTag:             `<span style="background:red">`,
			PostTag:            "</span>",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "filesearch",
			User:            "filesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "filesearch-searcher",
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads FS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FS_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("FS_SOURCE_TYPE"); v != "" {
		cfg.Source.Type = v
	}
	if v := os.Getenv("FS_SOURCE_ROOT"); v != "" {
		cfg.Source.Root = v
	}
	if v := os.Getenv("FS_SEARCH_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("FS_SEARCH_SCORING"); v != "" {
		cfg.Search.Scoring = v
	}
	if v := os.Getenv("FS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("FS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("FS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("FS_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}

// Validate reports the first inconsistent setting as a configuration error.
func (c *Config) Validate() error {
	if c.Index.Dir == "" {
		return apperrors.Configf("index.dir must not be empty")
	}
	switch c.Index.Analyzer.CJKMode {
	case "", "run", "unigram", "bigram":
	default:
		return apperrors.Configf("index.analyzer.cjkMode %q is not one of run, unigram, bigram", c.Index.Analyzer.CJKMode)
	}
	switch c.Index.Analyzer.StopWordSet {
	case "", "none", "english":
	default:
		return apperrors.Configf("index.analyzer.stopWordSet %q is not supported", c.Index.Analyzer.StopWordSet)
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateLimitWindow <= 0) {
		return apperrors.Configf("server.rateLimit needs a non-negative quota and a positive rateLimitWindow")
	}
	if c.Index.ReloadInterval < 0 {
		return apperrors.Configf("index.reloadInterval must not be negative")
	}
	if c.Index.Analyzer.MinTokenLength < 0 {
		return apperrors.Configf("index.analyzer.minTokenLength must be >= 0")
	}
	switch c.Source.Type {
	case "file", "postgres":
	default:
		return apperrors.Configf("source.type %q is not one of file, postgres", c.Source.Type)
	}
	if len(c.Search.DefaultFields) == 0 {
		return apperrors.Configf("search.defaultFields must not be empty")
	}
	if len(c.Search.DefaultFields) != len(c.Search.DefaultOccurs) {
		return apperrors.Configf("search.defaultFields has %d entries but search.defaultOccurs has %d",
			len(c.Search.DefaultFields), len(c.Search.DefaultOccurs))
	}
	for _, o := range c.Search.DefaultOccurs {
		switch strings.ToLower(o) {
		case "must", "should", "must_not":
		default:
			return apperrors.Configf("search.defaultOccurs entry %q is not one of must, should, must_not", o)
		}
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults <= 0 {
		return apperrors.Configf("search.defaultLimit and search.maxResults must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxResults {
		return apperrors.Configf("search.defaultLimit %d exceeds search.maxResults %d", c.Search.DefaultLimit, c.Search.MaxResults)
	}
	switch c.Search.Scoring {
	case "tfidf", "bm25":
	default:
		return apperrors.Configf("search.scoring %q is not one of tfidf, bm25", c.Search.Scoring)
	}
	if c.Search.FragmentSize <= 0 {
		return apperrors.Configf("search.fragmentSize must be positive")
	}
	for field, boost := range c.Search.FieldBoosts {
		if boost <= 0 {
			return apperrors.Configf("search.fieldBoosts[%s] must be positive", field)
		}
	}
	return nil
}
