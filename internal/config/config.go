package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. PENSIEVE_SEARCH_LOG_LEVEL
const Prefix = "PENSIEVE_SEARCH"

type Config struct {
	PensieveURL    string `envconfig:"PENSIEVE_URL" default:"http://localhost:8839"`
	FallbackDBPath string `envconfig:"FALLBACK_DB_PATH" default:"~/.memos/database.db"`
	PostgresURL    string `envconfig:"POSTGRES_URL"`

	// EmbeddingProvider is openai, local or none. Empty selects openai
	// when OPENAI_API_KEY is set and none otherwise; local hashing vectors
	// do not match stored model embeddings and must be chosen explicitly.
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER"`
	OpenAIAPIKey      string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel    string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingBaseURL  string `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingCache    int    `envconfig:"EMBEDDING_CACHE_SIZE" default:"1000"`

	MaxConcurrentSearches int           `envconfig:"MAX_CONCURRENT_SEARCHES" default:"10"`
	MaxConcurrentStreams  int           `envconfig:"MAX_CONCURRENT_STREAMS" default:"3"`
	CacheSize             int           `envconfig:"CACHE_SIZE" default:"1000"`
	DefaultCacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	SearchTimeout         time.Duration `envconfig:"SEARCH_TIMEOUT" default:"30s"`
	HistorySize           int           `envconfig:"HISTORY_SIZE" default:"1000"`
	MaxVectorCandidates   int           `envconfig:"MAX_VECTOR_CANDIDATES" default:"2000"`
	ProbeTimeout          time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

// Load reads .env if present and then the process environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the search stack cannot run with
func (c *Config) Validate() error {
	if c.PensieveURL == "" && c.FallbackDBPath == "" && c.PostgresURL == "" {
		return fmt.Errorf("config: one of PENSIEVE_URL, FALLBACK_DB_PATH or POSTGRES_URL is required")
	}
	if c.MaxConcurrentSearches <= 0 || c.MaxConcurrentStreams <= 0 {
		return fmt.Errorf("config: concurrency limits must be positive")
	}
	if c.SearchTimeout <= 0 {
		return fmt.Errorf("config: search timeout must be positive, got %s", c.SearchTimeout)
	}
	return nil
}

func (c *Config) HasPostgres() bool {
	return c.PostgresURL != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}
