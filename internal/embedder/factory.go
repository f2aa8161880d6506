package embedder

import (
	"fmt"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // openai, local, none, or empty to detect
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
	CacheSize int
}

// ProviderNone disables embeddings; New returns a nil Embedder
const ProviderNone = "none"

// New creates an embedder with explicit configuration. An empty provider
// picks openai when a key is present and none otherwise.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch DetectProvider(cfg) {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Dimension: cfg.Dimension,
		}, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache), nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider New would use for cfg
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderNone
}
