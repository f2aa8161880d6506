package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/pensieve-search/internal/retry"
)

// Provider names
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"
)

// Defaults
const (
	DefaultOpenAIModel = string(openai.SmallEmbedding3)
	OpenAIDimension    = 1536
	LocalDimension     = 384

	MaxBatchSize = 100
)

// OpenAIConfig configures the OpenAI provider
type OpenAIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string // optional; for proxies and tests
	Dimension int    // expected vector length, 0 = OpenAIDimension
}

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dimension int
	cache     *Cache
	retry     retry.Config
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg OpenAIConfig, cache *Cache) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key not set", ErrNoProviderEnabled)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = OpenAIDimension
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		dimension: dimension,
		cache:     cache,
		retry:     retry.DefaultConfig(),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts(req.Text); err != nil {
		return nil, err
	}

	resp, err := o.GenerateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts...); err != nil {
		return nil, err
	}

	if len(req.Texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: max %d texts allowed", ErrBatchTooLarge, MaxBatchSize)
	}

	model := req.Model
	if model == "" {
		model = o.model
	}

	// Serve what we can from cache, send the rest
	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if o.cache != nil {
			if emb, ok := o.cache.Get(CacheKey{Provider: ProviderOpenAI, Model: model, Text: text}); ok {
				embeddings[i] = emb
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = req.Texts[i]
		}

		fetched, err := retry.Do(ctx, o.retry, func() ([]*Embedding, error) {
			return o.callAPI(ctx, texts, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProviderFailed, err)
		}

		for j, i := range missing {
			emb := fetched[j]
			if o.cache != nil {
				o.cache.Set(CacheKey{Provider: ProviderOpenAI, Model: model, Text: req.Texts[i]}, emb)
			}
			embeddings[i] = emb
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderOpenAI,
		Model:      model,
	}, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([]*Embedding, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode < http.StatusInternalServerError &&
			apiErr.HTTPStatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, retry.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	embeddings := make([]*Embedding, len(data))
	for i, d := range data {
		if len(d.Embedding) != o.dimension {
			return nil, retry.Permanent(fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, o.dimension, len(d.Embedding)))
		}
		embeddings[i] = &Embedding{
			Vector:    d.Embedding,
			Dimension: len(d.Embedding),
			Provider:  ProviderOpenAI,
			Model:     model,
		}
	}

	return embeddings, nil
}

func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Model() string {
	return o.model
}

func (o *OpenAIProvider) Close() error {
	return nil
}
