package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const localModel = "hashed-bag-of-words"

// LocalProvider produces deterministic feature-hashed vectors without any
// model. Texts sharing words land close together, which is enough for
// offline use and tests; it is not a learned embedding.
type LocalProvider struct {
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a local embedder; dimension 0 = LocalDimension
func NewLocalProvider(dimension int, cache *Cache) *LocalProvider {
	if dimension <= 0 {
		dimension = LocalDimension
	}
	return &LocalProvider{dimension: dimension, cache: cache}
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	if err := checkTexts(req.Text); err != nil {
		return nil, err
	}

	key := CacheKey{Provider: ProviderLocal, Model: localModel, Text: req.Text}
	if l.cache != nil {
		if emb, ok := l.cache.Get(key); ok {
			return emb, nil
		}
	}

	vector := make([]float32, l.dimension)
	for _, word := range strings.FieldsFunc(strings.ToLower(req.Text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		if sum&(1<<63) != 0 {
			vector[idx]--
		} else {
			vector[idx]++
		}
	}

	emb := &Embedding{
		Vector:    NormalizeVector(vector),
		Dimension: l.dimension,
		Provider:  ProviderLocal,
		Model:     localModel,
	}

	if l.cache != nil {
		l.cache.Set(key, emb)
	}

	return emb, nil
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	if err := checkTexts(req.Texts...); err != nil {
		return nil, err
	}

	embeddings := make([]*Embedding, len(req.Texts))
	for i, text := range req.Texts {
		emb, err := l.GenerateEmbedding(ctx, EmbeddingRequest{Text: text, Model: req.Model})
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   ProviderLocal,
		Model:      localModel,
	}, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return localModel
}

func (l *LocalProvider) Close() error {
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val * val)
	}

	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}

	return result
}
