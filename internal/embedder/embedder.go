package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported provider")
	ErrWrongDimensions   = errors.New("embedding has unexpected dimensions")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// DefaultCacheSize bounds a Cache created with a non-positive size
const DefaultCacheSize = 10000

// Embedding is one vector together with the model that produced it
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
}

// Clone returns a deep copy
func (e *Embedding) Clone() *Embedding {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	return &c
}

// EmbeddingRequest asks for the vector of one text. Model overrides the
// provider default when set.
type EmbeddingRequest struct {
	Text  string
	Model string
}

// BatchEmbeddingRequest asks for vectors of several texts in one call
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

// BatchEmbeddingResponse holds embeddings in request order
type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns query text into vectors comparable with the stored
// capture embeddings.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// CacheKey identifies a cached vector. Provider and model are part of
// the key so vectors from different models never mix.
type CacheKey struct {
	Provider string
	Model    string
	Text     string
}

// Cache is an LRU of embeddings. Values are copied on the way in and
// out.
type Cache struct {
	lru *lru.Cache[CacheKey, *Embedding]
}

// NewCache creates a cache holding up to size embeddings
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes
	l, _ := lru.New[CacheKey, *Embedding](size)
	return &Cache{lru: l}
}

// Get returns a copy of the cached embedding for key
func (c *Cache) Get(key CacheKey) (*Embedding, bool) {
	emb, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return emb.Clone(), true
}

// Set stores a copy of emb under key
func (c *Cache) Set(key CacheKey, emb *Embedding) {
	c.lru.Add(key, emb.Clone())
}

// Len returns the number of cached embeddings
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry
func (c *Cache) Purge() {
	c.lru.Purge()
}

// checkTexts rejects an empty batch and blank texts
func checkTexts(texts ...string) error {
	switch len(texts) {
	case 0:
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	case 1:
		if strings.TrimSpace(texts[0]) == "" {
			return ErrEmptyText
		}
		return nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
