// Package cache keeps recent search results keyed by query fingerprint.
//
// The cache is best effort: every store failure is logged and reported
// to the caller as a miss, so a broken store only costs performance.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/pensieve-search/pkg/types"
)

// entry is the stored form of a cached result list
type entry struct {
	InsertedAt time.Time             `json:"inserted_at"`
	TTL        time.Duration         `json:"ttl"`
	Results    []types.UnifiedResult `json:"results"`
}

// Options configures a ResultCache
type Options struct {
	Store  Store
	Logger zerolog.Logger
	Now    func() time.Time
}

// ResultCache maps query fingerprints to result lists with TTL expiry
type ResultCache struct {
	store  Store
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a ResultCache. A nil store gets a default MemoryStore.
func New(opts Options) (*ResultCache, error) {
	store := opts.Store
	if store == nil {
		mem, err := NewMemoryStore(DefaultMemoryEntries)
		if err != nil {
			return nil, err
		}
		store = mem
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ResultCache{store: store, logger: opts.Logger, now: now}, nil
}

// Get returns the results stored under fingerprint. Missing, expired and
// unreadable entries are all misses.
func (c *ResultCache) Get(ctx context.Context, fingerprint string) ([]types.UnifiedResult, bool) {
	data, found, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache read failed, treating as miss")
		return nil, false
	}
	if !found {
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache entry unreadable, treating as miss")
		return nil, false
	}

	if c.now().After(e.InsertedAt.Add(e.TTL)) {
		return nil, false
	}
	return e.Results, true
}

// Put stores results under fingerprint, replacing any previous entry
func (c *ResultCache) Put(ctx context.Context, fingerprint string, results []types.UnifiedResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(entry{
		InsertedAt: c.now(),
		TTL:        ttl,
		Results:    results,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache entry not encodable, skipping write")
		return
	}

	if err := c.store.Set(ctx, fingerprint, data, ttl); err != nil {
		c.logger.Warn().Err(err).Str("fingerprint", fingerprint).Msg("cache write failed")
	}
}
