package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Store is a byte-oriented key/value store with per-key TTL. Any
// implementation may be plugged in; errors are never fatal to a search.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DefaultMemoryEntries bounds MemoryStore when no size is given
const DefaultMemoryEntries = 1000

// storeEntry is a stored value with its expiration time
type storeEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store backed by an LRU. Least recently
// used entries are evicted once the entry bound is reached.
type MemoryStore struct {
	mu    sync.RWMutex
	cache *lru.Cache[string, *storeEntry]
	now   func() time.Time
}

// NewMemoryStore creates a store holding at most maxEntries values
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	cache, err := lru.New[string, *storeEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &MemoryStore{cache: cache, now: time.Now}, nil
}

// Get implements Store
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, found := m.cache.Get(key)
	if !found {
		m.mu.RUnlock()
		return nil, false, nil
	}

	if m.now().After(entry.expiresAt) {
		m.mu.RUnlock()

		m.mu.Lock()
		m.cache.Remove(key)
		m.mu.Unlock()
		return nil, false, nil
	}

	value := append([]byte(nil), entry.value...)
	m.mu.RUnlock()
	return value, true, nil
}

// Set implements Store; last writer wins
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := &storeEntry{
		value:     append([]byte(nil), value...),
		expiresAt: m.now().Add(ttl),
	}

	m.mu.Lock()
	m.cache.Add(key, entry)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Len()
}

// Purge removes every entry
func (m *MemoryStore) Purge() {
	m.mu.Lock()
	m.cache.Purge()
	m.mu.Unlock()
}
