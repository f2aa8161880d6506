package searcher

import (
	"sync"
	"time"

	"github.com/dshills/pensieve-search/pkg/types"
)

// methodCache is the usage key for searches answered from the cache
const methodCache = "cache"

// outcome describes one finished search for the statistics update
type outcome struct {
	method  string
	latency time.Duration

	failed      bool
	timedOut    bool
	fallback    bool
	cacheLookup bool
	cacheHit    bool
}

// statsRecorder serializes counter updates. Only the update step holds
// the lock, never the search itself.
type statsRecorder struct {
	mu    sync.Mutex
	stats types.CoordinatorStats
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{stats: types.CoordinatorStats{Methods: make(map[string]types.MethodStats)}}
}

func (r *statsRecorder) enter() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.CurrentConcurrent++
	if r.stats.CurrentConcurrent > r.stats.PeakConcurrent {
		r.stats.PeakConcurrent = r.stats.CurrentConcurrent
	}
}

func (r *statsRecorder) leave() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.CurrentConcurrent--
}

func (r *statsRecorder) batch() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.StreamingBatches++
}

func (r *statsRecorder) record(o outcome) {
	ms := float64(o.latency) / float64(time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()

	s := &r.stats
	s.TotalSearches++
	s.AverageResponseTimeMs += (ms - s.AverageResponseTimeMs) / float64(s.TotalSearches)

	switch types.SearchMode(o.method) {
	case types.ModeVector:
		s.VectorSearches++
	case types.ModeHybrid:
		s.HybridSearches++
	case types.ModeStreaming:
		s.StreamingSearches++
	}
	if o.fallback {
		s.FallbackSearches++
	}
	if o.timedOut {
		s.TimedOutSearches++
	}
	if o.cacheLookup {
		if o.cacheHit {
			s.CacheHits++
		} else {
			s.CacheMisses++
		}
	}

	m := s.Methods[o.method]
	m.Usage++
	m.AvgLatencyMs += (ms - m.AvgLatencyMs) / float64(m.Usage)
	if o.failed {
		m.Errors++
	}
	s.Methods[o.method] = m
}

func (r *statsRecorder) snapshot() types.CoordinatorStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	out.Methods = make(map[string]types.MethodStats, len(r.stats.Methods))
	for k, v := range r.stats.Methods {
		out.Methods[k] = v
	}
	return out
}

func (r *statsRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.stats.CurrentConcurrent
	r.stats = types.CoordinatorStats{
		CurrentConcurrent: current,
		PeakConcurrent:    current,
		Methods:           make(map[string]types.MethodStats),
	}
}
