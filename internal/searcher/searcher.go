package searcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/internal/cache"
	"github.com/dshills/pensieve-search/internal/executor"
	"github.com/dshills/pensieve-search/pkg/types"
)

// Admission and history defaults
const (
	DefaultMaxConcurrentSearches = 10
	DefaultMaxConcurrentStreams  = 3
	DefaultHistorySize           = 1000
)

// Selection thresholds
const (
	StreamingResultThreshold = 100
	LongQueryWords           = 5
	HybridThresholdCeiling   = 0.8
)

var errServedFromFallback = errors.New("capture service unavailable, served from fallback store")

// Options configures a Searcher
type Options struct {
	Executor *executor.Executor
	// Cache may be nil to disable result caching
	Cache *cache.ResultCache

	MaxConcurrentSearches int
	MaxConcurrentStreams  int
	HistorySize           int

	Logger zerolog.Logger
	// OnFailure is called for operator-visible failures: every method
	// failed, a search timed out, or the backend was unavailable.
	OnFailure func(searchID string, err error)
}

// Searcher routes queries to search methods and unifies their results.
// It is safe for concurrent use.
type Searcher struct {
	exec  *executor.Executor
	cache *cache.ResultCache

	searchGate *semaphore.Weighted
	streamGate *semaphore.Weighted

	stats     *statsRecorder
	history   *history
	logger    zerolog.Logger
	onFailure func(string, error)
	now       func() time.Time
}

// New creates a Searcher
func New(opts Options) (*Searcher, error) {
	if opts.Executor == nil {
		return nil, errors.New("searcher: executor is required")
	}
	if opts.MaxConcurrentSearches <= 0 {
		opts.MaxConcurrentSearches = DefaultMaxConcurrentSearches
	}
	if opts.MaxConcurrentStreams <= 0 {
		opts.MaxConcurrentStreams = DefaultMaxConcurrentStreams
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}

	return &Searcher{
		exec:       opts.Executor,
		cache:      opts.Cache,
		searchGate: semaphore.NewWeighted(int64(opts.MaxConcurrentSearches)),
		streamGate: semaphore.NewWeighted(int64(opts.MaxConcurrentStreams)),
		stats:      newStatsRecorder(),
		history:    newHistory(opts.HistorySize),
		logger:     opts.Logger,
		onFailure:  opts.OnFailure,
		now:        time.Now,
	}, nil
}

// Capabilities returns the backend capabilities searches run against
func (s *Searcher) Capabilities() types.BackendCapabilities {
	return s.exec.Capabilities()
}

// Search runs one query and returns ranked, deduplicated results. It
// fails only for an invalid query or when ctx ends while waiting for
// admission; backend failures yield an empty list and are recorded in
// the statistics.
func (s *Searcher) Search(ctx context.Context, q types.Query) ([]types.UnifiedResult, error) {
	q = q.WithDefaults()
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if err := s.searchGate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("search admission: %w", err)
	}
	defer s.searchGate.Release(1)
	s.stats.enter()
	defer s.stats.leave()

	searchID := uuid.NewString()
	logger := s.logger.With().Str("search_id", searchID).Logger()
	start := s.now()
	s.history.add(q.Text)

	cacheable := s.cache != nil && q.EnableCaching && !q.UseStreaming
	var fp string
	if cacheable {
		fp = cache.Fingerprint(q)
		if cached, ok := s.cache.Get(ctx, fp); ok {
			for i := range cached {
				cached[i].CacheHit = true
			}
			s.stats.record(outcome{
				method:      methodCache,
				latency:     s.now().Sub(start),
				cacheLookup: true,
				cacheHit:    true,
			})
			logger.Debug().Int("results", len(cached)).Msg("cache hit")
			return cached, nil
		}
	}

	method := s.DetermineOptimalMethod(q)
	logger.Debug().Str("method", string(method)).Str("query", q.Text).Msg("executing search")

	execCtx, cancel := context.WithTimeout(ctx, q.Timeout)
	defer cancel()
	res, err := s.execute(execCtx, method, q, logger)
	usedFallback := res.Fallback
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	out := outcome{
		method:      string(method),
		cacheLookup: cacheable,
		fallback:    usedFallback,
		timedOut:    timedOut,
		failed:      err != nil || timedOut || usedFallback || res.Degraded != nil,
	}

	if timedOut {
		logger.Warn().Dur("timeout", q.Timeout).Msg("search timed out, returning partial results")
		s.reportFailure(searchID, fmt.Errorf("search timed out after %s", q.Timeout))
	}
	if usedFallback {
		s.reportFailure(searchID, errServedFromFallback)
	} else if res.Degraded != nil && !timedOut {
		s.reportFailure(searchID, res.Degraded)
	}
	if err != nil {
		out.latency = s.now().Sub(start)
		s.stats.record(out)
		if !timedOut {
			logger.Error().Err(err).Str("method", string(method)).Msg("all search methods failed")
			s.reportFailure(searchID, err)
		}
		return []types.UnifiedResult{}, nil
	}

	results := rank(q, res.Lists)

	if cacheable && !timedOut && len(results) > 0 {
		s.cache.Put(ctx, fp, results, q.CacheTTL)
	}

	out.latency = s.now().Sub(start)
	s.stats.record(out)
	logger.Debug().
		Int("results", len(results)).
		Dur("elapsed", out.latency).
		Bool("fallback", usedFallback).
		Msg("search complete")
	return results, nil
}

// execute runs method, downgrading vector to semantic when no embedding
// is available and switching to the fallback store when the capture
// service is unavailable.
func (s *Searcher) execute(ctx context.Context, method types.SearchMode, q types.Query, logger zerolog.Logger) (executor.Outcome, error) {
	o, err := s.exec.Run(ctx, method, q)
	if err == nil {
		return o, nil
	}

	if method == types.ModeVector && (errors.Is(err, executor.ErrEmbeddingUnavailable) || errors.Is(err, backend.ErrVectorSearchDisabled)) {
		logger.Info().Err(err).Msg("vector search unavailable, using semantic approximation")
		o, err = s.exec.Run(ctx, types.ModeSemantic, q)
		if err == nil {
			return o, nil
		}
	}

	if !errors.Is(err, backend.ErrBackendUnavailable) || ctx.Err() != nil {
		return executor.Outcome{}, err
	}

	logger.Warn().Err(err).Msg("backend unavailable, using fallback store")
	fb, fbErr := s.exec.Run(ctx, types.ModeFallback, q)
	if fbErr != nil {
		return executor.Outcome{}, errors.Join(err, fbErr)
	}
	return fb, nil
}

// DetermineOptimalMethod picks the method for q. The first explicitly
// requested method whose prerequisites hold wins; without explicit modes
// the first matching rule applies: large result sets stream, long
// queries use vectors when available, permissive thresholds use hybrid,
// and everything else is text.
func (s *Searcher) DetermineOptimalMethod(q types.Query) types.SearchMode {
	if len(q.Modes) > 0 {
		for _, m := range q.Modes {
			if s.satisfiable(m) {
				return m
			}
		}
		return types.ModeSemantic
	}

	switch {
	case q.UseStreaming || q.MaxResults > StreamingResultThreshold:
		return types.ModeStreaming
	case q.WordCount() > LongQueryWords && s.exec.VectorAvailable():
		return types.ModeVector
	case q.SimilarityThreshold < HybridThresholdCeiling:
		return types.ModeHybrid
	default:
		return types.ModeText
	}
}

func (s *Searcher) satisfiable(m types.SearchMode) bool {
	switch m {
	case types.ModeVector:
		return s.exec.VectorAvailable()
	case types.ModeText, types.ModeSemantic, types.ModeHybrid, types.ModeStreaming:
		return true
	default:
		return false
	}
}

func (s *Searcher) reportFailure(searchID string, err error) {
	if s.onFailure != nil {
		s.onFailure(searchID, err)
	}
}

// Stats returns a snapshot of the coordinator counters
func (s *Searcher) Stats() types.CoordinatorStats {
	return s.stats.snapshot()
}

// ResetStats zeroes every counter except the current concurrency
func (s *Searcher) ResetStats() {
	s.stats.reset()
}
