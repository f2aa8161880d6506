// Package app wires the search stack for one process: stores, capture
// service client, embedder, backend adapter, executor, result cache and
// searcher. Callers own the App and must Close it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/internal/cache"
	"github.com/dshills/pensieve-search/internal/config"
	"github.com/dshills/pensieve-search/internal/embedder"
	"github.com/dshills/pensieve-search/internal/executor"
	"github.com/dshills/pensieve-search/internal/pensieve"
	"github.com/dshills/pensieve-search/internal/searcher"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/internal/telemetry"
)

const defaultProbeTimeout = 5 * time.Second

// App is the process-scoped set of search components
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Backend  *backend.Adapter
	Executor *executor.Executor
	Searcher *searcher.Searcher
	Embedder embedder.Embedder

	cacheStore *cache.MemoryStore
	closers    []func() error
	flush      func()
}

// New builds every component from cfg. Optional stores that cannot be
// opened are logged and skipped; New fails only when no capture source
// at all is usable.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	a.flush = telemetry.Init(telemetry.Config{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
	}, logger)

	opts := backend.Options{
		MaxVectorCandidates: cfg.MaxVectorCandidates,
		Logger:              logger.With().Str("component", "backend").Logger(),
	}

	if cfg.PensieveURL != "" {
		client, err := pensieve.NewClient(pensieve.Options{
			BaseURL: cfg.PensieveURL,
			Logger:  logger.With().Str("component", "pensieve").Logger(),
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		opts.Service = client
	}

	if cfg.FallbackDBPath != "" {
		store, err := storage.OpenSQLite(ctx, cfg.FallbackDBPath, storage.SQLiteOptions{ReadOnly: true})
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.FallbackDBPath).Msg("local capture database unavailable, running without fallback")
		} else {
			a.closers = append(a.closers, store.Close)
			opts.Fallback = store
		}
	}

	if cfg.HasPostgres() {
		pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL, storage.PostgresOptions{})
		if err != nil {
			logger.Warn().Err(err).Msg("postgres unavailable, vector search will scan locally")
		} else {
			a.closers = append(a.closers, pg.Close)
			opts.Native = pg
		}
	}

	if opts.Service == nil && opts.Fallback == nil && opts.Native == nil {
		_ = a.Close()
		return nil, errors.New("app: no capture service or store is reachable")
	}

	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	adapter, err := backend.New(probeCtx, opts)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Backend = adapter

	emb, err := embedder.New(embedder.Config{
		Provider:  cfg.EmbeddingProvider,
		APIKey:    cfg.OpenAIAPIKey,
		Model:     cfg.EmbeddingModel,
		BaseURL:   cfg.EmbeddingBaseURL,
		Dimension: adapter.Capabilities().VectorDimensions,
		CacheSize: cfg.EmbeddingCache,
	})
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.EmbeddingProvider).Msg("embedding provider unavailable, vector search disabled")
	} else if emb != nil {
		a.Embedder = emb
		a.closers = append(a.closers, emb.Close)
	}

	a.Executor = executor.New(executor.Options{
		Backend:  adapter,
		Embedder: a.Embedder,
		Logger:   logger.With().Str("component", "executor").Logger(),
	})

	a.cacheStore, err = cache.NewMemoryStore(cfg.CacheSize)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("result cache: %w", err)
	}
	resultCache, err := cache.New(cache.Options{
		Store:  a.cacheStore,
		Logger: logger.With().Str("component", "cache").Logger(),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var onFailure func(string, error)
	if cfg.HasSentry() {
		onFailure = telemetry.SearchFailure
	}
	a.Searcher, err = searcher.New(searcher.Options{
		Executor:              a.Executor,
		Cache:                 resultCache,
		MaxConcurrentSearches: cfg.MaxConcurrentSearches,
		MaxConcurrentStreams:  cfg.MaxConcurrentStreams,
		HistorySize:           cfg.HistorySize,
		Logger:                logger.With().Str("component", "searcher").Logger(),
		OnFailure:             onFailure,
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

// Close releases stores and the embedder and flushes error reports
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.flush != nil {
		a.flush()
		a.flush = nil
	}
	return errors.Join(errs...)
}

// ResetForTesting clears statistics and cached results
func (a *App) ResetForTesting() {
	if a.Searcher != nil {
		a.Searcher.ResetStats()
	}
	if a.cacheStore != nil {
		a.cacheStore.Purge()
	}
}
