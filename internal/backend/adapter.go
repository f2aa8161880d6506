package backend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/pensieve-search/internal/pensieve"
	"github.com/dshills/pensieve-search/internal/scorer"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

var (
	// ErrBackendUnavailable is returned when the capture service cannot
	// answer; callers recover by using the fallback store
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrVectorSearchDisabled is returned by QueryVector when the backend
	// does not have vector search enabled
	ErrVectorSearchDisabled = errors.New("vector search disabled")
	// ErrFallbackUnavailable is returned when no local store is configured
	ErrFallbackUnavailable = errors.New("fallback store not configured")
)

// Service mode names
const (
	keywordMode = "text"
)

// Defaults
const (
	DefaultMaxVectorCandidates = 2000
	DefaultMetadataConcurrency = 8
)

// Service is the capture service capability the adapter consumes
type Service interface {
	Health(ctx context.Context) error
	Config(ctx context.Context) (*pensieve.ServiceConfig, error)
	QueryByText(ctx context.Context, text, mode string, limit int) ([]pensieve.Record, error)
	GetMetadata(ctx context.Context, id int64) (map[string]string, error)
}

// NativeStore is a store that ranks embeddings itself (pgvector)
type NativeStore interface {
	storage.Store
	storage.VectorStore
}

// Options configures an Adapter
type Options struct {
	// Service is the capture service; nil means it is never reachable
	Service Service
	// Fallback is the local capture database
	Fallback storage.Store
	// Native, when set and pgvector is present, answers vector queries
	Native NativeStore

	MaxVectorCandidates int
	MetadataConcurrency int

	Logger zerolog.Logger
	Now    func() time.Time
}

// Adapter hides which storage tier is active from the rest of the
// system. Capabilities are detected once at construction.
type Adapter struct {
	service  Service
	fallback storage.Store
	native   NativeStore

	maxCandidates int
	concurrency   int
	logger        zerolog.Logger
	now           func() time.Time

	mu   sync.RWMutex
	caps types.BackendCapabilities
}

// New builds an adapter and detects backend capabilities
func New(ctx context.Context, opts Options) (*Adapter, error) {
	if opts.Service == nil && opts.Fallback == nil && opts.Native == nil {
		return nil, errors.New("backend: no service or store configured")
	}

	a := &Adapter{
		service:       opts.Service,
		fallback:      opts.Fallback,
		native:        opts.Native,
		maxCandidates: opts.MaxVectorCandidates,
		concurrency:   opts.MetadataConcurrency,
		logger:        opts.Logger,
		now:           opts.Now,
	}
	if a.maxCandidates <= 0 {
		a.maxCandidates = DefaultMaxVectorCandidates
	}
	if a.concurrency <= 0 {
		a.concurrency = DefaultMetadataConcurrency
	}
	if a.now == nil {
		a.now = time.Now
	}

	a.caps = a.DetectCapabilities(ctx)
	return a, nil
}

// Capabilities returns the capabilities detected at construction
func (a *Adapter) Capabilities() types.BackendCapabilities {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.caps
}

// HasFallback reports whether a local store is configured
func (a *Adapter) HasFallback() bool {
	return a.fallback != nil
}

// QueryKeyword runs a keyword query against the capture service. An empty
// answer is retried once without a mode. Service failures are returned
// wrapped in ErrBackendUnavailable.
func (a *Adapter) QueryKeyword(ctx context.Context, text string, limit int, filter *storage.Filter) ([]types.RawRecord, error) {
	if a.service == nil {
		return nil, fmt.Errorf("%w: no capture service configured", ErrBackendUnavailable)
	}

	recs, err := a.service.QueryByText(ctx, text, keywordMode, limit)
	if err != nil {
		return nil, a.unavailable("keyword query", err)
	}
	if len(recs) == 0 {
		a.logger.Debug().Str("text", text).Msg("keyword query empty, retrying without mode")
		recs, err = a.service.QueryByText(ctx, text, "", limit)
		if err != nil {
			return nil, a.unavailable("plain query", err)
		}
	}

	entities := make([]storage.Entity, len(recs))
	for i, r := range recs {
		entities[i] = storage.Entity{ID: r.ID, Filepath: r.Filepath, CreatedAt: r.CreatedAt}
	}

	out, err := a.hydrate(ctx, entities, types.SourcePensieve, false)
	if err != nil {
		return nil, err
	}
	return filterRecords(out, filter, limit), nil
}

// QueryVector ranks records by cosine similarity to vector, dropping
// those scoring below threshold. Scores are remapped to [0,1].
func (a *Adapter) QueryVector(ctx context.Context, vector []float32, threshold float64, limit int, filter *storage.Filter) ([]types.RawRecord, error) {
	caps := a.Capabilities()
	if !caps.VectorSearchEnabled {
		return nil, ErrVectorSearchDisabled
	}

	if a.native != nil && caps.PgvectorAvailable {
		return a.queryVectorNative(ctx, vector, threshold, limit, filter)
	}
	return a.queryVectorScan(ctx, vector, threshold, limit, filter)
}

func (a *Adapter) queryVectorNative(ctx context.Context, vector []float32, threshold float64, limit int, filter *storage.Filter) ([]types.RawRecord, error) {
	hits, err := a.native.SearchVector(ctx, vector, threshold, limit, filter)
	if err != nil {
		return nil, a.unavailable("native vector query", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.Entity.ID
	}
	meta, err := a.native.ListMetadata(ctx, ids)
	if err != nil {
		return nil, a.unavailable("native metadata", err)
	}

	out := make([]types.RawRecord, 0, len(hits))
	for _, h := range hits {
		rec, _ := buildRecord(h.Entity.ID, h.Entity.Filepath, h.Entity.CreatedAt, types.SourcePostgres, meta[h.Entity.ID], false)
		score := h.Score
		rec.Similarity = &score
		out = append(out, rec)
	}
	return out, nil
}

// queryVectorScan compares vector against every candidate's stored
// embedding in process
func (a *Adapter) queryVectorScan(ctx context.Context, vector []float32, threshold float64, limit int, filter *storage.Filter) ([]types.RawRecord, error) {
	if a.fallback == nil {
		return nil, fmt.Errorf("%w: no candidate source for vector scan", ErrBackendUnavailable)
	}

	candidates, err := a.fallback.RecentEntities(ctx, a.maxCandidates, filter)
	if err != nil {
		return nil, a.unavailable("vector candidates", err)
	}

	source := types.SourceFallback
	if a.service != nil && a.Capabilities().Healthy {
		source = types.SourcePensieve
	}
	recs, err := a.hydrate(ctx, candidates, source, true)
	if err != nil {
		return nil, err
	}

	dims := a.Capabilities().VectorDimensions
	var out []types.RawRecord
	for _, rec := range recs {
		if dims > 0 && len(rec.Embedding) != dims {
			a.logger.Warn().Int64("entity_id", rec.EntityID).Int("dims", len(rec.Embedding)).Int("want", dims).
				Msg("skipping record with mismatched embedding dimensions")
			continue
		}
		if len(rec.Embedding) != len(vector) {
			a.logger.Warn().Int64("entity_id", rec.EntityID).Int("dims", len(rec.Embedding)).Int("query_dims", len(vector)).
				Msg("skipping record with embedding of different length than query")
			continue
		}
		score := scorer.VectorRelevance(vector, rec.Embedding)
		if score < threshold {
			continue
		}
		rec.Similarity = &score
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Similarity > *out[j].Similarity
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return filterRecords(out, filter, 0), nil
}

// QueryFallback queries the local store directly. Records have the same
// shape as QueryKeyword's.
func (a *Adapter) QueryFallback(ctx context.Context, text string, limit int, filter *storage.Filter) ([]types.RawRecord, error) {
	if a.fallback == nil {
		return nil, ErrFallbackUnavailable
	}

	entities, err := a.fallback.SearchText(ctx, text, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("fallback query: %w", err)
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	meta, err := a.fallback.ListMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fallback metadata: %w", err)
	}

	out := make([]types.RawRecord, 0, len(entities))
	for _, e := range entities {
		rec, _ := buildRecord(e.ID, e.Filepath, e.CreatedAt, types.SourceFallback, meta[e.ID], false)
		out = append(out, rec)
	}
	return filterRecords(out, filter, limit), nil
}

// hydrate fetches metadata for entities and builds records. The service
// is asked per record when reachable, the fallback store in one batch
// otherwise. Per-record failures are logged and the record skipped.
func (a *Adapter) hydrate(ctx context.Context, entities []storage.Entity, source string, withEmbedding bool) ([]types.RawRecord, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	if source != types.SourcePensieve {
		return a.hydrateBatch(ctx, entities, source, withEmbedding)
	}

	records := make([]*types.RawRecord, len(entities))
	var (
		mu        sync.Mutex
		transport int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, e := range entities {
		g.Go(func() error {
			meta, err := a.service.GetMetadata(gctx, e.ID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				var apiErr *pensieve.APIError
				if !errors.As(err, &apiErr) {
					mu.Lock()
					transport++
					mu.Unlock()
				}
				a.logger.Warn().Err(err).Int64("entity_id", e.ID).Msg("skipping record: metadata fetch failed")
				return nil
			}
			rec, err := buildRecord(e.ID, e.Filepath, e.CreatedAt, source, meta, withEmbedding)
			if err != nil {
				a.logger.Warn().Err(err).Int64("entity_id", e.ID).Msg("skipping record: malformed stored embedding")
				return nil
			}
			records[i] = &rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if transport == len(entities) {
		return nil, fmt.Errorf("%w: every metadata fetch failed", ErrBackendUnavailable)
	}

	out := make([]types.RawRecord, 0, len(records))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (a *Adapter) hydrateBatch(ctx context.Context, entities []storage.Entity, source string, withEmbedding bool) ([]types.RawRecord, error) {
	ids := make([]int64, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
	}
	meta, err := a.fallback.ListMetadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fallback metadata: %w", err)
	}

	out := make([]types.RawRecord, 0, len(entities))
	for _, e := range entities {
		rec, err := buildRecord(e.ID, e.Filepath, e.CreatedAt, source, meta[e.ID], withEmbedding)
		if err != nil {
			a.logger.Debug().Err(err).Int64("entity_id", e.ID).Msg("skipping record: malformed stored embedding")
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (a *Adapter) unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	a.logger.Warn().Err(err).Str("op", op).Msg("capture backend unavailable")
	return fmt.Errorf("%w: %s: %w", ErrBackendUnavailable, op, err)
}

// filterRecords applies filter and truncates to limit (0 = no limit)
func filterRecords(recs []types.RawRecord, filter *storage.Filter, limit int) []types.RawRecord {
	if filter.IsEmpty() && (limit <= 0 || len(recs) <= limit) {
		return recs
	}
	out := recs[:0]
	for _, r := range recs {
		if matchesFilter(r, filter) {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
