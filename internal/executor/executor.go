// Package executor runs one named search method end to end and returns
// method-tagged raw records, before unification and merging.
//
// Score floors are per method: text keeps anything scoring at least
// TextScoreFloor, semantic and vector use the query's similarity
// threshold.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/internal/embedder"
	"github.com/dshills/pensieve-search/internal/scorer"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

// ErrEmbeddingUnavailable is returned when no embedding can be produced
// for the query text
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// ErrUnknownMode is returned by Execute for modes it cannot run
var ErrUnknownMode = errors.New("unknown search mode")

// TextScoreFloor is the minimum keyword relevance kept by text search
const TextScoreFloor = 0.1

// candidateFactor widens backend fetches so scoring has room to drop
const candidateFactor = 2

// Backend is the adapter capability the executor drives
type Backend interface {
	Capabilities() types.BackendCapabilities
	QueryKeyword(ctx context.Context, text string, limit int, filter *storage.Filter) ([]types.RawRecord, error)
	QueryVector(ctx context.Context, vector []float32, threshold float64, limit int, filter *storage.Filter) ([]types.RawRecord, error)
	QueryFallback(ctx context.Context, text string, limit int, filter *storage.Filter) ([]types.RawRecord, error)
}

// Options configures an Executor
type Options struct {
	Backend Backend
	// Embedder may be nil; vector search is then unavailable
	Embedder embedder.Embedder
	Logger   zerolog.Logger
}

// Executor runs search methods against a Backend
type Executor struct {
	backend  Backend
	embedder embedder.Embedder
	logger   zerolog.Logger
}

// New creates an Executor
func New(opts Options) *Executor {
	return &Executor{
		backend:  opts.Backend,
		embedder: opts.Embedder,
		logger:   opts.Logger,
	}
}

// VectorAvailable reports whether vector search can run: the backend has
// it enabled and an embedder is configured
func (e *Executor) VectorAvailable() bool {
	return e.embedder != nil && e.backend.Capabilities().VectorSearchEnabled
}

// Capabilities exposes the backend's detected capabilities
func (e *Executor) Capabilities() types.BackendCapabilities {
	return e.backend.Capabilities()
}

// ExecuteText scores keyword hits by keyword relevance
func (e *Executor) ExecuteText(ctx context.Context, q types.Query) ([]types.RawRecord, error) {
	recs, err := e.backend.QueryKeyword(ctx, q.Text, fetchLimit(q), backend.FilterFor(q))
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	return scoreKeyword(q, recs, types.ModeText), nil
}

// ExecuteSemanticApprox re-scores keyword hits with the word-overlap
// approximation and keeps those at or above the query threshold
func (e *Executor) ExecuteSemanticApprox(ctx context.Context, q types.Query) ([]types.RawRecord, error) {
	recs, err := e.backend.QueryKeyword(ctx, q.Text, fetchLimit(q), backend.FilterFor(q))
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}

	out := make([]types.RawRecord, 0, len(recs))
	for _, r := range recs {
		score := scorer.ApproximateSemanticRelevance(q.Text, r.WindowTitle, r.OCRText, r.Tasks)
		if score < q.SimilarityThreshold {
			continue
		}
		out = append(out, r.ScoredCopy(types.ModeSemantic, score))
	}
	return out, nil
}

// ExecuteVector embeds the query text and ranks by cosine similarity
func (e *Executor) ExecuteVector(ctx context.Context, q types.Query) ([]types.RawRecord, error) {
	if e.embedder == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", ErrEmbeddingUnavailable)
	}

	emb, err := e.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: q.Text})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}

	recs, err := e.backend.QueryVector(ctx, emb.Vector, q.SimilarityThreshold, fetchLimit(q), backend.FilterFor(q))
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	out := make([]types.RawRecord, 0, len(recs))
	for _, r := range recs {
		var score float64
		if r.Similarity != nil {
			score = *r.Similarity
		}
		out = append(out, r.ScoredCopy(types.ModeVector, score))
	}
	return out, nil
}

// ExecuteFallback queries the local store and scores like text search
func (e *Executor) ExecuteFallback(ctx context.Context, q types.Query) ([]types.RawRecord, error) {
	recs, err := e.backend.QueryFallback(ctx, q.Text, fetchLimit(q), backend.FilterFor(q))
	if err != nil {
		return nil, fmt.Errorf("fallback search: %w", err)
	}
	return scoreKeyword(q, recs, types.ModeFallback), nil
}

// Outcome is what one method run produced
type Outcome struct {
	// Lists holds one list per sub-method; only hybrid has more than one
	Lists [][]types.RawRecord
	// Fallback is set when keyword coverage came from the fallback store
	Fallback bool
	// Degraded is the error of a hybrid half that failed while the other
	// half succeeded
	Degraded error
}

// Run runs mode. Streaming runs its underlying method without batching.
func (e *Executor) Run(ctx context.Context, mode types.SearchMode, q types.Query) (Outcome, error) {
	var (
		recs []types.RawRecord
		err  error
	)
	switch mode {
	case types.ModeText:
		recs, err = e.ExecuteText(ctx, q)
	case types.ModeSemantic:
		recs, err = e.ExecuteSemanticApprox(ctx, q)
	case types.ModeVector:
		recs, err = e.ExecuteVector(ctx, q)
	case types.ModeHybrid:
		return e.runHybrid(ctx, q)
	case types.ModeStreaming:
		return e.Run(ctx, e.StreamingBase(), q)
	case types.ModeFallback:
		recs, err = e.ExecuteFallback(ctx, q)
		if err == nil {
			return Outcome{Lists: [][]types.RawRecord{recs}, Fallback: true}, nil
		}
	default:
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Lists: [][]types.RawRecord{recs}}, nil
}

// Execute runs mode and returns one list per sub-method. Every mode but
// hybrid yields a single list.
func (e *Executor) Execute(ctx context.Context, mode types.SearchMode, q types.Query) ([][]types.RawRecord, error) {
	o, err := e.Run(ctx, mode, q)
	if err != nil {
		return nil, err
	}
	return o.Lists, nil
}

// StreamingBase is the method whose result set streaming slices
func (e *Executor) StreamingBase() types.SearchMode {
	if e.VectorAvailable() {
		return types.ModeHybrid
	}
	return types.ModeText
}

func scoreKeyword(q types.Query, recs []types.RawRecord, method types.SearchMode) []types.RawRecord {
	out := make([]types.RawRecord, 0, len(recs))
	for _, r := range recs {
		score := scorer.KeywordRelevance(q.Text, r.WindowTitle, r.OCRText, r.Tasks)
		if score < TextScoreFloor {
			continue
		}
		out = append(out, r.ScoredCopy(method, score))
	}
	return out
}

func fetchLimit(q types.Query) int {
	return q.MaxResults * candidateFactor
}

// Flatten concatenates lists and orders records by score, then capture
// time, then entity id
func Flatten(lists [][]types.RawRecord) []types.RawRecord {
	var out []types.RawRecord
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out
}

// Distinct flattens lists and keeps the best-ranked record per entity
func Distinct(lists [][]types.RawRecord) []types.RawRecord {
	flat := Flatten(lists)
	seen := make(map[int64]bool, len(flat))
	out := flat[:0]
	for _, r := range flat {
		if seen[r.EntityID] {
			continue
		}
		seen[r.EntityID] = true
		out = append(out, r)
	}
	return out
}
