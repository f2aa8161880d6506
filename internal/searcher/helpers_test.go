package searcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/internal/cache"
	"github.com/dshills/pensieve-search/internal/embedder"
	"github.com/dshills/pensieve-search/internal/executor"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeBackend serves canned records and counts calls
type fakeBackend struct {
	mu   sync.Mutex
	caps types.BackendCapabilities

	keyword    []types.RawRecord
	keywordErr error
	vector     []types.RawRecord
	vectorErr  error
	fallback   []types.RawRecord
	fbErr      error

	// blockVector makes QueryVector wait for its context to end
	blockVector bool

	calls map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		caps:  types.DefaultCapabilities(),
		calls: make(map[string]int),
	}
}

func (f *fakeBackend) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeBackend) inc(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeBackend) Capabilities() types.BackendCapabilities { return f.caps }

func (f *fakeBackend) QueryKeyword(_ context.Context, _ string, _ int, _ *storage.Filter) ([]types.RawRecord, error) {
	f.inc("keyword")
	return f.keyword, f.keywordErr
}

func (f *fakeBackend) QueryVector(ctx context.Context, _ []float32, _ float64, _ int, _ *storage.Filter) ([]types.RawRecord, error) {
	f.inc("vector")
	if f.blockVector {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.vector, f.vectorErr
}

func (f *fakeBackend) QueryFallback(_ context.Context, _ string, _ int, _ *storage.Filter) ([]types.RawRecord, error) {
	f.inc("fallback")
	return f.fallback, f.fbErr
}

func unavailable() error {
	return fmt.Errorf("%w: connection refused", backend.ErrBackendUnavailable)
}

type failingEmbedder struct{}

func (failingEmbedder) GenerateEmbedding(context.Context, embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	return nil, errors.New("model offline")
}

func (failingEmbedder) GenerateBatch(context.Context, embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	return nil, errors.New("model offline")
}

func (failingEmbedder) Dimension() int   { return embedder.LocalDimension }
func (failingEmbedder) Provider() string { return "fake" }
func (failingEmbedder) Model() string    { return "fake" }
func (failingEmbedder) Close() error     { return nil }

func rec(id int64, title string, offset time.Duration) types.RawRecord {
	return types.RawRecord{
		EntityID:    id,
		Filepath:    fmt.Sprintf("/screens/%d.png", id),
		CreatedAt:   baseTime.Add(offset),
		WindowTitle: title,
		Source:      types.SourcePensieve,
	}
}

func withSimilarity(r types.RawRecord, v float64) types.RawRecord {
	r.Similarity = &v
	return r
}

type setup struct {
	backend  *fakeBackend
	embedder embedder.Embedder
	cache    bool
	opts     Options
}

func newTestSearcher(t *testing.T, st setup) *Searcher {
	t.Helper()
	exec := executor.New(executor.Options{
		Backend:  st.backend,
		Embedder: st.embedder,
		Logger:   zerolog.Nop(),
	})

	opts := st.opts
	opts.Executor = exec
	opts.Logger = zerolog.Nop()
	if st.cache {
		rc, err := cache.New(cache.Options{Logger: zerolog.Nop()})
		require.NoError(t, err)
		opts.Cache = rc
	}

	s, err := New(opts)
	require.NoError(t, err)
	return s
}

// enableVectors turns on vector search with a local embedder
func enableVectors(b *fakeBackend) embedder.Embedder {
	b.caps.VectorSearchEnabled = true
	return embedder.NewLocalProvider(64, nil)
}

func ids(results []types.UnifiedResult) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.EntityID
	}
	return out
}

func textQuery(text string) types.Query {
	q := types.NewQuery(text)
	q.Modes = []types.SearchMode{types.ModeText}
	return q
}
