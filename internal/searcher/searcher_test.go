package searcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/pkg/types"
)

func TestNewRequiresExecutor(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSearchEndToEnd(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{
		rec(1, "python coding notes - Editor", 0),
		rec(2, "Meeting Notes", time.Minute),
		rec(3, "golang coding tutorial", 2*time.Minute),
	}
	s := newTestSearcher(t, setup{backend: b})

	q := textQuery("python coding")
	q.MaxResults = 5
	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, []int64{1, 3}, ids(results))
	assert.GreaterOrEqual(t, results[0].RelevanceScore, 0.5)
	assert.InDelta(t, 0.7, results[0].RelevanceScore, 1e-9)
	assert.Equal(t, "text", results[0].SearchMethod)
	assert.Equal(t, baseTime, results[0].Timestamp)
	assert.Contains(t, results[0].Highlights, "Title: ...python coding notes - Editor...")
	assert.Equal(t, types.SourcePensieve, results[0].SourceInfo["source"])
	assert.False(t, results[0].CacheHit)
}

func TestSearchInvalidQuery(t *testing.T) {
	s := newTestSearcher(t, setup{backend: newFakeBackend()})

	_, err := s.Search(context.Background(), types.NewQuery("   "))
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	q := types.NewQuery("python")
	q.MaxResults = 0
	_, err = s.Search(context.Background(), q)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	q = types.NewQuery("python")
	q.SimilarityThreshold = 1.5
	_, err = s.Search(context.Background(), q)
	assert.ErrorIs(t, err, types.ErrInvalidQuery)

	assert.Zero(t, s.Stats().TotalSearches)
}

func TestSearchTruncatesToMaxResults(t *testing.T) {
	b := newFakeBackend()
	for i := 1; i <= 8; i++ {
		b.keyword = append(b.keyword, rec(int64(i), "python notes", time.Duration(i)*time.Minute))
	}
	s := newTestSearcher(t, setup{backend: b})

	q := textQuery("python")
	q.MaxResults = 3
	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids(results))
}

func TestSearchStatsConsistency(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{rec(1, "python notes", 0)}
	s := newTestSearcher(t, setup{backend: b})

	queries := []types.Query{
		textQuery("python"),
		types.NewQuery("python notes"),
		types.NewQuery("notes"),
		textQuery("python notes"),
	}
	strict := types.NewQuery("python")
	strict.SimilarityThreshold = 0.9
	queries = append(queries, strict)

	for _, q := range queries {
		_, err := s.Search(context.Background(), q)
		require.NoError(t, err)
	}

	stats := s.Stats()
	assert.Equal(t, int64(len(queries)), stats.TotalSearches)
	var sum int64
	for _, n := range stats.SearchMethodUsage() {
		sum += n
	}
	assert.Equal(t, int64(len(queries)), sum)
	assert.Equal(t, int64(2), stats.HybridSearches)
	assert.Equal(t, int64(0), stats.CurrentConcurrent)
	for name, m := range stats.Methods {
		assert.Zero(t, m.Errors, name)
	}
}

func TestSearchCacheHit(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{rec(1, "python notes", 0), rec(2, "python tutorial", time.Minute)}
	s := newTestSearcher(t, setup{backend: b, cache: true})
	ctx := context.Background()

	first, err := s.Search(ctx, textQuery("python"))
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, b.count("keyword"))

	second, err := s.Search(ctx, textQuery("python"))
	require.NoError(t, err)
	assert.Equal(t, ids(first), ids(second))
	for _, r := range second {
		assert.True(t, r.CacheHit)
	}
	assert.Equal(t, 1, b.count("keyword"), "cache hit skips the backend")

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.Equal(t, int64(1), stats.Methods[methodCache].Usage)
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.InDelta(t, 0.5, stats.CacheHitRatio(), 1e-9)
}

func TestSearchSkipsCacheWhenDisabled(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{rec(1, "python notes", 0)}
	s := newTestSearcher(t, setup{backend: b, cache: true})

	q := textQuery("python")
	q.EnableCaching = false
	for i := 0; i < 2; i++ {
		_, err := s.Search(context.Background(), q)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, b.count("keyword"))
	assert.Zero(t, s.Stats().CacheHits+s.Stats().CacheMisses)
}

func TestSearchDoesNotCacheEmptyResults(t *testing.T) {
	b := newFakeBackend()
	s := newTestSearcher(t, setup{backend: b, cache: true})

	for i := 0; i < 2; i++ {
		results, err := s.Search(context.Background(), textQuery("python"))
		require.NoError(t, err)
		assert.Empty(t, results)
	}
	assert.Equal(t, 2, b.count("keyword"))
	assert.Equal(t, int64(2), s.Stats().CacheMisses)
}

func TestSearchGracefulDegradation(t *testing.T) {
	b := newFakeBackend()
	b.keywordErr = unavailable()
	b.fallback = []types.RawRecord{rec(9, "python notes", 0)}
	b.fallback[0].Source = types.SourceFallback

	var (
		mu       sync.Mutex
		failures []error
	)
	s := newTestSearcher(t, setup{backend: b, opts: Options{
		OnFailure: func(_ string, err error) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, err)
		},
	}})

	q := types.NewQuery("python")
	require.Equal(t, types.ModeHybrid, s.DetermineOptimalMethod(q))

	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(9), results[0].EntityID)
	assert.Equal(t, "fallback", results[0].SearchMethod)
	assert.Equal(t, types.SourceFallback, results[0].SourceInfo["source"])

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.FallbackSearches)
	assert.Equal(t, int64(1), stats.Methods["hybrid"].Errors)
	assert.Len(t, failures, 1)
	assert.Equal(t, 1, b.count("fallback"))
}

func TestSearchHybridTextHalfFallsBack(t *testing.T) {
	tests := []struct {
		name         string
		fbErr        error
		wantIDs      []int64
		wantFallback int64
	}{
		{name: "fallback store serves text half", wantIDs: []int64{1, 9}, wantFallback: 1},
		{name: "fallback store down", fbErr: unavailable(), wantIDs: []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			emb := enableVectors(b)
			b.keywordErr = unavailable()
			b.vector = []types.RawRecord{withSimilarity(rec(1, "python notes", 0), 0.9)}
			b.fallback = []types.RawRecord{rec(9, "python tutorial", time.Minute)}
			b.fbErr = tt.fbErr

			var (
				mu       sync.Mutex
				failures []error
			)
			s := newTestSearcher(t, setup{backend: b, embedder: emb, opts: Options{
				OnFailure: func(_ string, err error) {
					mu.Lock()
					defer mu.Unlock()
					failures = append(failures, err)
				},
			}})

			q := types.NewQuery("python")
			q.Modes = []types.SearchMode{types.ModeHybrid}
			results, err := s.Search(context.Background(), q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantIDs, ids(results))
			assert.Equal(t, 1, b.count("fallback"))

			stats := s.Stats()
			assert.Equal(t, tt.wantFallback, stats.FallbackSearches)
			assert.Equal(t, int64(1), stats.Methods["hybrid"].Errors)
			assert.Len(t, failures, 1)
		})
	}
}

func TestSearchAllMethodsFail(t *testing.T) {
	b := newFakeBackend()
	b.keywordErr = unavailable()
	b.fbErr = unavailable()
	s := newTestSearcher(t, setup{backend: b, cache: true})

	results, err := s.Search(context.Background(), textQuery("python"))
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TotalSearches)
	assert.Equal(t, int64(1), stats.Methods["text"].Errors)
	assert.InDelta(t, 1.0, stats.Methods["text"].ErrorRate(), 1e-9)
	assert.Zero(t, stats.FallbackSearches)
}

func TestSearchTimeoutReturnsPartialResults(t *testing.T) {
	b := newFakeBackend()
	emb := enableVectors(b)
	b.blockVector = true
	b.keyword = []types.RawRecord{rec(1, "python notes", 0)}
	s := newTestSearcher(t, setup{backend: b, embedder: emb})

	q := types.NewQuery("python")
	q.Modes = []types.SearchMode{types.ModeHybrid}
	q.Timeout = 50 * time.Millisecond

	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(results))

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.TimedOutSearches)
	assert.Equal(t, int64(1), stats.Methods["hybrid"].Errors)
}

func TestSearchHybridMergesLabels(t *testing.T) {
	b := newFakeBackend()
	emb := enableVectors(b)
	b.vector = []types.RawRecord{withSimilarity(rec(1, "python notes", 0), 0.9)}
	b.keyword = []types.RawRecord{rec(1, "python notes", 0), rec(2, "python tutorial", time.Minute)}
	s := newTestSearcher(t, setup{backend: b, embedder: emb})

	q := types.NewQuery("python")
	q.Modes = []types.SearchMode{types.ModeHybrid}
	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0]
	assert.Equal(t, int64(1), top.EntityID)
	assert.Equal(t, "vector+text", top.SearchMethod)
	assert.InDelta(t, 0.9, top.RelevanceScore, 1e-9)
	require.NotNil(t, top.VectorSimilarityScore)
	assert.InDelta(t, 0.9, *top.VectorSimilarityScore, 1e-9)
	assert.InDelta(t, 0.9, top.ConfidenceMetrics["vector"], 1e-9)
	assert.InDelta(t, 0.6, top.ConfidenceMetrics["text"], 1e-9)
	assert.Equal(t, "text", results[1].SearchMethod)
	assert.Equal(t, int64(1), s.Stats().HybridSearches)
}

func TestSearchSemanticClusterForVectorHits(t *testing.T) {
	b := newFakeBackend()
	emb := enableVectors(b)
	hit := withSimilarity(rec(1, "python notes", 0), 0.8)
	hit.Category = "coding"
	b.vector = []types.RawRecord{hit}
	s := newTestSearcher(t, setup{backend: b, embedder: emb})

	q := types.NewQuery("python")
	q.Modes = []types.SearchMode{types.ModeVector}
	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].SemanticCluster)
	assert.Equal(t, "coding", *results[0].SemanticCluster)
	assert.Equal(t, int64(1), s.Stats().VectorSearches)
}

func TestSearchVectorDowngradesWhenEmbeddingFails(t *testing.T) {
	b := newFakeBackend()
	b.caps.VectorSearchEnabled = true
	b.keyword = []types.RawRecord{rec(1, "python", 0)}
	s := newTestSearcher(t, setup{backend: b, embedder: failingEmbedder{}})

	q := types.NewQuery("python")
	q.Modes = []types.SearchMode{types.ModeVector}
	require.Equal(t, types.ModeVector, s.DetermineOptimalMethod(q))

	results, err := s.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "semantic", results[0].SearchMethod)
	assert.Zero(t, b.count("vector"))
}

func TestSearchSimilarActivities(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{
		rec(1, "python notes", 0),
		rec(2, "Python Notes", time.Minute),
		rec(3, "python tutorial", 2*time.Minute),
	}
	s := newTestSearcher(t, setup{backend: b})

	results, err := s.Search(context.Background(), textQuery("python"))
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := make(map[int64]types.UnifiedResult)
	for _, r := range results {
		byID[r.EntityID] = r
	}
	assert.Equal(t, []int64{2}, byID[1].SimilarActivities)
	assert.Equal(t, []int64{1}, byID[2].SimilarActivities)
	assert.Empty(t, byID[3].SimilarActivities)
}

func TestSearchAdmissionCancelled(t *testing.T) {
	b := newFakeBackend()
	s := newTestSearcher(t, setup{backend: b, opts: Options{MaxConcurrentSearches: 1}})

	require.True(t, s.searchGate.TryAcquire(1))
	defer s.searchGate.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Search(ctx, textQuery("python"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, b.count("keyword"))
}

func TestSearchConcurrent(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{rec(1, "python notes", 0)}
	s := newTestSearcher(t, setup{backend: b, cache: true})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Search(context.Background(), textQuery("python"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats := s.Stats()
	assert.Equal(t, int64(n), stats.TotalSearches)
	assert.LessOrEqual(t, stats.PeakConcurrent, int64(DefaultMaxConcurrentSearches))
	assert.Zero(t, stats.CurrentConcurrent)
	assert.Equal(t, int64(n), stats.CacheHits+stats.CacheMisses)
}

func TestResetStats(t *testing.T) {
	b := newFakeBackend()
	b.keyword = []types.RawRecord{rec(1, "python notes", 0)}
	s := newTestSearcher(t, setup{backend: b})

	_, err := s.Search(context.Background(), textQuery("python"))
	require.NoError(t, err)
	require.Equal(t, int64(1), s.Stats().TotalSearches)

	s.ResetStats()
	stats := s.Stats()
	assert.Zero(t, stats.TotalSearches)
	assert.Empty(t, stats.Methods)
	assert.Zero(t, stats.AverageResponseTimeMs)
}

func TestDetermineOptimalMethod(t *testing.T) {
	withVectors := newFakeBackend()
	emb := enableVectors(withVectors)

	tests := []struct {
		name    string
		vectors bool
		mutate  func(*types.Query)
		want    types.SearchMode
	}{
		{"explicit text", false, func(q *types.Query) { q.Modes = []types.SearchMode{types.ModeText} }, types.ModeText},
		{"explicit vector unavailable", false, func(q *types.Query) {
			q.Modes = []types.SearchMode{types.ModeVector}
		}, types.ModeSemantic},
		{"explicit vector then text", false, func(q *types.Query) {
			q.Modes = []types.SearchMode{types.ModeVector, types.ModeText}
		}, types.ModeText},
		{"explicit vector available", true, func(q *types.Query) {
			q.Modes = []types.SearchMode{types.ModeVector}
		}, types.ModeVector},
		{"large result set", true, func(q *types.Query) { q.MaxResults = 101 }, types.ModeStreaming},
		{"streaming flag", false, func(q *types.Query) { q.UseStreaming = true }, types.ModeStreaming},
		{"long query with vectors", true, func(q *types.Query) {
			q.Text = "how did I fix the flaky login test"
		}, types.ModeVector},
		{"long query without vectors", false, func(q *types.Query) {
			q.Text = "how did I fix the flaky login test"
		}, types.ModeHybrid},
		{"default threshold", false, func(*types.Query) {}, types.ModeHybrid},
		{"strict threshold", false, func(q *types.Query) { q.SimilarityThreshold = 0.8 }, types.ModeText},
		{"exactly 100 results", false, func(q *types.Query) { q.MaxResults = 100 }, types.ModeHybrid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			st := setup{backend: b}
			if tt.vectors {
				st = setup{backend: withVectors, embedder: emb}
			}
			s := newTestSearcher(t, st)

			q := types.NewQuery("python")
			tt.mutate(&q)
			assert.Equal(t, tt.want, s.DetermineOptimalMethod(q))
		})
	}
}
