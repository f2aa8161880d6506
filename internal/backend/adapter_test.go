package backend

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/internal/pensieve"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeService struct {
	mu        sync.Mutex
	healthErr error
	cfg       *pensieve.ServiceConfig
	cfgErr    error
	byMode    map[string][]pensieve.Record
	queryErr  error
	metadata  map[int64]map[string]string
	metaErr   map[int64]error
	modes     []string
}

func (f *fakeService) Health(context.Context) error { return f.healthErr }

func (f *fakeService) Config(context.Context) (*pensieve.ServiceConfig, error) {
	if f.cfgErr != nil {
		return nil, f.cfgErr
	}
	if f.cfg == nil {
		return &pensieve.ServiceConfig{}, nil
	}
	return f.cfg, nil
}

func (f *fakeService) QueryByText(_ context.Context, _ string, mode string, _ int) ([]pensieve.Record, error) {
	f.mu.Lock()
	f.modes = append(f.modes, mode)
	f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.byMode[mode], nil
}

func (f *fakeService) GetMetadata(_ context.Context, id int64) (map[string]string, error) {
	if err := f.metaErr[id]; err != nil {
		return nil, err
	}
	return f.metadata[id], nil
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "capture.db"), storage.SQLiteOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *storage.SQLiteStore, offset time.Duration, meta map[string]string) int64 {
	t.Helper()
	id, err := store.InsertEntity(context.Background(), storage.Entity{
		Filepath:  "/shots/x.webp",
		CreatedAt: t0.Add(offset),
	}, meta)
	require.NoError(t, err)
	return id
}

func TestDetectCapabilities(t *testing.T) {
	ctx := context.Background()

	t.Run("unreachable service uses defaults", func(t *testing.T) {
		a, err := New(ctx, Options{Service: &fakeService{healthErr: errors.New("connection refused")}})
		require.NoError(t, err)
		caps := a.Capabilities()
		assert.False(t, caps.Healthy)
		assert.Equal(t, types.TierSQLite, caps.PerformanceTier)
		assert.False(t, caps.VectorSearchEnabled)
		assert.Equal(t, 100_000, caps.MaxVectors)
	})

	tests := []struct {
		name string
		cfg  pensieve.ServiceConfig
		want types.PerformanceTier
	}{
		{name: "sqlite", cfg: pensieve.ServiceConfig{}, want: types.TierSQLite},
		{name: "postgres", cfg: pensieve.ServiceConfig{PostgreSQLEnabled: true}, want: types.TierPostgreSQL},
		// No native store: pgvector cannot be confirmed so the tier drops
		{name: "postgres+vector", cfg: pensieve.ServiceConfig{PostgreSQLEnabled: true, VectorSearchEnabled: true}, want: types.TierPostgreSQL},
		{name: "vector only", cfg: pensieve.ServiceConfig{VectorSearchEnabled: true, MaxVectors: 5}, want: types.TierSQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			a, err := New(ctx, Options{Service: &fakeService{cfg: &cfg}})
			require.NoError(t, err)
			caps := a.Capabilities()
			assert.True(t, caps.Healthy)
			assert.Equal(t, tt.want, caps.PerformanceTier)
			assert.False(t, caps.PgvectorAvailable)
			assert.Equal(t, tt.cfg.VectorSearchEnabled, caps.VectorSearchEnabled)
		})
	}

	t.Run("local vectors flag upgrade opportunity", func(t *testing.T) {
		store := newStore(t)
		seed(t, store, 0, map[string]string{storage.KeyEmbedding: "[1,0]"})

		a, err := New(ctx, Options{Service: &fakeService{}, Fallback: store})
		require.NoError(t, err)
		caps := a.Capabilities()
		assert.True(t, caps.SQLiteWithVectors)
		assert.Equal(t, types.TierSQLite, caps.PerformanceTier)
	})

	t.Run("requires something to query", func(t *testing.T) {
		_, err := New(ctx, Options{})
		assert.Error(t, err)
	})
}

func TestQueryKeyword(t *testing.T) {
	ctx := context.Background()

	t.Run("retries once without mode", func(t *testing.T) {
		svc := &fakeService{
			byMode: map[string][]pensieve.Record{
				"": {{ID: 1, Filepath: "/a.webp", CreatedAt: t0}},
			},
			metadata: map[int64]map[string]string{
				1: {
					storage.KeyActiveWindow:     "python coding notes - Editor",
					storage.KeyOCRResult:        `[{"rec_txt":"def main():"}]`,
					storage.KeyTasks:            `[{"title":"fix tests"},"write docs"]`,
					storage.KeyActivityCategory: "coding",
				},
			},
		}
		a, err := New(ctx, Options{Service: svc})
		require.NoError(t, err)

		recs, err := a.QueryKeyword(ctx, "python", 10, nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, []string{keywordMode, ""}, svc.modes)

		rec := recs[0]
		assert.Equal(t, int64(1), rec.EntityID)
		assert.Equal(t, "python coding notes - Editor", rec.WindowTitle)
		assert.Equal(t, "def main():", rec.OCRText)
		assert.Equal(t, []string{"fix tests", "write docs"}, rec.Tasks)
		assert.Equal(t, "coding", rec.Category)
		assert.Equal(t, types.SourcePensieve, rec.Source)
		assert.Nil(t, rec.Embedding)
	})

	t.Run("service error is unavailable", func(t *testing.T) {
		svc := &fakeService{queryErr: errors.New("dial tcp: refused")}
		a, err := New(ctx, Options{Service: svc})
		require.NoError(t, err)

		_, err = a.QueryKeyword(ctx, "python", 10, nil)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("no service configured", func(t *testing.T) {
		a, err := New(ctx, Options{Fallback: newStore(t)})
		require.NoError(t, err)
		_, err = a.QueryKeyword(ctx, "python", 10, nil)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})

	t.Run("metadata failure skips one record", func(t *testing.T) {
		svc := &fakeService{
			byMode: map[string][]pensieve.Record{
				keywordMode: {{ID: 1, CreatedAt: t0}, {ID: 2, CreatedAt: t0}},
			},
			metadata: map[int64]map[string]string{1: {storage.KeyActiveWindow: "ok"}},
			metaErr:  map[int64]error{2: &pensieve.APIError{StatusCode: 500}},
		}
		a, err := New(ctx, Options{Service: svc})
		require.NoError(t, err)

		recs, err := a.QueryKeyword(ctx, "ok", 10, nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(1), recs[0].EntityID)
	})

	t.Run("filters apply", func(t *testing.T) {
		svc := &fakeService{
			byMode: map[string][]pensieve.Record{
				keywordMode: {{ID: 1, CreatedAt: t0}, {ID: 2, CreatedAt: t0.Add(2 * time.Hour)}},
			},
			metadata: map[int64]map[string]string{
				1: {storage.KeyActivityCategory: "coding"},
				2: {storage.KeyActivityCategory: "meeting"},
			},
		}
		a, err := New(ctx, Options{Service: svc})
		require.NoError(t, err)

		recs, err := a.QueryKeyword(ctx, "x", 10, &storage.Filter{Categories: []string{"meeting"}})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(2), recs[0].EntityID)

		recs, err = a.QueryKeyword(ctx, "x", 10, &storage.Filter{End: t0.Add(time.Hour)})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, int64(1), recs[0].EntityID)
	})
}

func TestQueryVector(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		a, err := New(ctx, Options{Service: &fakeService{}})
		require.NoError(t, err)
		_, err = a.QueryVector(ctx, []float32{1, 0}, 0.5, 10, nil)
		assert.ErrorIs(t, err, ErrVectorSearchDisabled)
	})

	t.Run("scan ranks, thresholds and skips malformed", func(t *testing.T) {
		store := newStore(t)
		same := seed(t, store, 0, map[string]string{storage.KeyEmbedding: "[1,0]", storage.KeyActiveWindow: "same"})
		ortho := seed(t, store, time.Minute, map[string]string{storage.KeyEmbedding: storage.EncodeEmbedding([]float32{0, 1})})
		seed(t, store, 2*time.Minute, map[string]string{storage.KeyEmbedding: "[-1,0]"})
		seed(t, store, 3*time.Minute, map[string]string{storage.KeyEmbedding: "garbage"})
		seed(t, store, 4*time.Minute, map[string]string{storage.KeyEmbedding: "[1,0,0]"})

		// Service is healthy, so metadata comes from it per record
		svc := &fakeService{
			cfg:      &pensieve.ServiceConfig{VectorSearchEnabled: true},
			metadata: map[int64]map[string]string{},
		}
		recent, err := store.RecentEntities(ctx, 10, nil)
		require.NoError(t, err)
		ids := make([]int64, len(recent))
		for i, e := range recent {
			ids[i] = e.ID
		}
		all, err := store.ListMetadata(ctx, ids)
		require.NoError(t, err)
		svc.metadata = all

		a, err := New(ctx, Options{Service: svc, Fallback: store})
		require.NoError(t, err)

		recs, err := a.QueryVector(ctx, []float32{1, 0}, 0.4, 10, nil)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, same, recs[0].EntityID)
		assert.InDelta(t, 1.0, *recs[0].Similarity, 1e-9)
		assert.Equal(t, "same", recs[0].WindowTitle)
		assert.Equal(t, ortho, recs[1].EntityID)
		assert.InDelta(t, 0.5, *recs[1].Similarity, 1e-9)
		assert.Equal(t, types.SourcePensieve, recs[0].Source)

		recs, err = a.QueryVector(ctx, []float32{1, 0}, 0.4, 1, nil)
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	})

	t.Run("all metadata fetches failing is unavailable", func(t *testing.T) {
		store := newStore(t)
		id := seed(t, store, 0, map[string]string{storage.KeyEmbedding: "[1,0]"})
		svc := &fakeService{
			cfg:     &pensieve.ServiceConfig{VectorSearchEnabled: true},
			metaErr: map[int64]error{id: errors.New("connection reset")},
		}
		a, err := New(ctx, Options{Service: svc, Fallback: store})
		require.NoError(t, err)

		_, err = a.QueryVector(ctx, []float32{1, 0}, 0, 10, nil)
		assert.ErrorIs(t, err, ErrBackendUnavailable)
	})
}

func TestQueryFallback(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	id := seed(t, store, 0, map[string]string{
		storage.KeyActiveWindow: "python coding notes - Editor",
		storage.KeyTasks:        "review PR\n\nship it",
	})
	seed(t, store, time.Minute, map[string]string{storage.KeyActiveWindow: "Meeting Notes"})

	a, err := New(ctx, Options{Service: &fakeService{healthErr: errors.New("down")}, Fallback: store})
	require.NoError(t, err)

	recs, err := a.QueryFallback(ctx, "python", 10, nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].EntityID)
	assert.Equal(t, types.SourceFallback, recs[0].Source)
	assert.Equal(t, []string{"review PR", "ship it"}, recs[0].Tasks)
	assert.True(t, recs[0].CreatedAt.Equal(t0))

	none, err := New(ctx, Options{Service: &fakeService{}})
	require.NoError(t, err)
	_, err = none.QueryFallback(ctx, "python", 10, nil)
	assert.ErrorIs(t, err, ErrFallbackUnavailable)
}

func TestFilterFor(t *testing.T) {
	assert.Nil(t, FilterFor(types.NewQuery("x")))

	q := types.NewQuery("x")
	q.TimeRange = &types.TimeRange{Start: t0, End: t0.Add(time.Hour)}
	q.Categories = []string{"coding"}
	f := FilterFor(q)
	require.NotNil(t, f)
	assert.Equal(t, t0, f.Start)
	assert.Equal(t, []string{"coding"}, f.Categories)
}

func TestParseTasks(t *testing.T) {
	assert.Nil(t, parseTasks(""))
	assert.Equal(t, []string{"a", "b"}, parseTasks(`["a", {"title": "b"}, {"other": 1}, ""]`))
	assert.Equal(t, []string{"[not json"}, parseTasks("[not json"))
}
