package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/internal/config"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

func seedCaptureDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.db")
	ctx := context.Background()

	store, err := storage.OpenSQLite(ctx, path, storage.SQLiteOptions{})
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = store.InsertEntity(ctx, storage.Entity{
		Filepath: "/screens/1.webp", CreatedAt: base, FileTypeGroup: "image",
	}, map[string]string{
		storage.KeyActiveWindow:     "python coding notes - Editor",
		storage.KeyActivityCategory: "coding",
	})
	require.NoError(t, err)
	_, err = store.InsertEntity(ctx, storage.Entity{
		Filepath: "/screens/2.webp", CreatedAt: base.Add(time.Minute), FileTypeGroup: "image",
	}, map[string]string{
		storage.KeyActiveWindow: "Meeting Notes",
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())
	return path
}

func testConfig(serviceURL, dbPath string) *config.Config {
	return &config.Config{
		PensieveURL:           serviceURL,
		FallbackDBPath:        dbPath,
		EmbeddingProvider:     "none",
		MaxConcurrentSearches: 10,
		MaxConcurrentStreams:  3,
		CacheSize:             100,
		DefaultCacheTTL:       time.Minute,
		SearchTimeout:         5 * time.Second,
		HistorySize:           100,
		MaxVectorCandidates:   100,
		ProbeTimeout:          time.Second,
	}
}

func TestNewFallsBackToLocalStore(t *testing.T) {
	service := httptest.NewServer(http.NotFoundHandler())
	defer service.Close()

	a, err := New(context.Background(), testConfig(service.URL, seedCaptureDB(t)), zerolog.Nop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	caps := a.Backend.Capabilities()
	assert.False(t, caps.Healthy)
	assert.Equal(t, types.TierSQLite, caps.PerformanceTier)
	assert.Nil(t, a.Embedder)
	assert.False(t, a.Executor.VectorAvailable())

	results, err := a.Searcher.Search(context.Background(), types.NewQuery("python"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "python coding notes - Editor", results[0].WindowTitle)
	assert.Equal(t, "fallback", results[0].SearchMethod)
	assert.Equal(t, "coding", results[0].ActivityCategory)

	stats := a.Searcher.Stats()
	assert.Equal(t, int64(1), stats.FallbackSearches)

	a.ResetForTesting()
	assert.Zero(t, a.Searcher.Stats().TotalSearches)
}

func TestNewWithLocalEmbedder(t *testing.T) {
	service := httptest.NewServer(http.NotFoundHandler())
	defer service.Close()

	cfg := testConfig(service.URL, seedCaptureDB(t))
	cfg.EmbeddingProvider = "local"
	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.NotNil(t, a.Embedder)
	assert.False(t, a.Executor.VectorAvailable(), "vector search stays off until the service enables it")
}

func TestNewWithoutAnySource(t *testing.T) {
	cfg := testConfig("", filepath.Join(t.TempDir(), "missing.db"))
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewRejectsBadServiceURL(t *testing.T) {
	cfg := testConfig("://nope", "")
	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}
