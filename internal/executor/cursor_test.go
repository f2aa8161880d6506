package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/pkg/types"
)

func fiveMatches() []types.RawRecord {
	out := make([]types.RawRecord, 5)
	for i := range out {
		out[i] = rec(int64(i+1), "python notes", time.Duration(i)*time.Minute)
	}
	return out
}

func TestCursorBatches(t *testing.T) {
	b := newFakeBackend()
	b.keyword = fiveMatches()
	exec := newExecutor(b, nil)
	cur := exec.NewCursor(types.NewQuery("python"))
	ctx := context.Background()

	var sizes []int
	for offset := 0; ; offset += 2 {
		batch, err := cur.Batch(ctx, offset, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, 1, b.count("keyword"), "result set computed once")
	assert.Equal(t, types.ModeText, cur.Method())
}

func TestCursorOrderIsStable(t *testing.T) {
	b := newFakeBackend()
	b.keyword = fiveMatches()
	exec := newExecutor(b, nil)
	cur := exec.NewCursor(types.NewQuery("python"))

	first, err := cur.Batch(context.Background(), 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first[0].EntityID)
	assert.Equal(t, int64(2), first[1].EntityID)
}

func TestCursorRespectsMaxResults(t *testing.T) {
	b := newFakeBackend()
	b.keyword = fiveMatches()
	exec := newExecutor(b, nil)
	q := types.NewQuery("python")
	q.MaxResults = 3
	cur := exec.NewCursor(q)

	batch, err := cur.Batch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestCursorFallsBack(t *testing.T) {
	b := newFakeBackend()
	b.keywordErr = backend.ErrBackendUnavailable
	b.fallback = fiveMatches()
	exec := newExecutor(b, nil)
	cur := exec.NewCursor(types.NewQuery("python"))

	batch, err := cur.Batch(context.Background(), 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, types.ModeFallback, batch[0].Method)
	assert.Equal(t, types.ModeFallback, cur.Method())
	assert.True(t, cur.Fallback())
}

func TestCursorError(t *testing.T) {
	b := newFakeBackend()
	b.keywordErr = backend.ErrBackendUnavailable
	b.fbErr = backend.ErrFallbackUnavailable
	exec := newExecutor(b, nil)
	cur := exec.NewCursor(types.NewQuery("python"))

	_, err := cur.Batch(context.Background(), 0, 2)
	assert.ErrorIs(t, err, backend.ErrFallbackUnavailable)

	_, err = cur.Batch(context.Background(), 2, 2)
	assert.ErrorIs(t, err, backend.ErrFallbackUnavailable)
	assert.Equal(t, 1, b.count("keyword"))
}

func TestCursorHybridOverlapIsDistinct(t *testing.T) {
	b := newFakeBackend()
	emb := withVector(b)
	b.keyword = fiveMatches()
	b.vector = fiveMatches()
	for i := range b.vector {
		b.vector[i].Similarity = similarity(0.9)
	}
	exec := newExecutor(b, emb)
	cur := exec.NewCursor(types.NewQuery("python"))
	ctx := context.Background()

	var got []int64
	var sizes []int
	for offset := 0; ; offset += 2 {
		batch, err := cur.Batch(ctx, offset, 2)
		require.NoError(t, err)
		if len(batch) == 0 {
			break
		}
		sizes = append(sizes, len(batch))
		for _, r := range batch {
			got = append(got, r.EntityID)
		}
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, types.ModeHybrid, cur.Method())
}

func TestCursorReduceCapsMergedSet(t *testing.T) {
	b := newFakeBackend()
	b.keyword = fiveMatches()
	exec := newExecutor(b, nil)
	q := types.NewQuery("python")
	q.MaxResults = 2

	var reduced int
	cur := NewReducedCursor(exec, q, func(lists [][]types.RawRecord) []int64 {
		reduced++
		var out []int64
		for _, r := range Distinct(lists) {
			out = append(out, r.EntityID)
		}
		return out
	})

	batch, err := cur.Batch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, batch)
	_, err = cur.Batch(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, reduced)
}

func TestCursorHybridTextFallbackFlagged(t *testing.T) {
	b := newFakeBackend()
	emb := withVector(b)
	b.keywordErr = backend.ErrBackendUnavailable
	v := rec(1, "python", 0)
	v.Similarity = similarity(0.9)
	b.vector = []types.RawRecord{v}
	b.fallback = []types.RawRecord{rec(9, "python notes", 0)}
	exec := newExecutor(b, emb)
	cur := exec.NewCursor(types.NewQuery("python"))

	batch, err := cur.Batch(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	assert.True(t, cur.Fallback())
	assert.Equal(t, types.ModeHybrid, cur.Method())
}
