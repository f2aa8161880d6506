package searcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/pkg/types"
)

func aggregationFixture() []types.UnifiedResult {
	a := result(1, 0.9, "vector+text", 0)
	a.ActivityCategory = "coding"
	b := result(2, 0.65, "text", 90*time.Minute)
	b.ActivityCategory = "coding"
	c := result(3, 0.3, "text", 10*time.Minute)
	return []types.UnifiedResult{a, b, c}
}

func TestAggregate(t *testing.T) {
	results := aggregationFixture()

	tests := []struct {
		by   Aggregation
		want map[string][]int64
	}{
		{AggregateCategory, map[string][]int64{"coding": {1, 2}, Uncategorized: {3}}},
		{AggregateTime, map[string][]int64{"2024-03-01 09:00": {1, 3}, "2024-03-01 10:00": {2}}},
		{AggregateSimilarity, map[string][]int64{SimilarityHigh: {1}, SimilarityMedium: {2}, SimilarityLow: {3}}},
		{AggregateMethod, map[string][]int64{"vector+text": {1}, "text": {2, 3}}},
	}

	for _, tt := range tests {
		t.Run(string(tt.by), func(t *testing.T) {
			groups := Aggregate(results, tt.by)
			got := make(map[string][]int64, len(groups))
			for k, v := range groups {
				got[k] = ids(v)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSimilarityBand(t *testing.T) {
	assert.Equal(t, SimilarityHigh, SimilarityBand(0.8))
	assert.Equal(t, SimilarityMedium, SimilarityBand(0.79))
	assert.Equal(t, SimilarityMedium, SimilarityBand(0.6))
	assert.Equal(t, SimilarityLow, SimilarityBand(0.59))
	assert.Equal(t, SimilarityLow, SimilarityBand(0))
}

func TestParseAggregation(t *testing.T) {
	a, err := ParseAggregation(" Category ")
	require.NoError(t, err)
	assert.Equal(t, AggregateCategory, a)

	_, err = ParseAggregation("weekday")
	assert.ErrorIs(t, err, ErrUnknownAggregation)
}

func TestSearchWithAggregation(t *testing.T) {
	b := newFakeBackend()
	coding := rec(1, "python notes", 0)
	coding.Category = "coding"
	b.keyword = []types.RawRecord{coding, rec(2, "python meeting", time.Minute)}
	s := newTestSearcher(t, setup{backend: b})

	groups, err := s.SearchWithAggregation(context.Background(), textQuery("python"), AggregateCategory)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, []int64{1}, ids(groups["coding"]))
	assert.Equal(t, []int64{2}, ids(groups[Uncategorized]))
	assert.Equal(t, 1, b.count("keyword"))
}

func TestSearchWithAggregationUnknownKey(t *testing.T) {
	b := newFakeBackend()
	s := newTestSearcher(t, setup{backend: b})

	_, err := s.SearchWithAggregation(context.Background(), textQuery("python"), Aggregation("weekday"))
	assert.ErrorIs(t, err, ErrUnknownAggregation)
	assert.Zero(t, b.count("keyword"))
	assert.Zero(t, s.Stats().TotalSearches)
}
