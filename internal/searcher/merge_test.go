package searcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pensieve-search/pkg/types"
)

func result(id int64, score float64, method string, offset time.Duration, highlights ...string) types.UnifiedResult {
	return types.UnifiedResult{
		EntityID:          id,
		RelevanceScore:    score,
		SearchMethod:      method,
		Timestamp:         baseTime.Add(offset),
		Highlights:        highlights,
		ConfidenceMetrics: map[string]float64{method: score},
		SourceInfo:        map[string]string{"source": method},
	}
}

func scores(results []types.UnifiedResult) map[int64]float64 {
	out := make(map[int64]float64, len(results))
	for _, r := range results {
		out[r.EntityID] = r.RelevanceScore
	}
	return out
}

func TestMergeResultsKeepsMaxScore(t *testing.T) {
	vector := []types.UnifiedResult{
		result(1, 0.4, "vector", 0),
		result(2, 0.95, "vector", time.Minute),
	}
	text := []types.UnifiedResult{
		result(1, 0.7, "text", 0),
		result(2, 0.3, "text", time.Minute),
		result(3, 0.5, "text", 2*time.Minute),
	}

	merged := MergeResults(vector, text)
	require.Len(t, merged, 3)
	assert.Equal(t, map[int64]float64{1: 0.7, 2: 0.95, 3: 0.5}, scores(merged))

	reversed := MergeResults(text, vector)
	assert.Equal(t, scores(merged), scores(reversed))
	assert.Equal(t, ids(merged), ids(reversed), "order does not depend on input order")
}

func TestMergeResultsIdempotent(t *testing.T) {
	list := []types.UnifiedResult{
		result(1, 0.9, "text", 0, "a"),
		result(2, 0.5, "text", time.Minute, "b"),
	}

	once := MergeResults(list)
	twice := MergeResults(list, list)
	assert.Equal(t, ids(once), ids(twice))
	assert.Equal(t, scores(once), scores(twice))
	for i := range once {
		assert.Equal(t, "text", twice[i].SearchMethod, "identical labels are not repeated")
		assert.Equal(t, once[i].Highlights, twice[i].Highlights)
	}

	again := MergeResults(twice, once)
	assert.Equal(t, twice, again)
}

func TestMergeResultsMethodLabels(t *testing.T) {
	merged := MergeResults(
		[]types.UnifiedResult{result(1, 0.8, "vector", 0)},
		[]types.UnifiedResult{result(1, 0.6, "text", 0)},
		[]types.UnifiedResult{result(1, 0.2, "vector+text", 0)},
	)
	require.Len(t, merged, 1)
	assert.Equal(t, "vector+text", merged[0].SearchMethod)
	assert.InDelta(t, 0.8, merged[0].ConfidenceMetrics["vector"], 1e-9)
	assert.InDelta(t, 0.6, merged[0].ConfidenceMetrics["text"], 1e-9)
	assert.Equal(t, "vector", merged[0].SourceInfo["source"], "first source wins")
}

func TestMergeResultsHighlightsCapped(t *testing.T) {
	merged := MergeResults(
		[]types.UnifiedResult{result(1, 0.5, "text", 0, "a", "b", "c")},
		[]types.UnifiedResult{result(1, 0.5, "vector", 0, "c", "d", "e", "f", "g")},
	)
	require.Len(t, merged, 1)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, merged[0].Highlights)
}

func TestMergeResultsTieBreaks(t *testing.T) {
	merged := MergeResults([]types.UnifiedResult{
		result(5, 0.5, "text", 2*time.Minute),
		result(4, 0.5, "text", 0),
		result(3, 0.5, "text", time.Minute),
		result(2, 0.5, "text", 0),
		result(1, 0.9, "text", 3*time.Minute),
	})
	assert.Equal(t, []int64{1, 2, 4, 3, 5}, ids(merged))
}

func TestMergeResultsDoesNotModifyInputs(t *testing.T) {
	a := []types.UnifiedResult{result(1, 0.3, "text", 0, "x")}
	b := []types.UnifiedResult{result(1, 0.9, "vector", 0, "y")}

	merged := MergeResults(a, b)
	require.Len(t, merged, 1)
	assert.InDelta(t, 0.3, a[0].RelevanceScore, 1e-9)
	assert.Equal(t, "text", a[0].SearchMethod)
	assert.Equal(t, []string{"x"}, a[0].Highlights)
	assert.Len(t, a[0].ConfidenceMetrics, 1)

	merged[0].Highlights[0] = "changed"
	assert.Equal(t, "x", a[0].Highlights[0])
}

func TestMergeResultsEmpty(t *testing.T) {
	assert.NotNil(t, MergeResults())
	assert.Empty(t, MergeResults())
	assert.Empty(t, MergeResults(nil, []types.UnifiedResult{}))
}

func TestUnifyClampsAndCopies(t *testing.T) {
	r := rec(1, "python notes", 0)
	r.Score = 1.4
	r.Method = types.ModeText
	r.Tasks = []string{"write python tests"}
	r.Category = "coding"

	res := unify(types.NewQuery("python"), r)
	assert.Equal(t, 1.0, res.RelevanceScore)
	assert.Equal(t, "coding", res.ActivityCategory)
	assert.Nil(t, res.VectorSimilarityScore)
	assert.Nil(t, res.SemanticCluster)
	assert.Equal(t, "/screens/1.png", res.SourceInfo["filepath"])
	assert.Equal(t, "2024-03-01T09:00:00Z", res.SourceInfo["captured_at"])

	res.ExtractedTasks[0] = "changed"
	assert.Equal(t, "write python tests", r.Tasks[0])
}
