package searcher

import (
	"sort"
	"strings"
	"time"

	"github.com/dshills/pensieve-search/internal/scorer"
	"github.com/dshills/pensieve-search/pkg/types"
)

// Merge limits
const (
	MaxMergedHighlights   = 5
	MaxSimilarActivities  = 5
	methodSeparator       = "+"
	sourceInfoSource      = "source"
	sourceInfoFilepath    = "filepath"
	sourceInfoCaptureTime = "captured_at"
)

// unify converts a scored record into the caller-facing result shape
func unify(q types.Query, r types.RawRecord) types.UnifiedResult {
	score := r.Score
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	res := types.UnifiedResult{
		EntityID:         r.EntityID,
		RelevanceScore:   score,
		SearchMethod:     string(r.Method),
		WindowTitle:      r.WindowTitle,
		Timestamp:        r.CreatedAt,
		ActivityCategory: r.Category,
		Highlights:       scorer.ExtractHighlights(q.Text, r.WindowTitle, r.OCRText, r.Tasks, scorer.DefaultMaxHighlights),
		ConfidenceMetrics: map[string]float64{
			string(r.Method): score,
		},
		SourceInfo: map[string]string{
			sourceInfoSource: r.Source,
		},
	}
	if len(r.Tasks) > 0 {
		res.ExtractedTasks = append([]string(nil), r.Tasks...)
	}
	if r.Filepath != "" {
		res.SourceInfo[sourceInfoFilepath] = r.Filepath
	}
	if !r.CreatedAt.IsZero() {
		res.SourceInfo[sourceInfoCaptureTime] = r.CreatedAt.UTC().Format(time.RFC3339)
	}
	if r.Similarity != nil {
		v := *r.Similarity
		res.VectorSimilarityScore = &v
		if r.Category != "" {
			c := r.Category
			res.SemanticCluster = &c
		}
	}
	return res
}

func unifyAll(q types.Query, recs []types.RawRecord) []types.UnifiedResult {
	out := make([]types.UnifiedResult, len(recs))
	for i, r := range recs {
		out[i] = unify(q, r)
	}
	return out
}

// rank unifies each method's records, merges them into one deduplicated
// ranking, caps it at q.MaxResults and links similar activities
func rank(q types.Query, lists [][]types.RawRecord) []types.UnifiedResult {
	unified := make([][]types.UnifiedResult, len(lists))
	for i, l := range lists {
		unified[i] = unifyAll(q, l)
	}
	results := MergeResults(unified...)
	if len(results) > q.MaxResults {
		results = results[:q.MaxResults]
	}
	annotateSimilar(results)
	return results
}

// MergeResults deduplicates results by entity id and ranks them.
//
// For a duplicated entity the highest relevance score is kept, distinct
// method labels are joined with "+" in order of first appearance, and
// highlights are unioned up to MaxMergedHighlights. The output is sorted
// by score descending, then earliest timestamp, then entity id, so the
// result does not depend on the order in which lists arrived. Inputs are
// not modified.
func MergeResults(lists ...[]types.UnifiedResult) []types.UnifiedResult {
	index := make(map[int64]int)
	out := []types.UnifiedResult{}
	var methods [][]string

	for _, list := range lists {
		for _, r := range list {
			i, ok := index[r.EntityID]
			if !ok {
				c := r.Clone()
				c.Highlights = unionCapped(nil, c.Highlights, MaxMergedHighlights)
				index[r.EntityID] = len(out)
				out = append(out, c)
				methods = append(methods, appendDistinct(nil, splitMethods(r.SearchMethod)...))
				continue
			}

			e := &out[i]
			if r.RelevanceScore > e.RelevanceScore {
				e.RelevanceScore = r.RelevanceScore
			}
			methods[i] = appendDistinct(methods[i], splitMethods(r.SearchMethod)...)
			e.Highlights = unionCapped(e.Highlights, r.Highlights, MaxMergedHighlights)
			e.ExtractedTasks = appendDistinct(e.ExtractedTasks, r.ExtractedTasks...)
			if r.Timestamp.Before(e.Timestamp) && !r.Timestamp.IsZero() {
				e.Timestamp = r.Timestamp
			}
			if e.ActivityCategory == "" {
				e.ActivityCategory = r.ActivityCategory
			}
			if r.VectorSimilarityScore != nil &&
				(e.VectorSimilarityScore == nil || *r.VectorSimilarityScore > *e.VectorSimilarityScore) {
				v := *r.VectorSimilarityScore
				e.VectorSimilarityScore = &v
			}
			if e.SemanticCluster == nil && r.SemanticCluster != nil {
				c := *r.SemanticCluster
				e.SemanticCluster = &c
			}
			mergeMetrics(e, r.ConfidenceMetrics)
			mergeSourceInfo(e, r.SourceInfo)
			e.CacheHit = e.CacheHit && r.CacheHit
		}
	}

	for i := range out {
		out[i].SearchMethod = strings.Join(methods[i], methodSeparator)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.EntityID < b.EntityID
	})
	return out
}

// annotateSimilar links results sharing a window title
func annotateSimilar(results []types.UnifiedResult) {
	byTitle := make(map[string][]int64)
	for _, r := range results {
		title := strings.ToLower(strings.TrimSpace(r.WindowTitle))
		if title == "" {
			continue
		}
		byTitle[title] = append(byTitle[title], r.EntityID)
	}

	for i := range results {
		ids := byTitle[strings.ToLower(strings.TrimSpace(results[i].WindowTitle))]
		if len(ids) < 2 {
			continue
		}
		var similar []int64
		for _, id := range ids {
			if id == results[i].EntityID {
				continue
			}
			similar = append(similar, id)
			if len(similar) == MaxSimilarActivities {
				break
			}
		}
		results[i].SimilarActivities = similar
	}
}

func splitMethods(label string) []string {
	if label == "" {
		return nil
	}
	return strings.Split(label, methodSeparator)
}

func appendDistinct(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" || contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

func unionCapped(dst, values []string, limit int) []string {
	for _, v := range values {
		if len(dst) >= limit {
			break
		}
		if contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func mergeMetrics(dst *types.UnifiedResult, src map[string]float64) {
	if len(src) == 0 {
		return
	}
	if dst.ConfidenceMetrics == nil {
		dst.ConfidenceMetrics = make(map[string]float64, len(src))
	}
	for k, v := range src {
		if cur, ok := dst.ConfidenceMetrics[k]; !ok || v > cur {
			dst.ConfidenceMetrics[k] = v
		}
	}
}

func mergeSourceInfo(dst *types.UnifiedResult, src map[string]string) {
	if len(src) == 0 {
		return
	}
	if dst.SourceInfo == nil {
		dst.SourceInfo = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst.SourceInfo[k]; !ok {
			dst.SourceInfo[k] = v
		}
	}
}
