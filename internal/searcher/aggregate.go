package searcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/pensieve-search/pkg/types"
)

// ErrUnknownAggregation is returned for an unsupported grouping key
var ErrUnknownAggregation = errors.New("unknown aggregation")

// Aggregation names a grouping of search results
type Aggregation string

const (
	AggregateCategory   Aggregation = "category"
	AggregateTime       Aggregation = "time"
	AggregateSimilarity Aggregation = "similarity"
	AggregateMethod     Aggregation = "method"
)

// Group keys
const (
	Uncategorized    = "uncategorized"
	SimilarityHigh   = "high"
	SimilarityMedium = "medium"
	SimilarityLow    = "low"

	hourBucketLayout = "2006-01-02 15:00"
)

// ParseAggregation converts a caller-supplied grouping key
func ParseAggregation(s string) (Aggregation, error) {
	switch a := Aggregation(strings.ToLower(strings.TrimSpace(s))); a {
	case AggregateCategory, AggregateTime, AggregateSimilarity, AggregateMethod:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAggregation, s)
}

// SearchWithAggregation runs Search and groups the results by. Groups
// keep the ranked order of the search.
func (s *Searcher) SearchWithAggregation(ctx context.Context, q types.Query, by Aggregation) (map[string][]types.UnifiedResult, error) {
	if _, err := ParseAggregation(string(by)); err != nil {
		return nil, err
	}

	results, err := s.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return Aggregate(results, by), nil
}

// Aggregate groups results without touching the backend. An unknown
// grouping yields an empty map.
func Aggregate(results []types.UnifiedResult, by Aggregation) map[string][]types.UnifiedResult {
	groups := make(map[string][]types.UnifiedResult)
	for _, r := range results {
		key, ok := groupKey(r, by)
		if !ok {
			continue
		}
		groups[key] = append(groups[key], r)
	}
	return groups
}

func groupKey(r types.UnifiedResult, by Aggregation) (string, bool) {
	switch by {
	case AggregateCategory:
		if r.ActivityCategory == "" {
			return Uncategorized, true
		}
		return r.ActivityCategory, true
	case AggregateTime:
		return r.Timestamp.UTC().Format(hourBucketLayout), true
	case AggregateSimilarity:
		return SimilarityBand(r.RelevanceScore), true
	case AggregateMethod:
		return r.SearchMethod, true
	}
	return "", false
}

// SimilarityBand buckets a relevance score into high, medium or low
func SimilarityBand(score float64) string {
	switch {
	case score >= 0.8:
		return SimilarityHigh
	case score >= 0.6:
		return SimilarityMedium
	default:
		return SimilarityLow
	}
}
