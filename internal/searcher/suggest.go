package searcher

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dshills/pensieve-search/internal/scorer"
	"github.com/dshills/pensieve-search/pkg/types"
)

// Suggestion sources and scoring
const (
	SuggestionSourceHistory = "history"
	SuggestionSourceVector  = "vector"

	DefaultSuggestionLimit = 10

	historyPrefixScore    = 1.0
	historySubstringScore = 0.8
	vectorTermWeight      = 0.6
	vectorSuggestionHits  = 5
	minTermRunes          = 4
	suggestionTimeout     = 5 * time.Second
)

// GetSuggestions completes partial from recent queries and, when vector
// search is available, from words in the closest captures. Suggestions
// are deduplicated case-insensitively and ordered by score.
func (s *Searcher) GetSuggestions(ctx context.Context, partial string, limit int) []types.Suggestion {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return []types.Suggestion{}
	}
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	var candidates []types.Suggestion
	candidates = append(candidates, s.historySuggestions(partial)...)
	if s.exec.VectorAvailable() {
		candidates = append(candidates, s.vectorSuggestions(ctx, partial)...)
	}

	best := make(map[string]types.Suggestion)
	var order []string
	for _, c := range candidates {
		key := strings.ToLower(c.Text)
		cur, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.Score > cur.Score {
			best[key] = c
		}
	}

	out := make([]types.Suggestion, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Searcher) historySuggestions(partial string) []types.Suggestion {
	needle := strings.ToLower(partial)
	var out []types.Suggestion
	for _, entry := range s.history.recent() {
		lowered := strings.ToLower(entry)
		if lowered == needle {
			continue
		}
		switch {
		case strings.HasPrefix(lowered, needle):
			out = append(out, types.Suggestion{Text: entry, Score: historyPrefixScore, Source: SuggestionSourceHistory})
		case strings.Contains(lowered, needle):
			out = append(out, types.Suggestion{Text: entry, Score: historySubstringScore, Source: SuggestionSourceHistory})
		}
	}
	return out
}

func (s *Searcher) vectorSuggestions(ctx context.Context, partial string) []types.Suggestion {
	q := types.NewQuery(partial)
	q.MaxResults = vectorSuggestionHits
	q.SimilarityThreshold = 0

	ctx, cancel := context.WithTimeout(ctx, suggestionTimeout)
	defer cancel()

	hits, err := s.exec.ExecuteVector(ctx, q)
	if err != nil {
		s.logger.Debug().Err(err).Msg("vector suggestions unavailable")
		return nil
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > vectorSuggestionHits {
		hits = hits[:vectorSuggestionHits]
	}

	known := make(map[string]struct{})
	for _, w := range scorer.Words(partial) {
		known[w] = struct{}{}
	}

	var out []types.Suggestion
	for _, h := range hits {
		for _, w := range scorer.Words(h.WindowTitle) {
			if len([]rune(w)) < minTermRunes {
				continue
			}
			if _, ok := known[w]; ok {
				continue
			}
			out = append(out, types.Suggestion{
				Text:   partial + " " + w,
				Score:  h.Score * vectorTermWeight,
				Source: SuggestionSourceVector,
			})
		}
	}
	return out
}
