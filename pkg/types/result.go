package types

import "time"

// UnifiedResult is the single shape every search method's output is
// converted into before it reaches a caller.
type UnifiedResult struct {
	EntityID       int64   `json:"entity_id"`
	RelevanceScore float64 `json:"relevance_score"`

	// SearchMethod is the producing method, or a "+"-joined list after merge
	SearchMethod string `json:"search_method"`

	WindowTitle      string    `json:"window_title"`
	Timestamp        time.Time `json:"timestamp"`
	ActivityCategory string    `json:"activity_category,omitempty"`

	Highlights     []string `json:"highlights,omitempty"`
	ExtractedTasks []string `json:"extracted_tasks,omitempty"`

	VectorSimilarityScore *float64 `json:"vector_similarity_score,omitempty"`
	SemanticCluster       *string  `json:"semantic_cluster,omitempty"`
	SimilarActivities     []int64  `json:"similar_activities,omitempty"`

	ConfidenceMetrics map[string]float64 `json:"confidence_metrics,omitempty"`
	SourceInfo        map[string]string  `json:"source_info,omitempty"`

	CacheHit bool `json:"cache_hit"`
}

// Clone returns a deep copy so cached or merged results never share
// slices and maps with the caller's copy.
func (r UnifiedResult) Clone() UnifiedResult {
	out := r
	if r.Highlights != nil {
		out.Highlights = append([]string(nil), r.Highlights...)
	}
	if r.ExtractedTasks != nil {
		out.ExtractedTasks = append([]string(nil), r.ExtractedTasks...)
	}
	if r.SimilarActivities != nil {
		out.SimilarActivities = append([]int64(nil), r.SimilarActivities...)
	}
	if r.VectorSimilarityScore != nil {
		v := *r.VectorSimilarityScore
		out.VectorSimilarityScore = &v
	}
	if r.SemanticCluster != nil {
		c := *r.SemanticCluster
		out.SemanticCluster = &c
	}
	if r.ConfidenceMetrics != nil {
		out.ConfidenceMetrics = make(map[string]float64, len(r.ConfidenceMetrics))
		for k, v := range r.ConfidenceMetrics {
			out.ConfidenceMetrics[k] = v
		}
	}
	if r.SourceInfo != nil {
		out.SourceInfo = make(map[string]string, len(r.SourceInfo))
		for k, v := range r.SourceInfo {
			out.SourceInfo[k] = v
		}
	}
	return out
}

// Suggestion is a query completion offered to the caller
type Suggestion struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"` // "history" or "vector"
}
