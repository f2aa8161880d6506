package types

import "time"

// MethodStats holds per-method counters
type MethodStats struct {
	Usage        int64   `json:"usage"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ErrorRate returns errors divided by usage
func (m MethodStats) ErrorRate() float64 {
	if m.Usage == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Usage)
}

// CoordinatorStats is a point-in-time copy of the coordinator counters
type CoordinatorStats struct {
	TotalSearches     int64 `json:"total_searches"`
	StreamingSearches int64 `json:"streaming_searches"`
	StreamingBatches  int64 `json:"streaming_batches"`
	VectorSearches    int64 `json:"vector_searches"`
	HybridSearches    int64 `json:"hybrid_searches"`
	FallbackSearches  int64 `json:"fallback_searches"`
	TimedOutSearches  int64 `json:"timed_out_searches"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`

	AverageResponseTimeMs float64 `json:"average_response_time_ms"`

	CurrentConcurrent int64 `json:"current_concurrent"`
	PeakConcurrent    int64 `json:"peak_concurrent"`

	Methods map[string]MethodStats `json:"methods"`
}

// SearchMethodUsage returns usage counts keyed by method
func (s CoordinatorStats) SearchMethodUsage() map[string]int64 {
	out := make(map[string]int64, len(s.Methods))
	for k, v := range s.Methods {
		out[k] = v.Usage
	}
	return out
}

// CacheHitRatio returns hits over lookups, or 0 with no lookups
func (s CoordinatorStats) CacheHitRatio() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Bottleneck is a detected performance problem
type Bottleneck struct {
	Kind      string  `json:"kind"`
	Observed  float64 `json:"observed"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
}

// Recommendation priorities, highest first
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Recommendation is one suggested tuning action
type Recommendation struct {
	Priority string `json:"priority"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// PerformanceReport is the read-only output of performance analysis
type PerformanceReport struct {
	GeneratedAt      time.Time          `json:"generated_at"`
	Stats            CoordinatorStats   `json:"stats"`
	CacheHitRatio    float64            `json:"cache_hit_ratio"`
	MethodEfficiency map[string]float64 `json:"method_efficiency"`
	Bottlenecks      []Bottleneck       `json:"bottlenecks"`
	Recommendations  []Recommendation   `json:"recommendations"`
	PerformanceTier  PerformanceTier    `json:"performance_tier"`
}
