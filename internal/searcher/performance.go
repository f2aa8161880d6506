package searcher

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dshills/pensieve-search/pkg/types"
)

// Bottleneck thresholds
const (
	SlowResponseMs      = 2000.0
	HighPeakConcurrency = 8
	LowCacheHitRatio    = 0.3
	HighMethodErrorRate = 0.1
)

// Bottleneck kinds
const (
	BottleneckLatency     = "response_time"
	BottleneckConcurrency = "concurrency"
	BottleneckCache       = "cache_hit_ratio"
)

// baselineWeights are static per-method efficiency weights
var baselineWeights = map[string]float64{
	string(types.ModeText):      1.0,
	string(types.ModeSemantic):  0.9,
	string(types.ModeVector):    0.8,
	string(types.ModeHybrid):    0.7,
	string(types.ModeStreaming): 0.6,
	methodCache:                 1.0,
}

const defaultBaselineWeight = 0.5

var priorityRank = map[string]int{
	types.PriorityHigh:   0,
	types.PriorityMedium: 1,
	types.PriorityLow:    2,
}

// AnalyzePerformance builds a report from the current statistics. It has
// no side effects.
func (s *Searcher) AnalyzePerformance() types.PerformanceReport {
	return BuildReport(s.Stats(), s.exec.Capabilities().PerformanceTier, s.now())
}

// BuildReport derives efficiency scores, bottlenecks and recommendations
// from a stats snapshot
func BuildReport(stats types.CoordinatorStats, tier types.PerformanceTier, now time.Time) types.PerformanceReport {
	report := types.PerformanceReport{
		GeneratedAt:      now,
		Stats:            stats,
		CacheHitRatio:    stats.CacheHitRatio(),
		MethodEfficiency: MethodEfficiency(stats),
		PerformanceTier:  tier,
		Bottlenecks:      []types.Bottleneck{},
		Recommendations:  []types.Recommendation{},
	}

	if stats.TotalSearches > 0 && stats.AverageResponseTimeMs > SlowResponseMs {
		report.Bottlenecks = append(report.Bottlenecks, types.Bottleneck{
			Kind:      BottleneckLatency,
			Observed:  stats.AverageResponseTimeMs,
			Threshold: SlowResponseMs,
			Message:   fmt.Sprintf("average response time %.0fms exceeds %.0fms", stats.AverageResponseTimeMs, SlowResponseMs),
		})
		report.Recommendations = append(report.Recommendations, types.Recommendation{
			Priority: types.PriorityHigh,
			Category: "latency",
			Message:  "Searches are slow; lower max_results, narrow the time range or prefer text search for short queries",
		})
	}

	if stats.PeakConcurrent > HighPeakConcurrency {
		report.Bottlenecks = append(report.Bottlenecks, types.Bottleneck{
			Kind:      BottleneckConcurrency,
			Observed:  float64(stats.PeakConcurrent),
			Threshold: HighPeakConcurrency,
			Message:   fmt.Sprintf("peak concurrency %d exceeds %d", stats.PeakConcurrent, HighPeakConcurrency),
		})
		report.Recommendations = append(report.Recommendations, types.Recommendation{
			Priority: types.PriorityMedium,
			Category: "concurrency",
			Message:  "Concurrent searches are near the admission limit; raise the limit or cache more aggressively",
		})
	}

	if lookups := stats.CacheHits + stats.CacheMisses; lookups > 0 && report.CacheHitRatio < LowCacheHitRatio {
		report.Bottlenecks = append(report.Bottlenecks, types.Bottleneck{
			Kind:      BottleneckCache,
			Observed:  report.CacheHitRatio,
			Threshold: LowCacheHitRatio,
			Message:   fmt.Sprintf("cache hit ratio %.0f%% is below %.0f%%", report.CacheHitRatio*100, LowCacheHitRatio*100),
		})
		report.Recommendations = append(report.Recommendations, types.Recommendation{
			Priority: types.PriorityHigh,
			Category: "cache",
			Message:  "Cache hit ratio is low; increase the cache TTL or cache size",
		})
	}

	report.Recommendations = append(report.Recommendations, methodRecommendations(stats, report.MethodEfficiency)...)
	if rec, ok := tierRecommendation(tier); ok {
		report.Recommendations = append(report.Recommendations, rec)
	}

	sort.SliceStable(report.Recommendations, func(i, j int) bool {
		return priorityRank[report.Recommendations[i].Priority] < priorityRank[report.Recommendations[j].Priority]
	})
	return report
}

// MethodEfficiency scores each used method as
// weight × (1 − error rate) × (1000 / average latency in ms)
func MethodEfficiency(stats types.CoordinatorStats) map[string]float64 {
	out := make(map[string]float64, len(stats.Methods))
	for name, m := range stats.Methods {
		if m.Usage == 0 {
			continue
		}
		weight, ok := baselineWeights[name]
		if !ok {
			weight = defaultBaselineWeight
		}
		out[name] = weight * (1 - m.ErrorRate()) * (1000 / math.Max(m.AvgLatencyMs, 1))
	}
	return out
}

func methodRecommendations(stats types.CoordinatorStats, efficiency map[string]float64) []types.Recommendation {
	names := make([]string, 0, len(stats.Methods))
	for name := range stats.Methods {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []types.Recommendation
	for _, name := range names {
		m := stats.Methods[name]
		if m.Usage > 0 && m.ErrorRate() > HighMethodErrorRate {
			out = append(out, types.Recommendation{
				Priority: types.PriorityMedium,
				Category: "method",
				Message:  fmt.Sprintf("%s search fails %.0f%% of the time; check backend health", name, m.ErrorRate()*100),
			})
		}
	}

	if len(efficiency) < 2 {
		return out
	}
	best, worst := "", ""
	for _, name := range names {
		e, ok := efficiency[name]
		if !ok {
			continue
		}
		if best == "" || e > efficiency[best] {
			best = name
		}
		if worst == "" || e < efficiency[worst] {
			worst = name
		}
	}
	if best != worst {
		out = append(out, types.Recommendation{
			Priority: types.PriorityLow,
			Category: "method",
			Message:  fmt.Sprintf("%s is the least efficient method; prefer %s where results allow", worst, best),
		})
	}
	return out
}

func tierRecommendation(tier types.PerformanceTier) (types.Recommendation, bool) {
	switch tier {
	case types.TierSQLite:
		return types.Recommendation{
			Priority: types.PriorityLow,
			Category: "backend",
			Message:  "Running on the SQLite tier; enable PostgreSQL in the capture service for faster queries",
		}, true
	case types.TierPostgreSQL:
		return types.Recommendation{
			Priority: types.PriorityLow,
			Category: "backend",
			Message:  "Install the pgvector extension to rank embeddings in the database",
		}, true
	}
	return types.Recommendation{}, false
}
