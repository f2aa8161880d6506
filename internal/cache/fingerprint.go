package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/dshills/pensieve-search/pkg/types"
)

// Fingerprint returns a deterministic key for the parts of q that affect
// its results. Mode and category order do not matter; the canonical form
// is JSON with sorted keys, hashed with SHA-256.
func Fingerprint(q types.Query) string {
	modes := make([]string, len(q.Modes))
	for i, m := range q.Modes {
		modes[i] = string(m)
	}
	sort.Strings(modes)

	categories := append([]string(nil), q.Categories...)
	sort.Strings(categories)

	var timeRange interface{}
	if q.TimeRange != nil {
		timeRange = map[string]string{
			"start": isoTime(q.TimeRange.Start),
			"end":   isoTime(q.TimeRange.End),
		}
	}

	// map keys are marshalled in sorted order
	canonical := map[string]interface{}{
		"text":                 strings.TrimSpace(q.Text),
		"modes":                modes,
		"max_results":          q.MaxResults,
		"categories":           categories,
		"time_range":           timeRange,
		"similarity_threshold": q.SimilarityThreshold,
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		// Only reachable with NaN thresholds, which Validate rejects
		data = []byte(q.Text)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
