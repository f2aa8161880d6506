package types

import (
	"fmt"
	"strings"
	"time"
)

// SearchMode names a search method the coordinator can route a query to
type SearchMode string

const (
	ModeText      SearchMode = "text"      // Keyword relevance over window titles, OCR text and tasks
	ModeSemantic  SearchMode = "semantic"  // Word-overlap approximation of semantic relevance
	ModeVector    SearchMode = "vector"    // Embedding cosine similarity
	ModeHybrid    SearchMode = "hybrid"    // Text + vector (or semantic) merged
	ModeStreaming SearchMode = "streaming" // Batched delivery of a larger result set

	// ModeFallback labels results served by the local store when the
	// capture service is unavailable. It is never requested by callers.
	ModeFallback SearchMode = "fallback"
)

// Query defaults
const (
	DefaultMaxResults          = 50
	DefaultSimilarityThreshold = 0.7
	DefaultStreamingBatchSize  = 20
	DefaultCacheTTL            = 5 * time.Minute
	DefaultTimeout             = 30 * time.Second
)

// ParseSearchMode converts a caller-supplied string to a SearchMode
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeSemantic:
		return ModeSemantic, nil
	case ModeVector:
		return ModeVector, nil
	case ModeHybrid:
		return ModeHybrid, nil
	case ModeStreaming:
		return ModeStreaming, nil
	}
	return "", fmt.Errorf("%w: unknown search mode %q", ErrInvalidQuery, s)
}

// TimeRange bounds results by capture time (inclusive on both ends)
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range
func (r *TimeRange) Contains(t time.Time) bool {
	if r == nil {
		return true
	}
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Query describes one caller search request. It is built per call and
// treated as immutable once handed to the coordinator.
type Query struct {
	Text string

	// Modes lists requested methods in priority order. Empty means the
	// coordinator picks a method itself.
	Modes []SearchMode

	MaxResults          int
	TimeRange           *TimeRange
	Categories          []string
	SimilarityThreshold float64

	UseStreaming       bool
	StreamingBatchSize int

	EnableCaching bool
	CacheTTL      time.Duration

	Timeout time.Duration
}

// NewQuery returns a query for text with default settings
func NewQuery(text string) Query {
	return Query{
		Text:                text,
		MaxResults:          DefaultMaxResults,
		SimilarityThreshold: DefaultSimilarityThreshold,
		StreamingBatchSize:  DefaultStreamingBatchSize,
		EnableCaching:       true,
		CacheTTL:            DefaultCacheTTL,
		Timeout:             DefaultTimeout,
	}
}

// WithDefaults fills unset optional fields. MaxResults and the threshold
// are left alone so Validate can reject bad values.
func (q Query) WithDefaults() Query {
	if q.StreamingBatchSize <= 0 {
		q.StreamingBatchSize = DefaultStreamingBatchSize
	}
	if q.CacheTTL <= 0 {
		q.CacheTTL = DefaultCacheTTL
	}
	if q.Timeout <= 0 {
		q.Timeout = DefaultTimeout
	}
	return q
}

// Validate checks the query invariants
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("%w: text cannot be empty", ErrInvalidQuery)
	}
	if q.MaxResults <= 0 {
		return fmt.Errorf("%w: max results must be positive, got %d", ErrInvalidQuery, q.MaxResults)
	}
	if q.SimilarityThreshold < 0 || q.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be within [0,1], got %.3f", ErrInvalidQuery, q.SimilarityThreshold)
	}
	if q.TimeRange != nil && !q.TimeRange.Start.IsZero() && !q.TimeRange.End.IsZero() &&
		q.TimeRange.Start.After(q.TimeRange.End) {
		return fmt.Errorf("%w: time range start is after end", ErrInvalidQuery)
	}
	for _, m := range q.Modes {
		if _, err := ParseSearchMode(string(m)); err != nil {
			return err
		}
	}
	return nil
}

// HasMode reports whether mode was explicitly requested
func (q Query) HasMode(mode SearchMode) bool {
	for _, m := range q.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// WordCount returns the number of whitespace-separated words in the text
func (q Query) WordCount() int {
	return len(strings.Fields(q.Text))
}
