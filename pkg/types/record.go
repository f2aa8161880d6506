package types

import "time"

// Record sources
const (
	SourcePensieve = "pensieve"
	SourceFallback = "fallback"
	SourcePostgres = "postgres"
)

// RawRecord is a backend-agnostic capture record before unification.
// Backends fill the capture fields; the executor fills Score and Method.
type RawRecord struct {
	EntityID    int64
	Filepath    string
	CreatedAt   time.Time
	WindowTitle string
	OCRText     string
	Tasks       []string
	Category    string
	Embedding   []float32

	// Similarity is the remapped cosine score for vector hits
	Similarity *float64

	Source string
	Score  float64
	Method SearchMode
}

// ScoredCopy returns a copy of the record tagged with a method and score
func (r RawRecord) ScoredCopy(method SearchMode, score float64) RawRecord {
	r.Method = method
	r.Score = score
	return r
}
