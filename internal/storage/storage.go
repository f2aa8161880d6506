package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrReadOnly is returned when a write is attempted on a read-only store
	ErrReadOnly = errors.New("store is read-only")
	// ErrMalformedEmbedding is returned when a stored embedding cannot be decoded
	ErrMalformedEmbedding = errors.New("malformed stored embedding")
)

// Metadata keys written by the capture daemon
const (
	KeyActiveWindow     = "active_window"
	KeyOCRResult        = "ocr_result"
	KeyEmbedding        = "embedding"
	KeyTasks            = "tasks"
	KeyActivityCategory = "activity_category"
)

// textKeys are the metadata keys searched by keyword queries
var textKeys = []string{KeyActiveWindow, KeyOCRResult, KeyTasks}

// Store is the read side of a capture database. The capture daemon owns
// the data; this subsystem never writes through this interface.
type Store interface {
	// SearchText returns entities whose window title, OCR text or tasks
	// contain any word of text, newest first
	SearchText(ctx context.Context, text string, limit int, filter *Filter) ([]Entity, error)

	// RecentEntities returns the newest entities matching filter
	RecentEntities(ctx context.Context, limit int, filter *Filter) ([]Entity, error)

	// ListMetadata returns key/value metadata for each requested entity
	ListMetadata(ctx context.Context, ids []int64) (map[int64]map[string]string, error)

	// HasVectorArtifacts reports whether the store already holds embeddings
	HasVectorArtifacts(ctx context.Context) (bool, error)

	Close() error
}

// VectorStore is implemented by stores that can rank by embedding natively
type VectorStore interface {
	// SearchVector returns entities ranked by remapped cosine score
	// ((cos+1)/2), dropping those below threshold
	SearchVector(ctx context.Context, vector []float32, threshold float64, limit int, filter *Filter) ([]VectorHit, error)

	// VectorStats describes the stored vectors
	VectorStats(ctx context.Context) (VectorStats, error)
}

// Entity is one captured item (usually a screenshot)
type Entity struct {
	ID            int64
	Filepath      string
	CreatedAt     time.Time
	FileTypeGroup string
}

// Filter narrows queries by capture time and activity category
type Filter struct {
	Start      time.Time
	End        time.Time
	Categories []string
}

// IsEmpty reports whether the filter has no constraints
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Start.IsZero() && f.End.IsZero() && len(f.Categories) == 0)
}

// VectorHit is a native vector search result
type VectorHit struct {
	Entity Entity
	Score  float64
}

// VectorStats describes vectors held by a VectorStore
type VectorStats struct {
	PgvectorAvailable bool
	Dimensions        int
	Count             int
}
