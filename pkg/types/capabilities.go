package types

import "time"

// PerformanceTier is the detected capability level of the storage backend
type PerformanceTier string

const (
	TierSQLite     PerformanceTier = "sqlite"
	TierPostgreSQL PerformanceTier = "postgresql"
	TierPgvector   PerformanceTier = "pgvector"
)

// DefaultMaxVectors is reported when the backend does not say otherwise
const DefaultMaxVectors = 100_000

// BackendCapabilities is the feature set detected for the storage backend
type BackendCapabilities struct {
	PostgreSQLEnabled   bool            `json:"postgresql_enabled"`
	VectorSearchEnabled bool            `json:"vector_search_enabled"`
	PgvectorAvailable   bool            `json:"pgvector_available"`
	VectorDimensions    int             `json:"vector_dimensions"`
	MaxVectors          int             `json:"max_vectors"`
	PerformanceTier     PerformanceTier `json:"performance_tier"`

	// SQLiteWithVectors marks a local store that already holds embeddings
	// while PostgreSQL is off. It does not change the execution tier.
	SQLiteWithVectors bool `json:"sqlite_with_vectors"`

	Healthy    bool      `json:"healthy"`
	DetectedAt time.Time `json:"detected_at"`
}

// DefaultCapabilities is the conservative set used when the service is unreachable
func DefaultCapabilities() BackendCapabilities {
	return BackendCapabilities{
		MaxVectors:      DefaultMaxVectors,
		PerformanceTier: TierSQLite,
	}
}

// ComputeTier derives the tier from the postgres and vector flags
func ComputeTier(postgres, vector bool) PerformanceTier {
	switch {
	case postgres && vector:
		return TierPgvector
	case postgres:
		return TierPostgreSQL
	default:
		return TierSQLite
	}
}

// NormalizeTier downgrades a pgvector tier when pgvector is not available
func (c *BackendCapabilities) NormalizeTier() {
	if c.PerformanceTier == TierPgvector && !c.PgvectorAvailable {
		c.PerformanceTier = TierPostgreSQL
	}
	if c.PerformanceTier == "" {
		c.PerformanceTier = TierSQLite
	}
}
