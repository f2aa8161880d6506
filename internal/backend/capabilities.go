package backend

import (
	"context"

	"github.com/dshills/pensieve-search/pkg/types"
)

// DetectCapabilities probes the capture service and the configured stores.
// An unreachable service yields the conservative defaults: sqlite tier,
// vector search off, 100k max vectors. The result is not stored; New
// stores the one it computes.
func (a *Adapter) DetectCapabilities(ctx context.Context) types.BackendCapabilities {
	caps := types.DefaultCapabilities()
	caps.DetectedAt = a.now()

	if a.service != nil {
		if err := a.service.Health(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("capture service health probe failed, using conservative capabilities")
		} else {
			caps.Healthy = true
			cfg, err := a.service.Config(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("capture service config unavailable")
			} else {
				caps.PostgreSQLEnabled = cfg.PostgreSQLEnabled
				caps.VectorSearchEnabled = cfg.VectorSearchEnabled
				caps.VectorDimensions = cfg.VectorDimensions
				if cfg.MaxVectors > 0 {
					caps.MaxVectors = cfg.MaxVectors
				}
				caps.PerformanceTier = types.ComputeTier(cfg.PostgreSQLEnabled, cfg.VectorSearchEnabled)
			}
		}
	}

	if a.native != nil {
		stats, err := a.native.VectorStats(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("failed to inspect native vector store")
		} else {
			caps.PgvectorAvailable = stats.PgvectorAvailable && caps.PostgreSQLEnabled
			if caps.VectorDimensions == 0 {
				caps.VectorDimensions = stats.Dimensions
			}
		}
	}
	caps.NormalizeTier()

	if a.fallback != nil {
		has, err := a.fallback.HasVectorArtifacts(ctx)
		if err != nil {
			a.logger.Debug().Err(err).Msg("failed to check local store for vector artifacts")
		} else if has && !caps.PostgreSQLEnabled {
			caps.SQLiteWithVectors = true
		}
	}

	a.logger.Info().
		Str("tier", string(caps.PerformanceTier)).
		Bool("healthy", caps.Healthy).
		Bool("vector_search", caps.VectorSearchEnabled).
		Bool("pgvector", caps.PgvectorAvailable).
		Bool("sqlite_with_vectors", caps.SQLiteWithVectors).
		Msg("detected backend capabilities")

	return caps
}
