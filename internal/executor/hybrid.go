package executor

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/pkg/types"
)

// ExecuteHybrid runs text search and vector search concurrently, using
// the semantic approximation instead of vector when no embedding can be
// produced. Both lists are returned unmerged, the vector/semantic list
// first. When the capture service is unavailable for the text half, that
// half is served from the fallback store. An error is returned only when
// both halves fail.
func (e *Executor) ExecuteHybrid(ctx context.Context, q types.Query) ([][]types.RawRecord, error) {
	o, err := e.runHybrid(ctx, q)
	if err != nil {
		return nil, err
	}
	return o.Lists, nil
}

func (e *Executor) runHybrid(ctx context.Context, q types.Query) (Outcome, error) {
	var (
		textRecs, otherRecs []types.RawRecord
		textErr, otherErr   error
		fellBack            bool
	)

	var g errgroup.Group
	g.Go(func() error {
		textRecs, textErr = e.ExecuteText(ctx, q)
		if textErr == nil || !errors.Is(textErr, backend.ErrBackendUnavailable) || ctx.Err() != nil {
			return nil
		}
		e.logger.Warn().Err(textErr).Msg("hybrid: backend unavailable, text half using fallback store")
		fbRecs, fbErr := e.ExecuteFallback(ctx, q)
		if fbErr != nil {
			textErr = errors.Join(textErr, fbErr)
			return nil
		}
		textRecs, textErr, fellBack = fbRecs, nil, true
		return nil
	})
	g.Go(func() error {
		otherRecs, otherErr = e.executeSimilarity(ctx, q)
		return nil
	})
	_ = g.Wait()

	if textErr != nil && otherErr != nil {
		return Outcome{}, fmt.Errorf("hybrid search: %w", errors.Join(textErr, otherErr))
	}
	out := Outcome{Lists: [][]types.RawRecord{otherRecs, textRecs}, Fallback: fellBack}
	if textErr != nil {
		e.logger.Warn().Err(textErr).Msg("hybrid: text half failed")
		out.Degraded = fmt.Errorf("hybrid text half: %w", textErr)
	}
	if otherErr != nil {
		e.logger.Warn().Err(otherErr).Msg("hybrid: similarity half failed")
	}
	return out, nil
}

// executeSimilarity prefers vector search and degrades to the semantic
// approximation when vectors cannot be used
func (e *Executor) executeSimilarity(ctx context.Context, q types.Query) ([]types.RawRecord, error) {
	if !e.VectorAvailable() {
		return e.ExecuteSemanticApprox(ctx, q)
	}

	recs, err := e.ExecuteVector(ctx, q)
	if err == nil {
		return recs, nil
	}
	if errors.Is(err, ErrEmbeddingUnavailable) || errors.Is(err, backend.ErrVectorSearchDisabled) {
		e.logger.Debug().Err(err).Msg("vector unavailable, using semantic approximation")
		return e.ExecuteSemanticApprox(ctx, q)
	}
	return nil, err
}
