package searcher

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/dshills/pensieve-search/internal/executor"
	"github.com/dshills/pensieve-search/pkg/types"
)

// SearchStream returns a lazy sequence of result batches of
// q.StreamingBatchSize. The underlying result set is computed when the
// first batch is requested; breaking out of the loop stops all further
// work. The whole set is merged and capped at q.MaxResults before it is
// sliced, so every entity appears in exactly one batch.
//
// The streaming admission slot is held while the sequence is being
// iterated. The returned error reports an invalid query only.
func (s *Searcher) SearchStream(ctx context.Context, q types.Query) (iter.Seq[[]types.UnifiedResult], error) {
	q = q.WithDefaults()
	q.UseStreaming = true
	if err := q.Validate(); err != nil {
		return nil, err
	}

	return func(yield func([]types.UnifiedResult) bool) {
		if err := s.streamGate.Acquire(ctx, 1); err != nil {
			s.logger.Debug().Err(err).Msg("stream admission cancelled")
			return
		}
		defer s.streamGate.Release(1)
		s.stats.enter()
		defer s.stats.leave()

		searchID := uuid.NewString()
		logger := s.logger.With().Str("search_id", searchID).Logger()
		start := s.now()
		s.history.add(q.Text)

		cur := executor.NewReducedCursor(s.exec, q, func(lists [][]types.RawRecord) []types.UnifiedResult {
			return rank(q, lists)
		})
		out := outcome{method: string(types.ModeStreaming)}
		defer func() {
			out.fallback = cur.Fallback()
			out.failed = out.failed || out.fallback || cur.Degraded() != nil
			out.latency = s.now().Sub(start)
			s.stats.record(out)
		}()

		size := q.StreamingBatchSize
		for offset := 0; ; offset += size {
			batch, err := cur.Batch(ctx, offset, size)
			if err != nil {
				out.failed = true
				logger.Error().Err(err).Int("offset", offset).Msg("streaming search failed")
				s.reportFailure(searchID, err)
				return
			}
			if offset == 0 {
				if cur.Fallback() {
					s.reportFailure(searchID, errServedFromFallback)
				} else if d := cur.Degraded(); d != nil {
					s.reportFailure(searchID, d)
				}
			}
			if len(batch) == 0 {
				return
			}

			s.stats.batch()
			logger.Debug().Int("offset", offset).Int("size", len(batch)).Msg("streaming batch")
			if !yield(batch) {
				return
			}
		}
	}, nil
}
