package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/dshills/pensieve-search/internal/backend"
	"github.com/dshills/pensieve-search/pkg/types"
)

// Cursor slices one method's result set into batches. The set is
// computed on the first Batch call, reduced to a single ranked list of
// T and capped at the query's MaxResults. It is reused afterwards, so a
// consumer that stops early causes no further backend calls.
type Cursor[T any] struct {
	exec   *Executor
	q      types.Query
	mode   types.SearchMode
	reduce func([][]types.RawRecord) []T

	once     sync.Once
	items    []T
	err      error
	used     types.SearchMode
	fallback bool
	degraded error
}

// NewCursor prepares a cursor over the streaming base method for q that
// yields distinct raw records
func (e *Executor) NewCursor(q types.Query) *Cursor[types.RawRecord] {
	return NewReducedCursor(e, q, Distinct)
}

// NewReducedCursor prepares a cursor over the streaming base method for
// q. reduce turns the per-method lists into one ranked, deduplicated
// list before any batch is cut from it.
func NewReducedCursor[T any](e *Executor, q types.Query, reduce func([][]types.RawRecord) []T) *Cursor[T] {
	return &Cursor[T]{exec: e, q: q, mode: e.StreamingBase(), reduce: reduce}
}

// Batch returns items [offset, offset+size). An empty slice means the
// set is exhausted.
func (c *Cursor[T]) Batch(ctx context.Context, offset, size int) ([]T, error) {
	c.once.Do(func() { c.load(ctx) })
	if c.err != nil {
		return nil, c.err
	}
	if offset < 0 || size <= 0 || offset >= len(c.items) {
		return nil, nil
	}
	end := offset + size
	if end > len(c.items) {
		end = len(c.items)
	}
	return append([]T(nil), c.items[offset:end]...), nil
}

// Method returns the method that produced the set, fallback included.
// It is empty before the first Batch call.
func (c *Cursor[T]) Method() types.SearchMode {
	return c.used
}

// Fallback reports whether any part of the set came from the fallback
// store
func (c *Cursor[T]) Fallback() bool {
	return c.fallback
}

// Degraded returns the error of a hybrid half that failed while the set
// was still produced, or nil
func (c *Cursor[T]) Degraded() error {
	return c.degraded
}

func (c *Cursor[T]) load(ctx context.Context) {
	c.used = c.mode
	o, err := c.exec.Run(ctx, c.mode, c.q)
	if err != nil && errors.Is(err, backend.ErrBackendUnavailable) && ctx.Err() == nil {
		c.exec.logger.Warn().Err(err).Msg("streaming: backend unavailable, using fallback store")
		c.used = types.ModeFallback
		o, err = c.exec.Run(ctx, types.ModeFallback, c.q)
	}
	if err != nil {
		c.err = err
		return
	}
	c.fallback = o.Fallback
	c.degraded = o.Degraded

	items := c.reduce(o.Lists)
	if c.q.MaxResults > 0 && len(items) > c.q.MaxResults {
		items = items[:c.q.MaxResults]
	}
	c.items = items
}
