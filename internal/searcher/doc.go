// Package searcher coordinates activity search across keyword, semantic,
// vector and streaming methods and unifies their output.
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Options{
//	    Executor: exec,
//	    Cache:    resultCache,
//	    Logger:   logger,
//	})
//
//	q := types.NewQuery("python coding")
//	q.MaxResults = 10
//	results, err := s.Search(ctx, q)
//
//	for _, r := range results {
//	    fmt.Printf("%d %.2f %s %s\n", r.EntityID, r.RelevanceScore, r.SearchMethod, r.WindowTitle)
//	}
//
// # Method Selection
//
// Explicitly requested modes are tried in order and the first one whose
// prerequisites hold is used (vector needs an embedder and a backend
// with vector search enabled). When no requested mode is usable the
// semantic approximation runs instead. Without explicit modes:
//
//   - more than 100 results requested: streaming
//   - more than 5 words and vectors available: vector
//   - similarity threshold below 0.8: hybrid
//   - otherwise: text
//
// # Merging
//
// Results from every sub-method are grouped by entity id. A duplicated
// entity keeps its highest score and carries every distinct method
// label, so an entity found by both halves of a hybrid search reports
// "vector+text". Keyword scores and remapped cosine scores are compared
// as-is without renormalization.
//
// # Failure Handling
//
// Search never returns backend errors. When the capture service is
// unreachable the local fallback store answers and results are labelled
// "fallback". When every method fails the result is an empty list and
// the failure shows up in Stats as a method error. A timeout returns the
// results gathered so far and counts as a timed-out search.
//
// # Streaming
//
//	seq, err := s.SearchStream(ctx, q)
//	for batch := range seq {
//	    render(batch)
//	    if enough {
//	        break // no further backend calls
//	    }
//	}
//
// Batches are merged independently; an entity may repeat across batches.
//
// # Concurrency
//
// At most 10 searches and 3 streams run at once by default; callers over
// the limit wait for a slot or for their context to end. Statistics are
// updated under a single lock held only for the update.
package searcher
