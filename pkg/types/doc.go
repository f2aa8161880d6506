// Package types provides shared type definitions for the activity search subsystem.
//
// Query carries caller intent; RawRecord is what backends return before
// scoring; UnifiedResult is the one shape every search method is converted
// to before it reaches a caller:
//
//	q := types.NewQuery("python coding")
//	q.Modes = []types.SearchMode{types.ModeText}
//	q.MaxResults = 5
//	if err := q.Validate(); err != nil {
//	    return err
//	}
//
// BackendCapabilities records which storage tier (sqlite, postgresql,
// pgvector) is active, and CoordinatorStats / PerformanceReport expose the
// coordinator's running counters.
package types
