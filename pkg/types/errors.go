package types

import "errors"

// Domain errors for type validation
var (
	// ErrInvalidQuery is returned when a query violates its invariants
	ErrInvalidQuery = errors.New("invalid query")
)
