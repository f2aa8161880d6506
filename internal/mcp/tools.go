package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/pensieve-search/internal/searcher"
	"github.com/dshills/pensieve-search/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams = -32602 // Invalid method parameters
	ErrorCodeInternalError = -32603 // Internal JSON-RPC error
	ErrorCodeEmptyQuery    = -32004 // Query parameter is empty
	ErrorCodeSearchAborted = -32005 // Search was cancelled before it ran
)

const (
	maxToolResults     = 1000
	defaultSuggestions = 10
	maxSuggestions     = 50
)

// handleSearchActivity handles the search_activity tool invocation
func (s *Server) handleSearchActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	q, err := parseQuery(args)
	if err != nil {
		return nil, err
	}
	s.applyDefaults(&q)

	start := time.Now()
	results := []types.UnifiedResult{}
	var batches int
	if q.UseStreaming {
		seq, err := s.searcher.SearchStream(ctx, q)
		if err != nil {
			return nil, searchError(err)
		}
		for batch := range seq {
			batches++
			results = append(results, batch...)
		}
	} else {
		results, err = s.searcher.Search(ctx, q)
		if err != nil {
			return nil, searchError(err)
		}
	}

	response := map[string]interface{}{
		"query":       q.Text,
		"total":       len(results),
		"duration_ms": time.Since(start).Milliseconds(),
		"results":     results,
	}
	if q.UseStreaming {
		response["batches"] = batches
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleAggregateActivity handles the aggregate_activity tool invocation
func (s *Server) handleAggregateActivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	q, err := parseQuery(args)
	if err != nil {
		return nil, err
	}
	s.applyDefaults(&q)

	groupBy := getStringDefault(args, "group_by", string(searcher.AggregateCategory))
	by, err := searcher.ParseAggregation(groupBy)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid group_by", map[string]interface{}{
			"param":   "group_by",
			"value":   groupBy,
			"allowed": []string{"category", "time", "similarity", "method"},
		})
	}

	groups, err := s.searcher.SearchWithAggregation(ctx, q, by)
	if err != nil {
		return nil, searchError(err)
	}

	counts := make(map[string]int, len(groups))
	for key, members := range groups {
		counts[key] = len(members)
	}

	response := map[string]interface{}{
		"query":    q.Text,
		"group_by": string(by),
		"counts":   counts,
		"groups":   groups,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSuggestQueries handles the suggest_queries tool invocation
func (s *Server) handleSuggestQueries(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	partial, ok := args["partial"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "partial parameter is required", map[string]interface{}{
			"param":  "partial",
			"reason": "missing or not a string",
		})
	}

	limit := getIntDefault(args, "limit", defaultSuggestions)
	if limit < 1 || limit > maxSuggestions {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 50", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	suggestions := s.searcher.GetSuggestions(ctx, partial, limit)
	response := map[string]interface{}{
		"partial":     partial,
		"suggestions": suggestions,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchPerformance handles the search_performance tool invocation
func (s *Server) handleSearchPerformance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report := s.searcher.AnalyzePerformance()
	response := map[string]interface{}{
		"report": report,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleBackendStatus handles the backend_status tool invocation
func (s *Server) handleBackendStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	caps := s.searcher.Capabilities()
	response := map[string]interface{}{
		"capabilities": caps,
		"modes":        availableModes(caps),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// parseQuery builds a validated query from tool arguments
func parseQuery(args map[string]interface{}) (types.Query, error) {
	text, ok := args["query"].(string)
	if !ok || text == "" {
		return types.Query{}, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	q := types.NewQuery(text)
	q.MaxResults = getIntDefault(args, "max_results", types.DefaultMaxResults)
	if q.MaxResults < 1 || q.MaxResults > maxToolResults {
		return types.Query{}, newMCPError(ErrorCodeInvalidParams, "max_results must be between 1 and 1000", map[string]interface{}{
			"param": "max_results",
			"value": q.MaxResults,
		})
	}
	q.SimilarityThreshold = getFloatDefault(args, "similarity_threshold", types.DefaultSimilarityThreshold)
	q.UseStreaming = getBoolDefault(args, "streaming", false)
	q.EnableCaching = getBoolDefault(args, "use_cache", true)
	q.Categories = getStringSlice(args, "categories")

	for _, raw := range getStringSlice(args, "modes") {
		mode, err := types.ParseSearchMode(raw)
		if err != nil {
			return types.Query{}, newMCPError(ErrorCodeInvalidParams, "invalid mode", map[string]interface{}{
				"param":   "modes",
				"value":   raw,
				"allowed": searchModes,
			})
		}
		q.Modes = append(q.Modes, mode)
	}

	var tr types.TimeRange
	for _, bound := range []struct {
		key string
		dst *time.Time
	}{{"start_time", &tr.Start}, {"end_time", &tr.End}} {
		raw := getStringDefault(args, bound.key, "")
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return types.Query{}, newMCPError(ErrorCodeInvalidParams, "invalid time", map[string]interface{}{
				"param":  bound.key,
				"reason": err.Error(),
			})
		}
		*bound.dst = t
	}
	if !tr.Start.IsZero() || !tr.End.IsZero() {
		q.TimeRange = &tr
	}

	if err := q.Validate(); err != nil {
		return types.Query{}, newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	return q, nil
}

// searchError maps a coordinator error to an MCP error
func searchError(err error) error {
	switch {
	case errors.Is(err, types.ErrInvalidQuery):
		return newMCPError(ErrorCodeInvalidParams, "invalid query", map[string]interface{}{
			"reason": err.Error(),
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeSearchAborted, "search aborted", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func availableModes(caps types.BackendCapabilities) []string {
	modes := []string{string(types.ModeText), string(types.ModeSemantic), string(types.ModeHybrid), string(types.ModeStreaming)}
	if caps.VectorSearchEnabled {
		modes = append(modes, string(types.ModeVector))
	}
	return modes
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice accepts both []interface{} (decoded JSON) and []string
func getStringSlice(args map[string]interface{}, key string) []string {
	switch val := args[key].(type) {
	case []string:
		return val
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
