package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var searchModes = []string{"text", "semantic", "vector", "hybrid", "streaming"}

// searchActivityTool returns the tool definition for search_activity
func searchActivityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_activity",
		Description: "Search captured screen activity by window title, OCR text and extracted tasks",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: queryProperties(),
			Required:   []string{"query"},
		},
	}
}

// aggregateActivityTool returns the tool definition for aggregate_activity
func aggregateActivityTool() mcp.Tool {
	props := queryProperties()
	props["group_by"] = map[string]interface{}{
		"type":        "string",
		"description": "Grouping applied to the results",
		"enum":        []string{"category", "time", "similarity", "method"},
		"default":     "category",
	}
	return mcp.Tool{
		Name:        "aggregate_activity",
		Description: "Search captured activity and group the results by category, hour, similarity band or search method",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: props,
			Required:   []string{"query"},
		},
	}
}

// suggestQueriesTool returns the tool definition for suggest_queries
func suggestQueriesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest_queries",
		Description: "Suggest query completions from recent searches and similar activity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"partial": map[string]interface{}{
					"type":        "string",
					"description": "Partial query text typed so far",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of suggestions (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"partial"},
		},
	}
}

// searchPerformanceTool returns the tool definition for search_performance
func searchPerformanceTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_performance",
		Description: "Report search statistics, bottlenecks and tuning recommendations",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// backendStatusTool returns the tool definition for backend_status
func backendStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "backend_status",
		Description: "Show the detected capture backend capabilities and performance tier",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func queryProperties() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Search text (natural language or keywords)",
		},
		"modes": map[string]interface{}{
			"type":        "array",
			"description": "Search methods in priority order; omit to let the server choose",
			"items": map[string]interface{}{
				"type": "string",
				"enum": searchModes,
			},
		},
		"max_results": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of results to return (1-1000)",
			"default":     50,
			"minimum":     1,
			"maximum":     1000,
		},
		"similarity_threshold": map[string]interface{}{
			"type":        "number",
			"description": "Minimum similarity for semantic and vector matches",
			"default":     0.7,
			"minimum":     0,
			"maximum":     1,
		},
		"categories": map[string]interface{}{
			"type":        "array",
			"description": "Only return activity in these categories",
			"items":       map[string]interface{}{"type": "string"},
		},
		"start_time": map[string]interface{}{
			"type":        "string",
			"description": "RFC3339 lower bound on capture time",
		},
		"end_time": map[string]interface{}{
			"type":        "string",
			"description": "RFC3339 upper bound on capture time",
		},
		"streaming": map[string]interface{}{
			"type":        "boolean",
			"description": "Deliver results in batches (reported as a batch count)",
			"default":     false,
		},
		"use_cache": map[string]interface{}{
			"type":        "boolean",
			"description": "Serve and store results in the result cache",
			"default":     true,
		},
	}
}
