// Package mcp implements the Model Context Protocol (MCP) server for
// pensieve-search.
//
// The MCP server exposes five tools to AI assistants:
//   - search_activity: Search captured screen activity
//   - aggregate_activity: Search and group results
//   - suggest_queries: Complete a partial query
//   - search_performance: Statistics and tuning recommendations
//   - backend_status: Detected backend capabilities
//
// # Basic Usage
//
// The MCP server is started via the serve command:
//
//	pensieve-search serve
//
// It listens on stdin for MCP protocol messages and writes responses to
// stdout. Logs go to stderr.
//
// # Tool: search_activity
//
//	Request:
//	{
//	  "name": "search_activity",
//	  "arguments": {
//	    "query": "quarterly planning spreadsheet",
//	    "modes": ["hybrid"],
//	    "max_results": 20,
//	    "categories": ["work"],
//	    "start_time": "2024-03-01T00:00:00Z"
//	  }
//	}
//
//	Response:
//	{
//	  "query": "quarterly planning spreadsheet",
//	  "total": 2,
//	  "duration_ms": 41,
//	  "results": [
//	    {
//	      "entity_id": 8812,
//	      "relevance_score": 0.83,
//	      "search_method": "vector+text",
//	      "window_title": "Q3 planning.xlsx - Excel",
//	      "timestamp": "2024-03-04T10:12:00Z",
//	      "highlights": ["Q3 planning.xlsx - Excel"]
//	    }
//	  ]
//	}
//
// With "streaming": true the results are collected batch by batch and
// the response carries a "batches" count.
//
// # Tool: aggregate_activity
//
// Accepts the search_activity arguments plus "group_by", one of
// category, time (hour buckets, UTC), similarity (high/medium/low) or
// method. The response holds "groups" and per-group "counts".
//
// # Error Handling
//
// Errors are returned as MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32004: Empty query
//   - -32005: Search aborted (cancelled or timed out before admission)
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "pensieve-search": {
//	      "command": "/usr/local/bin/pensieve-search",
//	      "args": ["serve"],
//	      "env": {
//	        "PENSIEVE_SEARCH_PENSIEVE_URL": "http://localhost:8839"
//	      }
//	    }
//	  }
//	}
package mcp
