package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/pensieve-search/internal/searcher"
	"github.com/dshills/pensieve-search/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "pensieve-search"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// Server wraps the MCP server with the search coordinator
type Server struct {
	mcp      *server.MCPServer
	searcher *searcher.Searcher
	logger   zerolog.Logger

	timeout  time.Duration
	cacheTTL time.Duration
}

// NewServer creates an MCP server exposing srch as tools
func NewServer(srch *searcher.Searcher, logger zerolog.Logger) (*Server, error) {
	if srch == nil {
		return nil, errors.New("mcp: searcher is required")
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		searcher: srch,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// SetQueryDefaults overrides the per-query timeout and cache TTL used
// for tool calls. Zero values keep the query defaults.
func (s *Server) SetQueryDefaults(timeout, cacheTTL time.Duration) {
	s.timeout = timeout
	s.cacheTTL = cacheTTL
}

func (s *Server) applyDefaults(q *types.Query) {
	if s.timeout > 0 {
		q.Timeout = s.timeout
	}
	if s.cacheTTL > 0 {
		q.CacheTTL = s.cacheTTL
	}
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Str("version", ServerVersion).Msg("mcp server listening on stdio")
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(searchActivityTool(), s.handleSearchActivity)
	s.mcp.AddTool(aggregateActivityTool(), s.handleAggregateActivity)
	s.mcp.AddTool(suggestQueriesTool(), s.handleSuggestQueries)
	s.mcp.AddTool(searchPerformanceTool(), s.handleSearchPerformance)
	s.mcp.AddTool(backendStatusTool(), s.handleBackendStatus)
}
