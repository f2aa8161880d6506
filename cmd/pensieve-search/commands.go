package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pensieve-search/internal/app"
	"github.com/dshills/pensieve-search/internal/config"
	"github.com/dshills/pensieve-search/internal/logging"
	"github.com/dshills/pensieve-search/internal/mcp"
	"github.com/dshills/pensieve-search/internal/searcher"
	"github.com/dshills/pensieve-search/internal/storage"
	"github.com/dshills/pensieve-search/pkg/types"
)

// openApp loads configuration and wires the search stack. Logs go to
// stderr so stdout stays clean for results and the MCP protocol.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})
	return app.New(ctx, cfg, logger)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ServeCmd runs the MCP server on stdio
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			server, err := mcp.NewServer(a.Searcher, a.Logger.With().Str("component", "mcp").Logger())
			if err != nil {
				return err
			}
			server.SetQueryDefaults(a.Config.SearchTimeout, a.Config.DefaultCacheTTL)

			errCh := make(chan error, 1)
			go func() { errCh <- server.Serve(ctx) }()

			select {
			case <-ctx.Done():
				a.Logger.Info().Msg("shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}
}

// SearchCmd runs one search and prints the results
func SearchCmd() *cobra.Command {
	var (
		modes      []string
		categories []string
		limit      int
		threshold  float64
		since      time.Duration
		groupBy    string
		stream     bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search captured activity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			q := types.NewQuery(strings.Join(args, " "))
			q.MaxResults = limit
			q.SimilarityThreshold = threshold
			q.Categories = categories
			q.UseStreaming = stream
			q.Timeout = a.Config.SearchTimeout
			q.CacheTTL = a.Config.DefaultCacheTTL
			for _, m := range modes {
				mode, err := types.ParseSearchMode(m)
				if err != nil {
					return err
				}
				q.Modes = append(q.Modes, mode)
			}
			if since > 0 {
				q.TimeRange = &types.TimeRange{Start: time.Now().Add(-since)}
			}

			out := cmd.OutOrStdout()
			if groupBy != "" {
				by, err := searcher.ParseAggregation(groupBy)
				if err != nil {
					return err
				}
				groups, err := a.Searcher.SearchWithAggregation(ctx, q, by)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return writeJSON(out, groups)
				}
				for key, members := range groups {
					fmt.Fprintf(out, "%s (%d)\n", key, len(members))
					printResults(out, members)
				}
				return nil
			}

			var results []types.UnifiedResult
			if stream {
				seq, err := a.Searcher.SearchStream(ctx, q)
				if err != nil {
					return err
				}
				for batch := range seq {
					results = append(results, batch...)
				}
			} else {
				results, err = a.Searcher.Search(ctx, q)
				if err != nil {
					return err
				}
			}

			if jsonOutput(cmd) {
				return writeJSON(out, results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No results")
				return nil
			}
			printResults(out, results)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&modes, "mode", nil, "Search methods in priority order (text, semantic, vector, hybrid, streaming)")
	cmd.Flags().StringSliceVar(&categories, "category", nil, "Only return these activity categories")
	cmd.Flags().IntVar(&limit, "limit", types.DefaultMaxResults, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", types.DefaultSimilarityThreshold, "Similarity threshold for semantic and vector matches")
	cmd.Flags().DurationVar(&since, "since", 0, "Only return activity captured within this duration")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "Group results by category, time, similarity or method")
	cmd.Flags().BoolVar(&stream, "stream", false, "Fetch results in batches")
	return cmd
}

func printResults(w io.Writer, results []types.UnifiedResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSCORE\tMETHOD\tTIME\tWINDOW")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\n",
			r.EntityID, r.RelevanceScore, r.SearchMethod,
			r.Timestamp.Local().Format("2006-01-02 15:04"), r.WindowTitle)
	}
	_ = tw.Flush()
}

// SuggestCmd prints completions for a partial query
func SuggestCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest <partial>",
		Short: "Suggest query completions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			suggestions := a.Searcher.GetSuggestions(ctx, args[0], limit)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), suggestions)
			}
			for _, s := range suggestions {
				fmt.Fprintf(cmd.OutOrStdout(), "%.2f  %-8s %s\n", s.Score, s.Source, s.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of suggestions")
	return cmd
}

// StatusCmd prints detected backend capabilities
func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			caps := a.Searcher.Capabilities()
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, caps)
			}
			fmt.Fprintf(out, "Service healthy:  %v\n", caps.Healthy)
			fmt.Fprintf(out, "Tier:             %s\n", caps.PerformanceTier)
			fmt.Fprintf(out, "PostgreSQL:       %v\n", caps.PostgreSQLEnabled)
			fmt.Fprintf(out, "Vector search:    %v\n", caps.VectorSearchEnabled)
			fmt.Fprintf(out, "pgvector:         %v\n", caps.PgvectorAvailable)
			fmt.Fprintf(out, "Vector dims:      %d\n", caps.VectorDimensions)
			fmt.Fprintf(out, "Local fallback:   %v\n", a.Backend.HasFallback())
			return nil
		},
	}
}

// PerfCmd runs a query set and prints the performance report
func PerfCmd() *cobra.Command {
	var queries []string

	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Run sample queries and print a performance report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for _, text := range queries {
				q := types.NewQuery(text)
				q.Timeout = a.Config.SearchTimeout
				if _, err := a.Searcher.Search(ctx, q); err != nil {
					return err
				}
			}

			report := a.Searcher.AnalyzePerformance()
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return writeJSON(out, report)
			}
			fmt.Fprintf(out, "Searches: %d  avg %.1fms  cache hit ratio %.2f  tier %s\n",
				report.Stats.TotalSearches, report.Stats.AverageResponseTimeMs,
				report.CacheHitRatio, report.PerformanceTier)
			for method, eff := range report.MethodEfficiency {
				fmt.Fprintf(out, "  %-10s efficiency %.2f\n", method, eff)
			}
			for _, b := range report.Bottlenecks {
				fmt.Fprintf(out, "Bottleneck: %s\n", b.Message)
			}
			for _, r := range report.Recommendations {
				fmt.Fprintf(out, "[%s] %s: %s\n", r.Priority, r.Category, r.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&queries, "query", []string{"meeting notes", "python", "code review"}, "Queries to run before reporting")
	return cmd
}

// VersionCmd prints build information
func VersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pensieve-search %s\n", version)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "MCP Server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
			fmt.Fprintf(out, "Build Mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "SQLite Driver: %s\n", storage.DriverName)
			return nil
		},
	}
}
