package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pensieve-search",
		Short: "Search captured screen activity",
		Long: `pensieve-search routes queries over Pensieve screen captures to text,
semantic, vector and hybrid search and unifies the results.

Environment variables (prefix PENSIEVE_SEARCH_):
  PENSIEVE_URL        Capture service base URL (default: http://localhost:8839)
  FALLBACK_DB_PATH    Local capture database (default: ~/.memos/database.db)
  POSTGRES_URL        Native PostgreSQL/pgvector store (optional)
  EMBEDDING_PROVIDER  openai, none or local (default: openai with OPENAI_API_KEY, else none)
  LOG_LEVEL           debug, info, warn or error (default: info)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(ServeCmd())
	rootCmd.AddCommand(SearchCmd())
	rootCmd.AddCommand(SuggestCmd())
	rootCmd.AddCommand(StatusCmd())
	rootCmd.AddCommand(PerfCmd())
	rootCmd.AddCommand(VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
