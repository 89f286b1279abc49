package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/logger"
	"github.com/abhisek/qbankgen/internal/store"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "qbankgen",
	Short: "Question-bank generation engine",
	Long: "qbankgen fills a test-preparation question bank from a blueprint catalog: it computes " +
		"per-cell quotas, generates the missing questions with an LLM and reports coverage gaps.",
	SilenceUsage: true,
}

// Execute runs the root command. An interrupt cancels the command context;
// generation stops after the cell or passage in flight.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite path or postgres:// DSN (overrides QBANK_DB env var)")
	rootCmd.PersistentFlags().String("catalog", "", "Blueprint catalog YAML (overrides QBANK_CATALOG env var)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("log-format", "dev", "Log format: dev or json")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then QBANK_DB env var, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	return store.DefaultDBPath()
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	dbPath, err := resolveDBPath(cmd)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}

func loadCatalog(cmd *cobra.Command) (*blueprint.Catalog, error) {
	path, _ := cmd.Flags().GetString("catalog")
	cat, err := blueprint.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func newLogger(cmd *cobra.Command) (*logger.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	format, _ := cmd.Flags().GetString("log-format")
	log, err := logger.New(format, verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return log, nil
}
