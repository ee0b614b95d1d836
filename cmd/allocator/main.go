// Command allocator runs portfolio optimizations from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/pkg/logger"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes by error kind.
const (
	exitFailure     = 1
	exitValidation  = 2
	exitConvergence = 3
	exitInvariant   = 4
)

var (
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch optimization.ErrorKind(err) {
	case "validation_error":
		return exitValidation
	case "convergence_failure":
		return exitConvergence
	case "bounds_violation", "invariant_violation":
		return exitInvariant
	default:
		return exitFailure
	}
}

var rootCmd = &cobra.Command{
	Use:           "allocator",
	Short:         "Portfolio weight optimization",
	Long:          "Compute optimal portfolio weights from price history with mean-variance, risk parity, minimum variance, maximum Sharpe or Black-Litterman.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.LogLevel = level
		}
		if db, _ := cmd.Flags().GetString("db"); db != "" {
			cfg.HistoryDBPath = db
		}
		log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true, Output: os.Stderr})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("db", "", "price history database (default: $ALLOCATOR_HISTORY_DB)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(frontierCmd)
	rootCmd.AddCommand(importCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "allocator %s (commit %s)\n", version, commit)
	},
}

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List optimization methods",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range optimization.AllMethods() {
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
	},
}
