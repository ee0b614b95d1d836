package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/universe"
)

var importCmd = &cobra.Command{
	Use:   "import <prices.csv>",
	Short: "Load daily prices into the history database",
	Long: `Load daily prices from a CSV file into the history database.

The header must name symbol, date (YYYY-MM-DD) and close columns; open, high,
low and volume are optional. Rows for an existing symbol and date are replaced.
Abnormal closes (spikes, crashes, non-positive values) are repaired from their
neighbours and reported.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		db, err := database.New(database.Config{Path: cfg.HistoryDBPath, Profile: database.ProfileStandard, Name: "history"})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}

		history := universe.NewHistoryDB(db.Conn(), log)
		results, err := history.Import(cmd.Context(), f, universe.NewPriceValidator(log))
		if err != nil {
			return err
		}
		renderImport(cmd.OutOrStdout(), db.Path(), results)
		return nil
	},
}
