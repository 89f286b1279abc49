package cmd

import (
	"fmt"
	"os"

	"github.com/abhisek/qbankgen/internal/bank"
	"github.com/abhisek/qbankgen/internal/gaps"
	"github.com/abhisek/qbankgen/internal/quota"
	"github.com/spf13/cobra"
)

var gapsCmd = &cobra.Command{
	Use:   "gaps <test-type> [section]",
	Short: "Report coverage gaps against the quota",
	Long: "With a section, prints one row per (mode, sub-skill, difficulty) cell. " +
		"Without one, or with --summary, prints per-section totals for the product.",
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		strategyName, _ := cmd.Flags().GetString("strategy")
		strategy, err := quota.ParseStrategy(strategyName)
		if err != nil {
			return err
		}
		modeNames, _ := cmd.Flags().GetStringSlice("mode")
		var modes []bank.TestMode
		for _, m := range modeNames {
			modes = append(modes, bank.TestMode(m))
		}
		asJSON, _ := cmd.Flags().GetBool("json")
		summary, _ := cmd.Flags().GetBool("summary")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		reporter := gaps.New(cat, s, strategy)
		ctx := cmd.Context()

		if len(args) == 1 || summary {
			sum, err := reporter.Summary(ctx, args[0], modes)
			if err != nil {
				return fmt.Errorf("gap summary: %w", err)
			}
			if asJSON {
				return gaps.WriteJSON(os.Stdout, sum)
			}
			fmt.Print(sum.Render())
			return nil
		}

		rep, err := reporter.Report(ctx, args[0], args[1], modes)
		if err != nil {
			return fmt.Errorf("gap report: %w", err)
		}
		if asJSON {
			return gaps.WriteJSON(os.Stdout, rep)
		}
		fmt.Print(rep.Render())
		return nil
	},
}

func init() {
	gapsCmd.Flags().StringSliceP("mode", "m", nil, "Test mode(s); defaults to every mode of the product")
	gapsCmd.Flags().StringP("strategy", "s", "balanced", "Difficulty strategy: balanced or weighted:E,M,H")
	gapsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	gapsCmd.Flags().Bool("summary", false, "Print per-section totals even when a section is given")
}
