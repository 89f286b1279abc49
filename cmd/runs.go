package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/qbankgen/internal/store"
	"github.com/abhisek/qbankgen/internal/ui/theme"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect section run history",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent section runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		showWarnings, _ := cmd.Flags().GetBool("warnings")

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		runs, err := s.RunRepo().ListRuns(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		fmt.Printf("%-19s  %-28s  %-12s  %-16s  %5s  %5s  %5s  %9s  %s\n",
			"Started", "Section", "Mode", "Strategy", "Gen", "Fail", "Psg", "Cost", "OK")
		fmt.Println(strings.Repeat("─", 118))
		for _, r := range runs {
			ok := theme.Good.Render("✓")
			if !r.Success {
				ok = theme.Bad.Render("✗")
			}
			if r.DryRun {
				ok += " dry"
			}
			fmt.Printf("%-19s  %-28s  %-12s  %-16s  %5d  %5d  %5d  %9s  %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				truncate(r.TestType+"/"+r.Section, 28),
				truncate(r.Mode, 12),
				truncate(r.Strategy, 16),
				r.Generated, r.Failed, r.Passages,
				formatCost(r.CostUSD),
				ok,
			)
			if showWarnings {
				for _, w := range r.Warnings {
					fmt.Println(theme.Dim.Render("    " + w))
				}
			}
		}
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntP("limit", "n", 20, "Number of runs to show")
	runsListCmd.Flags().BoolP("warnings", "w", false, "Show run warnings")

	runsCmd.AddCommand(runsListCmd)
}
