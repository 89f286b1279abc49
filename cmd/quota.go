package cmd

import (
	"fmt"
	"strings"

	"github.com/abhisek/qbankgen/internal/quota"
	"github.com/abhisek/qbankgen/internal/ui/theme"
	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota <test-type> <section>",
	Short: "Show the per-sub-skill and per-difficulty targets of a section",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		sec, err := cat.Section(args[0], args[1])
		if err != nil {
			return err
		}
		strategyName, _ := cmd.Flags().GetString("strategy")
		strategy, err := quota.ParseStrategy(strategyName)
		if err != nil {
			return err
		}
		q, err := quota.Compute(sec)
		if err != nil {
			return err
		}

		fmt.Println(theme.Title.Render(fmt.Sprintf("%s / %s  (%s, %s)", q.TestType, q.Section, q.Strategy, strategy.Name())))
		fmt.Printf("%-32s  %6s  %6s  %6s  %6s\n", "Sub-skill", "Total", "Easy", "Medium", "Hard")
		fmt.Println(strings.Repeat("─", 66))
		for _, t := range q.SubSkills {
			split := strategy.Split(t.Count)
			fmt.Printf("%-32s  %6d  %6d  %6d  %6d\n", truncate(t.SubSkill, 32), t.Count, split[0], split[1], split[2])
		}
		fmt.Println(strings.Repeat("─", 66))
		fmt.Printf("%-32s  %6d\n", "TOTAL (per mode)", q.Derived)

		if len(q.Passages) > 0 {
			fmt.Println()
			fmt.Println(theme.Header.Render("Passages"))
			for _, b := range q.Passages {
				var parts []string
				for _, t := range b.SubSkills {
					parts = append(parts, fmt.Sprintf("%s=%d", t.SubSkill, t.Count))
				}
				fmt.Printf("  %-16s %d × %d questions  (%s)\n", b.PassageType, b.Passages, b.PerPassage, strings.Join(parts, ", "))
			}
		}

		if q.Inconsistency != nil {
			fmt.Println()
			fmt.Println(theme.Warn.Render("warning: " + q.Inconsistency.Error()))
		}
		return nil
	},
}

func init() {
	quotaCmd.Flags().StringP("strategy", "s", "balanced", "Difficulty strategy: balanced or weighted:E,M,H")
}
