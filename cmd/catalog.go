package cmd

import (
	"fmt"

	"github.com/abhisek/qbankgen/internal/blueprint"
	"github.com/abhisek/qbankgen/internal/quota"
	"github.com/abhisek/qbankgen/internal/ui/theme"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the blueprint catalog",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate a catalog and list every total that disagrees with its distribution",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			cat *blueprint.Catalog
			err error
		)
		if len(args) == 1 {
			cat, err = blueprint.Load(args[0])
		} else {
			cat, err = loadCatalog(cmd)
		}
		if err != nil {
			return err
		}

		sections, inconsistent := 0, 0
		for _, p := range cat.Products {
			for i := range p.Sections {
				sec, err := cat.Section(p.TestType, p.Sections[i].Name)
				if err != nil {
					return err
				}
				q, err := quota.Compute(sec)
				if err != nil {
					return err
				}
				sections++
				if q.Inconsistency != nil {
					inconsistent++
					fmt.Println(theme.Warn.Render("warning: " + q.Inconsistency.Error()))
				}
			}
		}

		msg := fmt.Sprintf("catalog %s: %d products, %d sections, %d skills", cat.Version, len(cat.Products), sections, len(cat.Skills))
		if inconsistent > 0 {
			fmt.Println(theme.Warn.Render(fmt.Sprintf("%s, %d inconsistent totals", msg, inconsistent)))
			return nil
		}
		fmt.Println(theme.Good.Render(msg + ", ok"))
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}
