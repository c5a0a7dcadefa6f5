package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan [tree-id]",
	Short: "Show the validation plan for a tree",
	Long: `Show the ordered validation steps for a tree.

With --file the plan is computed locally from a TOML tree file and no server
is contacted.`,
	GroupID: "validation",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, _ := cmd.Flags().GetString("entry")
		file, _ := cmd.Flags().GetString("file")
		out := cmd.OutOrStdout()

		if file != "" {
			_, g, err := loadLocalTree(file, optionalArg(args))
			if err != nil {
				return err
			}
			p, err := plan.Build(g, entry)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(out, p)
			}
			printWarnings(out, g.Warnings())
			printPlan(out, p)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("tree-id is required without --file")
		}
		p, err := navClient.Plan(context.Background(), args[0], tenantID, entry)
		if err != nil {
			return fmt.Errorf("planning %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(out, p)
		}
		printPlan(out, &p.Plan)
		return nil
	},
}

func init() {
	planCmd.Flags().String("entry", "", "entry node ID (default: the tree's entry point)")
	planCmd.Flags().StringP("file", "f", "", "plan a local TOML tree file")
}
