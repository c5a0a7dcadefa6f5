package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/runs"
)

var runsCmd = &cobra.Command{
	Use:     "runs [run-id]",
	Short:   "Show in-flight and recent validation runs",
	GroupID: "validation",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if len(args) == 1 {
			e, err := navClient.GetRun(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("fetching run %s: %w", args[0], err)
			}
			if jsonOutput {
				return printJSON(out, e)
			}
			printRuns(out, []runs.Entry{*e})
			return nil
		}
		list, err := navClient.ListRuns(context.Background())
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		if jsonOutput {
			return printJSON(out, list)
		}
		printRuns(out, list)
		return nil
	},
}
