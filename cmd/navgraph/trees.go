package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/treefile"
)

var treesCmd = &cobra.Command{
	Use:     "trees",
	Short:   "Manage stored navigation trees",
	GroupID: "trees",
}

var treesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored trees (all tenants unless --tenant is set)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		refs, err := navClient.ListTrees(context.Background(), tenantID)
		if err != nil {
			return fmt.Errorf("listing trees: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), refs)
		}
		printTrees(cmd.OutOrStdout(), refs)
		return nil
	},
}

var treesPushCmd = &cobra.Command{
	Use:   "push <file>...",
	Short: "Store TOML tree files on the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			t, err := treefile.Load(path)
			if err != nil {
				return err
			}
			if t.TenantID == "" {
				t.TenantID = tenantID
			}
			if t.TreeID == "" {
				return fmt.Errorf("%s declares no tree_id", path)
			}
			if err := navClient.SaveTree(context.Background(), t); err != nil {
				return fmt.Errorf("pushing %s: %w", path, err)
			}
			if !jsonOutput {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s/%s (%d nodes, %d edges)\n", t.TenantID, t.TreeID, len(t.Nodes), len(t.Edges))
			}
		}
		return nil
	},
}

var treesDeleteCmd = &cobra.Command{
	Use:   "delete <tree-id>",
	Short: "Delete a stored tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tenantID == "" {
			return fmt.Errorf("--tenant is required")
		}
		if err := navClient.DeleteTree(context.Background(), args[0], tenantID); err != nil {
			return fmt.Errorf("deleting %s: %w", args[0], err)
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", tenantID, args[0])
		}
		return nil
	},
}

func init() {
	treesCmd.AddCommand(treesListCmd, treesPushCmd, treesDeleteCmd)
}
