package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/treefile"
)

var cacheCmd = &cobra.Command{
	Use:     "cache",
	Short:   "Inspect and manage the server's graph cache",
	GroupID: "cache",
}

var cacheLoadCmd = &cobra.Command{
	Use:   "load <tree-id>",
	Short: "Load a stored tree into the cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, err := navClient.LoadTree(context.Background(), args[0], tenantID)
		if err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		printCacheEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var cachePopulateCmd = &cobra.Command{
	Use:   "populate <file>",
	Short: "Populate the cache from a local TOML tree file without storing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := treefile.Load(args[0])
		if err != nil {
			return err
		}
		if t.TenantID == "" {
			t.TenantID = tenantID
		}
		if id, _ := cmd.Flags().GetString("tree-id"); id != "" {
			t.TreeID = id
		}
		if t.TreeID == "" {
			return fmt.Errorf("%s declares no tree_id; pass --tree-id", args[0])
		}
		entry, err := navClient.PopulateTree(context.Background(), t)
		if err != nil {
			return fmt.Errorf("populating %s: %w", t.TreeID, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), entry)
		}
		printCacheEntry(cmd.OutOrStdout(), entry)
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cached graphs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := navClient.CacheStats(context.Background())
		if err != nil {
			return fmt.Errorf("fetching cache stats: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		printStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

var cacheInvalidateCmd = &cobra.Command{
	Use:   "invalidate <tree-id>",
	Short: "Drop a tree's cached graph (every tenant unless --tenant is set)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := navClient.InvalidateTree(context.Background(), args[0], tenantID)
		if err != nil {
			return fmt.Errorf("invalidating %s: %w", args[0], err)
		}
		return printRemoved(cmd, n)
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict cached graphs older than --max-age",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge, _ := cmd.Flags().GetDuration("max-age")
		n, err := navClient.SweepCache(context.Background(), maxAge)
		if err != nil {
			return fmt.Errorf("sweeping cache: %w", err)
		}
		return printRemoved(cmd, n)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached graph",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := navClient.ClearCache(context.Background())
		if err != nil {
			return fmt.Errorf("clearing cache: %w", err)
		}
		return printRemoved(cmd, n)
	},
}

func printRemoved(cmd *cobra.Command, n int) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]int{"removed": n})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached graph(s)\n", n)
	return nil
}

func init() {
	cachePopulateCmd.Flags().String("tree-id", "", "tree ID (overrides the file)")
	cacheSweepCmd.Flags().Duration("max-age", 0, "maximum entry age (default: the server's cache max age)")

	cacheCmd.AddCommand(cacheLoadCmd, cachePopulateCmd, cacheStatsCmd, cacheInvalidateCmd, cacheSweepCmd, cacheClearCmd)
}
