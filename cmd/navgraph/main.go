package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/navgraph/internal/client"
	"github.com/alfredjeanlab/navgraph/internal/ui"
)

var (
	httpURL    string
	authToken  string
	tenantID   string
	jsonOutput bool
	noColor    bool

	navClient client.NavClient
)

func envOr(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

var rootCmd = &cobra.Command{
	Use:           "navgraph <command>",
	Short:         "Navigation graph cache and validation runner",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		navClient = client.NewHTTPClient(httpURL, authToken)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if navClient != nil {
			navClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", envOr("NAVGRAPH_HTTP_URL", "http://localhost:8080"), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("NAVGRAPH_TOKEN"), "bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", os.Getenv("NAVGRAPH_TENANT"), "tenant ID")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "validation", Title: "Validation:"},
		&cobra.Group{ID: "cache", Title: "Cache:"},
		&cobra.Group{ID: "trees", Title: "Trees:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Validation
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runsCmd)

	// Cache
	rootCmd.AddCommand(cacheCmd)

	// Trees
	rootCmd.AddCommand(treesCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
