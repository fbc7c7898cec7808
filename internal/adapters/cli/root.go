// Package cli builds the shuttle-router cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	requestPath string
)

// NewRootCommand creates the root command for the shuttle-router CLI.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shuttle-router",
		Short: "Route employee shuttle requests through the allocation pipeline",
		Long: `shuttle-router reads one routing request from a JSON file, runs it
through the zone/fleet/grouping/polish/guard/unrouted pipeline, and writes
the route/unrouted response envelope to stdout.

Examples:
  shuttle-router route --config configs/bangalore.yaml --request request.json`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the profile/solver/road-service config file")

	rootCmd.AddCommand(NewRouteCommand())

	return rootCmd
}
