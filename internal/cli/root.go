// Package cli implements the puntos command-line interface using Cobra.
// Each subcommand maps to one engine operation, run against the configured
// storage.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "puntos",
	Short: "Points, levels and rewards for the promotions app",
	Long: `puntos turns user actions into points, levels, streaks,
achievements and challenge rewards.

Run 'puntos serve' for the HTTP API, or use the subcommands to inspect
and operate on profiles directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
