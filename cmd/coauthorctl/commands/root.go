// Package commands provides the coauthorctl CLI commands.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coauthorctl",
		Short: "coauthorctl - tooling for the collaboration service",
		Long: `coauthorctl talks to a running collaboration service and exposes the
shared helpers clients rely on: participant colors, access tokens and
rich-text diffs.

Run 'coauthorctl watch document <id>' to follow a room's traffic.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("coauthorctl %s (%s)\n", Version, BuildTime))

	cmd.AddCommand(newColorCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newDiffCmd())
	cmd.AddCommand(newWatchCmd())
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
