package commands

import (
	"fmt"
	"strconv"

	"coauthor-backend/pkg/colors"

	"github.com/spf13/cobra"
)

func newColorCmd() *cobra.Command {
	var depth bool

	cmd := &cobra.Command{
		Use:   "color <participantId>",
		Short: "Print the cursor color assigned to a participant",
		Long: `Print the deterministic cursor color for a participant id. With --depth
the argument is a graph depth and the default depth color is printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !depth {
				fmt.Fprintln(cmd.OutOrStdout(), colors.ColorFor(args[0]))
				return nil
			}
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return fmt.Errorf("invalid depth %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), colors.DepthColor(n))
			return nil
		},
	}
	cmd.Flags().BoolVar(&depth, "depth", false, "Treat the argument as a graph depth")
	return cmd
}
