package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"coauthor-backend/pkg/delta"

	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var text bool

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Print the patch that turns one rich-text value into another",
		Long: `Compute the delta patch between two rich-text documents. The arguments
are paths to delta JSON files, or literal strings with --text.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a, b delta.Delta
			if text {
				a, b = delta.Text(args[0]), delta.Text(args[1])
			} else {
				var err error
				if a, err = readDelta(args[0]); err != nil {
					return err
				}
				if b, err = readDelta(args[1]); err != nil {
					return err
				}
			}

			patch, err := delta.Diff(a, b)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(patch)
		},
	}
	cmd.Flags().BoolVar(&text, "text", false, "Treat the arguments as plain text")
	return cmd
}

func readDelta(path string) (delta.Delta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return delta.Delta{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var d delta.Delta
	if err := json.Unmarshal(data, &d); err != nil {
		return delta.Delta{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return d, nil
}
