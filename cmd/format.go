package cmd

import (
	"fmt"
	"strconv"

	"github.com/JakeFAU/statuswatch/internal/duration"
	"github.com/spf13/cobra"
)

// newFormatCmd creates the 'format' subcommand, which prints millisecond
// values the way progress lines show them.
func newFormatCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "format <ms>...",
		Short:   "Format millisecond values as compact durations",
		Example: "  statuswatch format 999 61000 12345",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, arg := range args {
				ms, err := strconv.ParseFloat(arg, 64)
				if err != nil {
					return fmt.Errorf("parse %q as milliseconds: %w", arg, err)
				}
				if _, err := fmt.Fprintln(out, duration.FormatMillis(ms)); err != nil {
					return fmt.Errorf("write output: %w", err)
				}
			}
			return nil
		},
	}
}
