package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var bulkIndexCmd = &cobra.Command{
	Use:     "bulk-index",
	Short:   "Re-stream every record into the current index versions",
	GroupID: "indexes",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		stats, err := a.driver().Reindex(ctx)
		if err != nil {
			return fmt.Errorf("bulk index: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d types: %s\n", stats.Types, describeStats(stats))
		return nil
	},
}
