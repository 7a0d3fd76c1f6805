package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping [doc_type]",
	Short: "Print the derived index bodies, or the mapping of one document type",
	Long: `Print the derived index bodies, or the mapping of one document type.

Nothing is read from or written to either store; only the model catalog and
DOCSYNC_SETTINGS_FILE are consulted.`,
	GroupID: "indexes",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			m, ok := a.registry.Lookup(args[0])
			if !ok {
				return fmt.Errorf("unknown document type %q", args[0])
			}
			mp, err := a.registry.Mapping(m)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), mp.ToDict())
		}

		bodies, err := a.indexBodies()
		if err != nil {
			return err
		}
		out := make(map[string]any, len(bodies))
		for name, body := range bodies {
			out[name] = body.CreateBody()
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}
