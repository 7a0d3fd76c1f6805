package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/sync"
)

var syncNoBackfill bool

var syncCmd = &cobra.Command{
	Use:     "sync [index...]",
	Short:   "Create or update indexes, rebuilding any whose mappings conflict",
	GroupID: "indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		bodies, err := a.indexBodies()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			if bodies, err = selectIndexes(bodies, args); err != nil {
				return err
			}
		}

		results, err := a.synchronizer().SyncAll(ctx, bodies, !syncNoBackfill)
		if jsonOutput {
			if perr := printJSON(cmd.OutOrStdout(), results); perr != nil {
				return perr
			}
		} else {
			printResults(cmd.OutOrStdout(), results)
		}
		return err
	},
}

// selectIndexes narrows bodies to the named logical indexes.
func selectIndexes(bodies map[string]*sync.IndexBody, names []string) (map[string]*sync.IndexBody, error) {
	out := make(map[string]*sync.IndexBody, len(names))
	for _, name := range names {
		body, ok := bodies[name]
		if !ok {
			return nil, fmt.Errorf("no models are indexed into %q", name)
		}
		out[name] = body
	}
	return out, nil
}

func init() {
	syncCmd.Flags().BoolVar(&syncNoBackfill, "no-backfill", false, "create new index versions empty")
}
