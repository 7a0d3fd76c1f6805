package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/events"
)

var touchCmd = &cobra.Command{
	Use:   "touch <doc_type> <id>...",
	Short: "Re-index individual records",
	Long: `Re-index individual records.

With DOCSYNC_NATS_URL set a saved event is published for each record and the
serve worker indexes it; otherwise the documents are written directly.`,
	GroupID: "documents",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		m, err := lookupModel(a.registry, args[0])
		if err != nil {
			return err
		}

		var pub events.Publisher
		if a.cfg.NATSURL != "" {
			np, err := events.NewNATSPublisher(a.cfg.NATSURL)
			if err != nil {
				return err
			}
			defer np.Close()
			pub = np
		}

		for _, id := range args[1:] {
			r, err := a.store.Get(ctx, m, parsePK(id))
			if err != nil {
				return fmt.Errorf("load %s %s: %w", m.Label(), id, err)
			}
			if pub != nil {
				err = events.PublishSaved(ctx, pub, r)
			} else {
				err = a.manager.Index(ctx, r)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", m.DocType(), r.ID())
		}
		return nil
	},
}

// parsePK returns numeric ids as integers to match integer key columns.
func parsePK(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
