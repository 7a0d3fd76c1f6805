package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/model"
	"github.com/alfredjeanlab/docsync/internal/registry"
)

var getCmd = &cobra.Command{
	Use:     "get <doc_type> <id>",
	Short:   "Fetch and decode one indexed document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
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
		res, err := a.manager.Get(ctx, m, args[1])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"_index":  res.Index,
				"_type":   res.DocType,
				"_id":     res.ID,
				"_source": plain(res),
			})
		}
		printDocument(cmd.OutOrStdout(), res)
		return nil
	},
}

func lookupModel(reg *registry.Registry, docType string) (*model.Model, error) {
	m, ok := reg.Lookup(docType)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	return m, nil
}
