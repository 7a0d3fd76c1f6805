package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/catalog"
	"github.com/alfredjeanlab/docsync/internal/store/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Apply the catalog schema to the database",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := loadRegistry(cmd)
		if err != nil {
			return err
		}
		st, err := sqlstore.Open(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer st.Close()

		if err := catalog.Migrate(st.DB(), st.Dialect().Name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", st.Dialect().Name)
		return nil
	},
}
