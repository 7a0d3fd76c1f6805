package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/docsync/internal/ui"
)

var (
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "docsync <command>",
	Short:         "Keep search indexes in step with relational models",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddGroup(
		&cobra.Group{ID: "indexes", Title: "Indexes:"},
		&cobra.Group{ID: "documents", Title: "Documents:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Indexes
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(bulkIndexCmd)
	rootCmd.AddCommand(mappingCmd)

	// Documents
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(exportCmd)

	// System
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
