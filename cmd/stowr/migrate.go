package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stowr/stowr"
)

// migrateCmd copies a document index into a fresh relational one. It
// does not open an Engine: the storage root must be closed for this to
// run safely.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy an existing document index into a fresh relational index",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return err
	}
	if err := stowr.MigrateToRelational(cfg.StoragePath); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("migration complete; set index_mode: relational to use it")
	return nil
}
