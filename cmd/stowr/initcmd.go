package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// initCmd creates a storage root and runs the same orphan sweep Open
// already performs on every startup, so a host can provision a fresh
// root (or recover one with mismatched index/object state) without
// storing anything yet.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the storage root and run a recovery fsck",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer engine.Close()

	cfg, err := configFromContext(cmd.Context())
	if err != nil {
		return err
	}
	slog.Info("storage root ready", "path", cfg.StoragePath)
	return nil
}
