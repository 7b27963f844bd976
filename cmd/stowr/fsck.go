package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Sweep the object store for orphaned objects and stale refcounts",
	Args:  cobra.NoArgs,
	RunE:  runFsck,
}

func init() {
	rootCmd.AddCommand(fsckCmd)
}

func runFsck(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	if err := engine.Fsck(); err != nil {
		return fmt.Errorf("fsck: %w", err)
	}
	slog.Info("fsck complete")
	return nil
}
