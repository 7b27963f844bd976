package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <path> [path...]",
	Short: "Remove a tracked entry and release its object",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	for _, path := range args {
		if err := engine.DeleteFile(ctx, path); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
		slog.Info("deleted", "path", path)
	}
	return nil
}
