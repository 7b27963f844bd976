package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a stored file's tracked path",
	Args:  cobra.ExactArgs(2),
	RunE:  runRename,
}

func init() {
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	if err := engine.RenameFile(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", args[0], args[1], err)
	}
	slog.Info("renamed", "old", args[0], "new", args[1])
	return nil
}
