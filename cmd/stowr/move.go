package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var moveCmd = &cobra.Command{
	Use:   "move <src> <dst>",
	Short: "Move a stored file's tracked path (alias of rename)",
	Args:  cobra.ExactArgs(2),
	RunE:  runMove,
}

func init() {
	rootCmd.AddCommand(moveCmd)
}

func runMove(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	if err := engine.MoveFile(cmd.Context(), args[0], args[1]); err != nil {
		return fmt.Errorf("move %s -> %s: %w", args[0], args[1], err)
	}
	slog.Info("moved", "src", args[0], "dst", args[1])
	return nil
}
