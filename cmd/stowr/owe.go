package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stowr/stowr"
)

var (
	oweAll      bool
	oweListPath string
)

var oweCmd = &cobra.Command{
	Use:   "owe <path> [path...]",
	Short: "Restore stored files back to the filesystem",
	Args:  cobra.ArbitraryArgs,
	RunE:  runOwe,
}

func init() {
	oweCmd.Flags().BoolVarP(&oweAll, "all", "a", false, "restore every stored file, ignoring path arguments")
	oweCmd.Flags().StringVar(&oweListPath, "list", "", "read paths to restore from a newline-delimited file instead of args")
	rootCmd.AddCommand(oweCmd)
}

func runOwe(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	ctx := cmd.Context()

	if oweAll {
		result, err := engine.OweAllFiles(ctx, progressLogger("owed"), nil)
		if err != nil {
			return err
		}
		return reportBatch(result)
	}

	if oweListPath != "" {
		paths, err := readPathList(oweListPath)
		if err != nil {
			return fmt.Errorf("read list %s: %w", oweListPath, err)
		}
		result := engine.OweFilesFromList(ctx, stowr.NewSlicePathSource(paths), progressLogger("owed"), nil)
		return reportBatch(result)
	}

	if len(args) == 0 {
		return fmt.Errorf("owe: give at least one path, --list, or --all")
	}
	for _, path := range args {
		if err := engine.OweFile(ctx, path); err != nil {
			return fmt.Errorf("owe %s: %w", path, err)
		}
		slog.Info("owed", "path", path)
	}
	return nil
}
