package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stowr/stowr"
)

var (
	storeKeepOriginal bool
	storeListPath     string
)

var storeCmd = &cobra.Command{
	Use:   "store <path> [path...]",
	Short: "Move files into the object store, replacing them with stored copies",
	Args:  cobra.ArbitraryArgs,
	RunE:  runStore,
}

func init() {
	storeCmd.Flags().BoolVarP(&storeKeepOriginal, "keep", "k", false, "leave the source file in place after storing")
	storeCmd.Flags().StringVar(&storeListPath, "list", "", "read paths to store from a newline-delimited file instead of args")
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) error {
	if storeListPath == "" && len(args) == 0 {
		return fmt.Errorf("store: give at least one path or --list")
	}

	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	ctx := cmd.Context()

	if storeListPath != "" {
		paths, err := readPathList(storeListPath)
		if err != nil {
			return fmt.Errorf("read list %s: %w", storeListPath, err)
		}
		result := engine.StoreFilesFromList(ctx, stowr.NewSlicePathSource(paths), storeKeepOriginal, progressLogger("stored"), nil)
		return reportBatch(result)
	}

	for _, path := range args {
		if err := engine.StoreFile(ctx, path, storeKeepOriginal); err != nil {
			return fmt.Errorf("store %s: %w", path, err)
		}
		slog.Info("stored", "path", path)
	}
	return nil
}

func readPathList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		paths = append(paths, line)
	}
	return paths, scanner.Err()
}

func progressLogger(verb string) stowr.ProgressFunc {
	return func(completed, total int, path string, outcome error) {
		if outcome != nil {
			slog.Warn(verb+" failed", "path", path, "completed", completed, "total", total, "err", outcome)
			return
		}
		slog.Info(verb, "path", path, "completed", completed, "total", total)
	}
}

func reportBatch(result stowr.BatchResult) error {
	slog.Info("batch complete", "succeeded", len(result.Succeeded), "failed", len(result.Failed))
	if len(result.Failed) > 0 {
		for _, f := range result.Failed {
			slog.Warn("failed", "path", f.Path, "err", f.Err)
		}
		return fmt.Errorf("batch: %d of %d item(s) failed", len(result.Failed), len(result.Succeeded)+len(result.Failed))
	}
	return nil
}
