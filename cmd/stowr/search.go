package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <glob>",
	Short: "List tracked entries whose path matches a glob pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	entries, err := engine.SearchFiles(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("search %s: %w", args[0], err)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%d\t%d\t%s\n", e.OriginalPath, e.Kind, e.OriginalSize, e.StoredSize, e.Algorithm)
	}
	return nil
}
