package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every tracked entry",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	entries, err := engine.ListFiles(cmd.Context())
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%d\t%d\t%s\n", e.OriginalPath, e.Kind, e.OriginalSize, e.StoredSize, e.Algorithm)
	}
	return nil
}
