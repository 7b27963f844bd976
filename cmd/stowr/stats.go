package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the store: counts by kind, original vs. stored bytes",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(cmd.Context())
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer engine.Close()

	s, err := engine.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Printf("entries: %d\n", s.TotalEntries)
	for kind, n := range s.CountByKind {
		fmt.Printf("  %s: %d\n", kind, n)
	}
	fmt.Printf("original bytes: %d\n", s.OriginalBytes)
	fmt.Printf("stored bytes:   %d\n", s.StoredBytes)
	return nil
}
