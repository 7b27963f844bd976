package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/stowr/stowr"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "stowr",
	Short:   "Replace filesystem files with a compressed, deduplicated, delta-encoded store",
	Long: `Stowr moves files out of the filesystem and into a local
content-addressed object store, compressing, deduplicating, and
delta-encoding them along the way. Stored files are restored to the
filesystem on demand with owe.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		cfg, err := stowr.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(os.Getenv("STOWR_ENV"), cfg)
		cmd.SetContext(withConfig(cmd.Context(), &cfg))
		return nil
	},
}

func init() {
	// Flag names match Config's mapstructure tags exactly: Load binds
	// each changed flag to the viper key of the same name, so the names
	// here double as the keys mapstructure unmarshals into Config with.
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("storage_path", "", "storage root directory (env: STOWR_STORAGE_PATH)")
	flags.String("index_mode", "", "index backend: auto, document, relational")
	flags.String("compression_algorithm", "", "gzip, zstd, or lz4")
	flags.Int("compression_level", 0, "compression level (0 = algorithm default)")
	flags.Int("multithread", 0, "batch operation worker pool size")
	flags.Bool("enable_deduplication", false, "reuse existing objects with identical content")
	flags.Bool("enable_delta_compression", false, "store similar files as residuals against a base")
	flags.Float64("similarity_threshold", 0, "minimum similarity [0,1] to accept a delta base")
	flags.String("delta_algorithm", "", "simple or extended")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
