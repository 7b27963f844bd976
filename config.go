package stowr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/delta"
	"github.com/stowr/stowr/index"
)

// Config is the engine's configuration. Load fills every field the file,
// environment and flags leave unset from DefaultConfig. On a Config built
// directly, zero values of IndexMode, CompressionAlgorithm,
// CompressionLevel, SimilarityThreshold and DeltaAlgorithm resolve to
// their defaults through Mode, Algorithm, Level, Threshold and Scheme;
// Validate rejects an empty StoragePath or a Multithread below 1, and a
// zero EnableDeduplication is false.
type Config struct {
	StoragePath            string  `mapstructure:"storage_path" validate:"required"`
	IndexMode              string  `mapstructure:"index_mode" validate:"omitempty,oneof=auto document relational"`
	CompressionAlgorithm   string  `mapstructure:"compression_algorithm" validate:"omitempty,oneof=gzip zstd lz4"`
	CompressionLevel       int     `mapstructure:"compression_level"`
	Multithread            int     `mapstructure:"multithread" validate:"min=1"`
	EnableDeduplication    bool    `mapstructure:"enable_deduplication"`
	EnableDeltaCompression bool    `mapstructure:"enable_delta_compression"`
	SimilarityThreshold    float64 `mapstructure:"similarity_threshold"`
	DeltaAlgorithm         string  `mapstructure:"delta_algorithm" validate:"omitempty,oneof=simple extended"`
}

// DefaultConfig returns a Config with every field set to the default
// from the engine's external-interfaces table.
func DefaultConfig() Config {
	return Config{
		StoragePath:            "./stowr_store",
		IndexMode:              "auto",
		CompressionAlgorithm:   "gzip",
		CompressionLevel:       0, // resolved to codec.DefaultLevel by Level()
		Multithread:            1,
		EnableDeduplication:    true,
		EnableDeltaCompression: false,
		SimilarityThreshold:    0.8,
		DeltaAlgorithm:         "simple",
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("storage_path", d.StoragePath)
	v.SetDefault("index_mode", d.IndexMode)
	v.SetDefault("compression_algorithm", d.CompressionAlgorithm)
	v.SetDefault("compression_level", d.CompressionLevel)
	v.SetDefault("multithread", d.Multithread)
	v.SetDefault("enable_deduplication", d.EnableDeduplication)
	v.SetDefault("enable_delta_compression", d.EnableDeltaCompression)
	v.SetDefault("similarity_threshold", d.SimilarityThreshold)
	v.SetDefault("delta_algorithm", d.DeltaAlgorithm)
}

// Load reads configuration from an optional file, STOWR_-prefixed
// environment variables, and (if non-nil) CLI flags, in increasing
// order of precedence, then validates the result.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("load config %s: %w: %v", configFile, ErrConfig, err)
			}
		}
	}

	v.SetEnvPrefix("STOWR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		flags.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				_ = v.BindPFlag(f.Name, f)
			}
		})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w: %v", ErrConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation plus the range checks validator
// tags can't express: compression level against its algorithm's domain,
// and the similarity threshold's [0,1] range.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("validate config: %w: %v", ErrConfig, err)
	}

	algo, err := c.Algorithm()
	if err != nil {
		return err
	}
	level := c.Level()
	if err := codec.ValidateLevel(algo, level); err != nil {
		return fmt.Errorf("validate config: %w: %v", ErrConfig, err)
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("validate config: similarity_threshold %v out of [0,1]: %w", c.SimilarityThreshold, ErrConfig)
	}

	if _, err := c.Mode(); err != nil {
		return err
	}
	if _, err := c.Scheme(); err != nil {
		return err
	}
	return nil
}

// Algorithm resolves CompressionAlgorithm to a codec.Algorithm, defaulting
// to Gzip when unset.
func (c Config) Algorithm() (codec.Algorithm, error) {
	switch strings.ToLower(c.CompressionAlgorithm) {
	case "", "gzip":
		return codec.Gzip, nil
	case "zstd":
		return codec.Zstd, nil
	case "lz4":
		return codec.Lz4, nil
	default:
		return "", fmt.Errorf("compression_algorithm %q: %w", c.CompressionAlgorithm, ErrConfig)
	}
}

// Level resolves CompressionLevel, substituting the resolved algorithm's
// default when the field is left at its zero value. Lz4's default is 0
// itself; an explicit Gzip level 0 cannot be expressed and resolves to
// Gzip's default like an unset level.
func (c Config) Level() int {
	if c.CompressionLevel != 0 {
		return c.CompressionLevel
	}
	algo, err := c.Algorithm()
	if err != nil {
		return c.CompressionLevel
	}
	return codec.DefaultLevel(algo)
}

// Mode resolves IndexMode, defaulting to index.Auto when unset.
func (c Config) Mode() (index.Mode, error) {
	switch strings.ToLower(c.IndexMode) {
	case "", "auto":
		return index.Auto, nil
	case "document":
		return index.Document, nil
	case "relational":
		return index.Relational, nil
	default:
		return index.Auto, fmt.Errorf("index_mode %q: %w", c.IndexMode, ErrConfig)
	}
}

// Scheme resolves DeltaAlgorithm, defaulting to delta.Simple when unset.
func (c Config) Scheme() (delta.Scheme, error) {
	switch strings.ToLower(c.DeltaAlgorithm) {
	case "", "simple":
		return delta.Simple, nil
	case "extended":
		return delta.Extended, nil
	default:
		return delta.Simple, fmt.Errorf("delta_algorithm %q: %w", c.DeltaAlgorithm, ErrConfig)
	}
}

// Threshold returns SimilarityThreshold, defaulting to 0.8 when the zero
// value (unset) is indistinguishable from an explicit 0 — see the open
// question recorded in DESIGN.md.
func (c Config) Threshold() float64 {
	if c.SimilarityThreshold == 0 {
		return 0.8
	}
	return c.SimilarityThreshold
}
