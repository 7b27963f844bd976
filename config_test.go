package stowr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := stowr.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "./stowr_store", cfg.StoragePath)
	assert.Equal(t, "auto", cfg.IndexMode)
	assert.Equal(t, "gzip", cfg.CompressionAlgorithm)
	assert.Equal(t, 1, cfg.Multithread)
	assert.True(t, cfg.EnableDeduplication)
	assert.False(t, cfg.EnableDeltaCompression)
	assert.Equal(t, 0.8, cfg.Threshold())
	assert.Equal(t, 6, cfg.Level())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage_path: /tmp/somewhere
compression_algorithm: zstd
compression_level: 9
multithread: 4
enable_delta_compression: true
similarity_threshold: 0.6
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := stowr.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/somewhere", cfg.StoragePath)
	assert.Equal(t, "zstd", cfg.CompressionAlgorithm)
	assert.Equal(t, 9, cfg.Level())
	assert.Equal(t, 4, cfg.Multithread)
	assert.True(t, cfg.EnableDeltaCompression)
	assert.Equal(t, 0.6, cfg.Threshold())
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.CompressionAlgorithm = "zstd"
	cfg.CompressionLevel = 99
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, stowr.ErrConfig)
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.SimilarityThreshold = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, stowr.ErrConfig)
}

func TestValidateRejectsUnknownIndexMode(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.IndexMode = "filesystem"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, stowr.ErrConfig)
}

func TestValidateRequiresStoragePath(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.StoragePath = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, stowr.ErrConfig)
}
