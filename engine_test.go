package stowr_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr"
)

func newEngine(t *testing.T, configure func(*stowr.Config)) *stowr.Engine {
	t.Helper()
	cfg := stowr.DefaultConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "store")
	if configure != nil {
		configure(&cfg)
	}
	engine, err := stowr.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func writeSource(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestStoreOweRoundTrip(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()

	srcDir := t.TempDir()
	path := writeSource(t, srcDir, "notes.txt", []byte("the quick brown fox jumps over the lazy dog"))

	require.NoError(t, engine.StoreFile(ctx, path, false))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "source should be removed after store")

	require.NoError(t, engine.OweFile(ctx, path))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox jumps over the lazy dog", string(got))

	entries, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreKeepOriginal(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()

	srcDir := t.TempDir()
	path := writeSource(t, srcDir, "keep.txt", []byte("kept"))

	require.NoError(t, engine.StoreFile(ctx, path, true))
	_, err := os.Stat(path)
	assert.NoError(t, err, "source should remain when keepOriginal is true")
}

func TestStoreDuplicateContentBecomesDedup(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()
	srcDir := t.TempDir()

	content := []byte("shared payload, byte for byte")
	first := writeSource(t, srcDir, "a.bin", content)
	second := writeSource(t, srcDir, "b.bin", content)

	require.NoError(t, engine.StoreFile(ctx, first, false))
	require.NoError(t, engine.StoreFile(ctx, second, false))

	entries, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	kinds := map[stowr.StorageKind]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, 1, kinds[stowr.Whole])
	assert.Equal(t, 1, kinds[stowr.Dedup])

	require.NoError(t, engine.OweFile(ctx, first))
	require.NoError(t, engine.OweFile(ctx, second))

	gotA, err := os.ReadFile(first)
	require.NoError(t, err)
	gotB, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, content, gotA)
	assert.Equal(t, content, gotB)
}

func TestStoreSimilarFileBecomesDelta(t *testing.T) {
	engine := newEngine(t, func(c *stowr.Config) {
		c.EnableDeltaCompression = true
	})
	ctx := context.Background()
	srcDir := t.TempDir()

	base := pseudoRandomBytes(4096, 1)
	similar := append([]byte{}, base...)
	similar[10] = 'Z'
	similar[2000] = 'Q'

	basePath := writeSource(t, srcDir, "base.txt", base)
	similarPath := writeSource(t, srcDir, "similar.txt", similar)

	require.NoError(t, engine.StoreFile(ctx, basePath, false))
	require.NoError(t, engine.StoreFile(ctx, similarPath, false))

	entries, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	byPath := map[string]stowr.LogicalEntry{}
	for _, e := range entries {
		byPath[e.OriginalPath] = e
	}

	similarEntry, ok := byPath[similarPath]
	require.True(t, ok)
	assert.Equal(t, stowr.Delta, similarEntry.Kind)
	assert.NotEmpty(t, similarEntry.BaseObjectID)

	require.NoError(t, engine.OweFile(ctx, basePath))
	require.NoError(t, engine.OweFile(ctx, similarPath))

	gotSimilar, err := os.ReadFile(similarPath)
	require.NoError(t, err)
	assert.Equal(t, similar, gotSimilar)
}

func TestRenameCollision(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()
	srcDir := t.TempDir()

	a := writeSource(t, srcDir, "a.txt", []byte("aaa"))
	b := writeSource(t, srcDir, "b.txt", []byte("bbb"))
	require.NoError(t, engine.StoreFile(ctx, a, false))
	require.NoError(t, engine.StoreFile(ctx, b, false))

	err := engine.RenameFile(ctx, b, a)
	assert.ErrorIs(t, err, stowr.ErrAlreadyExists)

	newPath := filepath.Join(srcDir, "c.txt")
	require.NoError(t, engine.RenameFile(ctx, a, newPath))

	_, err = engine.SearchFiles(ctx, "*")
	require.NoError(t, err)
}

func TestDeleteRefusesWhenDeltaDependentExists(t *testing.T) {
	engine := newEngine(t, func(c *stowr.Config) {
		c.EnableDeltaCompression = true
	})
	ctx := context.Background()
	srcDir := t.TempDir()

	base := pseudoRandomBytes(4096, 2)
	similar := append([]byte{}, base...)
	similar[5] = 'Z'

	basePath := writeSource(t, srcDir, "base.txt", base)
	similarPath := writeSource(t, srcDir, "similar.txt", similar)
	require.NoError(t, engine.StoreFile(ctx, basePath, false))
	require.NoError(t, engine.StoreFile(ctx, similarPath, false))

	entries, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	var deltaFound bool
	for _, e := range entries {
		if e.OriginalPath == similarPath && e.Kind == stowr.Delta {
			deltaFound = true
		}
	}
	require.True(t, deltaFound, "expected similar file to be stored as a delta for this test to be meaningful")

	err = engine.DeleteFile(ctx, basePath)
	assert.ErrorIs(t, err, stowr.ErrObjectStore)

	require.NoError(t, engine.DeleteFile(ctx, similarPath))
	require.NoError(t, engine.DeleteFile(ctx, basePath))
}

func TestStoreFilesFromListPartialFailure(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()
	srcDir := t.TempDir()

	ok1 := writeSource(t, srcDir, "ok1.txt", []byte("one"))
	ok2 := writeSource(t, srcDir, "ok2.txt", []byte("two"))
	missing := filepath.Join(srcDir, "missing.txt")

	result := engine.StoreFilesFromList(ctx, stowr.NewSlicePathSource([]string{ok1, missing, ok2}), false, nil, nil)
	assert.Len(t, result.Succeeded, 2)
	assert.Len(t, result.Failed, 1)
	assert.Equal(t, missing, result.Failed[0].Path)
}

func TestOweAllFiles(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()
	srcDir := t.TempDir()

	a := writeSource(t, srcDir, "a.txt", []byte("aaa"))
	b := writeSource(t, srcDir, "b.txt", []byte("bbb"))
	require.NoError(t, engine.StoreFile(ctx, a, false))
	require.NoError(t, engine.StoreFile(ctx, b, false))

	result, err := engine.OweAllFiles(ctx, nil, nil)
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 2)
	assert.Empty(t, result.Failed)

	entries, err := engine.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStatsTracksOriginalAndStoredBytes(t *testing.T) {
	engine := newEngine(t, nil)
	ctx := context.Background()
	srcDir := t.TempDir()

	path := writeSource(t, srcDir, "stats.txt", []byte("some reasonably compressible text text text text text"))
	require.NoError(t, engine.StoreFile(ctx, path, false))

	stats, err := engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 1, stats.CountByKind[stowr.Whole])
	assert.Greater(t, stats.OriginalBytes, int64(0))
	assert.Greater(t, stats.StoredBytes, int64(0))
}

func TestOpenTwiceFailsWithAlreadyLocked(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "store")

	first, err := stowr.Open(cfg)
	require.NoError(t, err)
	defer first.Close()

	_, err = stowr.Open(cfg)
	assert.ErrorIs(t, err, stowr.ErrAlreadyLocked)
}

func TestFsckRunsCleanlyOnReopen(t *testing.T) {
	cfg := stowr.DefaultConfig()
	cfg.StoragePath = filepath.Join(t.TempDir(), "store")
	srcDir := t.TempDir()

	engine, err := stowr.Open(cfg)
	require.NoError(t, err)
	path := writeSource(t, srcDir, "f.txt", []byte("data"))
	require.NoError(t, engine.StoreFile(context.Background(), path, false))
	require.NoError(t, engine.Close())

	reopened, err := stowr.Open(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// pseudoRandomBytes fills n bytes from a fixed-seed xorshift generator so delta tests
// get content that gzip can't shrink away on its own, keeping the
// residual-vs-whole size comparison meaningful.
func pseudoRandomBytes(n int, seed uint64) []byte {
	out := make([]byte, n)
	x := seed + 0x9e3779b97f4a7c15
	for i := range out {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		out[i] = byte(x)
	}
	return out
}
