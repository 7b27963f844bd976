package document_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr/index"
	"github.com/stowr/stowr/index/document"
)

func newBackend(t *testing.T) (*document.Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.yaml")
	b, err := document.Open(path)
	require.NoError(t, err)
	return b, path
}

func sampleEntry(path string) index.Entry {
	now := time.Now().UTC().Truncate(time.Second)
	return index.Entry{
		OriginalPath: path,
		ObjectID:     "deadbeef",
		OriginalSize: 1024,
		StoredSize:   512,
		Algorithm:    "gzip",
		ContentHash:  "deadbeef",
		CreatedAt:    now,
		ModifiedAt:   now,
		Kind:         index.Whole,
	}
}

func TestInsertGetRemove(t *testing.T) {
	b, _ := newBackend(t)
	require.NoError(t, b.Insert(sampleEntry("a.txt")))

	got, err := b.Get("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", got.ObjectID)

	err = b.Insert(sampleEntry("a.txt"))
	assert.ErrorIs(t, err, index.ErrAlreadyExists)

	removed, err := b.Remove("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", removed.OriginalPath)

	_, err = b.Get("a.txt")
	assert.ErrorIs(t, err, index.ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	b, path := newBackend(t)
	require.NoError(t, b.Insert(sampleEntry("a.txt")))
	require.NoError(t, b.Close())

	reopened, err := document.Open(path)
	require.NoError(t, err)
	got, err := reopened.Get("a.txt")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", got.ContentHash)
}

func TestUpdatePath(t *testing.T) {
	b, _ := newBackend(t)
	require.NoError(t, b.Insert(sampleEntry("a.txt")))
	require.NoError(t, b.Insert(sampleEntry("b.txt")))

	err := b.UpdatePath("a.txt", "b.txt")
	assert.ErrorIs(t, err, index.ErrAlreadyExists)

	require.NoError(t, b.UpdatePath("a.txt", "c.txt"))
	_, err = b.Get("a.txt")
	assert.ErrorIs(t, err, index.ErrNotFound)
	got, err := b.Get("c.txt")
	require.NoError(t, err)
	assert.Equal(t, "c.txt", got.OriginalPath)
}

func TestSearchAndFindByHash(t *testing.T) {
	b, _ := newBackend(t)
	require.NoError(t, b.Insert(sampleEntry("dir/a.txt")))
	require.NoError(t, b.Insert(sampleEntry("dir/sub/b.txt")))

	matches, err := b.Search("dir/**/*.txt")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	byHash, err := b.FindByHash("deadbeef")
	require.NoError(t, err)
	assert.Len(t, byHash, 2)
}

func TestRefCounts(t *testing.T) {
	b, _ := newBackend(t)
	n, err := b.IncRef("obj1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.IncRef("obj1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = b.DecRef("obj1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.DecRef("obj1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := b.RefCount("obj1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
