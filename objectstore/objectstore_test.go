package objectstore_test

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr/codec"
	"github.com/stowr/stowr/delta"
	"github.com/stowr/stowr/index"
	"github.com/stowr/stowr/objectstore"
)

// memRefCounter is an in-memory RefCounter test double.
type memRefCounter struct {
	counts map[string]int
}

func newMemRefCounter() *memRefCounter {
	return &memRefCounter{counts: make(map[string]int)}
}

func (m *memRefCounter) IncRef(id string) (int, error) {
	m.counts[id]++
	return m.counts[id], nil
}

func (m *memRefCounter) DecRef(id string) (int, error) {
	m.counts[id]--
	n := m.counts[id]
	if n <= 0 {
		delete(m.counts, id)
		n = 0
	}
	return n, nil
}

func (m *memRefCounter) RefCount(id string) (int, error) {
	return m.counts[id], nil
}

func (m *memRefCounter) SetRefCount(id string, n int) error {
	if n <= 0 {
		delete(m.counts, id)
		return nil
	}
	m.counts[id] = n
	return nil
}

func (m *memRefCounter) DeleteRefCount(id string) error {
	delete(m.counts, id)
	return nil
}

func hashHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func newStore(t *testing.T) (*objectstore.Store, *memRefCounter) {
	t.Helper()
	refs := newMemRefCounter()
	s, err := objectstore.Open(filepath.Join(t.TempDir(), "store"), refs)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, refs
}

func TestPutGetWhole(t *testing.T) {
	s, refs := newStore(t)
	data := []byte("hello, stowr")
	id := hashHex(data)
	ref := objectstore.Ref{ID: id, Algorithm: codec.Gzip, Kind: index.Whole}

	created, _, err := s.Put(ref, 6, data)
	require.NoError(t, err)
	assert.True(t, created)

	n, err := refs.RefCount(id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ref)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestPutDedupIncrementsRefcount(t *testing.T) {
	s, refs := newStore(t)
	data := []byte("duplicate content")
	id := hashHex(data)
	ref := objectstore.Ref{ID: id, Algorithm: codec.Gzip, Kind: index.Whole}

	_, _, err := s.Put(ref, 6, data)
	require.NoError(t, err)

	created, _, err := s.Put(ref, 6, data)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := refs.RefCount(id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDecRefRemovesAtZero(t *testing.T) {
	s, refs := newStore(t)
	data := []byte("goes away")
	id := hashHex(data)
	ref := objectstore.Ref{ID: id, Algorithm: codec.Zstd, Kind: index.Whole}

	_, _, err := s.Put(ref, 3, data)
	require.NoError(t, err)

	removed, err := s.DecRef(ref)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = refs.RefCount(id)
	require.NoError(t, err)

	_, err = s.Get(ref)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestDeltaRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	base := []byte("the quick brown fox jumps over the lazy dog")
	target := append([]byte{}, base...)
	target[4] = 'X'

	baseID := hashHex(base)
	baseRef := objectstore.Ref{ID: baseID, Algorithm: codec.Gzip, Kind: index.Whole}
	_, _, err := s.Put(baseRef, 6, base)
	require.NoError(t, err)

	baseHashBytes, _ := hex.DecodeString(baseID)
	residual, err := delta.Diff(delta.Simple, base, target, baseHashBytes)
	require.NoError(t, err)

	deltaRef := objectstore.Ref{
		ID:        "delta-id-1",
		Algorithm: codec.Gzip,
		Kind:      index.Delta,
		Scheme:    delta.Simple,
		Base:      &baseRef,
		BaseHash:  baseID,
	}
	_, _, err = s.Put(deltaRef, 6, residual)
	require.NoError(t, err)

	got, err := s.Get(deltaRef)
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestIntegrityMismatch(t *testing.T) {
	s, _ := newStore(t)
	data := []byte("content")
	ref := objectstore.Ref{ID: "not-the-real-hash-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", Algorithm: codec.Gzip, Kind: index.Whole}
	_, _, err := s.Put(ref, 6, data)
	require.NoError(t, err)

	_, err = s.Get(ref)
	assert.ErrorIs(t, err, objectstore.ErrIntegrity)
}
