package codec_test

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr/codec"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestRoundTrip(t *testing.T) {
	data := randomBytes(t, 8192)
	cases := []struct {
		algo  codec.Algorithm
		level int
	}{
		{codec.Gzip, 6},
		{codec.Gzip, 0},
		{codec.Gzip, 9},
		{codec.Zstd, 3},
		{codec.Zstd, 1},
		{codec.Lz4, 0},
	}
	for _, c := range cases {
		compressed, err := codec.Compress(c.algo, c.level, data)
		require.NoErrorf(t, err, "compress %s/%d", c.algo, c.level)

		out, err := codec.Decompress(c.algo, compressed)
		require.NoErrorf(t, err, "decompress %s/%d", c.algo, c.level)
		assert.Equal(t, data, out)
	}
}

func TestValidateLevel(t *testing.T) {
	assert.NoError(t, codec.ValidateLevel(codec.Gzip, 0))
	assert.NoError(t, codec.ValidateLevel(codec.Gzip, 9))
	assert.Error(t, codec.ValidateLevel(codec.Gzip, 10))
	assert.Error(t, codec.ValidateLevel(codec.Gzip, -1))

	assert.NoError(t, codec.ValidateLevel(codec.Zstd, 1))
	assert.NoError(t, codec.ValidateLevel(codec.Zstd, 22))
	assert.Error(t, codec.ValidateLevel(codec.Zstd, 0))
	assert.Error(t, codec.ValidateLevel(codec.Zstd, 23))

	assert.NoError(t, codec.ValidateLevel(codec.Lz4, 0))
	assert.Error(t, codec.ValidateLevel(codec.Lz4, 1))
}

func TestDecompressCorrupt(t *testing.T) {
	_, err := codec.Decompress(codec.Gzip, []byte("not gzip"))
	assert.ErrorIs(t, err, codec.ErrCorrupt)

	_, err = codec.Decompress(codec.Zstd, []byte("not zstd"))
	assert.ErrorIs(t, err, codec.ErrCorrupt)
}

func TestExtension(t *testing.T) {
	ext, err := codec.Gzip.Extension()
	require.NoError(t, err)
	assert.Equal(t, "gz", ext)

	ext, err = codec.Zstd.Extension()
	require.NoError(t, err)
	assert.Equal(t, "zst", ext)

	ext, err = codec.Lz4.Extension()
	require.NoError(t, err)
	assert.Equal(t, "lz4", ext)

	_, err = codec.Algorithm("bogus").Extension()
	assert.ErrorIs(t, err, codec.ErrUnsupportedAlgorithm)
}
