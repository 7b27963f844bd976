package delta_test

import (
	"bytes"
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stowr/stowr/delta"
)

func hashOf(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func TestSimilarityIdentity(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeatedly and at length")
	assert.Equal(t, 1.0, delta.Similarity(data, data))
	assert.Equal(t, 1.0, delta.Similarity(nil, nil))
	assert.Equal(t, 0.0, delta.Similarity(data, nil))
}

func TestSimilaritySymmetricAndDeterministic(t *testing.T) {
	a := []byte("version one of a moderately long document about gophers")
	b := []byte("version two of a moderately long document about gophers!")
	s1 := delta.Similarity(a, b)
	s2 := delta.Similarity(b, a)
	assert.Equal(t, s1, s2)
	assert.Equal(t, s1, delta.Similarity(a, b))
	assert.Greater(t, s1, 0.5)
}

func makeV1V2(t *testing.T) (v1, v2 []byte) {
	t.Helper()
	v1 = bytes.Repeat([]byte("PATTERN-"), 2000)
	v2 = append([]byte{}, v1...)
	v2[500] ^= 0xFF
	return v1, v2
}

func TestSimpleSchemeRoundTrip(t *testing.T) {
	base, target := makeV1V2(t)
	residual, err := delta.Diff(delta.Simple, base, target, hashOf(base))
	require.NoError(t, err)
	assert.Less(t, len(residual), len(target))

	got, err := delta.Patch(base, residual, hashOf(base))
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestExtendedSchemeRoundTrip(t *testing.T) {
	base, target := makeV1V2(t)
	residual, err := delta.Diff(delta.Extended, base, target, hashOf(base))
	require.NoError(t, err)
	assert.Less(t, len(residual), len(target))

	got, err := delta.Patch(base, residual, hashOf(base))
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestPatchRejectsWrongBase(t *testing.T) {
	base, target := makeV1V2(t)
	residual, err := delta.Diff(delta.Simple, base, target, hashOf(base))
	require.NoError(t, err)

	otherBase := bytes.Repeat([]byte("X"), len(base))
	_, err = delta.Patch(otherBase, residual, hashOf(otherBase))
	assert.ErrorIs(t, err, delta.ErrBaseMismatch)
}

func TestPatchRejectsMalformedResidual(t *testing.T) {
	_, err := delta.Patch([]byte("base"), []byte("too short"), hashOf([]byte("base")))
	assert.ErrorIs(t, err, delta.ErrMalformed)
}

func TestRandomDataRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	base := make([]byte, 4096)
	r.Read(base)
	target := append([]byte{}, base...)
	r.Read(target[:64])

	for _, scheme := range []delta.Scheme{delta.Simple, delta.Extended} {
		residual, err := delta.Diff(scheme, base, target, hashOf(base))
		require.NoError(t, err)
		got, err := delta.Patch(base, residual, hashOf(base))
		require.NoError(t, err)
		assert.Equal(t, target, got)
	}
}
