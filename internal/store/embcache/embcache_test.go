package embcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	want := map[string][]float32{
		"الصلاه":      {0.1, -0.5, 3},
		"jina:الصلاه": {1, 2},
	}
	require.NoError(t, s.SetMany(ctx, want))

	got, err := s.GetMany(ctx, []string{"الصلاه", "jina:الصلاه", "missing"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestStoreMissingKeys(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetMany(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreOverwrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string][]float32{"k": {1}}))
	require.NoError(t, s.SetMany(ctx, map[string][]float32{"k": {2, 3}}))

	got, err := s.GetMany(ctx, []string{"k"})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3}, got["k"])
}

func TestVectorCodec(t *testing.T) {
	vecs := [][]float32{
		nil,
		{},
		{0},
		{1.5, -2.25, 3.125},
	}
	for _, vec := range vecs {
		got, err := unmarshalVector(marshalVector(vec))
		require.NoError(t, err)
		assert.Len(t, got, len(vec))
		for i := range vec {
			assert.Equal(t, vec[i], got[i])
		}
	}
}
