package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend counts calls and returns recognizable vectors.
type fakeBackend struct {
	mu    sync.Mutex
	calls int
	texts [][]string
	model Model
}

func (f *fakeBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts)

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (f *fakeBackend) Model() Model    { return f.model }
func (f *fakeBackend) Dimensions() int { return 2 }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePersist is an in-memory PersistentCache.
type fakePersist struct {
	mu   sync.Mutex
	data map[string][]float32
	gets int
}

func newFakePersist() *fakePersist {
	return &fakePersist{data: map[string][]float32{}}
}

func (f *fakePersist) GetMany(_ context.Context, keys []string) (map[string][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	out := map[string][]float32{}
	for _, k := range keys {
		if v, ok := f.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakePersist) SetMany(_ context.Context, vectors map[string][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, v := range vectors {
		f.data[k] = v
	}
	return nil
}

func TestTieredMemoryHit(t *testing.T) {
	backend := &fakeBackend{model: ModelLarge}
	tiered := NewTiered(backend, newFakePersist())
	ctx := context.Background()

	first, err := tiered.EmbedBatch(ctx, []string{"الصلاه"})
	require.NoError(t, err)
	require.Equal(t, 1, backend.callCount())

	second, err := tiered.EmbedBatch(ctx, []string{"الصلاه"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.callCount(), "second lookup must not reach the backend")
}

func TestTieredPersistentPromotion(t *testing.T) {
	backend := &fakeBackend{model: ModelLarge}
	persist := newFakePersist()
	persist.data["الزكاه"] = []float32{9, 9}

	tiered := NewTiered(backend, persist)
	ctx := context.Background()

	got, err := tiered.EmbedBatch(ctx, []string{"الزكاه"})
	require.NoError(t, err)
	assert.Equal(t, []float32{9, 9}, got[0])
	assert.Equal(t, 0, backend.callCount(), "persistent hit must not reach the backend")

	// The hit was promoted: a second call stays in memory.
	before := persist.gets
	_, err = tiered.EmbedBatch(ctx, []string{"الزكاه"})
	require.NoError(t, err)
	assert.Equal(t, before, persist.gets, "promotion skips the persistent tier")
	assert.Equal(t, 0, backend.callCount())
}

func TestTieredPartialMiss(t *testing.T) {
	backend := &fakeBackend{model: ModelLarge}
	persist := newFakePersist()
	persist.data["b"] = []float32{2, 2}

	tiered := NewTiered(backend, persist)
	ctx := context.Background()

	_, err := tiered.EmbedBatch(ctx, []string{"aa"})
	require.NoError(t, err)
	require.Equal(t, 1, backend.callCount())

	got, err := tiered.EmbedBatch(ctx, []string{"aa", "b", "cccc"})
	require.NoError(t, err)

	// aa from memory, b from persistent, cccc from the backend — in order.
	assert.Equal(t, []float32{2, 1}, got[0])
	assert.Equal(t, []float32{2, 2}, got[1])
	assert.Equal(t, []float32{4, 1}, got[2])

	require.Equal(t, 2, backend.callCount())
	assert.Equal(t, []string{"cccc"}, backend.texts[1], "only the true miss reaches the backend")

	// The fresh vector was written through to the persistent tier.
	assert.Contains(t, persist.data, "cccc")
}

func TestTieredModelPrefixedKeys(t *testing.T) {
	backend := &fakeBackend{model: ModelJina}
	persist := newFakePersist()
	tiered := NewTiered(backend, persist)

	_, err := tiered.EmbedBatch(context.Background(), []string{"نص"})
	require.NoError(t, err)
	assert.Contains(t, persist.data, "jina:نص")
}

func TestTieredEmptyBatch(t *testing.T) {
	tiered := NewTiered(&fakeBackend{model: ModelLarge}, nil)
	got, err := tiered.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestModelCollections(t *testing.T) {
	assert.Equal(t, "pages", ModelLarge.Collection("pages"))
	assert.Equal(t, "pages_jina", ModelJina.Collection("pages"))
	assert.Equal(t, 3072, ModelLarge.Dimensions())
	assert.Equal(t, 1024, ModelJina.Dimensions())
}
