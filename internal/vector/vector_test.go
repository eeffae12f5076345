package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noorlib/bahith/internal/store"
)

func TestCollectionSearch(t *testing.T) {
	c := NewCollection[store.PageDoc]("pages", 3)
	ctx := context.Background()

	err := c.Add(
		[]string{"1:10", "1:11", "2:5"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}},
		[]store.PageDoc{
			{BookID: 1, PageNumber: 10, Text: "الطهاره"},
			{BookID: 1, PageNumber: 11, Text: "الصلاه"},
			{BookID: 2, PageNumber: 5, Text: "الزكاه"},
		},
	)
	require.NoError(t, err)

	hits, err := c.Search(ctx, []float32{1, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "1:10", hits[0].Key)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Equal(t, 1, hits[0].Payload.BookID)
	assert.Equal(t, "2:5", hits[1].Key)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestCollectionThreshold(t *testing.T) {
	c := NewCollection[store.AyahDoc]("quran", 2)

	require.NoError(t, c.Add(
		[]string{"1:1", "2:255"},
		[][]float32{{1, 0}, {0, 1}},
		[]store.AyahDoc{{Surah: 1, Ayah: 1}, {Surah: 2, Ayah: 255}},
	))

	hits, err := c.Search(context.Background(), []float32{1, 0}, 10, 0.9)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "1:1", hits[0].Key)
}

func TestCollectionDimensionMismatch(t *testing.T) {
	c := NewCollection[store.PageDoc]("pages", 4)

	err := c.Add([]string{"1:1"}, [][]float32{{1, 0}}, []store.PageDoc{{}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = c.Search(context.Background(), []float32{1, 0}, 5, 0)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCollectionReplace(t *testing.T) {
	c := NewCollection[store.PageDoc]("pages", 2)
	ctx := context.Background()

	require.NoError(t, c.Add([]string{"1:1"}, [][]float32{{1, 0}}, []store.PageDoc{{Text: "old"}}))
	require.NoError(t, c.Add([]string{"1:1"}, [][]float32{{0, 1}}, []store.PageDoc{{Text: "new"}}))
	assert.Equal(t, 1, c.Count())

	hits, err := c.Search(ctx, []float32{0, 1}, 5, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Payload.Text)
}

func TestNilCollection(t *testing.T) {
	var c *Collection[store.PageDoc]
	_, err := c.Search(context.Background(), []float32{1}, 5, 0)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	assert.Equal(t, 0, c.Count())
}

func TestEmptyCollection(t *testing.T) {
	c := NewCollection[store.HadithDoc]("hadith", 2)
	hits, err := c.Search(context.Background(), []float32{1, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestCountWhere(t *testing.T) {
	c := NewCollection[store.PageDoc]("pages", 2)
	require.NoError(t, c.Add(
		[]string{"1:1", "1:2", "2:1"},
		[][]float32{{1, 0}, {0, 1}, {1, 1}},
		[]store.PageDoc{{BookID: 1}, {BookID: 1}, {BookID: 2}},
	))

	assert.Equal(t, 2, c.CountWhere(func(p store.PageDoc) bool { return p.BookID == 1 }))
}

func TestStoreReady(t *testing.T) {
	var s *Store
	assert.False(t, s.Ready())

	s = NewStore("pages", "quran", "hadith", 2)
	assert.True(t, s.Ready())

	s.Quran = nil
	assert.False(t, s.Ready())
}
