package lexical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func seedContent(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, e.IndexPages(ctx, []store.PageDoc{
		{BookID: 1, PageNumber: 10, Text: "باب اقامه الصلاه وشروطها"},
		{BookID: 1, PageNumber: 11, Text: "فصل في احكام الزكاه"},
		{BookID: 2, PageNumber: 5, Text: "كتاب الصيام واحكامه"},
	}))
	require.NoError(t, e.IndexAyahs(ctx, []store.AyahDoc{
		{Surah: 2, Ayah: 43, Text: "واقيموا الصلاه واتوا الزكاه"},
		{Surah: 2, Ayah: 183, Text: "كتب عليكم الصيام"},
	}))
	require.NoError(t, e.IndexHadiths(ctx, []store.HadithDoc{
		{CollectionSlug: "bukhari", HadithNumber: 8, BookID: 100, Chapter: "الايمان", Text: "بني الاسلام علي خمس اقام الصلاه"},
	}))
}

func TestSearchPages(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	hits := e.SearchPages(context.Background(), arabic.ParseQuery("الصلاة"), 10, nil)
	require.NotNil(t, hits)
	require.NotEmpty(t, hits)

	assert.Equal(t, 1, hits[0].Doc.BookID)
	assert.Equal(t, 10, hits[0].Doc.PageNumber)
	assert.Greater(t, hits[0].Score, 0.0)
	assert.Contains(t, hits[0].Doc.Text, "الصلاه")
}

func TestSearchPagesNormalizesQuery(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	// Diacritics and variant letters on the query side still match.
	hits := e.SearchPages(context.Background(), arabic.ParseQuery("الصَّلَاة"), 10, nil)
	require.NotEmpty(t, hits)
	assert.Equal(t, 10, hits[0].Doc.PageNumber)
}

func TestSearchPagesBookFilter(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	only2 := func(bookID int) bool { return bookID == 2 }
	hits := e.SearchPages(context.Background(), arabic.ParseQuery("احكام"), 10, only2)
	require.NotNil(t, hits)
	for _, h := range hits {
		assert.Equal(t, 2, h.Doc.BookID)
	}
}

func TestSearchPagesEmptyQuery(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	hits := e.SearchPages(context.Background(), arabic.ParseQuery("   "), 10, nil)
	require.NotNil(t, hits, "empty query is an empty result, not the unavailable sentinel")
	assert.Empty(t, hits)
}

func TestSearchAyahsAndHadiths(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)
	ctx := context.Background()

	ayahs := e.SearchAyahs(ctx, arabic.ParseQuery("الزكاة"), 10)
	require.NotEmpty(t, ayahs)
	assert.Equal(t, 2, ayahs[0].Doc.Surah)
	assert.Equal(t, 43, ayahs[0].Doc.Ayah)

	hadiths := e.SearchHadiths(ctx, arabic.ParseQuery("الاسلام"), 10)
	require.NotEmpty(t, hadiths)
	assert.Equal(t, "bukhari", hadiths[0].Doc.CollectionSlug)
	assert.Equal(t, 8, hadiths[0].Doc.HadithNumber)
}

func TestPhraseQuery(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	// The exact phrase appears only in the ayah, not in the hadith word order.
	hits := e.SearchAyahs(context.Background(), arabic.ParseQuery(`"واقيموا الصلاة"`), 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, 43, hits[0].Doc.Ayah)
}

func TestCatalogNumericQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IndexBooks(ctx, []store.Book{
		{ID: 1681, TitleArabic: "صحيح البخاري", AuthorName: "البخاري"},
		{ID: 168, TitleArabic: "الموطا", AuthorName: "مالك"},
		{ID: 16, TitleArabic: "الرساله", AuthorName: "الشافعي"},
	}, nil))
	require.NoError(t, e.IndexAuthors(ctx, nil))

	result := e.SearchCatalog(ctx, arabic.ParseQuery("1681"), 10)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Books)

	// Exact id match dominates prefix matches by an order of magnitude.
	assert.Equal(t, 1681, result.Books[0].ID)
}

func TestCatalogArabicQuery(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.IndexBooks(ctx, []store.Book{
		{ID: 1, TitleArabic: "صحيح البخاري", AuthorName: "محمد بن اسماعيل"},
		{ID: 2, TitleArabic: "فتح الباري", AuthorName: "ابن حجر"},
	}, nil))
	require.NoError(t, e.IndexAuthors(ctx, []store.Author{
		{ID: 7, NameArabic: "محمد بن اسماعيل البخاري", Kunya: "ابو عبدالله", Nisba: "البخاري"},
	}))

	result := e.SearchCatalog(ctx, arabic.ParseQuery("البخاري"), 10)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Books)
	assert.Equal(t, 1, result.Books[0].ID)
	require.NotEmpty(t, result.Authors)
	assert.Equal(t, 7, result.Authors[0].ID)
}

func TestCatalogEmptyQuery(t *testing.T) {
	e := newTestEngine(t)

	result := e.SearchCatalog(context.Background(), arabic.ParseQuery(""), 10)
	require.NotNil(t, result)
	assert.Empty(t, result.Books)
	assert.Empty(t, result.Authors)
}

func TestPageCountForBook(t *testing.T) {
	e := newTestEngine(t)
	seedContent(t, e)

	n, err := e.PageCountForBook(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.PageCountForBook(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
