package lexical

import (
	"context"
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/noorlib/bahith/internal/store"
)

// addDomainMapping attaches the per-domain document mapping to the shared
// index mapping. Field names are part of the query contract, so they are
// spelled out here rather than derived from struct tags.
func addDomainMapping(m *mapping.IndexMappingImpl, name string) {
	dm := mapping.NewDocumentMapping()

	switch name {
	case "pages":
		dm.AddFieldMappingsAt("book_id", numberField())
		dm.AddFieldMappingsAt("page_number", numberField())
		dm.AddFieldMappingsAt("text", textField())
	case "ayahs":
		dm.AddFieldMappingsAt("surah", numberField())
		dm.AddFieldMappingsAt("ayah", numberField())
		dm.AddFieldMappingsAt("ayah_end", numberField())
		dm.AddFieldMappingsAt("text", textField())
	case "hadiths":
		dm.AddFieldMappingsAt("collection_slug", exactField())
		dm.AddFieldMappingsAt("hadith_number", numberField())
		dm.AddFieldMappingsAt("book_id", numberField())
		dm.AddFieldMappingsAt("chapter", textField())
		dm.AddFieldMappingsAt("text", textField())
	case "books":
		dm.AddFieldMappingsAt("id", numberField())
		dm.AddFieldMappingsAt("id_str", exactField())
		dm.AddFieldMappingsAt("title_arabic", textField())
		dm.AddFieldMappingsAt("title_arabic_exact", exactField())
		dm.AddFieldMappingsAt("title_latin", textField())
		dm.AddFieldMappingsAt("author_name_arabic", textField())
		dm.AddFieldMappingsAt("author_name_latin", textField())
	case "authors":
		dm.AddFieldMappingsAt("id", numberField())
		dm.AddFieldMappingsAt("id_str", exactField())
		dm.AddFieldMappingsAt("name_arabic", textField())
		dm.AddFieldMappingsAt("name_latin", textField())
		dm.AddFieldMappingsAt("kunya", textField())
		dm.AddFieldMappingsAt("nasab", textField())
		dm.AddFieldMappingsAt("nisba", textField())
		dm.AddFieldMappingsAt("laqab", textField())
	}

	m.DefaultMapping = dm
}

// IndexPages adds page documents in one batch.
func (e *Engine) IndexPages(ctx context.Context, docs []store.PageDoc) error {
	batch := e.pages.NewBatch()
	for _, d := range docs {
		err := batch.Index(d.Key(), map[string]interface{}{
			"book_id":     d.BookID,
			"page_number": d.PageNumber,
			"text":        d.Text,
		})
		if err != nil {
			return fmt.Errorf("index page %s: %w", d.Key(), err)
		}
	}
	return e.pages.Batch(batch)
}

// IndexAyahs adds verse documents in one batch.
func (e *Engine) IndexAyahs(ctx context.Context, docs []store.AyahDoc) error {
	batch := e.ayahs.NewBatch()
	for _, d := range docs {
		err := batch.Index(d.Key(), map[string]interface{}{
			"surah":    d.Surah,
			"ayah":     d.Ayah,
			"ayah_end": d.AyahEnd,
			"text":     d.Text,
		})
		if err != nil {
			return fmt.Errorf("index ayah %s: %w", d.Key(), err)
		}
	}
	return e.ayahs.Batch(batch)
}

// IndexHadiths adds hadith documents in one batch.
func (e *Engine) IndexHadiths(ctx context.Context, docs []store.HadithDoc) error {
	batch := e.hadiths.NewBatch()
	for _, d := range docs {
		err := batch.Index(d.Key(), map[string]interface{}{
			"collection_slug": d.CollectionSlug,
			"hadith_number":   d.HadithNumber,
			"book_id":         d.BookID,
			"chapter":         d.Chapter,
			"text":            d.Text,
		})
		if err != nil {
			return fmt.Errorf("index hadith %s: %w", d.Key(), err)
		}
	}
	return e.hadiths.Batch(batch)
}

// IndexBooks adds catalog book records in one batch.
func (e *Engine) IndexBooks(ctx context.Context, books []store.Book, authorLatin map[int]string) error {
	batch := e.books.NewBatch()
	for _, b := range books {
		err := batch.Index(strconv.Itoa(b.ID), map[string]interface{}{
			"id":                 b.ID,
			"id_str":             strconv.Itoa(b.ID),
			"title_arabic":       b.TitleArabic,
			"title_arabic_exact": b.TitleArabic,
			"title_latin":        b.TitleLatin,
			"author_name_arabic": b.AuthorName,
			"author_name_latin":  authorLatin[b.AuthorID],
		})
		if err != nil {
			return fmt.Errorf("index book %d: %w", b.ID, err)
		}
	}
	return e.books.Batch(batch)
}

// IndexAuthors adds catalog author records in one batch.
func (e *Engine) IndexAuthors(ctx context.Context, authors []store.Author) error {
	batch := e.authors.NewBatch()
	for _, a := range authors {
		err := batch.Index(strconv.Itoa(a.ID), map[string]interface{}{
			"id":          a.ID,
			"id_str":      strconv.Itoa(a.ID),
			"name_arabic": a.NameArabic,
			"name_latin":  a.NameLatin,
			"kunya":       a.Kunya,
			"nasab":       a.Nasab,
			"nisba":       a.Nisba,
			"laqab":       a.Laqab,
		})
		if err != nil {
			return fmt.Errorf("index author %d: %w", a.ID, err)
		}
	}
	return e.authors.Batch(batch)
}

// DocCounts reports document totals per index for the debug CLI.
func (e *Engine) DocCounts() map[string]uint64 {
	counts := map[string]uint64{}
	for name, idx := range map[string]bleve.Index{
		"pages": e.pages, "ayahs": e.ayahs, "hadiths": e.hadiths,
		"books": e.books, "authors": e.authors,
	} {
		if idx == nil {
			continue
		}
		n, _ := idx.DocCount()
		counts[name] = n
	}
	return counts
}
