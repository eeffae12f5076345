// Package store holds the shared content-domain document shapes and the
// relational repository over the metadata database. Both search engines and
// the orchestrator exchange these types; scores and ranks live on the
// fusion wrappers, never here.
package store

import "fmt"

// PageDoc is one book page as indexed for content search.
type PageDoc struct {
	BookID     int
	PageNumber int
	Text       string
}

// Key is the dedupe identity of a page: one page per book.
func (d PageDoc) Key() string {
	return fmt.Sprintf("%d:%d", d.BookID, d.PageNumber)
}

// AyahDoc is one Quran verse (or a short verse span).
type AyahDoc struct {
	Surah   int
	Ayah    int
	AyahEnd int
	Text    string
}

// Key is the dedupe identity of a verse.
func (d AyahDoc) Key() string {
	return fmt.Sprintf("%d:%d", d.Surah, d.Ayah)
}

// HadithDoc is one hadith as indexed for content search.
type HadithDoc struct {
	CollectionSlug string
	HadithNumber   int
	BookID         int
	Chapter        string
	Text           string
}

// Key is the dedupe identity of a hadith.
func (d HadithDoc) Key() string {
	return fmt.Sprintf("%s:%d", d.CollectionSlug, d.HadithNumber)
}

// Book is catalog metadata attached to page results.
type Book struct {
	ID          int
	TitleArabic string
	TitleLatin  string
	AuthorID    int
	AuthorName  string
	PageCount   int
}

// Author is one catalog author record.
type Author struct {
	ID         int
	NameArabic string
	NameLatin  string
	Kunya      string
	Nasab      string
	Nisba      string
	Laqab      string
}

// AyahKey identifies a verse for translation joins.
type AyahKey struct {
	Surah int
	Ayah  int
}

// HadithKey identifies a hadith for translation joins.
type HadithKey struct {
	BookID       int
	HadithNumber int
}

// ParagraphTranslation is one translated paragraph of a page, addressed by
// the paragraph's position in the page HTML.
type ParagraphTranslation struct {
	ParagraphIndex int
	Text           string
}

// PageTranslation is the stored translation of a whole page.
type PageTranslation struct {
	BookID     int
	PageNumber int
	Language   string
	Paragraphs []ParagraphTranslation
}

// RelatedConcept is one row from the concept graph: an entity linked to the
// query terms, optionally anchored to a verse.
type RelatedConcept struct {
	Name     string
	Kind     string
	Related  []string
	Surah    int
	Ayah     int
	Strength float64
}
