package lexical

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/store"
)

// Catalog ID match boosts: an exact id hit must dominate every prefix hit.
const (
	idExactBoost  = 100
	idPrefixBoost = 10
)

// Config locates the on-disk indexes. An empty Dir keeps everything in
// memory, which the tests rely on.
type Config struct {
	Dir string
}

// Engine owns the five bleve indexes: three content domains plus the
// books/authors catalog.
type Engine struct {
	pages   bleve.Index
	ayahs   bleve.Index
	hadiths bleve.Index
	books   bleve.Index
	authors bleve.Index
	logger  *slog.Logger
}

// PageHit is one page match with its raw BM25 score.
type PageHit struct {
	Doc       store.PageDoc
	Score     float64
	Highlight string
}

// AyahHit is one verse match.
type AyahHit struct {
	Doc   store.AyahDoc
	Score float64
}

// HadithHit is one hadith match.
type HadithHit struct {
	Doc   store.HadithDoc
	Score float64
}

// CatalogResult carries book and author matches from one catalog query.
type CatalogResult struct {
	Books   []store.Book
	Authors []store.Author
}

// NewEngine opens (or creates) all indexes under cfg.Dir.
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{logger: slog.Default().With("component", "lexical")}

	var err error
	if e.pages, err = openIndex(cfg.Dir, "pages"); err != nil {
		return nil, err
	}
	if e.ayahs, err = openIndex(cfg.Dir, "ayahs"); err != nil {
		return nil, err
	}
	if e.hadiths, err = openIndex(cfg.Dir, "hadiths"); err != nil {
		return nil, err
	}
	if e.books, err = openIndex(cfg.Dir, "books"); err != nil {
		return nil, err
	}
	if e.authors, err = openIndex(cfg.Dir, "authors"); err != nil {
		return nil, err
	}

	return e, nil
}

func openIndex(dir, name string) (bleve.Index, error) {
	m, err := newIndexMapping()
	if err != nil {
		return nil, err
	}
	addDomainMapping(m, name)

	if dir == "" {
		idx, err := bleve.NewMemOnly(m)
		if err != nil {
			return nil, fmt.Errorf("create %s index: %w", name, err)
		}
		return idx, nil
	}

	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); err == nil {
		idx, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s index: %w", name, err)
		}
		return idx, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	idx, err := bleve.New(path, m)
	if err != nil {
		return nil, fmt.Errorf("create %s index: %w", name, err)
	}
	return idx, nil
}

// Close closes every index, reporting the first failure.
func (e *Engine) Close() error {
	var firstErr error
	for _, idx := range []bleve.Index{e.pages, e.ayahs, e.hadiths, e.books, e.authors} {
		if idx == nil {
			continue
		}
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SearchPages runs BM25 over page content. A nil return means the engine
// failed and the caller should fall back; an empty slice means no matches.
// bookFilter, when non-nil, restricts hits to eligible books.
func (e *Engine) SearchPages(ctx context.Context, q arabic.Query, limit int, bookFilter func(int) bool) []PageHit {
	if strings.TrimSpace(q.Normalized) == "" {
		return []PageHit{}
	}

	req := bleve.NewSearchRequest(e.contentQuery(q, "text"))
	req.Size = limit * 2
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlightWithStyle("html")

	result, err := e.pages.SearchInContext(ctx, req)
	if err != nil {
		e.logger.Warn("pages search failed, signalling fallback", slog.String("error", err.Error()))
		return nil
	}

	hits := make([]PageHit, 0, limit)
	for _, hit := range result.Hits {
		doc := store.PageDoc{
			BookID:     fieldInt(hit.Fields, "book_id"),
			PageNumber: fieldInt(hit.Fields, "page_number"),
			Text:       fieldString(hit.Fields, "text"),
		}
		if bookFilter != nil && !bookFilter(doc.BookID) {
			continue
		}
		highlight := ""
		if frags, ok := hit.Fragments["text"]; ok && len(frags) > 0 {
			highlight = strings.ReplaceAll(strings.ReplaceAll(frags[0], "<mark>", "<em>"), "</mark>", "</em>")
		}
		hits = append(hits, PageHit{Doc: doc, Score: hit.Score, Highlight: highlight})
		if len(hits) == limit {
			break
		}
	}
	return hits
}

// SearchAyahs runs BM25 over verse text.
func (e *Engine) SearchAyahs(ctx context.Context, q arabic.Query, limit int) []AyahHit {
	if strings.TrimSpace(q.Normalized) == "" {
		return []AyahHit{}
	}

	req := bleve.NewSearchRequest(e.contentQuery(q, "text"))
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := e.ayahs.SearchInContext(ctx, req)
	if err != nil {
		e.logger.Warn("ayahs search failed, signalling fallback", slog.String("error", err.Error()))
		return nil
	}

	hits := make([]AyahHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, AyahHit{
			Doc: store.AyahDoc{
				Surah:   fieldInt(hit.Fields, "surah"),
				Ayah:    fieldInt(hit.Fields, "ayah"),
				AyahEnd: fieldInt(hit.Fields, "ayah_end"),
				Text:    fieldString(hit.Fields, "text"),
			},
			Score: hit.Score,
		})
	}
	return hits
}

// SearchHadiths runs BM25 over hadith text.
func (e *Engine) SearchHadiths(ctx context.Context, q arabic.Query, limit int) []HadithHit {
	if strings.TrimSpace(q.Normalized) == "" {
		return []HadithHit{}
	}

	req := bleve.NewSearchRequest(e.contentQuery(q, "text"))
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := e.hadiths.SearchInContext(ctx, req)
	if err != nil {
		e.logger.Warn("hadiths search failed, signalling fallback", slog.String("error", err.Error()))
		return nil
	}

	hits := make([]HadithHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, HadithHit{
			Doc: store.HadithDoc{
				CollectionSlug: fieldString(hit.Fields, "collection_slug"),
				HadithNumber:   fieldInt(hit.Fields, "hadith_number"),
				BookID:         fieldInt(hit.Fields, "book_id"),
				Chapter:        fieldString(hit.Fields, "chapter"),
				Text:           fieldString(hit.Fields, "text"),
			},
			Score: hit.Score,
		})
	}
	return hits
}

// SearchCatalog matches books and authors by title or name. Field boosts
// depend on the query script; numeric queries match identifiers with a
// dominating exact boost.
func (e *Engine) SearchCatalog(ctx context.Context, q arabic.Query, limit int) *CatalogResult {
	if strings.TrimSpace(q.Normalized) == "" {
		return &CatalogResult{}
	}

	books, ok := e.searchBooks(ctx, q, limit)
	if !ok {
		return nil
	}
	authors, ok := e.searchAuthors(ctx, q, limit)
	if !ok {
		return nil
	}
	return &CatalogResult{Books: books, Authors: authors}
}

func (e *Engine) searchBooks(ctx context.Context, q arabic.Query, limit int) ([]store.Book, bool) {
	var bq query.Query
	switch q.Script {
	case arabic.ScriptNumeric:
		bq = idQuery(q.Normalized)
	case arabic.ScriptArabic:
		bq = disjunction(
			boostedMatch(q.Normalized, "title_arabic", 3, true),
			boostedMatch(q.Normalized, "title_arabic_exact", 2, false),
			boostedMatch(q.Normalized, "author_name_arabic", 1, true),
		)
	default:
		bq = disjunction(
			boostedMatch(q.Normalized, "title_latin", 3, true),
			boostedMatch(q.Normalized, "author_name_latin", 1, true),
		)
	}

	req := bleve.NewSearchRequest(bq)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := e.books.SearchInContext(ctx, req)
	if err != nil {
		e.logger.Warn("books catalog search failed, signalling fallback", slog.String("error", err.Error()))
		return nil, false
	}

	books := make([]store.Book, 0, len(result.Hits))
	for _, hit := range result.Hits {
		books = append(books, store.Book{
			ID:          fieldInt(hit.Fields, "id"),
			TitleArabic: fieldString(hit.Fields, "title_arabic"),
			TitleLatin:  fieldString(hit.Fields, "title_latin"),
			AuthorName:  fieldString(hit.Fields, "author_name_arabic"),
		})
	}
	return books, true
}

func (e *Engine) searchAuthors(ctx context.Context, q arabic.Query, limit int) ([]store.Author, bool) {
	var aq query.Query
	switch q.Script {
	case arabic.ScriptNumeric:
		aq = idQuery(q.Normalized)
	case arabic.ScriptArabic:
		aq = disjunction(
			boostedMatch(q.Normalized, "name_arabic", 3, true),
			boostedMatch(q.Normalized, "kunya", 2, true),
			boostedMatch(q.Normalized, "nasab", 1, true),
			boostedMatch(q.Normalized, "nisba", 2, true),
			boostedMatch(q.Normalized, "laqab", 1, true),
		)
	default:
		aq = boostedMatch(q.Normalized, "name_latin", 3, true)
	}

	req := bleve.NewSearchRequest(aq)
	req.Size = limit
	req.Fields = []string{"*"}

	result, err := e.authors.SearchInContext(ctx, req)
	if err != nil {
		e.logger.Warn("authors catalog search failed, signalling fallback", slog.String("error", err.Error()))
		return nil, false
	}

	authors := make([]store.Author, 0, len(result.Hits))
	for _, hit := range result.Hits {
		authors = append(authors, store.Author{
			ID:         fieldInt(hit.Fields, "id"),
			NameArabic: fieldString(hit.Fields, "name_arabic"),
			NameLatin:  fieldString(hit.Fields, "name_latin"),
			Kunya:      fieldString(hit.Fields, "kunya"),
			Nasab:      fieldString(hit.Fields, "nasab"),
			Nisba:      fieldString(hit.Fields, "nisba"),
			Laqab:      fieldString(hit.Fields, "laqab"),
		})
	}
	return authors, true
}

// PageCountForBook counts indexed pages of one book; used by the
// indexed-book eligibility check.
func (e *Engine) PageCountForBook(ctx context.Context, bookID int) (int, error) {
	v := float64(bookID)
	truth := true
	nq := bleve.NewNumericRangeInclusiveQuery(&v, &v, &truth, &truth)
	nq.SetField("book_id")

	req := bleve.NewSearchRequest(nq)
	req.Size = 0

	result, err := e.pages.SearchInContext(ctx, req)
	if err != nil {
		return 0, err
	}
	return int(result.Total), nil
}

// contentQuery builds the text query for a content domain: phrase-exact
// when the query was quoted, fuzzy best-match otherwise.
func (e *Engine) contentQuery(q arabic.Query, field string) query.Query {
	if q.HasPhrase() {
		phrases := make([]query.Query, 0, len(q.Phrases))
		for _, p := range q.Phrases {
			mp := bleve.NewMatchPhraseQuery(arabic.Normalize(p))
			mp.SetField(field)
			phrases = append(phrases, mp)
		}
		if len(phrases) == 1 {
			return phrases[0]
		}
		return bleve.NewConjunctionQuery(phrases...)
	}

	fuzzy := q.Script != arabic.ScriptNumeric
	return boostedMatch(q.Normalized, field, 1, fuzzy)
}

// boostedMatch builds a match query with boost and optional fuzziness.
func boostedMatch(text, field string, boost float64, fuzzy bool) query.Query {
	mq := bleve.NewMatchQuery(text)
	mq.SetField(field)
	mq.SetBoost(boost)
	if fuzzy {
		if n := autoFuzziness(text); n > 0 {
			mq.SetFuzziness(n)
		}
	}
	return mq
}

// autoFuzziness derives the edit-distance band the way Elasticsearch's
// AUTO does: 0 edits up to 2 runes, 1 edit up to 5, 2 beyond. bleve takes
// a single fuzziness for every term of a match query, so the band comes
// from the shortest token to keep short words exact.
func autoFuzziness(text string) int {
	shortest := 0
	for _, tok := range strings.Fields(text) {
		n := len([]rune(tok))
		if shortest == 0 || n < shortest {
			shortest = n
		}
	}
	switch {
	case shortest <= 2:
		return 0
	case shortest <= 5:
		return 1
	default:
		return 2
	}
}

// idQuery matches identifiers: an exact hit at a dominating boost unioned
// with prefix matches at a tenth of it.
func idQuery(id string) query.Query {
	exact := bleve.NewTermQuery(id)
	exact.SetField("id_str")
	exact.SetBoost(idExactBoost)

	prefix := bleve.NewPrefixQuery(id)
	prefix.SetField("id_str")
	prefix.SetBoost(idPrefixBoost)

	return bleve.NewDisjunctionQuery(exact, prefix)
}

func disjunction(qs ...query.Query) query.Query {
	return bleve.NewDisjunctionQuery(qs...)
}

func fieldString(fields map[string]interface{}, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]interface{}, name string) int {
	switch v := fields[name].(type) {
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}
