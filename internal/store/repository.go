package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the typed access layer over the relational metadata store.
// Every method takes a context because each call is a remote round trip.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository connects a pgx pool to the database at dbURL.
func NewRepository(ctx context.Context, dbURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// BooksByIDs fetches catalog metadata for the given book ids in one query.
func (r *Repository) BooksByIDs(ctx context.Context, ids []int) (map[int]Book, error) {
	if len(ids) == 0 {
		return map[int]Book{}, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.title_arabic, COALESCE(b.title_latin, ''),
		       COALESCE(b.author_id, 0), COALESCE(a.name_arabic, ''),
		       COALESCE(b.page_count, 0)
		FROM books b
		LEFT JOIN authors a ON a.id = b.author_id
		WHERE b.id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make(map[int]Book, len(ids))
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.TitleArabic, &b.TitleLatin, &b.AuthorID, &b.AuthorName, &b.PageCount); err != nil {
			return nil, err
		}
		books[b.ID] = b
	}
	return books, rows.Err()
}

// PageCounts returns the stored page count per book id.
func (r *Repository) PageCounts(ctx context.Context, ids []int) (map[int]int, error) {
	if len(ids) == 0 {
		return map[int]int{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, COALESCE(page_count, 0) FROM books WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int, len(ids))
	for rows.Next() {
		var id, count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

// AllBookIDs lists every book id in the catalog.
func (r *Repository) AllBookIDs(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM books ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// HadithSourceBookIDs lists the books whose content is indexed per hadith
// rather than per page. They are always content-search eligible.
func (r *Repository) HadithSourceBookIDs(ctx context.Context) ([]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT book_id FROM hadith_collections WHERE book_id IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AyahTranslations fetches the requested edition's text for each verse key
// in one query.
func (r *Repository) AyahTranslations(ctx context.Context, keys []AyahKey, edition string) (map[AyahKey]string, error) {
	if len(keys) == 0 {
		return map[AyahKey]string{}, nil
	}

	surahs := make([]int, len(keys))
	ayahs := make([]int, len(keys))
	for i, k := range keys {
		surahs[i] = k.Surah
		ayahs[i] = k.Ayah
	}

	rows, err := r.pool.Query(ctx, `
		SELECT t.surah_number, t.ayah_number, t.text
		FROM ayah_translations t
		JOIN unnest($1::int[], $2::int[]) AS want(surah, ayah)
		  ON want.surah = t.surah_number AND want.ayah = t.ayah_number
		WHERE t.edition = $3`, surahs, ayahs, edition)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[AyahKey]string, len(keys))
	for rows.Next() {
		var k AyahKey
		var text string
		if err := rows.Scan(&k.Surah, &k.Ayah, &text); err != nil {
			return nil, err
		}
		out[k] = text
	}
	return out, rows.Err()
}

// HadithTranslations fetches the requested language's text for each hadith
// key in one query.
func (r *Repository) HadithTranslations(ctx context.Context, keys []HadithKey, language string) (map[HadithKey]string, error) {
	if len(keys) == 0 {
		return map[HadithKey]string{}, nil
	}

	bookIDs := make([]int, len(keys))
	numbers := make([]int, len(keys))
	for i, k := range keys {
		bookIDs[i] = k.BookID
		numbers[i] = k.HadithNumber
	}

	rows, err := r.pool.Query(ctx, `
		SELECT t.book_id, t.hadith_number, t.text
		FROM hadith_translations t
		JOIN unnest($1::int[], $2::int[]) AS want(book_id, num)
		  ON want.book_id = t.book_id AND want.num = t.hadith_number
		WHERE t.language = $3`, bookIDs, numbers, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[HadithKey]string, len(keys))
	for rows.Next() {
		var k HadithKey
		var text string
		if err := rows.Scan(&k.BookID, &k.HadithNumber, &text); err != nil {
			return nil, err
		}
		out[k] = text
	}
	return out, rows.Err()
}

// PageTranslationFor fetches the stored translation of one page in one
// language, with its ordered paragraph records.
func (r *Repository) PageTranslationFor(ctx context.Context, bookID, pageNumber int, language string) (*PageTranslation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT paragraph_index, text
		FROM page_translations
		WHERE book_id = $1 AND page_number = $2 AND language = $3
		ORDER BY paragraph_index`, bookID, pageNumber, language)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pt := &PageTranslation{BookID: bookID, PageNumber: pageNumber, Language: language}
	for rows.Next() {
		var p ParagraphTranslation
		if err := rows.Scan(&p.ParagraphIndex, &p.Text); err != nil {
			return nil, err
		}
		pt.Paragraphs = append(pt.Paragraphs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(pt.Paragraphs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return pt, nil
}

// SavePageTranslation upserts one translated paragraph of a page.
func (r *Repository) SavePageTranslation(ctx context.Context, bookID, pageNumber int, language string, p ParagraphTranslation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO page_translations (book_id, page_number, language, paragraph_index, text)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (book_id, page_number, language, paragraph_index)
		DO UPDATE SET text = EXCLUDED.text`,
		bookID, pageNumber, language, p.ParagraphIndex, p.Text)
	return err
}

// SearchBooksLike is the SQL fallback used when the lexical engine is
// unavailable. It matches normalized titles with LIKE.
func (r *Repository) SearchBooksLike(ctx context.Context, query string, limit int) ([]Book, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.title_arabic, COALESCE(b.title_latin, ''),
		       COALESCE(b.author_id, 0), COALESCE(a.name_arabic, ''),
		       COALESCE(b.page_count, 0)
		FROM books b
		LEFT JOIN authors a ON a.id = b.author_id
		WHERE b.title_arabic LIKE $1 OR b.title_latin ILIKE $1
		ORDER BY b.id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.TitleArabic, &b.TitleLatin, &b.AuthorID, &b.AuthorName, &b.PageCount); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

// SearchAuthorsLike is the SQL fallback for author lookup.
func (r *Repository) SearchAuthorsLike(ctx context.Context, query string, limit int) ([]Author, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.pool.Query(ctx, `
		SELECT id, name_arabic, COALESCE(name_latin, ''),
		       COALESCE(kunya, ''), COALESCE(nasab, ''),
		       COALESCE(nisba, ''), COALESCE(laqab, '')
		FROM authors
		WHERE name_arabic LIKE $1 OR name_latin ILIKE $1
		ORDER BY id
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []Author
	for rows.Next() {
		var a Author
		if err := rows.Scan(&a.ID, &a.NameArabic, &a.NameLatin, &a.Kunya, &a.Nasab, &a.Nisba, &a.Laqab); err != nil {
			return nil, err
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// RelatedConcepts looks up graph entities linked to the query terms.
func (r *Repository) RelatedConcepts(ctx context.Context, terms []string, limit int) ([]RelatedConcept, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT c.name, c.kind, COALESCE(c.related, '{}'),
		       COALESCE(c.surah_number, 0), COALESCE(c.ayah_number, 0),
		       COALESCE(c.strength, 0)
		FROM concepts c
		WHERE c.term = ANY($1)
		ORDER BY c.strength DESC
		LIMIT $2`, terms, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var concepts []RelatedConcept
	for rows.Next() {
		var c RelatedConcept
		if err := rows.Scan(&c.Name, &c.Kind, &c.Related, &c.Surah, &c.Ayah, &c.Strength); err != nil {
			return nil, err
		}
		concepts = append(concepts, c)
	}
	return concepts, rows.Err()
}
