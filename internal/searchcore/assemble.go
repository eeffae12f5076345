package searchcore

import (
	"context"
	"log/slog"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/fusion"
	"github.com/noorlib/bahith/internal/graph"
	"github.com/noorlib/bahith/internal/lexical"
	"github.com/noorlib/bahith/internal/store"
)

// assemble turns fused per-domain lists into the response record: book
// metadata enrichment, translation joins, catalog authors and graph
// context. Every join is best-effort.
func (e *Engine) assemble(
	ctx context.Context,
	params SearchParams,
	q arabic.Query,
	stats *DebugStats,
	books []*fusion.Item[pagePayload],
	ayahs []*fusion.Item[store.AyahDoc],
	hadiths []*fusion.Item[store.HadithDoc],
	catalog *lexical.CatalogResult,
	gc *graph.Context,
) (*Response, error) {
	resp := &Response{
		Query:   params.Query,
		Mode:    params.Mode,
		Results: []BookResult{},
		Authors: []AuthorResult{},
		Ayahs:   []AyahResult{},
		Hadiths: []HadithResult{},
	}

	// Catalog-only book matches lead the results for identifier queries:
	// content search has nothing useful to say about "1681".
	if q.Script == arabic.ScriptNumeric && catalog != nil {
		for _, b := range catalog.Books {
			resp.Results = append(resp.Results, BookResult{
				BookID:      b.ID,
				TextSnippet: b.TitleArabic,
				FusedScore:  1,
				MatchType:   string(fusion.MatchKeyword),
				TitleArabic: b.TitleArabic,
				TitleLatin:  b.TitleLatin,
				Author:      b.AuthorName,
			})
		}
	}

	meta := e.bookMetadata(ctx, books, stats)

	for _, it := range books {
		if it.Key == "" {
			// A result without its key cannot be deduped or enriched;
			// drop it rather than crash the request.
			e.logger.Warn("dropping fused result without key")
			continue
		}
		br := BookResult{
			BookID:             it.Payload.Doc.BookID,
			PageNumber:         it.Payload.Doc.PageNumber,
			TextSnippet:        it.Payload.Doc.Text,
			HighlightedSnippet: it.Payload.Highlight,
			SemanticScore:      it.SemanticScore,
			KeywordScore:       it.KeywordScore,
			FusedScore:         it.FusedScore,
			MatchType:          string(it.MatchType),
		}
		if b, ok := meta[br.BookID]; ok {
			br.TitleArabic = b.TitleArabic
			br.TitleLatin = b.TitleLatin
			br.Author = b.AuthorName
		}
		if params.PageLanguage != "" && e.deps.Merger != nil {
			if tr, ok := e.deps.Merger.PageSnippetTranslation(ctx, br.BookID, br.PageNumber,
				params.PageLanguage, br.TextSnippet, it.Payload.Doc.Text); ok {
				br.ContentTranslation = tr
			}
		}
		resp.Results = append(resp.Results, br)
	}

	ayahTr := e.ayahTranslations(ctx, params, ayahs)
	for _, it := range ayahs {
		ar := AyahResult{
			SurahNumber: it.Payload.Surah,
			AyahNumber:  it.Payload.Ayah,
			AyahEnd:     it.Payload.AyahEnd,
			Text:        it.Payload.Text,
			Score:       it.FusedScore,
		}
		if tr, ok := ayahTr[store.AyahKey{Surah: ar.SurahNumber, Ayah: ar.AyahNumber}]; ok {
			ar.Translation = tr
		}
		resp.Ayahs = append(resp.Ayahs, ar)
	}

	hadithTr := e.hadithTranslations(ctx, params, hadiths)
	for _, it := range hadiths {
		hr := HadithResult{
			CollectionSlug: it.Payload.CollectionSlug,
			HadithNumber:   it.Payload.HadithNumber,
			BookID:         it.Payload.BookID,
			Text:           it.Payload.Text,
			Chapter:        it.Payload.Chapter,
			Score:          it.FusedScore,
		}
		if tr, ok := hadithTr[store.HadithKey{BookID: hr.BookID, HadithNumber: hr.HadithNumber}]; ok {
			hr.Translation = tr
		}
		resp.Hadiths = append(resp.Hadiths, hr)
	}

	if catalog != nil {
		for _, a := range catalog.Authors {
			resp.Authors = append(resp.Authors, AuthorResult{
				ID:         a.ID,
				NameArabic: a.NameArabic,
				NameLatin:  a.NameLatin,
				Kunya:      a.Kunya,
				Nisba:      a.Nisba,
			})
		}
	}

	resp.GraphContext = gc
	resp.Count = len(resp.Results)
	return resp, nil
}

// bookMetadata batch-fetches catalog records for every book id in the
// ranked list. Failure just skips enrichment.
func (e *Engine) bookMetadata(ctx context.Context, books []*fusion.Item[pagePayload], stats *DebugStats) map[int]store.Book {
	if len(books) == 0 || e.deps.Repo == nil {
		return nil
	}

	t := stats.branch("book_metadata")
	defer t.done()

	seen := make(map[int]struct{}, len(books))
	ids := make([]int, 0, len(books))
	for _, it := range books {
		id := it.Payload.Doc.BookID
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	meta, err := e.deps.Repo.BooksByIDs(ctx, ids)
	if err != nil {
		stats.recordError("book_metadata", err)
		e.logger.Warn("book metadata join failed", slog.String("error", err.Error()))
		return nil
	}
	return meta
}

func (e *Engine) ayahTranslations(ctx context.Context, params SearchParams, ayahs []*fusion.Item[store.AyahDoc]) map[store.AyahKey]string {
	if params.QuranEdition == "" || len(ayahs) == 0 || e.deps.Merger == nil {
		return nil
	}
	keys := make([]store.AyahKey, 0, len(ayahs))
	for _, it := range ayahs {
		keys = append(keys, store.AyahKey{Surah: it.Payload.Surah, Ayah: it.Payload.Ayah})
	}
	return e.deps.Merger.AyahTranslations(ctx, keys, params.QuranEdition)
}

func (e *Engine) hadithTranslations(ctx context.Context, params SearchParams, hadiths []*fusion.Item[store.HadithDoc]) map[store.HadithKey]string {
	if params.HadithLanguage == "" || len(hadiths) == 0 || e.deps.Merger == nil {
		return nil
	}
	keys := make([]store.HadithKey, 0, len(hadiths))
	for _, it := range hadiths {
		keys = append(keys, store.HadithKey{BookID: it.Payload.BookID, HadithNumber: it.Payload.HadithNumber})
	}
	return e.deps.Merger.HadithTranslations(ctx, keys, params.HadithLanguage)
}
