// Package translate joins stored translations onto ranked results and
// serves on-demand document translation behind the in-flight coalescer.
// A missing translation is never an error: the result ships without it.
package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tmc/langchaingo/llms"

	"github.com/noorlib/bahith/internal/cache"
	"github.com/noorlib/bahith/internal/htmltext"
	"github.com/noorlib/bahith/internal/store"
)

const (
	// pageCacheSize bounds the LRU of whole-page translations; pages are
	// re-requested heavily when a book dominates results.
	pageCacheSize = 512

	translatorModel = "openai/gpt-4o-mini"
)

// Repository is the slice of the metadata store the merger needs.
type Repository interface {
	AyahTranslations(ctx context.Context, keys []store.AyahKey, edition string) (map[store.AyahKey]string, error)
	HadithTranslations(ctx context.Context, keys []store.HadithKey, language string) (map[store.HadithKey]string, error)
	PageTranslationFor(ctx context.Context, bookID, pageNumber int, language string) (*store.PageTranslation, error)
	SavePageTranslation(ctx context.Context, bookID, pageNumber int, language string, p store.ParagraphTranslation) error
}

// Merger looks up translations for ranked results.
type Merger struct {
	repo      Repository
	pageCache *lru.Cache[string, *store.PageTranslation]
	llm       llms.Model
	inflight  *cache.Inflight[string]
	logger    *slog.Logger
}

// NewMerger wires a merger. llm may be nil, disabling on-demand
// translation.
func NewMerger(repo Repository, llm llms.Model) *Merger {
	pageCache, _ := lru.New[string, *store.PageTranslation](pageCacheSize)
	return &Merger{
		repo:      repo,
		pageCache: pageCache,
		llm:       llm,
		inflight:  cache.NewInflight[string](),
		logger:    slog.Default().With("component", "translate"),
	}
}

// AyahTranslations fetches the requested edition for all keys in one
// repository call. Failure logs and returns an empty map.
func (m *Merger) AyahTranslations(ctx context.Context, keys []store.AyahKey, edition string) map[store.AyahKey]string {
	if len(keys) == 0 || edition == "" {
		return map[store.AyahKey]string{}
	}
	out, err := m.repo.AyahTranslations(ctx, keys, edition)
	if err != nil {
		m.logger.Warn("ayah translation join failed",
			slog.String("edition", edition),
			slog.String("error", err.Error()))
		return map[store.AyahKey]string{}
	}
	return out
}

// HadithTranslations fetches the requested language for all keys in one
// repository call. Failure logs and returns an empty map.
func (m *Merger) HadithTranslations(ctx context.Context, keys []store.HadithKey, language string) map[store.HadithKey]string {
	if len(keys) == 0 || language == "" {
		return map[store.HadithKey]string{}
	}
	out, err := m.repo.HadithTranslations(ctx, keys, language)
	if err != nil {
		m.logger.Warn("hadith translation join failed",
			slog.String("language", language),
			slog.String("error", err.Error()))
		return map[store.HadithKey]string{}
	}
	return out
}

// PageSnippetTranslation finds the stored translation of the paragraph a
// ranked snippet came from. The page HTML is re-split by the paragraph
// extractor and the paragraph nearest the snippet selects the record.
func (m *Merger) PageSnippetTranslation(ctx context.Context, bookID, pageNumber int, language, snippet, pageHTML string) (string, bool) {
	if language == "" || strings.TrimSpace(snippet) == "" {
		return "", false
	}

	pt := m.pageTranslation(ctx, bookID, pageNumber, language)
	if pt == nil || len(pt.Paragraphs) == 0 {
		return "", false
	}

	paras := htmltext.Extract(pageHTML)
	want := htmltext.Nearest(paras, snippet)
	if want < 0 {
		return "", false
	}

	for _, p := range pt.Paragraphs {
		if p.ParagraphIndex == want {
			return p.Text, true
		}
	}
	return "", false
}

func (m *Merger) pageTranslation(ctx context.Context, bookID, pageNumber int, language string) *store.PageTranslation {
	key := fmt.Sprintf("%d:%d:%s", bookID, pageNumber, language)
	if pt, ok := m.pageCache.Get(key); ok {
		return pt
	}

	pt, err := m.repo.PageTranslationFor(ctx, bookID, pageNumber, language)
	if err != nil {
		m.logger.Debug("page translation lookup missed",
			slog.Int("book_id", bookID),
			slog.Int("page", pageNumber),
			slog.String("language", language),
			slog.String("error", err.Error()))
		return nil
	}

	m.pageCache.Add(key, pt)
	return pt
}

// TranslateDocument produces a fresh LLM translation of text, coalescing
// concurrent requests for the same (document, language) pair and storing
// the result for future joins.
func (m *Merger) TranslateDocument(ctx context.Context, bookID, pageNumber, paragraphIndex int, language, text string) (string, error) {
	if m.llm == nil {
		return "", fmt.Errorf("translator not configured")
	}

	key := fmt.Sprintf("%d:%d:%d:%s", bookID, pageNumber, paragraphIndex, language)
	return m.inflight.Do(ctx, key, func(ctx context.Context) (string, error) {
		translated, err := m.translate(ctx, language, text)
		if err != nil {
			return "", err
		}

		record := store.ParagraphTranslation{ParagraphIndex: paragraphIndex, Text: translated}
		if err := m.repo.SavePageTranslation(ctx, bookID, pageNumber, language, record); err != nil {
			// Persisting is best effort; the caller still gets the text.
			m.logger.Warn("storing translation failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return translated, nil
	})
}

func (m *Merger) translate(ctx context.Context, language, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Translate the following classical Arabic passage into %s. Respond with only the translation.\n\n%s",
		language, text)

	resp, err := m.llm.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)},
		llms.WithTemperature(0),
		llms.WithModel(translatorModel),
	)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty translation response")
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
