package searchcore

import (
	"sync"
	"time"

	"github.com/noorlib/bahith/internal/fusion"
	"github.com/noorlib/bahith/internal/graph"
	"github.com/noorlib/bahith/internal/store"
)

// Response is the assembled search result across all three domains.
type Response struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
	Count int    `json:"count"`

	Results []BookResult   `json:"results"`
	Authors []AuthorResult `json:"authors"`
	Ayahs   []AyahResult   `json:"ayahs"`
	Hadiths []HadithResult `json:"hadiths"`

	GraphContext *graph.Context `json:"graphContext,omitempty"`

	Refined         bool            `json:"refined,omitempty"`
	ExpandedQueries []ExpandedQuery `json:"expandedQueries,omitempty"`

	DebugStats *DebugStats `json:"debugStats,omitempty"`
}

// BookResult is one ranked book page (or, for catalog-only matches, the
// book itself with no page).
type BookResult struct {
	BookID             int     `json:"bookId"`
	PageNumber         int     `json:"pageNumber,omitempty"`
	TextSnippet        string  `json:"textSnippet"`
	HighlightedSnippet string  `json:"highlightedSnippet,omitempty"`
	SemanticScore      float64 `json:"semanticScore,omitempty"`
	KeywordScore       float64 `json:"keywordScore,omitempty"`
	FusedScore         float64 `json:"fusedScore"`
	MatchType          string  `json:"matchType"`
	ContentTranslation string  `json:"contentTranslation,omitempty"`

	TitleArabic string `json:"titleArabic,omitempty"`
	TitleLatin  string `json:"titleLatin,omitempty"`
	Author      string `json:"author,omitempty"`
}

// AuthorResult is one matching catalog author.
type AuthorResult struct {
	ID         int    `json:"id"`
	NameArabic string `json:"nameArabic"`
	NameLatin  string `json:"nameLatin,omitempty"`
	Kunya      string `json:"kunya,omitempty"`
	Nisba      string `json:"nisba,omitempty"`
}

// AyahResult is one ranked verse.
type AyahResult struct {
	SurahNumber int     `json:"surahNumber"`
	AyahNumber  int     `json:"ayahNumber"`
	AyahEnd     int     `json:"ayahEnd,omitempty"`
	Text        string  `json:"text"`
	Translation string  `json:"translation,omitempty"`
	Score       float64 `json:"score"`
}

// HadithResult is one ranked hadith.
type HadithResult struct {
	CollectionSlug string  `json:"collectionSlug"`
	HadithNumber   int     `json:"hadithNumber"`
	BookID         int     `json:"bookId"`
	Text           string  `json:"text"`
	Chapter        string  `json:"chapter,omitempty"`
	Translation    string  `json:"translation,omitempty"`
	Score          float64 `json:"score"`
}

// ExpandedQuery echoes one refine-mode expansion.
type ExpandedQuery struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason,omitempty"`
}

// DebugStats exposes per-branch timing and swallowed errors outside
// production. Branches report concurrently, so writes go through the
// mutex.
type DebugStats struct {
	mu sync.Mutex

	TotalMs      int64             `json:"totalMs"`
	BranchMs     map[string]int64  `json:"branchMs,omitempty"`
	BranchErrors map[string]string `json:"branchErrors,omitempty"`
	Candidates   map[string]int    `json:"candidates,omitempty"`
	RerankStatus string            `json:"rerankStatus,omitempty"`
}

func (s *DebugStats) setCandidates(name string, n int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Candidates[name] = n
	s.mu.Unlock()
}

// pagePayload is the fused book-page payload: the page document plus the
// lexical highlight when the keyword engine saw it.
type pagePayload struct {
	Doc       store.PageDoc
	Highlight string
}

// branchTimer records one branch's wall time into stats.
type branchTimer struct {
	stats *DebugStats
	name  string
	start time.Time
}

func (s *DebugStats) branch(name string) *branchTimer {
	return &branchTimer{stats: s, name: name, start: time.Now()}
}

func (t *branchTimer) done() {
	if t.stats == nil {
		return
	}
	t.stats.mu.Lock()
	t.stats.BranchMs[t.name] = time.Since(t.start).Milliseconds()
	t.stats.mu.Unlock()
}

func (s *DebugStats) recordError(branch string, err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.BranchErrors[branch] = err.Error()
	s.mu.Unlock()
}

func newDebugStats() *DebugStats {
	return &DebugStats{
		BranchMs:     make(map[string]int64),
		BranchErrors: make(map[string]string),
		Candidates:   make(map[string]int),
	}
}

// bestPagePayload is the keep-best merge for refine dedupe: keep the
// highlight and the longer snippet.
func bestPagePayload(a, b pagePayload) pagePayload {
	out := a
	if len(b.Doc.Text) > len(out.Doc.Text) {
		out.Doc = b.Doc
	}
	if out.Highlight == "" {
		out.Highlight = b.Highlight
	}
	return out
}

func bestAyahPayload(a, b store.AyahDoc) store.AyahDoc {
	if len(b.Text) > len(a.Text) {
		return b
	}
	return a
}

func bestHadithPayload(a, b store.HadithDoc) store.HadithDoc {
	out := a
	if len(b.Text) > len(out.Text) {
		out.Text = b.Text
	}
	if out.Chapter == "" {
		out.Chapter = b.Chapter
	}
	return out
}

// itemTexts extracts the rerank candidate text from fused items.
func itemTexts[T any](items []*fusion.Item[T], text func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = text(it.Payload)
	}
	return out
}
