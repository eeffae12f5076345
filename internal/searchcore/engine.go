package searchcore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/config"
	"github.com/noorlib/bahith/internal/embed"
	"github.com/noorlib/bahith/internal/expand"
	"github.com/noorlib/bahith/internal/fusion"
	"github.com/noorlib/bahith/internal/graph"
	"github.com/noorlib/bahith/internal/lexical"
	"github.com/noorlib/bahith/internal/rerank"
	"github.com/noorlib/bahith/internal/store"
	"github.com/noorlib/bahith/internal/telemetry"
	"github.com/noorlib/bahith/internal/vector"
)

// embedTimeout bounds the whole query-embedding call, so it caps the
// back-end's rate-limit retry series as a whole, not each attempt.
const embedTimeout = 15 * time.Second

// LexicalEngine is the BM25 adapter surface the orchestrator consumes.
// A nil slice (as opposed to an empty one) means the engine is unavailable
// and SQL fallback applies where one exists.
type LexicalEngine interface {
	SearchPages(ctx context.Context, q arabic.Query, limit int, bookFilter func(int) bool) []lexical.PageHit
	SearchAyahs(ctx context.Context, q arabic.Query, limit int) []lexical.AyahHit
	SearchHadiths(ctx context.Context, q arabic.Query, limit int) []lexical.HadithHit
	SearchCatalog(ctx context.Context, q arabic.Query, limit int) *lexical.CatalogResult
}

// MetadataRepo is the repository surface used during assembly.
type MetadataRepo interface {
	BooksByIDs(ctx context.Context, ids []int) (map[int]store.Book, error)
	SearchBooksLike(ctx context.Context, query string, limit int) ([]store.Book, error)
	SearchAuthorsLike(ctx context.Context, query string, limit int) ([]store.Author, error)
}

// TranslationMerger joins stored translations onto ranked results.
type TranslationMerger interface {
	AyahTranslations(ctx context.Context, keys []store.AyahKey, edition string) map[store.AyahKey]string
	HadithTranslations(ctx context.Context, keys []store.HadithKey, language string) map[store.HadithKey]string
	PageSnippetTranslation(ctx context.Context, bookID, pageNumber int, language, snippet, pageHTML string) (string, bool)
}

// GraphResolver produces optional related-entity context.
type GraphResolver interface {
	Resolve(ctx context.Context, q arabic.Query) *graph.Context
}

// QueryExpander produces refine-mode paraphrases.
type QueryExpander interface {
	Expand(ctx context.Context, query string) []expand.Expansion
}

// EligibilityProvider returns the indexed-book set, nil meaning no filter.
type EligibilityProvider interface {
	Eligible(ctx context.Context) map[int]struct{}
}

// Deps wires the orchestrator. Reranker, Expander, Graph, Indexed, Metrics
// and Analytics may be nil; the pipeline degrades around them.
type Deps struct {
	Lexical   LexicalEngine
	Stores    map[embed.Model]*vector.Store
	Embedders map[embed.Model]embed.Embedder
	Repo      MetadataRepo
	Merger    TranslationMerger
	Graph     GraphResolver
	Reranker  *rerank.Reranker
	Expander  QueryExpander
	Indexed   EligibilityProvider
	Metrics   *telemetry.QueryMetrics
	Analytics *telemetry.AnalyticsSink
}

// Engine is the search orchestrator.
type Engine struct {
	cfg    config.Config
	deps   Deps
	logger *slog.Logger
}

// NewEngine creates the orchestrator.
func NewEngine(cfg config.Config, deps Deps) *Engine {
	return &Engine{
		cfg:    cfg,
		deps:   deps,
		logger: slog.Default().With("component", "search"),
	}
}

// Search runs one request end to end.
func (e *Engine) Search(ctx context.Context, params SearchParams) (*Response, error) {
	start := time.Now()

	if err := params.Normalize(e.cfg.Search.DefaultLimit, e.cfg.Search.MaxLimit); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Search.RequestTimeout)
	defer cancel()

	q := arabic.ParseQuery(params.Query)
	stats := newDebugStats()

	var (
		resp *Response
		err  error
	)
	if params.Refine && params.Mode == ModeHybrid && params.BookID == 0 {
		resp, err = e.refine(ctx, params, q, stats)
	} else {
		resp, err = e.standard(ctx, params, q, stats)
	}
	if err != nil {
		return nil, err
	}

	stats.TotalMs = time.Since(start).Milliseconds()
	if !e.cfg.Production() {
		resp.DebugStats = stats
	}

	ev := telemetry.QueryEvent{
		Query:       params.Query,
		Mode:        string(params.Mode),
		Refined:     resp.Refined,
		ResultCount: len(resp.Results),
		AyahCount:   len(resp.Ayahs),
		HadithCount: len(resp.Hadiths),
		Latency:     time.Since(start),
		Timestamp:   time.Now(),
	}
	e.deps.Metrics.Record(ev)
	if e.deps.Analytics != nil {
		e.deps.Analytics.Emit(ev)
	}

	return resp, nil
}

// branchResults is everything the standard fan-out gathers.
type branchResults struct {
	lexPages   []lexical.PageHit
	lexAyahs   []lexical.AyahHit
	lexHadiths []lexical.HadithHit

	semPages   []vector.Hit[store.PageDoc]
	semAyahs   []vector.Hit[store.AyahDoc]
	semHadiths []vector.Hit[store.HadithDoc]

	catalog      *lexical.CatalogResult
	graphContext *graph.Context

	// collectionErr carries the one promotable engine failure. Several
	// semantic sub-branches may report it concurrently.
	errMu         sync.Mutex
	collectionErr error
}

func (br *branchResults) setCollectionErr(err error) {
	br.errMu.Lock()
	if br.collectionErr == nil {
		br.collectionErr = err
	}
	br.errMu.Unlock()
}

// standard runs the regular pipeline: parallel lexical + embedding, then
// parallel semantic, then merge/rerank/enrich.
func (e *Engine) standard(ctx context.Context, params SearchParams, q arabic.Query, stats *DebugStats) (*Response, error) {
	skipLexical := q.Script == arabic.ScriptLatin || params.Mode == ModeSemantic
	skipSemantic := q.SkipSemantic() || params.Mode == ModeKeyword

	fetchLimit := params.Limit * 2
	br := e.fanOut(ctx, params, q, stats, fanOutSpec{
		skipLexical:  skipLexical,
		skipSemantic: skipSemantic,
		pageLimit:    fetchLimit,
		ayahLimit:    params.AyahLimit * 2,
		hadithLimit:  params.HadithLimit * 2,
		threshold:    e.threshold(params, q),
		withCatalog:  true,
		withGraph:    true,
	})
	if br.collectionErr != nil {
		return nil, br.collectionErr
	}

	books := e.mergeBooks(params.Mode, br.lexPages, br.semPages)
	books = fusion.Truncate(books, params.Limit)
	ayahs := mergeDomain(params.Mode, ayahsToRanked(br.lexAyahs), semAyahsToRanked(br.semAyahs))
	ayahs = fusion.Truncate(ayahs, params.AyahLimit)
	hadiths := mergeDomain(params.Mode, hadithsToRanked(br.lexHadiths), semHadithsToRanked(br.semHadiths))
	hadiths = fusion.Truncate(hadiths, params.HadithLimit)

	stats.setCandidates("books", len(books))
	stats.setCandidates("ayahs", len(ayahs))
	stats.setCandidates("hadiths", len(hadiths))

	books = e.rerankBooks(ctx, params, books, stats)
	applyAyahBoosts(ayahs, br.graphContext)

	return e.assemble(ctx, params, q, stats, books, ayahs, hadiths, br.catalog, br.graphContext)
}

// fanOutSpec parameterizes the scatter step so the refine path can reuse
// it per query variant.
type fanOutSpec struct {
	skipLexical  bool
	skipSemantic bool
	pageLimit    int
	ayahLimit    int
	hadithLimit  int
	threshold    float64
	withCatalog  bool
	withGraph    bool
}

// fanOut launches all engine branches. Every branch degrades to empty on
// failure; only a missing vector collection is carried out for promotion.
func (e *Engine) fanOut(ctx context.Context, params SearchParams, q arabic.Query, stats *DebugStats, spec fanOutSpec) *branchResults {
	br := &branchResults{}
	g, gctx := errgroup.WithContext(ctx)

	includeBooks := params.IncludeBooks
	includeQuran := params.IncludeQuran && params.BookID == 0
	includeHadith := params.IncludeHadith && params.BookID == 0

	if includeBooks && !spec.skipLexical {
		g.Go(func() error {
			t := stats.branch("lexical_pages")
			defer t.done()
			bctx, cancel := context.WithTimeout(gctx, e.cfg.Search.EngineTimeout)
			defer cancel()
			br.lexPages = e.deps.Lexical.SearchPages(bctx, q, spec.pageLimit, e.bookFilter(bctx, params))
			return nil
		})
	}
	if includeQuran && !spec.skipLexical {
		g.Go(func() error {
			t := stats.branch("lexical_ayahs")
			defer t.done()
			bctx, cancel := context.WithTimeout(gctx, e.cfg.Search.EngineTimeout)
			defer cancel()
			br.lexAyahs = e.deps.Lexical.SearchAyahs(bctx, q, spec.ayahLimit)
			return nil
		})
	}
	if includeHadith && !spec.skipLexical {
		g.Go(func() error {
			t := stats.branch("lexical_hadiths")
			defer t.done()
			bctx, cancel := context.WithTimeout(gctx, e.cfg.Search.EngineTimeout)
			defer cancel()
			br.lexHadiths = e.deps.Lexical.SearchHadiths(bctx, q, spec.hadithLimit)
			return nil
		})
	}

	if spec.withCatalog {
		g.Go(func() error {
			t := stats.branch("catalog")
			defer t.done()
			bctx, cancel := context.WithTimeout(gctx, e.cfg.Search.EngineTimeout)
			defer cancel()
			br.catalog = e.catalogWithFallback(bctx, q, stats)
			return nil
		})
	}

	if spec.withGraph && e.deps.Graph != nil {
		g.Go(func() error {
			t := stats.branch("graph")
			defer t.done()
			br.graphContext = e.deps.Graph.Resolve(gctx, q)
			return nil
		})
	}

	if !spec.skipSemantic {
		g.Go(func() error {
			t := stats.branch("semantic")
			defer t.done()
			e.semanticBranch(gctx, params, q, stats, spec, br, includeBooks, includeQuran, includeHadith)
			return nil
		})
	}

	_ = g.Wait()
	return br
}

// semanticBranch embeds the query once and fans out the three collection
// searches. Embedding failure empties the whole branch.
func (e *Engine) semanticBranch(ctx context.Context, params SearchParams, q arabic.Query, stats *DebugStats, spec fanOutSpec, br *branchResults, includeBooks, includeQuran, includeHadith bool) {
	vs := e.deps.Stores[params.EmbeddingModel]
	embedder := e.deps.Embedders[params.EmbeddingModel]
	if vs == nil || !vs.Ready() || embedder == nil {
		br.setCollectionErr(vector.ErrCollectionNotFound)
		return
	}

	ectx, cancel := context.WithTimeout(ctx, embedTimeout)
	vec, err := embedder.Embed(ectx, q.Normalized)
	cancel()
	if err != nil {
		stats.recordError("embedding", err)
		e.logger.Warn("query embedding failed, semantic branch empty",
			slog.String("error", err.Error()))
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	search := func(name string, run func(context.Context) error) {
		g.Go(func() error {
			t := stats.branch(name)
			defer t.done()
			sctx, cancel := context.WithTimeout(gctx, e.cfg.Search.EngineTimeout)
			defer cancel()
			if err := run(sctx); err != nil {
				if errors.Is(err, vector.ErrCollectionNotFound) {
					br.setCollectionErr(err)
					return nil
				}
				stats.recordError(name, err)
			}
			return nil
		})
	}

	if includeBooks {
		search("semantic_pages", func(sctx context.Context) error {
			hits, err := vs.Pages.Search(sctx, vec, spec.pageLimit, spec.threshold)
			if err != nil {
				return err
			}
			br.semPages = e.filterSemanticPages(sctx, hits, params)
			return nil
		})
	}
	if includeQuran {
		search("semantic_ayahs", func(sctx context.Context) error {
			hits, err := vs.Quran.Search(sctx, vec, spec.ayahLimit, spec.threshold)
			if err != nil {
				return err
			}
			br.semAyahs = hits
			return nil
		})
	}
	if includeHadith {
		search("semantic_hadiths", func(sctx context.Context) error {
			hits, err := vs.Hadith.Search(sctx, vec, spec.hadithLimit, spec.threshold)
			if err != nil {
				return err
			}
			br.semHadiths = hits
			return nil
		})
	}

	_ = g.Wait()
}

func (e *Engine) filterSemanticPages(ctx context.Context, hits []vector.Hit[store.PageDoc], params SearchParams) []vector.Hit[store.PageDoc] {
	filter := e.bookFilter(ctx, params)
	if filter == nil {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		if filter(h.Payload.BookID) {
			out = append(out, h)
		}
	}
	return out
}

// bookFilter returns the page eligibility predicate: a single-book scope,
// the indexed-book set, or nil for no filtering.
func (e *Engine) bookFilter(ctx context.Context, params SearchParams) func(int) bool {
	if params.BookID > 0 {
		want := params.BookID
		return func(id int) bool { return id == want }
	}
	if e.deps.Indexed == nil {
		return nil
	}
	eligible := e.deps.Indexed.Eligible(ctx)
	if eligible == nil {
		return nil
	}
	return func(id int) bool {
		_, ok := eligible[id]
		return ok
	}
}

// catalogWithFallback queries the catalog indexes and falls back to SQL
// LIKE when the engine signals unavailability.
func (e *Engine) catalogWithFallback(ctx context.Context, q arabic.Query, stats *DebugStats) *lexical.CatalogResult {
	result := e.deps.Lexical.SearchCatalog(ctx, q, e.cfg.Search.DefaultLimit)
	if result != nil {
		return result
	}

	stats.recordError("catalog", errors.New("lexical engine unavailable, using SQL fallback"))
	if e.deps.Repo == nil {
		return &lexical.CatalogResult{}
	}
	books, err := e.deps.Repo.SearchBooksLike(ctx, q.Normalized, e.cfg.Search.DefaultLimit)
	if err != nil {
		e.logger.Warn("catalog SQL fallback failed", slog.String("error", err.Error()))
		return &lexical.CatalogResult{}
	}
	authors, err := e.deps.Repo.SearchAuthorsLike(ctx, q.Normalized, e.cfg.Search.DefaultLimit)
	if err != nil {
		authors = nil
	}
	return &lexical.CatalogResult{Books: books, Authors: authors}
}

// threshold computes the per-request vector cutoff.
func (e *Engine) threshold(params SearchParams, q arabic.Query) float64 {
	base := e.cfg.Search.BaseSimilarity
	if params.Similarity > 0 {
		base = params.Similarity
	}
	return arabic.SimilarityThreshold(base, q.Normalized)
}

// mergeBooks fuses the page lists according to the mode rule. Dual-engine
// items carry the semantic payload out of fusion, so the lexical highlight
// is re-attached by key.
func (e *Engine) mergeBooks(mode Mode, lex []lexical.PageHit, sem []vector.Hit[store.PageDoc]) []*fusion.Item[pagePayload] {
	items := mergeDomain(mode, pagesToRanked(lex), semPagesToRanked(sem))

	if len(lex) > 0 {
		highlights := make(map[string]string, len(lex))
		for _, h := range lex {
			if h.Highlight != "" {
				highlights[h.Doc.Key()] = h.Highlight
			}
		}
		for _, it := range items {
			if it.Payload.Highlight == "" {
				if hl, ok := highlights[it.Key]; ok {
					it.Payload.Highlight = hl
				}
			}
		}
	}

	return items
}

// mergeDomain applies the mode rule: keyword normalizes BM25, semantic
// passes through, hybrid runs weighted fusion.
func mergeDomain[T any](mode Mode, keyword, semantic []fusion.Ranked[T]) []*fusion.Item[T] {
	switch mode {
	case ModeKeyword:
		return fusion.FromKeyword(keyword)
	case ModeSemantic:
		return fusion.FromSemantic(semantic)
	default:
		return fusion.Fuse(semantic, keyword)
	}
}

// rerankBooks applies the single-domain reranker to the book list. The
// original order survives every failure mode.
func (e *Engine) rerankBooks(ctx context.Context, params SearchParams, books []*fusion.Item[pagePayload], stats *DebugStats) []*fusion.Item[pagePayload] {
	if params.Reranker == rerank.ChoiceNone || e.deps.Reranker == nil || len(books) < 2 {
		return books
	}

	t := stats.branch("rerank")
	defer t.done()

	texts := itemTexts(books, func(p pagePayload) string { return p.Doc.Text })
	res := e.deps.Reranker.Rerank(ctx, params.Query, texts, len(books), params.Reranker)

	stats.mu.Lock()
	if res.TimedOut {
		stats.RerankStatus = "timed_out"
	} else {
		stats.RerankStatus = "ok"
	}
	stats.mu.Unlock()

	reordered := make([]*fusion.Item[pagePayload], 0, len(res.Order))
	for _, idx := range res.Order {
		if idx >= 0 && idx < len(books) {
			reordered = append(reordered, books[idx])
		}
	}
	return reordered
}

// applyAyahBoosts raises graph-linked verses and re-sorts.
func applyAyahBoosts(ayahs []*fusion.Item[store.AyahDoc], gc *graph.Context) {
	if gc == nil || len(gc.Boosts) == 0 || len(ayahs) == 0 {
		return
	}
	boosts := make(map[string]float64, len(gc.Boosts))
	for _, b := range gc.Boosts {
		boosts[store.AyahDoc{Surah: b.Surah, Ayah: b.Ayah}.Key()] = b.Boost
	}
	changed := false
	for _, a := range ayahs {
		if boost, ok := boosts[a.Key]; ok {
			a.FusedScore += boost
			changed = true
		}
	}
	if changed {
		fusion.SortItems(ayahs)
	}
}

// Ranked-list conversions between engine hits and fusion inputs.

func pagesToRanked(hits []lexical.PageHit) []fusion.Ranked[pagePayload] {
	out := make([]fusion.Ranked[pagePayload], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[pagePayload]{
			Key:     h.Doc.Key(),
			Score:   h.Score,
			Payload: pagePayload{Doc: h.Doc, Highlight: h.Highlight},
		})
	}
	return out
}

func semPagesToRanked(hits []vector.Hit[store.PageDoc]) []fusion.Ranked[pagePayload] {
	out := make([]fusion.Ranked[pagePayload], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[pagePayload]{
			Key:     h.Key,
			Score:   h.Score,
			Payload: pagePayload{Doc: h.Payload},
		})
	}
	return out
}

func ayahsToRanked(hits []lexical.AyahHit) []fusion.Ranked[store.AyahDoc] {
	out := make([]fusion.Ranked[store.AyahDoc], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[store.AyahDoc]{Key: h.Doc.Key(), Score: h.Score, Payload: h.Doc})
	}
	return out
}

func semAyahsToRanked(hits []vector.Hit[store.AyahDoc]) []fusion.Ranked[store.AyahDoc] {
	out := make([]fusion.Ranked[store.AyahDoc], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[store.AyahDoc]{Key: h.Key, Score: h.Score, Payload: h.Payload})
	}
	return out
}

func hadithsToRanked(hits []lexical.HadithHit) []fusion.Ranked[store.HadithDoc] {
	out := make([]fusion.Ranked[store.HadithDoc], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[store.HadithDoc]{Key: h.Doc.Key(), Score: h.Score, Payload: h.Doc})
	}
	return out
}

func semHadithsToRanked(hits []vector.Hit[store.HadithDoc]) []fusion.Ranked[store.HadithDoc] {
	out := make([]fusion.Ranked[store.HadithDoc], 0, len(hits))
	for _, h := range hits {
		out = append(out, fusion.Ranked[store.HadithDoc]{Key: h.Key, Score: h.Score, Payload: h.Payload})
	}
	return out
}
