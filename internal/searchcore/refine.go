package searchcore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/fusion"
	"github.com/noorlib/bahith/internal/graph"
	"github.com/noorlib/bahith/internal/lexical"
	"github.com/noorlib/bahith/internal/rerank"
	"github.com/noorlib/bahith/internal/store"
	"github.com/noorlib/bahith/internal/vector"
)

// refinePoolSize bounds the refine fan-out: (1+expansions) variants × 3
// domains, at most.
const refinePoolSize = 15

// variantQuery is one parsed query variant with its dedupe weight.
type variantQuery struct {
	query  arabic.Query
	weight float64
	vec    []float32
}

// refine runs the expansion pipeline: paraphrase the query, fetch a
// smaller result set per variant and domain in parallel, dedupe with
// weighted RRF, then rerank all three domains in one model call. A rerank
// timeout falls back to the deduped order.
func (e *Engine) refine(ctx context.Context, params SearchParams, q arabic.Query, stats *DebugStats) (*Response, error) {
	t := stats.branch("expansion")
	var expansions []ExpandedQuery
	variants := []variantQuery{{query: q, weight: 1}}
	if e.deps.Expander != nil {
		for _, exp := range e.deps.Expander.Expand(ctx, params.Query) {
			expansions = append(expansions, ExpandedQuery{Text: exp.Text, Weight: exp.Weight, Reason: exp.Reason})
			variants = append(variants, variantQuery{query: arabic.ParseQuery(exp.Text), weight: exp.Weight})
		}
	}
	t.done()

	vs := e.deps.Stores[params.EmbeddingModel]
	embedder := e.deps.Embedders[params.EmbeddingModel]
	if vs == nil || !vs.Ready() || embedder == nil {
		return nil, vector.ErrCollectionNotFound
	}

	// One batched call embeds every variant; the tiered cache absorbs
	// repeats across requests.
	et := stats.branch("embedding")
	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.query.Normalized
	}
	ectx, cancel := context.WithTimeout(ctx, embedTimeout)
	vecs, err := embedder.EmbedBatch(ectx, texts)
	cancel()
	et.done()
	if err != nil {
		stats.recordError("embedding", err)
		e.logger.Warn("variant embedding failed, refine runs lexical-only",
			slog.String("error", err.Error()))
	} else {
		for i := range variants {
			variants[i].vec = vecs[i]
		}
	}

	// Fan out (1+m)×3 fetches plus catalog and graph on a bounded pool.
	pool, poolErr := ants.NewPool(refinePoolSize)
	if poolErr != nil {
		return nil, poolErr
	}
	defer pool.Release()

	var (
		mu            sync.Mutex
		bookVariants  []fusion.Variant[pagePayload]
		ayahVariants  []fusion.Variant[store.AyahDoc]
		hadithVars    []fusion.Variant[store.HadithDoc]
		catalog       *lexical.CatalogResult
		graphCtx      *graph.Context
		collectionErr error
	)

	var wg sync.WaitGroup
	submit := func(task func()) {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			task()
		}); err != nil {
			wg.Done()
		}
	}

	ft := stats.branch("variant_fetch")
	bookFilter := e.bookFilter(ctx, params)
	for _, v := range variants {
		v := v
		if params.IncludeBooks {
			submit(func() {
				items, err := e.fetchVariantPages(ctx, v, vs, bookFilter)
				mu.Lock()
				if err != nil {
					collectionErr = err
				} else {
					bookVariants = append(bookVariants, fusion.Variant[pagePayload]{Weight: v.weight, Items: items})
				}
				mu.Unlock()
			})
		}
		if params.IncludeQuran {
			submit(func() {
				items, err := e.fetchVariantAyahs(ctx, v, vs)
				mu.Lock()
				if err != nil {
					collectionErr = err
				} else {
					ayahVariants = append(ayahVariants, fusion.Variant[store.AyahDoc]{Weight: v.weight, Items: items})
				}
				mu.Unlock()
			})
		}
		if params.IncludeHadith {
			submit(func() {
				items, err := e.fetchVariantHadiths(ctx, v, vs)
				mu.Lock()
				if err != nil {
					collectionErr = err
				} else {
					hadithVars = append(hadithVars, fusion.Variant[store.HadithDoc]{Weight: v.weight, Items: items})
				}
				mu.Unlock()
			})
		}
	}
	submit(func() {
		c := e.catalogWithFallback(ctx, q, stats)
		mu.Lock()
		catalog = c
		mu.Unlock()
	})
	if e.deps.Graph != nil {
		submit(func() {
			gc := e.deps.Graph.Resolve(ctx, q)
			mu.Lock()
			graphCtx = gc
			mu.Unlock()
		})
	}
	wg.Wait()
	ft.done()

	if collectionErr != nil {
		return nil, collectionErr
	}

	books := fusion.MergeVariants(bookVariants, bestPagePayload)
	ayahs := fusion.MergeVariants(ayahVariants, bestAyahPayload)
	hadiths := fusion.MergeVariants(hadithVars, bestHadithPayload)
	applyAyahBoosts(ayahs, graphCtx)

	stats.setCandidates("books", len(books))
	stats.setCandidates("ayahs", len(ayahs))
	stats.setCandidates("hadiths", len(hadiths))

	books, ayahs, hadiths = e.unifiedRerank(ctx, params, books, ayahs, hadiths, stats)

	resp, err := e.assemble(ctx, params, q, stats, books, ayahs, hadiths, catalog, graphCtx)
	if err != nil {
		return nil, err
	}
	resp.Refined = true
	resp.ExpandedQueries = expansions
	if resp.ExpandedQueries == nil {
		resp.ExpandedQueries = []ExpandedQuery{}
	}
	return resp, nil
}

// unifiedRerank runs the tri-domain rerank over the deduped candidates.
// Timeouts and tiny pools keep the weighted-RRF order.
func (e *Engine) unifiedRerank(
	ctx context.Context,
	params SearchParams,
	books []*fusion.Item[pagePayload],
	ayahs []*fusion.Item[store.AyahDoc],
	hadiths []*fusion.Item[store.HadithDoc],
	stats *DebugStats,
) ([]*fusion.Item[pagePayload], []*fusion.Item[store.AyahDoc], []*fusion.Item[store.HadithDoc]) {
	// Refine exists to rerank: an explicit tier is honored, "none" gets
	// the fast model.
	choice := params.Reranker
	if choice == rerank.ChoiceNone || choice == "" {
		choice = rerank.ChoiceFast
	}

	if e.deps.Reranker == nil {
		return fusion.Truncate(books, params.Limit),
			fusion.Truncate(ayahs, params.AyahLimit),
			fusion.Truncate(hadiths, params.HadithLimit)
	}

	t := stats.branch("unified_rerank")
	defer t.done()

	res := e.deps.Reranker.RerankUnified(ctx, params.Query,
		rerank.UnifiedLists{
			Books:   itemTexts(books, func(p pagePayload) string { return p.Doc.Text }),
			Ayahs:   itemTexts(ayahs, func(d store.AyahDoc) string { return d.Text }),
			Hadiths: itemTexts(hadiths, func(d store.HadithDoc) string { return d.Text }),
		},
		rerank.UnifiedCaps{Books: params.Limit, Ayahs: params.AyahLimit, Hadiths: params.HadithLimit},
		choice,
	)

	stats.mu.Lock()
	switch {
	case res.TimedOut:
		stats.RerankStatus = "timed_out"
	case res.Skipped:
		stats.RerankStatus = "skipped"
	default:
		stats.RerankStatus = "ok"
	}
	stats.mu.Unlock()

	if res.TimedOut || res.Skipped {
		// Standard merge fallback: weighted-RRF order, untouched scores.
		return fusion.Truncate(books, params.Limit),
			fusion.Truncate(ayahs, params.AyahLimit),
			fusion.Truncate(hadiths, params.HadithLimit)
	}

	return reorder(books, res.Books), reorder(ayahs, res.Ayahs), reorder(hadiths, res.Hadiths)
}

// reorder applies a reranked index list, adopting the synthetic scores so
// downstream sorting preserves the model's order.
func reorder[T any](items []*fusion.Item[T], ranked []rerank.RankedIndex) []*fusion.Item[T] {
	out := make([]*fusion.Item[T], 0, len(ranked))
	for _, ri := range ranked {
		if ri.Index < 0 || ri.Index >= len(items) {
			continue
		}
		it := items[ri.Index]
		it.FusedScore = ri.Score
		out = append(out, it)
	}
	return out
}

// fetchVariantPages runs one variant's hybrid page fetch.
func (e *Engine) fetchVariantPages(ctx context.Context, v variantQuery, vs *vector.Store, filter func(int) bool) ([]*fusion.Item[pagePayload], error) {
	var lex []lexical.PageHit
	if v.query.Script != arabic.ScriptLatin {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		lex = e.deps.Lexical.SearchPages(bctx, v.query, refinePerQueryLimit, filter)
		cancel()
	}

	var sem []vector.Hit[store.PageDoc]
	if v.vec != nil && !v.query.SkipSemantic() {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		hits, err := vs.Pages.Search(sctx, v.vec, refinePerQueryLimit, refineSimilarity)
		cancel()
		if err != nil {
			if errors.Is(err, vector.ErrCollectionNotFound) {
				return nil, err
			}
		} else {
			sem = hits
		}
	}

	return e.mergeBooks(ModeHybrid, lex, sem), nil
}

// fetchVariantAyahs runs one variant's hybrid verse fetch.
func (e *Engine) fetchVariantAyahs(ctx context.Context, v variantQuery, vs *vector.Store) ([]*fusion.Item[store.AyahDoc], error) {
	var lex []lexical.AyahHit
	if v.query.Script != arabic.ScriptLatin {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		lex = e.deps.Lexical.SearchAyahs(bctx, v.query, refinePerQueryLimit)
		cancel()
	}

	var sem []vector.Hit[store.AyahDoc]
	if v.vec != nil && !v.query.SkipSemantic() {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		hits, err := vs.Quran.Search(sctx, v.vec, refinePerQueryLimit, refineSimilarity)
		cancel()
		if err != nil {
			if errors.Is(err, vector.ErrCollectionNotFound) {
				return nil, err
			}
		} else {
			sem = hits
		}
	}

	return fusion.Fuse(semAyahsToRanked(sem), ayahsToRanked(lex)), nil
}

// fetchVariantHadiths runs one variant's hybrid hadith fetch.
func (e *Engine) fetchVariantHadiths(ctx context.Context, v variantQuery, vs *vector.Store) ([]*fusion.Item[store.HadithDoc], error) {
	var lex []lexical.HadithHit
	if v.query.Script != arabic.ScriptLatin {
		bctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		lex = e.deps.Lexical.SearchHadiths(bctx, v.query, refinePerQueryLimit)
		cancel()
	}

	var sem []vector.Hit[store.HadithDoc]
	if v.vec != nil && !v.query.SkipSemantic() {
		sctx, cancel := context.WithTimeout(ctx, e.cfg.Search.EngineTimeout)
		hits, err := vs.Hadith.Search(sctx, v.vec, refinePerQueryLimit, refineSimilarity)
		cancel()
		if err != nil {
			if errors.Is(err, vector.ErrCollectionNotFound) {
				return nil, err
			}
		} else {
			sem = hits
		}
	}

	return fusion.Fuse(semHadithsToRanked(sem), hadithsToRanked(lex)), nil
}
