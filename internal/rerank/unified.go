package rerank

import (
	"context"
	"log/slog"
)

// Domain tags used in the unified prompt.
const (
	tagBook   = "book"
	tagAyah   = "ayah"
	tagHadith = "hadith"
)

// UnifiedLists carries the candidate texts of all three domains.
type UnifiedLists struct {
	Books   []string
	Ayahs   []string
	Hadiths []string
}

// UnifiedCaps limits how many candidates of each domain enter the prompt
// and how many ranked entries come back.
type UnifiedCaps struct {
	Books   int
	Ayahs   int
	Hadiths int
}

// RankedIndex is one reranked candidate: a 0-based index into the original
// per-domain list and a synthetic monotone score (1 − rank/100) so
// downstream sorting stays stable.
type RankedIndex struct {
	Index int
	Score float64
}

// UnifiedResult distributes the single ranked list back into the three
// domains. Skipped means the pool was too small for a model call.
type UnifiedResult struct {
	Books    []RankedIndex
	Ayahs    []RankedIndex
	Hadiths  []RankedIndex
	TimedOut bool
	Skipped  bool
}

// RerankUnified packs the three candidate lists into one tagged prompt,
// asks for a single ranking, and distributes it back per domain under the
// caps. Fewer than three candidates total skip the model entirely.
func (r *Reranker) RerankUnified(ctx context.Context, query string, lists UnifiedLists, caps UnifiedCaps, choice Choice) UnifiedResult {
	lists.Books = capList(lists.Books, caps.Books)
	lists.Ayahs = capList(lists.Ayahs, caps.Ayahs)
	lists.Hadiths = capList(lists.Hadiths, caps.Hadiths)

	total := len(lists.Books) + len(lists.Ayahs) + len(lists.Hadiths)
	if total < minUnifiedCandidates {
		res := identityUnified(lists, caps)
		res.Skipped = true
		return res
	}
	if choice == ChoiceNone || choice == "" || r == nil || r.llm == nil {
		return identityUnified(lists, caps)
	}

	// Global numbering: books first, then ayahs, then hadiths.
	texts := make([]string, 0, total)
	tags := make([]string, 0, total)
	appendTagged := func(items []string, tag string) {
		for _, t := range items {
			texts = append(texts, t)
			tags = append(tags, tag)
		}
	}
	appendTagged(lists.Books, tagBook)
	appendTagged(lists.Ayahs, tagAyah)
	appendTagged(lists.Hadiths, tagHadith)

	callCtx, cancel := context.WithTimeout(ctx, unifiedTimeout)
	defer cancel()

	response, err := r.generate(callCtx, buildPrompt(query, texts, tags), choice)
	if err != nil {
		r.logger.Warn("unified rerank failed, keeping per-domain order",
			slog.String("error", err.Error()),
			slog.Int("candidates", total))
		res := identityUnified(lists, caps)
		res.TimedOut = true
		return res
	}

	order, ok := parseIndices(response, total)
	if !ok {
		r.logger.Warn("unified rerank response unparseable, keeping per-domain order",
			slog.String("response", truncate(response, 200)))
		return identityUnified(lists, caps)
	}

	return distribute(order, lists, caps)
}

// distribute walks the global ranking and routes each index back to its
// domain, respecting per-domain caps. The synthetic score decays with the
// overall rank so merged output keeps the model's order.
func distribute(order []int, lists UnifiedLists, caps UnifiedCaps) UnifiedResult {
	var res UnifiedResult
	booksEnd := len(lists.Books)
	ayahsEnd := booksEnd + len(lists.Ayahs)

	for rank, global := range order {
		ri := RankedIndex{Score: syntheticScore(rank)}
		switch {
		case global < booksEnd:
			if caps.Books <= 0 || len(res.Books) < caps.Books {
				ri.Index = global
				res.Books = append(res.Books, ri)
			}
		case global < ayahsEnd:
			if caps.Ayahs <= 0 || len(res.Ayahs) < caps.Ayahs {
				ri.Index = global - booksEnd
				res.Ayahs = append(res.Ayahs, ri)
			}
		default:
			if caps.Hadiths <= 0 || len(res.Hadiths) < caps.Hadiths {
				ri.Index = global - ayahsEnd
				res.Hadiths = append(res.Hadiths, ri)
			}
		}
	}

	return res
}

// identityUnified keeps each domain's original order with decaying
// synthetic scores.
func identityUnified(lists UnifiedLists, caps UnifiedCaps) UnifiedResult {
	mk := func(n, limit int) []RankedIndex {
		if limit > 0 && n > limit {
			n = limit
		}
		out := make([]RankedIndex, n)
		for i := range out {
			out[i] = RankedIndex{Index: i, Score: syntheticScore(i)}
		}
		return out
	}
	return UnifiedResult{
		Books:   mk(len(lists.Books), caps.Books),
		Ayahs:   mk(len(lists.Ayahs), caps.Ayahs),
		Hadiths: mk(len(lists.Hadiths), caps.Hadiths),
	}
}

// syntheticScore maps a 0-based overall rank to 1 − (rank+1)/100 (0.99 for
// the top entry), floored at 0.01 so very deep lists still sort
// deterministically.
func syntheticScore(rank int) float64 {
	score := 1 - float64(rank+1)/100
	if score < 0.01 {
		score = 0.01
	}
	return score
}

func capList(items []string, limit int) []string {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
