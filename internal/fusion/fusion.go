// Package fusion merges the lexical and semantic result lists into a single
// ranking. The primary ranker is weighted score fusion; Reciprocal Rank
// Fusion breaks near-ties. The package is pure: no I/O, no shared state,
// and inputs are never mutated.
package fusion

import (
	"math"
	"sort"
)

const (
	// RRFConstant is the standard smoothing parameter; a result at rank r
	// contributes 1/(RRFConstant+r).
	RRFConstant = 60

	// bm25NormK maps unbounded BM25 scores into [0,1) monotonically.
	bm25NormK = 8

	// tieEpsilon is the fused-score distance under which two results are
	// considered tied and ordered by RRF instead.
	tieEpsilon = 0.001

	// semanticWeight and keywordWeight deliberately sum past 1.0 so a
	// dual-engine hit outranks a perfect single-engine one.
	semanticWeight = 0.8
	keywordWeight  = 0.3
)

// MatchType records which engines produced a result.
type MatchType string

const (
	MatchSemantic MatchType = "semantic"
	MatchKeyword  MatchType = "keyword"
	MatchBoth     MatchType = "both"
)

// Ranked is one engine hit entering fusion. For semantic lists Score is the
// cosine similarity in [0,1]; for keyword lists it is the raw BM25 score.
type Ranked[T any] struct {
	Key     string
	Score   float64
	Payload T
}

// Item is a fused result. Rank fields are 1-based and zero when the
// corresponding engine did not see the item.
type Item[T any] struct {
	Key     string
	Payload T

	SemanticScore float64
	SemanticRank  int
	BM25Raw       float64
	KeywordScore  float64
	KeywordRank   int

	FusedScore float64
	RRFScore   float64
	MatchType  MatchType
}

// NormalizeBM25 maps a raw BM25 score into [0,1): s / (s + k).
func NormalizeBM25(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (s + bm25NormK)
}

// Fuse combines one semantic and one keyword list. Items found by both
// engines score 0.8·semantic + 0.3·normalized_bm25; single-engine items
// keep their own (normalized) score. Output is sorted by fused score
// descending with RRF tie-breaking.
func Fuse[T any](semantic, keyword []Ranked[T]) []*Item[T] {
	if len(semantic) == 0 && len(keyword) == 0 {
		return []*Item[T]{}
	}

	items := make(map[string]*Item[T], len(semantic)+len(keyword))

	for i, r := range semantic {
		if r.Key == "" {
			continue
		}
		items[r.Key] = &Item[T]{
			Key:           r.Key,
			Payload:       r.Payload,
			SemanticScore: r.Score,
			SemanticRank:  i + 1,
			RRFScore:      1 / float64(RRFConstant+i+1),
			MatchType:     MatchSemantic,
		}
	}

	for i, r := range keyword {
		if r.Key == "" {
			continue
		}
		it, seen := items[r.Key]
		if !seen {
			it = &Item[T]{Key: r.Key, Payload: r.Payload, MatchType: MatchKeyword}
			items[r.Key] = it
		} else {
			it.MatchType = MatchBoth
		}
		it.BM25Raw = r.Score
		it.KeywordScore = NormalizeBM25(r.Score)
		it.KeywordRank = i + 1
		it.RRFScore += 1 / float64(RRFConstant+i+1)
	}

	out := make([]*Item[T], 0, len(items))
	for _, it := range items {
		switch it.MatchType {
		case MatchBoth:
			it.FusedScore = semanticWeight*it.SemanticScore + keywordWeight*it.KeywordScore
		case MatchSemantic:
			it.FusedScore = it.SemanticScore
		case MatchKeyword:
			it.FusedScore = it.KeywordScore
		}
		out = append(out, it)
	}

	SortItems(out)
	return out
}

// FromSemantic lifts a bare semantic list into fused items, preserving
// order. Used by semantic-only mode.
func FromSemantic[T any](semantic []Ranked[T]) []*Item[T] {
	out := make([]*Item[T], 0, len(semantic))
	for i, r := range semantic {
		out = append(out, &Item[T]{
			Key:           r.Key,
			Payload:       r.Payload,
			SemanticScore: r.Score,
			SemanticRank:  i + 1,
			FusedScore:    r.Score,
			RRFScore:      1 / float64(RRFConstant+i+1),
			MatchType:     MatchSemantic,
		})
	}
	return out
}

// FromKeyword lifts a bare keyword list into fused items with normalized
// BM25 as the score, preserving order. Used by keyword-only mode.
func FromKeyword[T any](keyword []Ranked[T]) []*Item[T] {
	out := make([]*Item[T], 0, len(keyword))
	for i, r := range keyword {
		out = append(out, &Item[T]{
			Key:          r.Key,
			Payload:      r.Payload,
			BM25Raw:      r.Score,
			KeywordScore: NormalizeBM25(r.Score),
			KeywordRank:  i + 1,
			FusedScore:   NormalizeBM25(r.Score),
			RRFScore:     1 / float64(RRFConstant+i+1),
			MatchType:    MatchKeyword,
		})
	}
	return out
}

// SortItems orders by fused score descending; fused scores closer than
// tieEpsilon fall back to RRF descending, then key ascending so equal
// inputs always produce the same order.
func SortItems[T any](items []*Item[T]) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if math.Abs(a.FusedScore-b.FusedScore) >= tieEpsilon {
			return a.FusedScore > b.FusedScore
		}
		if a.RRFScore != b.RRFScore {
			return a.RRFScore > b.RRFScore
		}
		return a.Key < b.Key
	})
}

// Truncate returns the first n items (or all when fewer).
func Truncate[T any](items []*Item[T], n int) []*Item[T] {
	if n >= 0 && len(items) > n {
		return items[:n]
	}
	return items
}
