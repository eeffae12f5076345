package fusion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Snippet string
}

func sem(keys ...string) []Ranked[doc] {
	out := make([]Ranked[doc], len(keys))
	for i, k := range keys {
		out[i] = Ranked[doc]{Key: k, Score: 0.9 - 0.1*float64(i), Payload: doc{Snippet: "sem " + k}}
	}
	return out
}

func kw(keys ...string) []Ranked[doc] {
	out := make([]Ranked[doc], len(keys))
	for i, k := range keys {
		out[i] = Ranked[doc]{Key: k, Score: 20 - 4*float64(i), Payload: doc{Snippet: "kw " + k}}
	}
	return out
}

func TestNormalizeBM25(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeBM25(0))
	assert.Equal(t, 0.0, NormalizeBM25(-3))
	assert.InDelta(t, 0.5, NormalizeBM25(8), 1e-9)
	assert.Less(t, NormalizeBM25(1e9), 1.0)
	assert.Greater(t, NormalizeBM25(16), NormalizeBM25(8))
}

func TestFuseBothEngines(t *testing.T) {
	items := Fuse(sem("a", "b"), kw("b", "c"))
	require.Len(t, items, 3)

	byKey := map[string]*Item[doc]{}
	for _, it := range items {
		byKey[it.Key] = it
	}

	b := byKey["b"]
	assert.Equal(t, MatchBoth, b.MatchType)
	assert.Equal(t, 2, b.SemanticRank)
	assert.Equal(t, 1, b.KeywordRank)
	assert.InDelta(t, 0.8*0.8+0.3*NormalizeBM25(20), b.FusedScore, 1e-9)

	a := byKey["a"]
	assert.Equal(t, MatchSemantic, a.MatchType)
	assert.Equal(t, 0, a.KeywordRank)
	assert.InDelta(t, 0.9, a.FusedScore, 1e-9)

	c := byKey["c"]
	assert.Equal(t, MatchKeyword, c.MatchType)
	assert.Equal(t, 0, c.SemanticRank)
	assert.InDelta(t, NormalizeBM25(16), c.FusedScore, 1e-9)

	// Order is by fused score: a (0.9) ahead of b (0.854) ahead of c.
	assert.Equal(t, []string{"a", "b", "c"}, []string{items[0].Key, items[1].Key, items[2].Key})
}

func TestFuseDualEngineReward(t *testing.T) {
	// Equal semantic scores: the item the keyword engine also found wins.
	semantic := []Ranked[doc]{{Key: "a", Score: 0.8}, {Key: "b", Score: 0.8}}
	keyword := []Ranked[doc]{{Key: "b", Score: 15}}

	items := Fuse(semantic, keyword)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0].Key)
	assert.Greater(t, items[0].FusedScore, items[1].FusedScore)
}

func TestFuseEveryItemHasARank(t *testing.T) {
	items := Fuse(sem("a", "b", "c"), kw("c", "d"))
	for _, it := range items {
		assert.True(t, it.SemanticRank > 0 || it.KeywordRank > 0, "item %s has no rank", it.Key)
	}
}

func TestFuseEmpty(t *testing.T) {
	assert.Empty(t, Fuse[doc](nil, nil))
}

func TestFromSemanticPreservesOrder(t *testing.T) {
	in := sem("x", "y", "z")
	items := FromSemantic(in)
	require.Len(t, items, 3)
	for i, it := range items {
		assert.Equal(t, in[i].Key, it.Key)
		assert.Equal(t, in[i].Score, it.FusedScore)
		assert.Equal(t, i+1, it.SemanticRank)
	}
}

func TestFromKeywordNormalizes(t *testing.T) {
	items := FromKeyword(kw("x", "y"))
	require.Len(t, items, 2)
	assert.Equal(t, "x", items[0].Key)
	assert.InDelta(t, NormalizeBM25(20), items[0].FusedScore, 1e-9)
	assert.Equal(t, 20.0, items[0].BM25Raw)
	assert.Equal(t, MatchKeyword, items[0].MatchType)
}

func TestSortTieBreaksByRRF(t *testing.T) {
	// Two items fused within epsilon; the higher RRF (better ranks) wins
	// even though its fused score is marginally lower.
	a := &Item[doc]{Key: "a", FusedScore: 0.50000, RRFScore: 1.0 / 61}
	b := &Item[doc]{Key: "b", FusedScore: 0.50090, RRFScore: 1.0 / 70}
	items := []*Item[doc]{b, a}

	SortItems(items)
	assert.Equal(t, "a", items[0].Key)

	// Clearly separated scores ignore RRF.
	c := &Item[doc]{Key: "c", FusedScore: 0.70, RRFScore: 0}
	items = []*Item[doc]{a, c}
	SortItems(items)
	assert.Equal(t, "c", items[0].Key)
}

func TestSortDeterministicOnFullTie(t *testing.T) {
	mk := func() []*Item[doc] {
		return []*Item[doc]{
			{Key: "z", FusedScore: 0.5, RRFScore: 0.1},
			{Key: "a", FusedScore: 0.5, RRFScore: 0.1},
			{Key: "m", FusedScore: 0.5, RRFScore: 0.1},
		}
	}
	first := mk()
	SortItems(first)
	second := mk()
	SortItems(second)

	for i := range first {
		assert.Equal(t, first[i].Key, second[i].Key)
	}
	assert.Equal(t, "a", first[0].Key)
}

func TestMergeVariantsConsensusWins(t *testing.T) {
	better := func(a, b doc) doc {
		if len(b.Snippet) > len(a.Snippet) {
			return b
		}
		return a
	}

	// "x" appears at rank 1 in every variant; "y" once at rank 1.
	mkItems := func(keys ...string) []*Item[doc] {
		items := make([]*Item[doc], len(keys))
		for i, k := range keys {
			items[i] = &Item[doc]{Key: k, Payload: doc{Snippet: k}}
		}
		return items
	}

	merged := MergeVariants([]Variant[doc]{
		{Weight: 1.0, Items: mkItems("x", "y")},
		{Weight: 0.7, Items: mkItems("x")},
		{Weight: 0.5, Items: mkItems("x")},
	}, better)

	require.Len(t, merged, 2)
	assert.Equal(t, "x", merged[0].Key)

	wantX := 1.0/61 + 0.7/61 + 0.5/61
	assert.InDelta(t, wantX, merged[0].RRFScore, 1e-9)
	assert.InDelta(t, 1.0/62, merged[1].RRFScore, 1e-9)
}

func TestMergeVariantsKeepBest(t *testing.T) {
	better := func(a, b doc) doc {
		if len(b.Snippet) > len(a.Snippet) {
			return b
		}
		return a
	}

	v1 := Variant[doc]{Weight: 1, Items: []*Item[doc]{{
		Key: "k", Payload: doc{Snippet: "short"},
		SemanticScore: 0.8, SemanticRank: 3, MatchType: MatchSemantic,
	}}}
	v2 := Variant[doc]{Weight: 0.5, Items: []*Item[doc]{{
		Key: "k", Payload: doc{Snippet: "a much longer snippet"},
		KeywordScore: 0.6, KeywordRank: 1, BM25Raw: 12, MatchType: MatchKeyword,
	}}}

	merged := MergeVariants([]Variant[doc]{v1, v2}, better)
	require.Len(t, merged, 1)

	m := merged[0]
	assert.Equal(t, 0.8, m.SemanticScore)
	assert.Equal(t, 0.6, m.KeywordScore)
	assert.Equal(t, 12.0, m.BM25Raw)
	assert.Equal(t, 3, m.SemanticRank)
	assert.Equal(t, 1, m.KeywordRank)
	assert.Equal(t, "a much longer snippet", m.Payload.Snippet)
	assert.Equal(t, MatchBoth, m.MatchType)
}

func TestTruncate(t *testing.T) {
	items := make([]*Item[doc], 5)
	for i := range items {
		items[i] = &Item[doc]{Key: fmt.Sprintf("k%d", i)}
	}
	assert.Len(t, Truncate(items, 3), 3)
	assert.Len(t, Truncate(items, 10), 5)
}
