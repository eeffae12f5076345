package fusion

import "sort"

// Variant is one query variant's fused result list with its expansion
// weight. The original query participates at weight 1.
type Variant[T any] struct {
	Weight float64
	Items  []*Item[T]
}

// MergeVariants deduplicates results across query variants by key. Each
// appearance at 0-based rank r in a variant with weight w contributes
// w/(RRFConstant+r+1) to the item's weighted RRF, so an item found by every
// variant outranks one found once at the same rank. Per-item fields merge
// under a keep-best policy: the maximum of every numeric signal, the lowest
// rank, and the payload chosen by better (the more informative snippet).
func MergeVariants[T any](variants []Variant[T], better func(a, b T) T) []*Item[T] {
	merged := make(map[string]*Item[T])

	for _, v := range variants {
		weight := v.Weight
		if weight <= 0 {
			weight = 1
		}
		for rank, it := range v.Items {
			if it == nil || it.Key == "" {
				continue
			}
			contribution := weight / float64(RRFConstant+rank+1)

			m, seen := merged[it.Key]
			if !seen {
				clone := *it
				clone.RRFScore = contribution
				merged[it.Key] = &clone
				continue
			}

			m.RRFScore += contribution
			m.Payload = better(m.Payload, it.Payload)
			if it.SemanticScore > m.SemanticScore {
				m.SemanticScore = it.SemanticScore
			}
			if it.KeywordScore > m.KeywordScore {
				m.KeywordScore = it.KeywordScore
			}
			if it.BM25Raw > m.BM25Raw {
				m.BM25Raw = it.BM25Raw
			}
			if it.FusedScore > m.FusedScore {
				m.FusedScore = it.FusedScore
			}
			if m.SemanticRank == 0 || (it.SemanticRank > 0 && it.SemanticRank < m.SemanticRank) {
				m.SemanticRank = it.SemanticRank
			}
			if m.KeywordRank == 0 || (it.KeywordRank > 0 && it.KeywordRank < m.KeywordRank) {
				m.KeywordRank = it.KeywordRank
			}
			if m.MatchType != it.MatchType {
				m.MatchType = MatchBoth
			}
		}
	}

	out := make([]*Item[T], 0, len(merged))
	for _, it := range merged {
		out = append(out, it)
	}

	// Refine ordering is by consensus, not per-variant fused score.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return out[i].Key < out[j].Key
	})

	return out
}
