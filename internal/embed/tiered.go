package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/noorlib/bahith/internal/cache"
)

// Memory-tier sizing. A cached vector is 4–12 KB, so 10k entries stay well
// under 128 MB even for the large model.
const (
	memoryTTL        = 24 * time.Hour
	memoryMaxEntries = 10000
	memoryEvictCount = 500
)

// Tiered wraps a back-end embedder with a memory tier and a persistent
// tier. Persistent hits are promoted into memory; back-end results are
// written through both tiers. Persistent-tier failures degrade to the
// back-end rather than failing the batch — the cache is a hint, recomputing
// is always correct.
type Tiered struct {
	inner   Embedder
	memory  *cache.TTL[[]float32]
	persist PersistentCache
}

var _ Embedder = (*Tiered)(nil)

// NewTiered creates the two-tier cache around inner. persist may be nil,
// leaving only the memory tier.
func NewTiered(inner Embedder, persist PersistentCache) *Tiered {
	return &Tiered{
		inner:   inner,
		memory:  cache.NewTTL[[]float32](memoryTTL, memoryMaxEntries, memoryEvictCount),
		persist: persist,
	}
}

// Embed returns the embedding for one text.
func (t *Tiered) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := t.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch resolves texts through memory, then the persistent tier, then
// a single back-end call for whatever remains. The result slice has the
// input length and order.
func (t *Tiered) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	model := t.inner.Model()
	results := make([][]float32, len(texts))

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = model.CacheKey(text)
	}

	// Tier 1: memory.
	var missing []int
	memHits := t.memory.GetMany(keys)
	for i, k := range keys {
		if vec, ok := memHits[k]; ok {
			results[i] = vec
		} else {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	// Tier 2: persistent, one batched call; hits are promoted to memory.
	if t.persist != nil {
		missKeys := make([]string, len(missing))
		for j, i := range missing {
			missKeys[j] = keys[i]
		}
		stored, err := t.persist.GetMany(ctx, missKeys)
		if err != nil {
			slog.Warn("persistent embedding cache read failed",
				slog.String("error", err.Error()),
				slog.Int("keys", len(missKeys)))
		} else if len(stored) > 0 {
			promote := make(map[string][]float32, len(stored))
			still := missing[:0]
			for _, i := range missing {
				if vec, ok := stored[keys[i]]; ok {
					results[i] = vec
					promote[keys[i]] = vec
				} else {
					still = append(still, i)
				}
			}
			t.memory.SetMany(promote)
			missing = still
		}
	}
	if len(missing) == 0 {
		return results, nil
	}

	// Back-end for the rest, written through both tiers.
	uncached := make([]string, len(missing))
	for j, i := range missing {
		uncached[j] = texts[i]
	}
	fresh, err := t.inner.EmbedBatch(ctx, uncached)
	if err != nil {
		return nil, err
	}

	write := make(map[string][]float32, len(fresh))
	for j, i := range missing {
		results[i] = fresh[j]
		write[keys[i]] = fresh[j]
	}
	t.memory.SetMany(write)
	if t.persist != nil {
		if err := t.persist.SetMany(ctx, write); err != nil {
			slog.Warn("persistent embedding cache write failed",
				slog.String("error", err.Error()),
				slog.Int("keys", len(write)))
		}
	}

	return results, nil
}

// Model returns the inner model.
func (t *Tiered) Model() Model { return t.inner.Model() }

// Dimensions returns the inner vector width.
func (t *Tiered) Dimensions() int { return t.inner.Dimensions() }

// MemoryStats exposes memory-tier counters for debug output.
func (t *Tiered) MemoryStats() cache.Stats { return t.memory.Stats() }
