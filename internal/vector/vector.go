// Package vector is the dense-vector engine adapter: one HNSW graph per
// content collection, searched by query embedding with a similarity
// cutoff, returning hydrated domain payloads.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/noorlib/bahith/internal/store"
)

// ErrCollectionNotFound marks a search against a collection that was never
// initialized. It is the one engine failure the orchestrator surfaces to
// the caller instead of swallowing.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrDimensionMismatch marks a query vector of the wrong width.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Hit is a scored match with its hydrated payload. Score is
// cosine-similarity-like in [0,1].
type Hit[P any] struct {
	Key     string
	Score   float64
	Payload P
}

// Collection is one searchable vector space with per-key payloads.
type Collection[P any] struct {
	mu       sync.RWMutex
	name     string
	dims     int
	graph    *hnsw.Graph[uint64]
	payloads map[uint64]P
	keys     map[string]uint64
	ids      map[uint64]string
	next     uint64
}

// NewCollection creates an empty collection of dims-wide vectors.
func NewCollection[P any](name string, dims int) *Collection[P] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 48

	return &Collection[P]{
		name:     name,
		dims:     dims,
		graph:    graph,
		payloads: make(map[uint64]P),
		keys:     make(map[string]uint64),
		ids:      make(map[uint64]string),
	}
}

// Name returns the collection name.
func (c *Collection[P]) Name() string { return c.name }

// Add inserts or replaces vectors with their payloads.
func (c *Collection[P]) Add(keys []string, vectors [][]float32, payloads []P) error {
	if len(keys) != len(vectors) || len(keys) != len(payloads) {
		return fmt.Errorf("add to %s: keys/vectors/payloads length mismatch", c.name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, key := range keys {
		if len(vectors[i]) != c.dims {
			return fmt.Errorf("add to %s: %w: want %d, got %d", c.name, ErrDimensionMismatch, c.dims, len(vectors[i]))
		}

		// Replacement is lazy: the old node stays in the graph but loses
		// its id mapping, so it never surfaces in results.
		if old, exists := c.keys[key]; exists {
			delete(c.ids, old)
			delete(c.payloads, old)
		}

		id := c.next
		c.next++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalize(vec)

		c.graph.Add(hnsw.MakeNode(id, vec))
		c.keys[key] = id
		c.ids[id] = key
		c.payloads[id] = payloads[i]
	}

	return nil
}

// Search returns up to limit hits scoring at or above minScore, best first.
func (c *Collection[P]) Search(ctx context.Context, query []float32, limit int, minScore float64) ([]Hit[P], error) {
	if c == nil {
		return nil, ErrCollectionNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(query) != c.dims {
		return nil, fmt.Errorf("search %s: %w: want %d, got %d", c.name, ErrDimensionMismatch, c.dims, len(query))
	}
	if c.graph.Len() == 0 {
		return []Hit[P]{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalize(normalized)

	// Overfetch to cover lazily deleted nodes and threshold losses.
	nodes := c.graph.Search(normalized, limit*2)

	hits := make([]Hit[P], 0, len(nodes))
	for _, node := range nodes {
		key, ok := c.ids[node.Key]
		if !ok {
			continue
		}
		score := 1 - float64(c.graph.Distance(normalized, node.Value))
		if score < minScore {
			continue
		}
		hits = append(hits, Hit[P]{Key: key, Score: score, Payload: c.payloads[node.Key]})
	}

	// The graph's candidates are not guaranteed to come back nearest first.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// Count returns the number of live vectors.
func (c *Collection[P]) Count() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// CountWhere counts live payloads matching pred; used by the indexed-book
// eligibility check.
func (c *Collection[P]) CountWhere(pred func(P) bool) int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, p := range c.payloads {
		if pred(p) {
			n++
		}
	}
	return n
}

// Store groups the three content collections for one embedding model.
type Store struct {
	Pages  *Collection[store.PageDoc]
	Quran  *Collection[store.AyahDoc]
	Hadith *Collection[store.HadithDoc]
}

// NewStore creates the three collections for the given vector width.
// Collection names carry the model suffix derived by the caller.
func NewStore(pagesName, quranName, hadithName string, dims int) *Store {
	return &Store{
		Pages:  NewCollection[store.PageDoc](pagesName, dims),
		Quran:  NewCollection[store.AyahDoc](quranName, dims),
		Hadith: NewCollection[store.HadithDoc](hadithName, dims),
	}
}

// Ready reports whether every collection exists. A store missing any
// collection serves no semantic queries.
func (s *Store) Ready() bool {
	return s != nil && s.Pages != nil && s.Quran != nil && s.Hadith != nil
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) * inv)
	}
}
