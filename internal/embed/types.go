// Package embed generates query embeddings through a two-tier cache
// (in-process TTL memory plus a persistent key-value store) in front of one
// of two HTTP back-ends.
package embed

import (
	"context"
	"fmt"
)

// Model identifies an embedding back-end and its vector space. Vectors from
// different models are never interchangeable, so the model also selects the
// vector collections and prefixes persistent cache keys.
type Model string

const (
	// ModelLarge is the OpenAI-compatible 3072-dimension model.
	ModelLarge Model = "text-embedding-3-large"

	// ModelJina is the Jina 1024-dimension multilingual model.
	ModelJina Model = "jina-embeddings-v3"
)

// Dimensions returns the fixed vector width of the model.
func (m Model) Dimensions() int {
	switch m {
	case ModelJina:
		return 1024
	default:
		return 3072
	}
}

// CacheKey returns the persistent-cache key for text under this model.
// The large model was cached unprefixed first; the Jina space arrived later
// and is namespaced to avoid collisions.
func (m Model) CacheKey(text string) string {
	if m == ModelJina {
		return "jina:" + text
	}
	return text
}

// Collection derives the vector collection name for a content domain.
func (m Model) Collection(domain string) string {
	if m == ModelJina {
		return domain + "_jina"
	}
	return domain
}

// Valid reports whether m names a supported model.
func (m Model) Valid() bool {
	return m == ModelLarge || m == ModelJina
}

// Embedder turns texts into vectors. Implementations return one vector per
// input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() Model
	Dimensions() int
}

// PersistentCache is the durable second tier behind the in-process cache.
// Keys are already model-prefixed by the caller.
type PersistentCache interface {
	GetMany(ctx context.Context, keys []string) (map[string][]float32, error)
	SetMany(ctx context.Context, vectors map[string][]float32) error
}

// ErrBackendStatus wraps a non-2xx back-end response.
type ErrBackendStatus struct {
	Status int
	Body   string
}

func (e *ErrBackendStatus) Error() string {
	return fmt.Sprintf("embedding backend returned status %d: %s", e.Status, e.Body)
}
