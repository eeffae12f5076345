// Package graph resolves optional "related entities" context for a query.
// It runs beside the main pipeline under its own short deadline; on any
// failure the response simply ships without graph context.
package graph

import (
	"context"
	"log/slog"
	"time"

	"github.com/noorlib/bahith/internal/arabic"
	"github.com/noorlib/bahith/internal/store"
)

const (
	resolveDeadline = 3 * time.Second
	maxEntities     = 12

	// ayahBoost is added to the score of verses the graph links to the
	// query, applied after fusion.
	ayahBoost = 0.05
)

// Entity is one related concept attached to the response.
type Entity struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Related []string `json:"related,omitempty"`
}

// AyahBoost raises one verse's score post-hoc.
type AyahBoost struct {
	Surah int
	Ayah  int
	Boost float64
}

// Context is the resolved side-channel payload.
type Context struct {
	Entities []Entity
	Boosts   []AyahBoost
}

// conceptSource is the repository slice the resolver needs.
type conceptSource interface {
	RelatedConcepts(ctx context.Context, terms []string, limit int) ([]store.RelatedConcept, error)
}

// Resolver looks up graph context for queries.
type Resolver struct {
	repo   conceptSource
	logger *slog.Logger
}

// New wires a resolver.
func New(repo conceptSource) *Resolver {
	return &Resolver{repo: repo, logger: slog.Default().With("component", "graph")}
}

// Resolve returns graph context for q, or nil when unavailable. It never
// outlives its own deadline even if the parent context allows more time.
func (r *Resolver) Resolve(ctx context.Context, q arabic.Query) *Context {
	if r == nil || r.repo == nil || len(q.Tokens) == 0 {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, resolveDeadline)
	defer cancel()

	concepts, err := r.repo.RelatedConcepts(callCtx, q.Tokens, maxEntities)
	if err != nil {
		r.logger.Debug("graph lookup failed, omitting context", slog.String("error", err.Error()))
		return nil
	}
	if len(concepts) == 0 {
		return nil
	}

	gc := &Context{}
	for _, c := range concepts {
		gc.Entities = append(gc.Entities, Entity{Name: c.Name, Kind: c.Kind, Related: c.Related})
		if c.Surah > 0 && c.Ayah > 0 {
			boost := ayahBoost
			if c.Strength > 0 {
				boost = ayahBoost * c.Strength
			}
			gc.Boosts = append(gc.Boosts, AyahBoost{Surah: c.Surah, Ayah: c.Ayah, Boost: boost})
		}
	}
	return gc
}
