// Package searchcore is the top-level search pipeline: it fans out to the
// lexical engine, the vector engine and the metadata store, fuses and
// reranks their results, joins translations and assembles the unified
// response. Partial failure of any branch is never fatal; the one promoted
// error is a missing vector collection.
package searchcore

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/noorlib/bahith/internal/embed"
	"github.com/noorlib/bahith/internal/rerank"
)

// Mode selects which engines contribute to the ranking.
type Mode string

const (
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
)

// ErrValidation marks caller errors; the HTTP layer maps it to 400.
var ErrValidation = errors.New("invalid search parameters")

// Limits and bounds for caller-supplied parameters.
const (
	maxQueryLength = 500

	defaultAyahLimit   = 10
	defaultHadithLimit = 10

	// refinePerQueryLimit is how many results each query variant fetches
	// per domain in refine mode.
	refinePerQueryLimit = 40

	// refineSimilarity is the relaxed vector cutoff applied before the
	// multi-query dedupe.
	refineSimilarity = 0.25
)

// SearchParams is one search request.
type SearchParams struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`

	IncludeBooks  bool `json:"includeBooks"`
	IncludeQuran  bool `json:"includeQuran"`
	IncludeHadith bool `json:"includeHadith"`

	// Limit bounds the book results; AyahLimit and HadithLimit their
	// domains. Zero picks the configured default.
	Limit       int `json:"limit"`
	AyahLimit   int `json:"ayahLimit"`
	HadithLimit int `json:"hadithLimit"`

	// BookID scopes content search to a single book and disables the
	// other domains.
	BookID int `json:"bookId"`

	// Similarity overrides the configured base vector cutoff when > 0.
	Similarity float64 `json:"similarity"`

	Reranker rerank.Choice `json:"reranker"`

	Refine bool `json:"refine"`

	// Translation selectors; empty disables the join for that domain.
	QuranEdition   string `json:"quranEdition"`
	HadithLanguage string `json:"hadithLanguage"`
	PageLanguage   string `json:"pageLanguage"`

	EmbeddingModel embed.Model `json:"embeddingModel"`
}

// Normalize fills defaults and clamps limits against the configured
// bounds, then validates. It returns an ErrValidation-wrapped error for
// anything the caller must fix.
func (p *SearchParams) Normalize(defaultLimit, maxLimit int) error {
	if p.Query == "" {
		return fmt.Errorf("%w: query is required", ErrValidation)
	}
	if utf8.RuneCountInString(p.Query) > maxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrValidation, maxQueryLength)
	}

	switch p.Mode {
	case "":
		p.Mode = ModeHybrid
	case ModeHybrid, ModeSemantic, ModeKeyword:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, p.Mode)
	}

	if !p.Reranker.Valid() {
		return fmt.Errorf("%w: unknown reranker %q", ErrValidation, p.Reranker)
	}
	if p.Reranker == "" {
		p.Reranker = rerank.ChoiceNone
	}

	switch p.EmbeddingModel {
	case "":
		p.EmbeddingModel = embed.ModelLarge
	default:
		if !p.EmbeddingModel.Valid() {
			return fmt.Errorf("%w: unknown embedding model %q", ErrValidation, p.EmbeddingModel)
		}
	}

	if p.Similarity < 0 || p.Similarity >= 1 {
		return fmt.Errorf("%w: similarity must be in [0, 1)", ErrValidation)
	}

	p.Limit = clamp(p.Limit, defaultLimit, maxLimit)
	p.AyahLimit = clamp(p.AyahLimit, defaultAyahLimit, maxLimit)
	p.HadithLimit = clamp(p.HadithLimit, defaultHadithLimit, maxLimit)

	// A book scope narrows everything to that book's pages.
	if p.BookID > 0 {
		p.IncludeQuran = false
		p.IncludeHadith = false
		p.Refine = false
	}

	return nil
}

func clamp(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
