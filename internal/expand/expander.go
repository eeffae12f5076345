// Package expand generates weighted query paraphrases for refine mode.
// Expansion is best-effort: when the model fails or returns garbage the
// original query simply runs alone.
package expand

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/noorlib/bahith/internal/cache"
)

const (
	cacheTTL     = 10 * time.Minute
	cacheSize    = 2000
	cacheEvict   = 200
	maxVariants  = 4
	minWeight    = 0.3
	maxWeight    = 1.0
	callDeadline = 10 * time.Second

	expanderModel = "openai/gpt-4o-mini"
)

// Expansion is one generated reformulation of the query.
type Expansion struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// Expander produces paraphrases via the chat model, cached per query text.
type Expander struct {
	llm    llms.Model
	cache  *cache.TTL[[]Expansion]
	logger *slog.Logger
}

// New wires an expander over the given chat model.
func New(llm llms.Model) *Expander {
	return &Expander{
		llm:    llm,
		cache:  cache.NewTTL[[]Expansion](cacheTTL, cacheSize, cacheEvict),
		logger: slog.Default().With("component", "expander"),
	}
}

// Expand returns up to four weighted reformulations of query. It never
// fails: every error path yields an empty slice and the original query
// still runs at weight 1.
func (e *Expander) Expand(ctx context.Context, query string) []Expansion {
	query = strings.TrimSpace(query)
	if query == "" || e == nil || e.llm == nil {
		return nil
	}

	if cached, ok := e.cache.Get(query); ok {
		return cached
	}

	callCtx, cancel := context.WithTimeout(ctx, callDeadline)
	defer cancel()

	expansions := e.generate(callCtx, query)
	e.cache.Set(query, expansions)
	return expansions
}

func (e *Expander) generate(ctx context.Context, query string) []Expansion {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(query)),
	}
	resp, err := e.llm.GenerateContent(ctx, content,
		llms.WithTemperature(0),
		llms.WithModel(expanderModel),
		llms.WithJSONMode(),
	)
	if err != nil {
		e.logger.Warn("query expansion failed, running original only",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return []Expansion{}
	}
	if len(resp.Choices) == 0 {
		return []Expansion{}
	}

	expansions, ok := parseExpansions(resp.Choices[0].Content)
	if !ok {
		e.logger.Warn("query expansion response unparseable, running original only",
			slog.String("query", query))
		return []Expansion{}
	}
	return expansions
}

func buildPrompt(query string) string {
	var b strings.Builder
	b.WriteString("A user is searching a classical Arabic and Islamic library for:\n")
	b.WriteString(query)
	b.WriteString("\n\nWrite up to 4 alternative search queries in Arabic that could surface relevant passages: ")
	b.WriteString("synonyms, classical phrasing, and closely related framings of the same question. ")
	b.WriteString("Give each a weight between 0.3 and 1.0 for how faithful it is to the original intent, ")
	b.WriteString("and a short reason.\n\n")
	b.WriteString(`Respond with ONLY a JSON array like [{"text":"...","weight":0.8,"reason":"..."}].`)
	return b.String()
}

// parseExpansions accepts either a bare array or an object wrapping one,
// strips code fences, clamps weights into [0.3, 1.0] and drops blank or
// surplus entries.
func parseExpansions(response string) ([]Expansion, bool) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var parsed []Expansion
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		var wrapper struct {
			Expansions []Expansion `json:"expansions"`
			Queries    []Expansion `json:"queries"`
		}
		if err := json.Unmarshal([]byte(response), &wrapper); err != nil {
			return nil, false
		}
		parsed = wrapper.Expansions
		if len(parsed) == 0 {
			parsed = wrapper.Queries
		}
		if len(parsed) == 0 {
			return nil, false
		}
	}

	out := make([]Expansion, 0, maxVariants)
	for _, exp := range parsed {
		exp.Text = strings.TrimSpace(exp.Text)
		if exp.Text == "" {
			continue
		}
		if exp.Weight < minWeight {
			exp.Weight = minWeight
		}
		if exp.Weight > maxWeight {
			exp.Weight = maxWeight
		}
		out = append(out, exp)
		if len(out) == maxVariants {
			break
		}
	}
	return out, true
}
