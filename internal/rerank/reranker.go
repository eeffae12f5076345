// Package rerank reorders fused candidates with an LLM. The model is asked
// for a bare JSON array of 1-based indices; anything else falls back to the
// original order, and a timeout is reported so the caller can tell a
// deliberate ranking from a passthrough.
package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Choice selects the reranking model tier.
type Choice string

const (
	ChoiceNone  Choice = "none"
	ChoiceSmall Choice = "small"
	ChoiceLarge Choice = "large"
	ChoiceFast  Choice = "fast"
)

// Valid reports whether c is a known tier.
func (c Choice) Valid() bool {
	switch c {
	case ChoiceNone, ChoiceSmall, ChoiceLarge, ChoiceFast, "":
		return true
	}
	return false
}

// modelName maps a tier to its OpenRouter model slug.
func (c Choice) modelName() string {
	switch c {
	case ChoiceFast:
		return "google/gemini-2.0-flash-lite-001"
	case ChoiceLarge:
		return "anthropic/claude-3.5-sonnet"
	default:
		return "openai/gpt-4o-mini"
	}
}

// timeout returns the single-domain deadline for the tier.
func (c Choice) timeout() time.Duration {
	if c == ChoiceFast {
		return 15 * time.Second
	}
	return 20 * time.Second
}

const (
	unifiedTimeout = 25 * time.Second

	// maxCandidateChars truncates each candidate text in the prompt.
	maxCandidateChars = 800

	// minUnifiedCandidates is the smallest pool worth a model call.
	minUnifiedCandidates = 3
)

// Result is a single-domain rerank outcome. Order holds 0-based indices
// into the input, already truncated to top-N. TimedOut means the model call
// failed or ran out of time and Order is the original prefix.
type Result struct {
	Order    []int
	TimedOut bool
}

// Reranker calls the chat model. It is stateless and safe for concurrent
// use.
type Reranker struct {
	llm    llms.Model
	logger *slog.Logger
}

// New wires a reranker over the given chat model.
func New(llm llms.Model) *Reranker {
	return &Reranker{llm: llm, logger: slog.Default().With("component", "reranker")}
}

// Rerank reorders texts by relevance to query, returning at most topN
// indices. ChoiceNone, tiny candidate sets and every failure mode preserve
// the original order.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string, topN int, choice Choice) Result {
	if topN <= 0 || topN > len(texts) {
		topN = len(texts)
	}
	identity := identityOrder(len(texts), topN)

	if choice == ChoiceNone || choice == "" || len(texts) < 2 || r == nil || r.llm == nil {
		return Result{Order: identity}
	}

	callCtx, cancel := context.WithTimeout(ctx, choice.timeout())
	defer cancel()

	prompt := buildPrompt(query, texts, nil)
	response, err := r.generate(callCtx, prompt, choice)
	if err != nil {
		r.logger.Warn("rerank call failed, keeping original order",
			slog.String("error", err.Error()),
			slog.Int("candidates", len(texts)))
		return Result{Order: identity, TimedOut: true}
	}

	order, ok := parseIndices(response, len(texts))
	if !ok {
		r.logger.Warn("rerank response unparseable, keeping original order",
			slog.String("response", truncate(response, 200)))
		return Result{Order: identity}
	}

	if len(order) > topN {
		order = order[:topN]
	}
	return Result{Order: order}
}

func (r *Reranker) generate(ctx context.Context, prompt string, choice Choice) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := r.llm.GenerateContent(ctx, content,
		llms.WithTemperature(0),
		llms.WithModel(choice.modelName()),
	)
	if err != nil {
		return "", err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ctx.Err()
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty model response")
	}
	return resp.Choices[0].Content, nil
}

// buildPrompt numbers each candidate as "[i] text", optionally tagged with
// a content-domain label, and asks for a bare index array.
func buildPrompt(query string, texts []string, tags []string) string {
	var b strings.Builder
	b.WriteString("You are ranking search results from a classical Arabic and Islamic library.\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nRank the passages below by relevance to the query, most relevant first. ")
	b.WriteString("Consider what the query is asking for: a ruling, a Quranic verse, a narration, or a book passage.\n\n")

	for i, text := range texts {
		fmt.Fprintf(&b, "[%d]", i+1)
		if tags != nil {
			fmt.Fprintf(&b, " (%s)", tags[i])
		}
		b.WriteByte(' ')
		b.WriteString(truncate(text, maxCandidateChars))
		b.WriteByte('\n')
	}

	b.WriteString("\nRespond with ONLY a JSON array of the passage numbers in ranked order, for example [2,1,3].")
	return b.String()
}

var indexArrayPattern = regexp.MustCompile(`\[[\d,\s]*\]`)

// parseIndices extracts the first bracketed digit array from the response
// and converts it to 0-based indices. Out-of-range values, duplicates and
// invalid JSON all reject the response.
func parseIndices(response string, n int) ([]int, bool) {
	match := indexArrayPattern.FindString(response)
	if match == "" {
		return nil, false
	}

	var parsed []int
	if err := json.Unmarshal([]byte(match), &parsed); err != nil {
		return nil, false
	}
	if len(parsed) == 0 {
		return nil, false
	}

	seen := make(map[int]bool, len(parsed))
	order := make([]int, 0, len(parsed))
	for _, idx := range parsed {
		if idx < 1 || idx > n || seen[idx] {
			return nil, false
		}
		seen[idx] = true
		order = append(order, idx-1)
	}
	return order, true
}

func identityOrder(n, topN int) []int {
	if topN > n {
		topN = n
	}
	order := make([]int, topN)
	for i := range order {
		order[i] = i
	}
	return order
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
