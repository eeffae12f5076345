package rerank

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeModel is a canned llms.Model.
type fakeModel struct {
	response string
	err      error
	prompts  []string
	block    bool
}

func (f *fakeModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range msgs {
		for _, p := range m.Parts {
			if tp, ok := p.(llms.TextContent); ok {
				f.prompts = append(f.prompts, tp.Text)
			}
		}
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.response}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return f.response, f.err
}

func TestRerankNone(t *testing.T) {
	r := New(&fakeModel{response: "[3,2,1]"})
	res := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2, ChoiceNone)

	assert.Equal(t, []int{0, 1}, res.Order)
	assert.False(t, res.TimedOut)
}

func TestRerankReorders(t *testing.T) {
	model := &fakeModel{response: "Here is the ranking: [3, 1, 2]"}
	r := New(model)

	res := r.Rerank(context.Background(), "احكام الصيام", []string{"a", "b", "c"}, 3, ChoiceSmall)
	assert.Equal(t, []int{2, 0, 1}, res.Order)
	assert.False(t, res.TimedOut)

	require.NotEmpty(t, model.prompts)
	assert.Contains(t, model.prompts[0], "احكام الصيام")
	assert.Contains(t, model.prompts[0], "[1] a")
}

func TestRerankParseFailures(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no array", "the best result is number 2"},
		{"out of range", "[1,4]"},
		{"duplicates", "[1,1,2]"},
		{"zero index", "[0,1]"},
		{"empty array", "[]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(&fakeModel{response: tt.response})
			res := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 3, ChoiceSmall)

			assert.Equal(t, []int{0, 1, 2}, res.Order, "parse failure keeps original order")
			assert.False(t, res.TimedOut)
		})
	}
}

func TestRerankErrorSetsTimedOut(t *testing.T) {
	r := New(&fakeModel{err: errors.New("upstream 500")})
	res := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2, ChoiceFast)

	assert.Equal(t, []int{0, 1}, res.Order)
	assert.True(t, res.TimedOut)
}

func TestRerankCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(&fakeModel{block: true})
	res := r.Rerank(ctx, "q", []string{"a", "b"}, 2, ChoiceSmall)

	assert.Equal(t, []int{0, 1}, res.Order)
	assert.True(t, res.TimedOut)
}

func TestRerankSingleCandidate(t *testing.T) {
	model := &fakeModel{response: "[1]"}
	r := New(model)
	res := r.Rerank(context.Background(), "q", []string{"only"}, 5, ChoiceLarge)

	assert.Equal(t, []int{0}, res.Order)
	assert.Empty(t, model.prompts, "a single candidate never reaches the model")
}

func TestParseIndicesPartialRanking(t *testing.T) {
	// A ranking of a subset is acceptable: remaining items are dropped.
	order, ok := parseIndices("[2,3]", 4)
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, order)
}

func TestRerankUnified(t *testing.T) {
	// Global numbering: books [1,2], ayahs [3,4], hadiths [5].
	model := &fakeModel{response: "[3,1,5,4,2]"}
	r := New(model)

	res := r.RerankUnified(context.Background(), "q",
		UnifiedLists{
			Books:   []string{"b0", "b1"},
			Ayahs:   []string{"a0", "a1"},
			Hadiths: []string{"h0"},
		},
		UnifiedCaps{Books: 2, Ayahs: 2, Hadiths: 1},
		ChoiceSmall,
	)

	require.False(t, res.TimedOut)
	require.False(t, res.Skipped)

	require.Len(t, res.Ayahs, 2)
	assert.Equal(t, 0, res.Ayahs[0].Index)
	assert.InDelta(t, 0.99, res.Ayahs[0].Score, 1e-9)
	assert.Equal(t, 1, res.Ayahs[1].Index)

	require.Len(t, res.Books, 2)
	assert.Equal(t, 0, res.Books[0].Index)
	assert.InDelta(t, 0.98, res.Books[0].Score, 1e-9)
	assert.Equal(t, 1, res.Books[1].Index)

	require.Len(t, res.Hadiths, 1)
	assert.Equal(t, 0, res.Hadiths[0].Index)

	// Scores decay monotonically with the overall rank.
	assert.Greater(t, res.Ayahs[0].Score, res.Books[0].Score)

	require.NotEmpty(t, model.prompts)
	assert.Contains(t, model.prompts[0], "(ayah)")
	assert.Contains(t, model.prompts[0], "(hadith)")
}

func TestRerankUnifiedSkipsTinyPool(t *testing.T) {
	model := &fakeModel{response: "[1,2]"}
	r := New(model)

	res := r.RerankUnified(context.Background(), "q",
		UnifiedLists{Books: []string{"b0"}, Ayahs: []string{"a0"}},
		UnifiedCaps{Books: 5, Ayahs: 5, Hadiths: 5},
		ChoiceSmall,
	)

	assert.True(t, res.Skipped)
	assert.Empty(t, model.prompts, "model not consulted under three candidates")
	require.Len(t, res.Books, 1)
	assert.Equal(t, 0, res.Books[0].Index)
}

func TestRerankUnifiedTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(&fakeModel{block: true})
	res := r.RerankUnified(ctx, "q",
		UnifiedLists{Books: []string{"b0", "b1"}, Ayahs: []string{"a0"}},
		UnifiedCaps{Books: 2, Ayahs: 1, Hadiths: 1},
		ChoiceLarge,
	)

	assert.True(t, res.TimedOut)
	require.Len(t, res.Books, 2)
	assert.Equal(t, 0, res.Books[0].Index)
	assert.Equal(t, 1, res.Books[1].Index)
}

func TestRerankUnifiedRespectsCaps(t *testing.T) {
	model := &fakeModel{response: "[1,2,3,4]"}
	r := New(model)

	res := r.RerankUnified(context.Background(), "q",
		UnifiedLists{
			Books: []string{"b0", "b1", "b2", "b3"},
			Ayahs: []string{"a0"},
		},
		UnifiedCaps{Books: 3, Ayahs: 1, Hadiths: 2},
		ChoiceSmall,
	)

	// The fourth book was cut before the prompt; [4] now names the ayah.
	assert.Len(t, res.Books, 3)
	require.Len(t, res.Ayahs, 1)
	assert.Equal(t, 0, res.Ayahs[0].Index)
}
