package expand

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	mu       sync.Mutex
	response string
	err      error
	calls    int
}

func (f *fakeModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.response}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return f.response, f.err
}

func (f *fakeModel) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestExpandParsesWeights(t *testing.T) {
	model := &fakeModel{response: `[
		{"text":"فقه الصيام","weight":0.9,"reason":"synonym"},
		{"text":"شروط الصوم","weight":0.7,"reason":"related"},
		{"text":"مسائل رمضان","weight":0.5,"reason":"broader"}
	]`}
	e := New(model)

	got := e.Expand(context.Background(), "أحكام الصيام")
	require.Len(t, got, 3)
	assert.Equal(t, "فقه الصيام", got[0].Text)
	assert.Equal(t, 0.9, got[0].Weight)
	assert.Equal(t, "synonym", got[0].Reason)
}

func TestExpandClampsAndCaps(t *testing.T) {
	model := &fakeModel{response: `[
		{"text":"a","weight":0.1},
		{"text":"b","weight":1.7},
		{"text":"","weight":0.5},
		{"text":"c","weight":0.5},
		{"text":"d","weight":0.5},
		{"text":"e","weight":0.5}
	]`}
	e := New(model)

	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 4, "capped at four variants")
	assert.Equal(t, 0.3, got[0].Weight, "low weight clamped up")
	assert.Equal(t, 1.0, got[1].Weight, "high weight clamped down")
}

func TestExpandFailureReturnsEmpty(t *testing.T) {
	e := New(&fakeModel{err: errors.New("model down")})
	assert.Empty(t, e.Expand(context.Background(), "q"))
}

func TestExpandUnparseableReturnsEmpty(t *testing.T) {
	e := New(&fakeModel{response: "sorry, I cannot help with that"})
	assert.Empty(t, e.Expand(context.Background(), "q"))
}

func TestExpandCodeFences(t *testing.T) {
	model := &fakeModel{response: "```json\n[{\"text\":\"x\",\"weight\":0.8}]\n```"}
	e := New(model)

	got := e.Expand(context.Background(), "q")
	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].Text)
}

func TestExpandCachesByQuery(t *testing.T) {
	model := &fakeModel{response: `[{"text":"x","weight":0.8}]`}
	e := New(model)
	ctx := context.Background()

	first := e.Expand(ctx, "سؤال")
	second := e.Expand(ctx, "سؤال")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, model.callCount(), "second call served from cache")

	// A different query text is its own cache entry and reaches the model.
	e.Expand(ctx, "آخر")
	assert.Equal(t, 2, model.callCount())
}

func TestExpandEmptyQuery(t *testing.T) {
	model := &fakeModel{response: `[{"text":"x","weight":0.8}]`}
	e := New(model)

	assert.Empty(t, e.Expand(context.Background(), "   "))
	assert.Equal(t, 0, model.callCount())
}
