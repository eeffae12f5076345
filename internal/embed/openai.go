package embed

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures the OpenAI-compatible back-end.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   Model
}

// OpenAIEmbedder serves the 3072-dimension model through an
// OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    Model
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates the large-model back-end client.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: missing API key")
	}
	if cfg.Model == "" {
		cfg.Model = ModelLarge
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(string(cfg.Model)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(jinaMaxBatch),
	)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	return &OpenAIEmbedder{embedder: embedder, model: cfg.Model}, nil
}

// Embed returns the embedding of a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.EmbedQuery(ctx, text)
}

// EmbedBatch returns embeddings in input order; the langchaingo embedder
// handles chunking to the batch size.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.embedder.EmbedDocuments(ctx, texts)
}

// Model returns the configured model.
func (e *OpenAIEmbedder) Model() Model { return e.model }

// Dimensions returns the model vector width.
func (e *OpenAIEmbedder) Dimensions() int { return e.model.Dimensions() }
