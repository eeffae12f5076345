package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultJinaEndpoint is the Jina embeddings API.
	DefaultJinaEndpoint = "https://api.jina.ai/v1/embeddings"

	// jinaMaxBatch is the largest input array the API accepts per call.
	jinaMaxBatch = 128

	// attemptTimeout bounds a single HTTP attempt; the 429 retry series is
	// governed separately by maxRateLimitAttempts.
	attemptTimeout = 15 * time.Second

	maxRateLimitAttempts = 8
	baseBackoff          = 3000 * time.Millisecond
	maxBackoff           = 60000 * time.Millisecond
)

// JinaConfig configures the Jina back-end.
type JinaConfig struct {
	Endpoint string
	APIKey   string
	Model    Model
	// Task is the Jina task hint; queries use retrieval.query.
	Task string
}

// JinaEmbedder calls the Jina embeddings API over HTTPS with JSON bodies.
// Rate-limited responses are retried with exponential backoff; any other
// non-2xx fails fast.
type JinaEmbedder struct {
	client *http.Client
	config JinaConfig
}

var _ Embedder = (*JinaEmbedder)(nil)

// NewJinaEmbedder creates a Jina back-end client.
func NewJinaEmbedder(cfg JinaConfig) (*JinaEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("jina embedder: missing API key")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultJinaEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = ModelJina
	}
	if cfg.Task == "" {
		cfg.Task = "retrieval.query"
	}

	// No client-level timeout: the per-attempt context carries the deadline
	// so backoff waits are not charged against transfer time.
	return &JinaEmbedder{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
		}},
		config: cfg,
	}, nil
}

type jinaRequest struct {
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
	Input []string `json:"input"`
}

type jinaResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding of a single text.
func (e *JinaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("jina embedder: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting into API-sized chunks. Blank texts
// become zero vectors without a call.
func (e *JinaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, e.Dimensions())
			continue
		}
		pending = append(pending, i)
	}

	for start := 0; start < len(pending); start += jinaMaxBatch {
		end := start + jinaMaxBatch
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		batch := make([]string, len(chunk))
		for i, idx := range chunk {
			batch[i] = texts[idx]
		}

		vecs, err := e.callWithBackoff(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, idx := range chunk {
			results[idx] = vecs[i]
		}
	}

	return results, nil
}

// Model returns the configured model.
func (e *JinaEmbedder) Model() Model { return e.config.Model }

// Dimensions returns the model vector width.
func (e *JinaEmbedder) Dimensions() int { return e.config.Model.Dimensions() }

// callWithBackoff retries rate-limited calls with exponential backoff
// capped at maxBackoff; other failures surface immediately.
func (e *JinaEmbedder) callWithBackoff(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt < maxRateLimitAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff << (attempt - 1)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			slog.Warn("embedding rate limited, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vecs, err := e.call(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var statusErr *ErrBackendStatus
		if !errors.As(err, &statusErr) || statusErr.Status != http.StatusTooManyRequests {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embedding rate limit persisted after %d attempts: %w", maxRateLimitAttempts, lastErr)
}

// call performs one attempt under its own deadline.
func (e *JinaEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	body, err := json.Marshal(jinaRequest{
		Model: string(e.config.Model),
		Task:  e.config.Task,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, e.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &ErrBackendStatus{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed jinaResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d, got %d", len(texts), len(parsed.Data))
	}

	// The API may return items out of order; align by the returned index.
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})

	vecs := make([][]float32, len(parsed.Data))
	for i, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
