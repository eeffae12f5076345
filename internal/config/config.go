// Package config loads the service configuration from a YAML file plus
// environment overrides. Credentials only ever come from the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Env        string           `yaml:"env"`
	Paths      PathsConfig      `yaml:"paths"`
	Search     SearchConfig     `yaml:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	// IndexDir holds the lexical indexes.
	IndexDir string `yaml:"index_dir"`
	// VectorDir names a directory for vector collections; the in-memory
	// vector store does not read or write it.
	VectorDir string `yaml:"vector_dir"`
	// EmbeddingCacheDir holds the persistent embedding cache.
	EmbeddingCacheDir string `yaml:"embedding_cache_dir"`
	// AnalyticsDB is the sqlite analytics sink.
	AnalyticsDB string `yaml:"analytics_db"`
}

// SearchConfig tunes the pipeline.
type SearchConfig struct {
	// DefaultLimit is the result count when the caller asks for none.
	DefaultLimit int `yaml:"default_limit"`
	// MaxLimit caps any requested limit.
	MaxLimit int `yaml:"max_limit"`
	// BaseSimilarity is the vector score floor before the dynamic
	// threshold raises it for short queries.
	BaseSimilarity float64 `yaml:"base_similarity"`
	// RequestTimeout bounds one whole search request.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// EngineTimeout bounds each lexical or semantic branch.
	EngineTimeout time.Duration `yaml:"engine_timeout"`
}

// EmbeddingsConfig selects and authenticates the embedding back-ends.
type EmbeddingsConfig struct {
	// Model is the default embedding model name.
	Model string `yaml:"model"`
	// JinaAPIKey comes from JINA_API_KEY.
	JinaAPIKey string `yaml:"-"`
	// OpenAIBaseURL overrides the large model endpoint (optional).
	OpenAIBaseURL string `yaml:"openai_base_url"`
	// OpenAIAPIKey comes from OPENAI_API_KEY, falling back to the
	// OpenRouter key.
	OpenAIAPIKey string `yaml:"-"`
}

// DatabaseConfig locates the metadata store.
type DatabaseConfig struct {
	// URL comes from DATABASE_URL.
	URL string `yaml:"-"`
}

// LLMConfig authenticates the chat model used by reranking, expansion and
// translation.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible chat endpoint.
	BaseURL string `yaml:"base_url"`
	// APIKey comes from OPENROUTER_API_KEY.
	APIKey string `yaml:"-"`
}

// LoggingConfig tunes the slog setup.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Env: "development",
		Paths: PathsConfig{
			IndexDir:          "data/index",
			VectorDir:         "data/vectors",
			EmbeddingCacheDir: "data/embcache",
			AnalyticsDB:       "data/analytics.db",
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxLimit:       50,
			BaseSimilarity: 0.20,
			RequestTimeout: 30 * time.Second,
			EngineTimeout:  5 * time.Second,
		},
		Embeddings: EmbeddingsConfig{
			Model: "text-embedding-3-large",
		},
		LLM: LLMConfig{
			BaseURL: "https://openrouter.ai/api/v1",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (when it exists) over the defaults, then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	} else if v := os.Getenv("NODE_ENV"); v != "" {
		// Legacy deployments still export NODE_ENV.
		c.Env = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("JINA_API_KEY"); v != "" {
		c.Embeddings.JinaAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Embeddings.OpenAIAPIKey = v
	}
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		c.LLM.APIKey = v
		if c.Embeddings.OpenAIAPIKey == "" {
			c.Embeddings.OpenAIAPIKey = v
		}
	}
	if v := os.Getenv("BAHITH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BAHITH_INDEX_DIR"); v != "" {
		c.Paths.IndexDir = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.default_limit must be positive")
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be at least default_limit")
	}
	if c.Search.BaseSimilarity < 0 || c.Search.BaseSimilarity >= 1 {
		return fmt.Errorf("search.base_similarity must be in [0, 1)")
	}
	return nil
}

// Production reports whether debug output should be suppressed.
func (c *Config) Production() bool {
	return c.Env == "production"
}
