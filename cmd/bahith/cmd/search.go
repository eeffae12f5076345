package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/noorlib/bahith/internal/config"
	"github.com/noorlib/bahith/internal/embed"
	"github.com/noorlib/bahith/internal/expand"
	"github.com/noorlib/bahith/internal/graph"
	"github.com/noorlib/bahith/internal/lexical"
	"github.com/noorlib/bahith/internal/rerank"
	"github.com/noorlib/bahith/internal/searchcore"
	"github.com/noorlib/bahith/internal/store"
	"github.com/noorlib/bahith/internal/store/embcache"
	"github.com/noorlib/bahith/internal/telemetry"
	"github.com/noorlib/bahith/internal/translate"
	"github.com/noorlib/bahith/internal/vector"
)

var (
	searchMode     string
	searchLimit    int
	searchRefine   bool
	searchReranker string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run one search against the local deployment",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := buildEngine(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		resp, err := engine.Search(cmd.Context(), searchcore.SearchParams{
			Query:         strings.Join(args, " "),
			Mode:          searchcore.Mode(searchMode),
			IncludeBooks:  true,
			IncludeQuran:  true,
			IncludeHadith: true,
			Limit:         searchLimit,
			Refine:        searchRefine,
			Reranker:      rerank.Choice(searchReranker),
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resp)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "search mode: hybrid, semantic, keyword")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max book results (0 = default)")
	searchCmd.Flags().BoolVar(&searchRefine, "refine", false, "expand the query and rerank across domains")
	searchCmd.Flags().StringVar(&searchReranker, "reranker", "none", "reranker tier: none, small, large, fast")
	rootCmd.AddCommand(searchCmd)
}

// buildEngine wires whatever the configuration provides. Missing pieces
// (no database, no API keys) degrade the pipeline the same way a branch
// failure would at runtime.
func buildEngine(ctx context.Context, cfg config.Config) (*searchcore.Engine, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	lex, err := lexical.NewEngine(lexical.Config{Dir: cfg.Paths.IndexDir})
	if err != nil {
		return nil, nil, fmt.Errorf("open lexical engine: %w", err)
	}
	cleanups = append(cleanups, func() { _ = lex.Close() })

	deps := searchcore.Deps{
		Lexical:   lex,
		Stores:    map[embed.Model]*vector.Store{},
		Embedders: map[embed.Model]embed.Embedder{},
		Metrics:   telemetry.NewQueryMetrics(),
	}

	model := embed.Model(cfg.Embeddings.Model)
	if !model.Valid() {
		model = embed.ModelLarge
	}
	deps.Stores[model] = vector.NewStore(
		model.Collection("pages"), model.Collection("quran"), model.Collection("hadith"),
		model.Dimensions())

	if backend := buildEmbedder(cfg, model); backend != nil {
		var persist embed.PersistentCache
		if cfg.Paths.EmbeddingCacheDir != "" {
			release, err := embed.AcquireCacheLock(cfg.Paths.EmbeddingCacheDir)
			if err == nil {
				if pc, err := embcache.Open(cfg.Paths.EmbeddingCacheDir); err == nil {
					persist = pc
					cleanups = append(cleanups, func() { _ = pc.Close() })
				}
				cleanups = append(cleanups, release)
			}
		}
		deps.Embedders[model] = embed.NewTiered(backend, persist)
	}

	var chat llms.Model
	if cfg.LLM.APIKey != "" {
		chat, err = openai.New(
			openai.WithToken(cfg.LLM.APIKey),
			openai.WithBaseURL(cfg.LLM.BaseURL),
			openai.WithModel("openai/gpt-4o-mini"),
		)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create chat client: %w", err)
		}
		deps.Reranker = rerank.New(chat)
		deps.Expander = expand.New(chat)
	}

	if cfg.Database.URL != "" {
		repo, err := store.NewRepository(ctx, cfg.Database.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect metadata store: %w", err)
		}
		cleanups = append(cleanups, repo.Close)

		deps.Repo = repo
		deps.Merger = translate.NewMerger(repo, chat)
		deps.Graph = graph.New(repo)
		deps.Indexed = lexical.NewIndexedSet(repo, lex, &vectorPageCounter{store: deps.Stores[model]})
	}

	if cfg.Paths.AnalyticsDB != "" {
		if sink, err := telemetry.OpenAnalytics(cfg.Paths.AnalyticsDB); err == nil {
			deps.Analytics = sink
			cleanups = append(cleanups, func() { _ = sink.Close() })
		}
	}

	return searchcore.NewEngine(cfg, deps), cleanup, nil
}

func buildEmbedder(cfg config.Config, model embed.Model) embed.Embedder {
	switch model {
	case embed.ModelJina:
		if cfg.Embeddings.JinaAPIKey == "" {
			return nil
		}
		backend, err := embed.NewJinaEmbedder(embed.JinaConfig{APIKey: cfg.Embeddings.JinaAPIKey})
		if err != nil {
			return nil
		}
		return backend
	default:
		if cfg.Embeddings.OpenAIAPIKey == "" {
			return nil
		}
		backend, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL: cfg.Embeddings.OpenAIBaseURL,
			APIKey:  cfg.Embeddings.OpenAIAPIKey,
			Model:   model,
		})
		if err != nil {
			return nil
		}
		return backend
	}
}

// vectorPageCounter adapts the typed pages collection to the indexed-set
// counter.
type vectorPageCounter struct {
	store *vector.Store
}

func (c *vectorPageCounter) PageCountForBook(bookID int) int {
	if c.store == nil {
		return 0
	}
	return c.store.Pages.CountWhere(func(p store.PageDoc) bool { return p.BookID == bookID })
}
