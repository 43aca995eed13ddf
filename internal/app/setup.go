package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quorumhq/quorum/db"
	"github.com/quorumhq/quorum/internal/cache"
	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/database"
	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/observability"
	"github.com/quorumhq/quorum/internal/rag"
	"github.com/quorumhq/quorum/internal/rerank"
	"github.com/quorumhq/quorum/internal/transcript"
	"github.com/quorumhq/quorum/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup. Call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing registers a span processor on Genkit's TracerProvider, so it
	// must run before genkit.Init.
	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			Endpoint:    cfg.Tracing.Endpoint,
			Environment: cfg.Tracing.Environment,
			ServiceName: cfg.Tracing.ServiceName,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	pool, err := provideDBPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	model := genkit.LookupModel(g, cfg.FullModelName())
	if model == nil {
		return nil, fmt.Errorf("model %q not found for provider %q", cfg.ModelName, cfg.Provider)
	}
	a.Model = model

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	a.Store = vectorstore.New(pool, embedder, logger)

	resultCache, redisClose := provideCache(cfg, logger)
	a.redisClose = redisClose

	engine, err := rag.NewEngine(rag.EngineConfig{
		Store:         a.Store,
		Rerankers:     provideRerankers(g, model, cfg, logger),
		DefaultRerank: cfg.RerankMethod,
		Cache:         resultCache,
		Logger:        logger,
		TopK:          cfg.TopK,
	})
	if err != nil {
		return nil, fmt.Errorf("creating query engine: %w", err)
	}
	a.Engine = engine

	chunker := transcript.New(g, model, logger)
	indexer, err := rag.NewIndexer(a.Store, chunker, logger)
	if err != nil {
		return nil, fmt.Errorf("creating indexer: %w", err)
	}
	a.Indexer = indexer

	return a, nil
}

// provideDBPool runs migrations and creates the PostgreSQL connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider.
// Supports gemini (default), ollama, and openai.
func provideGenkit(ctx context.Context, cfg *config.Config, logger log.Logger) (*genkit.Genkit, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = config.ProviderGemini
	}

	var g *genkit.Genkit

	switch provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit model registration (no auto-discovery).
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized Genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with openai provider")
		}
		logger.Info("initialized Genkit with openai provider", "model", cfg.ModelName)

	default: // "gemini"
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized Genkit with gemini provider", "model", cfg.ModelName)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the AI provider plugin.
// Each provider registers embedders differently:
//   - gemini: GoogleAIEmbedder(g, modelName)
//   - ollama: registered in provideGenkit, keyed by server address
//   - openai: auto-registered in Init(), looked up by model name
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderOllama:
		return ollama.Embedder(g, cfg.OllamaHost)
	case config.ProviderOpenAI:
		return genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
	default: // "gemini"
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}

// provideRerankers builds the method-to-reranker table the engine selects
// from. "llm" maps to a chain that falls back to the Voyage cross-encoder
// when one is configured; "voyage" maps to the cross-encoder alone.
func provideRerankers(g *genkit.Genkit, model ai.Model, cfg *config.Config, logger log.Logger) map[string]rag.Reranker {
	llm := rerank.NewLLM(g, model, logger)
	rerankers := map[string]rag.Reranker{}

	if cfg.VoyageAPIKey != "" {
		voyage := rerank.NewVoyage(rerank.VoyageConfig{
			APIKey:   cfg.VoyageAPIKey,
			Model:    cfg.VoyageModel,
			Endpoint: cfg.VoyageEndpoint,
		}, logger)
		rerankers[rag.RerankMethodVoyage] = voyage
		rerankers[rag.RerankMethodLLM] = rerank.NewChain(logger, llm, voyage)
	} else {
		rerankers[rag.RerankMethodLLM] = rerank.NewChain(logger, llm)
	}

	return rerankers
}

// provideCache selects the result cache backend. A configured Redis address
// selects the shared Redis cache; otherwise results are cached in process.
func provideCache(cfg *config.Config, logger log.Logger) (rag.ResultCache, func() error) {
	if cfg.RedisAddr == "" {
		mem := cache.NewMemory(
			cache.WithTTL(cfg.CacheTTL),
			cache.WithMaxEntries(cfg.CacheMaxEntries),
		)
		return mem, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	logger.Info("using redis result cache", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	return cache.NewRedis(client, cfg.CacheTTL, logger), client.Close
}
