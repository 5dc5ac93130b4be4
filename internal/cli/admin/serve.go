package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/groundline/groundline/internal/api/handlers"
	"github.com/groundline/groundline/internal/config"
	"github.com/groundline/groundline/internal/database"
	"github.com/groundline/groundline/internal/domain"
	"github.com/groundline/groundline/internal/jobs"
	"github.com/groundline/groundline/internal/provider"
	"github.com/groundline/groundline/internal/repository"
	"github.com/groundline/groundline/internal/server"
	"github.com/groundline/groundline/internal/service"
	"github.com/groundline/groundline/internal/telemetry"
	"github.com/groundline/groundline/internal/tokenizer"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the groundline API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	if !cfg.HasDatabase() {
		return fmt.Errorf("GROUNDLINE_DATABASE_URL is required")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	costRepo := repository.NewCostRepository(pool)
	eventRepo := repository.NewQueryEventRepository(pool)

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	cheap := resolveProfiles(cfg.CheapModels, 0, registry)
	strong := resolveProfiles(cfg.StrongModels, 1, registry)
	if len(cheap) == 0 && len(strong) == 0 {
		return fmt.Errorf("no generation providers configured: set at least one provider API key")
	}

	costTracker := provider.NewCostTracker(costRepo)
	defer costTracker.Close()

	chain := provider.NewChain(registry, costTracker, provider.ChainConfig{
		ProviderTimeout: cfg.ProviderTimeout,
		MaxRetries:      cfg.MaxRetries,
		CooldownWindow:  cfg.CooldownWindow,
	})

	router := provider.NewRouter(cheap, strong, provider.RouterConfig{
		ComplexTokenThreshold: cfg.ComplexTokenThreshold,
		ComplexKeywords:       cfg.ComplexKeywords,
	})

	var cache service.QueryCache
	if cfg.HasRedis() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		cache = service.NewRedisQueryCache(client, cfg.EmbedCacheTTL)
		log.Println("query embedding cache: redis")
	} else {
		cache = service.NewMemoryQueryCache(cfg.EmbedCacheTTL)
		log.Println("query embedding cache: in-process")
	}

	embedProfiles := embeddingProfiles(cfg, registry)
	if err := checkEmbeddingDimensions(embedProfiles, cfg.EmbeddingDimensions); err != nil {
		return err
	}
	if len(embedProfiles) > 0 {
		columnDim, err := chunkRepo.EmbeddingDimension(ctx)
		if err != nil {
			return fmt.Errorf("failed to read chunks.embedding dimension: %w", err)
		}
		if columnDim != cfg.EmbeddingDimensions {
			return fmt.Errorf("chunks.embedding is vector(%d) but GROUNDLINE_EMBEDDING_DIMENSIONS is %d: migrate the column before switching embedding models", columnDim, cfg.EmbeddingDimensions)
		}
	}
	embeddingSvc := service.NewEmbeddingService(chain, embedProfiles, cache)

	searchSvc := service.NewSearchService(chunkRepo, embeddingSvc, service.SearchConfig{
		SemanticWeight: cfg.SemanticWeight,
		LexicalWeight:  cfg.LexicalWeight,
	})

	var reranker service.Reranker
	if cfg.HasRerank() {
		reranker = service.NewHTTPReranker(cfg.RerankEndpoint, cfg.RerankModel, cfg.RerankAPIKey, cfg.RerankTimeout)
		log.Printf("reranker: %s (%s)", cfg.RerankEndpoint, cfg.RerankModel)
	}

	emitter := service.NewEventEmitter(eventRepo)
	defer emitter.Close()

	orchestrator := service.NewOrchestrator(
		searchSvc,
		reranker,
		service.NewAssembler(cfg.PromptOverhead),
		service.NewCitationTracker(),
		router,
		chain,
		emitter,
		nil,
		service.OrchestratorConfig{
			TokenBudget:     cfg.TokenBudget,
			SearchTopK:      cfg.SearchTopK,
			QueryTimeout:    cfg.QueryTimeout,
			MinAnswerLength: cfg.MinAnswerLength,
			MaxAnswerTokens: cfg.MaxAnswerTokens,
		},
	)

	counter := tokenizer.NewCounter(counterModel(cheap, strong))
	ingestSvc := service.NewIngestService(chunkRepo, counter, cfg.MaxChunkTokens)

	var backfillWorker *jobs.Worker
	if len(embedProfiles) > 0 {
		processor := jobs.NewBackfillWorker(chunkRepo, embeddingSvc, cfg.IndexBatchSize, cfg.IndexConcurrency)
		backfillWorker = jobs.NewWorker(processor, cfg.IndexPollInterval)
		go backfillWorker.Start(ctx)
		log.Println("embedding backfill worker started")
	} else {
		log.Println("no embedding provider configured: backfill worker disabled, retrieval is lexical-only")
	}

	routerCfg := server.RouterConfig{
		AnswerHandler: handlers.NewAnswerHandler(orchestrator, searchSvc),
		IngestHandler: handlers.NewIngestHandler(ingestSvc),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func buildRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	var providers []provider.Provider

	if cfg.HasOpenAI() {
		if cfg.OpenAIBaseURL != "" {
			providers = append(providers, provider.NewOpenAICompatibleProvider("openai", cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
		} else {
			providers = append(providers, provider.NewOpenAIProvider(cfg.OpenAIAPIKey))
		}
	}
	if cfg.HasAnthropic() {
		providers = append(providers, provider.NewAnthropicProvider(cfg.AnthropicAPIKey))
	}
	if cfg.HasGemini() {
		p, err := provider.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.HasSelfHosted() {
		providers = append(providers, provider.NewOpenAICompatibleProvider("selfhosted", cfg.SelfHostedAPIKey, cfg.SelfHostedBaseURL))
	}

	for _, p := range providers {
		log.Printf("provider registered: %s", p.ID())
	}
	return provider.NewRegistry(providers...), nil
}

// modelCosts holds per-token USD pricing for known models; entries missing
// here fall back to tier defaults, which only affects within-tier ordering.
var modelCosts = map[string][2]float64{
	"gpt-4o-mini":              {0.15e-6, 0.60e-6},
	"gpt-4o":                   {2.50e-6, 10.0e-6},
	"claude-3-5-haiku-latest":  {0.80e-6, 4.00e-6},
	"claude-sonnet-4-20250514": {3.00e-6, 15.0e-6},
	"gemini-2.0-flash":         {0.10e-6, 0.40e-6},
	"gemini-2.5-pro":           {1.25e-6, 10.0e-6},
	"text-embedding-3-small":   {0.02e-6, 0},
	"text-embedding-004":       {0.01e-6, 0},
}

var tierDefaultCosts = [2][2]float64{
	{0.50e-6, 2.00e-6},
	{3.00e-6, 15.0e-6},
}

// resolveProfiles parses "provider:model" entries into profiles, dropping
// entries whose provider has no credentials.
func resolveProfiles(entries []string, tier int, registry *provider.Registry) []domain.ProviderProfile {
	var out []domain.ProviderProfile
	for _, entry := range entries {
		providerID, modelID, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || providerID == "" || modelID == "" {
			log.Printf("skipping malformed model entry %q (want provider:model)", entry)
			continue
		}
		if !registry.Has(providerID) {
			log.Printf("skipping %s: provider %q not configured", entry, providerID)
			continue
		}
		costs, known := modelCosts[modelID]
		if !known {
			costs = tierDefaultCosts[tier]
		}
		out = append(out, domain.ProviderProfile{
			ProviderID:         providerID,
			ModelID:            modelID,
			CostPerTokenIn:     costs[0],
			CostPerTokenOut:    costs[1],
			SupportsEmbeddings: providerID != "anthropic",
			Tier:               tier,
		})
	}
	return out
}

// modelDimensions pins the vector width of known embedding models. The
// chunks.embedding column is fixed-width, so a profile producing a different
// width could never be stored and would fail every backfill insert.
var modelDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"text-embedding-004":     768,
}

// checkEmbeddingDimensions refuses to start when a known embedding model's
// vector width disagrees with the configured one. Unknown (self-hosted)
// models are trusted to serve the configured width.
func checkEmbeddingDimensions(profiles []domain.ProviderProfile, configured int) error {
	for _, p := range profiles {
		dim, known := modelDimensions[p.ModelID]
		if known && dim != configured {
			return fmt.Errorf("embedding model %s produces %d-dimensional vectors but GROUNDLINE_EMBEDDING_DIMENSIONS is %d", p.ModelID, dim, configured)
		}
	}
	return nil
}

// embeddingProfiles is the ordered list of embedding-capable provider/model
// pairs. Order fixes the primary embedding model version, so it also decides
// which vectors dominate the index.
func embeddingProfiles(cfg *config.Config, registry *provider.Registry) []domain.ProviderProfile {
	var out []domain.ProviderProfile
	if registry.Has("openai") {
		out = append(out, domain.ProviderProfile{
			ProviderID:         "openai",
			ModelID:            cfg.EmbeddingModel,
			SupportsEmbeddings: true,
		})
	}
	if registry.Has("gemini") {
		out = append(out, domain.ProviderProfile{
			ProviderID:         "gemini",
			ModelID:            "text-embedding-004",
			SupportsEmbeddings: true,
		})
	}
	if registry.Has("selfhosted") {
		out = append(out, domain.ProviderProfile{
			ProviderID:         "selfhosted",
			ModelID:            cfg.EmbeddingModel,
			SupportsEmbeddings: true,
		})
	}
	return out
}

// counterModel picks the model whose tokenizer sizes chunks; token budgets
// are enforced against generation context windows, so prefer a strong-tier
// model.
func counterModel(cheap, strong []domain.ProviderProfile) string {
	if len(strong) > 0 {
		return strong[0].ModelID
	}
	if len(cheap) > 0 {
		return cheap[0].ModelID
	}
	return "gpt-4o"
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	upErr := m.Up()
	if upErr != nil && upErr != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, dirty, err := m.Version()
	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}
	if upErr == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
