package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/config"
	"github.com/medquiz-ai/medquiz-engine/pkg/database"
	"github.com/medquiz-ai/medquiz-engine/pkg/handlers"
	"github.com/medquiz-ai/medquiz-engine/pkg/images"
	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/logging"
	"github.com/medquiz-ai/medquiz-engine/pkg/mcp"
	"github.com/medquiz-ai/medquiz-engine/pkg/mcp/tools"
	"github.com/medquiz-ai/medquiz-engine/pkg/middleware"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
	"github.com/medquiz-ai/medquiz-engine/pkg/vocab"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", cfg.Database.Database),
		zap.String("default_model", cfg.DefaultModel().Identifier))

	ctx := context.Background()

	// Migrations run over database/sql; the pool below uses pgx natively.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := database.RunMigrations(migrationDB, cfg.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations",
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		// Connection errors can echo the DSN, password included.
		logger.Fatal("Failed to connect to database",
			zap.String("url", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
			zap.String("error", logging.SanitizeError(err)))
	}
	defer db.Close()

	vocabulary, err := vocab.Load(cfg.VocabularyPath)
	if err != nil {
		logger.Fatal("Failed to load relation vocabulary", zap.Error(err))
	}

	registry, err := llm.NewRegistry(cfg.Models, llm.Credentials{
		OpenAIAPIKey:    cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.LLM.OpenAIBaseURL,
		AnthropicAPIKey: cfg.LLM.AnthropicAPIKey,
		GeminiAPIKey:    cfg.LLM.GeminiAPIKey,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to build model registry", zap.Error(err))
	}

	// Repositories
	sourceRepo := repositories.NewSourceRepository(db)
	factRepo := repositories.NewFactRepository(db)
	candidateRepo := repositories.NewCandidateRepository(db)
	pendingRepo := repositories.NewPendingReviewRepository(db)

	// External clients
	literature := pubmed.NewClient(&pubmed.Config{
		BaseURL: cfg.PubMed.BaseURL,
		APIKey:  cfg.PubMed.APIKey,
		Timeout: time.Duration(cfg.PubMed.TimeoutSeconds) * time.Second,
	}, logger)

	var renderer images.Renderer
	if cfg.Images.Enabled {
		provider := models.Provider(cfg.Images.Provider)
		renderer, err = images.NewRenderer(ctx, &images.Config{
			Provider:      cfg.Images.Provider,
			Model:         cfg.Images.Model,
			APIKey:        cfg.LLM.KeyFor(provider),
			DefaultWidth:  cfg.Images.DefaultWidth,
			DefaultHeight: cfg.Images.DefaultHeight,
		}, logger)
		if err != nil {
			logger.Warn("Image rendering disabled", zap.Error(err))
			renderer = nil
		}
	}

	// Services
	generator := services.NewGeneratorService(vocabulary, logger)
	kb := services.NewKBService(services.KBServiceDeps{
		Facts:      factRepo,
		Vocabulary: vocabulary,
		Logger:     logger,
	})
	ingestion := services.NewIngestionService(services.IngestionServiceDeps{
		Sources: sourceRepo,
		Pending: pendingRepo,
		Logger:  logger,
	})
	refinement := services.NewRefinementService(services.RefinementServiceDeps{
		Generator:  generator,
		Candidates: candidateRepo,
		Sources:    sourceRepo,
		Logger:     logger,
	})
	pipeline := services.NewPipelineService(services.PipelineServiceDeps{
		Registry: registry,
		Stages: services.DefaultStages(services.StageDeps{
			Ingestion:  ingestion,
			Generator:  generator,
			KB:         kb,
			Sources:    sourceRepo,
			Facts:      factRepo,
			Candidates: candidateRepo,
			Literature: literature,
			Logger:     logger,
		}),
		Temperature:         cfg.LLM.Temperature,
		MaxTokens:           cfg.LLM.MaxTokens,
		MaxRefineIterations: cfg.Pipeline.MaxRefineIterations,
		Logger:              logger,
	})
	review := services.NewReviewService(services.ReviewServiceDeps{
		Facts:               factRepo,
		Candidates:          candidateRepo,
		Sources:             sourceRepo,
		Pending:             pendingRepo,
		Generator:           generator,
		Refinement:          refinement,
		KB:                  kb,
		Registry:            registry,
		Renderer:            renderer,
		ImageDir:            cfg.Images.OutputDir,
		Temperature:         cfg.LLM.Temperature,
		MaxTokens:           cfg.LLM.MaxTokens,
		MaxRefineIterations: cfg.Pipeline.MaxRefineIterations,
		Logger:              logger,
	})

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSourcesHandler(ingestion, literature, logger).RegisterRoutes(mux)
	handlers.NewFactsHandler(review, logger).RegisterRoutes(mux)
	handlers.NewCandidatesHandler(review, logger).RegisterRoutes(mux)
	handlers.NewPipelineHandler(pipeline, registry, logger).RegisterRoutes(mux)

	// MCP server on /mcp (stateless streamable HTTP)
	mcpServer := mcp.NewServer("medquiz-engine", cfg.Version, logger)
	tools.RegisterReviewTools(mcpServer.MCP(), &tools.ReviewToolDeps{
		Review:     review,
		Pipeline:   pipeline,
		Literature: literature,
		Logger:     logger,
	})
	mcpHTTP := mcpServer.NewStreamableHTTPServer()
	mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpHTTP))

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting medquiz-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))

	if cfg.TLSCertPath != "" {
		err = http.ListenAndServeTLS(addr, cfg.TLSCertPath, cfg.TLSKeyPath, handler)
	} else {
		err = http.ListenAndServe(addr, handler)
	}
	if err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
