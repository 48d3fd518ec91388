package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/config"
	"textbook-rag-backend/internal/crawler"
	"textbook-rag-backend/internal/logger"
	"textbook-rag-backend/internal/queue"
	"textbook-rag-backend/internal/store"
	"textbook-rag-backend/internal/telemetry"
	"textbook-rag-backend/internal/vectorstore/qdrant"
	"textbook-rag-backend/middleware"
	"textbook-rag-backend/routes"
	"textbook-rag-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("textbook-rag-backend")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	registry, cleanup, err := buildProviders(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize AI providers:", err)
	}
	defer cleanup()

	embedder, err := registry.Embedder(cfg.EmbeddingsProvider)
	if err != nil {
		log.Fatal("Embedding provider not configured:", err)
	}
	embedder = ai.NewCachedEmbedder(embedder, rdb, cfg.EmbedCacheTTL, logger.Logger)

	generator, err := registry.Generator(cfg.GenerationProvider)
	if err != nil {
		log.Fatal("Generation provider not configured:", err)
	}

	vectorStore := qdrant.NewStore(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Distance:   cfg.QdrantDistance,
		Timeout:    cfg.QdrantTimeout,
	})

	mappings := store.NewMappingStore(mongoClient, cfg.DBName)
	chunker := services.NewChunker(cfg.MaxChunkTokens, cfg.ChunkOverlapTokens)
	ingestion := services.NewIngestionService(chunker, embedder, vectorStore, mappings, metrics, cfg.IngestBatchSize, logger.Logger)
	retriever := services.NewRetriever(embedder, vectorStore, metrics, cfg.DefaultTopK, float32(cfg.ScoreThreshold), logger.Logger)
	builder := services.NewContextBuilder(cfg.MaxContextTokens)
	assistant := services.NewAssistant(retriever, builder, generator, float32(cfg.Temperature), logger.Logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Tracing())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.Metrics(metrics))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	routes.SetupIngestRoutes(router, ingestion, asynqClient)
	routes.SetupChatRoutes(router, assistant, retriever)

	// Periodic sitemap refresh, when configured.
	var scheduler *crawler.Scheduler
	if cfg.SitemapURL != "" && cfg.SitemapRefreshHours > 0 {
		scheduler = crawler.NewScheduler(logger.Logger)
		err := scheduler.ScheduleRefresh(time.Duration(cfg.SitemapRefreshHours)*time.Hour, func() error {
			task, err := queue.NewSitemapIngestTask(cfg.SitemapURL, "")
			if err != nil {
				return err
			}
			_, err = asynqClient.Enqueue(task)
			return err
		})
		if err != nil {
			logger.Warn("Sitemap refresh not scheduled", "error", err)
		} else {
			scheduler.Start()
			defer scheduler.Stop()
		}
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

// buildProviders registers every provider that has an API key configured.
func buildProviders(ctx context.Context, cfg *config.Config) (*ai.Registry, func(), error) {
	registry := ai.NewRegistry()
	var closers []func()

	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			EmbedModel: cfg.GoogleEmbeddingsModel,
			ChatModel:  cfg.GoogleChatModel,
			Dimension:  cfg.GoogleEmbeddingsDim,
		})
		if err != nil {
			return nil, nil, err
		}
		registry.RegisterEmbedder(gemini)
		registry.RegisterGenerator(gemini)
		closers = append(closers, func() { gemini.Close() })
	}

	if cfg.OpenAIAPIKey != "" {
		openai, err := ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			EmbedModel: cfg.OpenAIEmbeddingsModel,
			ChatModel:  cfg.OpenAIChatModel,
			Dimension:  cfg.OpenAIEmbeddingsDim,
		})
		if err != nil {
			return nil, nil, err
		}
		registry.RegisterEmbedder(openai)
		registry.RegisterGenerator(openai)
	}

	cleanup := func() {
		for _, close := range closers {
			close()
		}
	}
	return registry, cleanup, nil
}
