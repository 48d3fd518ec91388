package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"textbook-rag-backend/internal/ai"
	"textbook-rag-backend/internal/config"
	"textbook-rag-backend/internal/crawler"
	"textbook-rag-backend/internal/logger"
	"textbook-rag-backend/internal/queue"
	"textbook-rag-backend/internal/store"
	"textbook-rag-backend/internal/telemetry"
	"textbook-rag-backend/internal/vectorstore/qdrant"
	"textbook-rag-backend/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	var embedder ai.EmbeddingProvider
	switch cfg.EmbeddingsProvider {
	case "openai":
		embedder, err = ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			EmbedModel: cfg.OpenAIEmbeddingsModel,
			ChatModel:  cfg.OpenAIChatModel,
			Dimension:  cfg.OpenAIEmbeddingsDim,
		})
	default:
		var gemini *ai.GeminiProvider
		gemini, err = ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			EmbedModel: cfg.GoogleEmbeddingsModel,
			ChatModel:  cfg.GoogleChatModel,
			Dimension:  cfg.GoogleEmbeddingsDim,
		})
		if gemini != nil {
			defer gemini.Close()
			embedder = gemini
		}
	}
	if err != nil {
		log.Fatal("Failed to initialize embedding provider:", err)
	}
	embedder = ai.NewCachedEmbedder(embedder, rdb, cfg.EmbedCacheTTL, logger.Logger)

	vectorStore := qdrant.NewStore(qdrant.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Distance:   cfg.QdrantDistance,
		Timeout:    cfg.QdrantTimeout,
	})

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to initialize metrics:", err)
	}

	mappings := store.NewMappingStore(mongoClient, cfg.DBName)
	chunker := services.NewChunker(cfg.MaxChunkTokens, cfg.ChunkOverlapTokens)
	ingestion := services.NewIngestionService(chunker, embedder, vectorStore, mappings, metrics, cfg.IngestBatchSize, logger.Logger)
	downloader := crawler.NewDownloader(cfg.ProviderTimeout, logger.Logger)

	processor := queue.NewTaskProcessor(ingestion, downloader, logger.Logger)

	server := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskIngestDocument, processor.HandleDocumentIngest)
	mux.HandleFunc(queue.TaskIngestSitemap, processor.HandleSitemapIngest)

	logger.Info("Worker starting", "concurrency", 10)
	if err := server.Run(mux); err != nil {
		log.Fatal("Worker stopped:", err)
	}
}
