package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// MongoDB (document metadata and chunk-to-point mappings)
	MongoURI string
	DBName   string

	// Redis (embedding cache and asynq backing store)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Qdrant vector store
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string
	QdrantDistance   string
	QdrantTimeout    time.Duration

	// Embedding providers
	EmbeddingsProvider    string // "google" (default), "openai"
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g. "text-embedding-004"
	GoogleEmbeddingsDim   int
	OpenAIAPIKey          string
	OpenAIEmbeddingsModel string
	OpenAIEmbeddingsDim   int

	// Generation providers
	GenerationProvider string // "google" (default), "openai"
	GoogleChatModel    string
	OpenAIChatModel    string
	Temperature        float64
	ProviderTimeout    time.Duration

	// Chunking
	MaxChunkTokens     int
	ChunkOverlapTokens int

	// Retrieval and context assembly
	DefaultTopK      int
	ScoreThreshold   float64
	MaxContextTokens int
	IngestBatchSize  int

	// Embedding cache
	EmbedCacheTTL time.Duration

	// Sitemap ingestion
	SitemapURL          string
	SitemapRefreshHours int
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/textbook_rag"),
		DBName:   getEnv("DB_NAME", "textbook_rag"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "textbook_content"),
		QdrantDistance:   getEnv("QDRANT_DISTANCE", "Cosine"),
		QdrantTimeout:    time.Duration(getEnvInt("QDRANT_TIMEOUT_SECONDS", 15)) * time.Second,

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GoogleEmbeddingsDim:   getEnvInt("GOOGLE_EMBEDDINGS_DIM", 768),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),
		OpenAIEmbeddingsDim:   getEnvInt("OPENAI_EMBEDDINGS_DIM", 1536),

		GenerationProvider: getEnv("GENERATION_PROVIDER", "google"),
		GoogleChatModel:    getEnv("GOOGLE_CHAT_MODEL", "gemini-2.0-flash"),
		OpenAIChatModel:    getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		Temperature:        getEnvFloat64("GENERATION_TEMPERATURE", 0.7),
		ProviderTimeout:    time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,

		MaxChunkTokens:     getEnvInt("MAX_CHUNK_TOKENS", 500),
		ChunkOverlapTokens: getEnvInt("CHUNK_OVERLAP_TOKENS", 60),

		DefaultTopK:      getEnvInt("DEFAULT_TOP_K", 5),
		ScoreThreshold:   getEnvFloat64("SCORE_THRESHOLD", 0),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 2000),
		IngestBatchSize:  getEnvInt("INGEST_BATCH_SIZE", 10),

		EmbedCacheTTL: time.Duration(getEnvInt("EMBED_CACHE_TTL_HOURS", 24)) * time.Hour,

		SitemapURL:          getEnv("SITEMAP_URL", ""),
		SitemapRefreshHours: getEnvInt("SITEMAP_REFRESH_HOURS", 0),
	}

	// At least one embedding backend must be configured
	if cfg.GeminiAPIKey == "" && cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("no provider configured - set GEMINI_API_KEY or OPENAI_API_KEY in .env file")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
