package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port            string
	GinMode         string
	CORSOrigins     []string
	JWTSecret       string
	OperatorKeyHash string // bcrypt hash guarding ingestion/export endpoints
	RateLimitReqs   int
	RateLimitWindow int
	GenLimitReqs    int // tighter window for generation-capable endpoints
	GenLimitWindow  int
	MaxFileSize     int64
	FileStorageDir  string

	// Mongo
	MongoURI string
	DBName   string

	// Atlas vector search over the chunks collection. When disabled the
	// retrieval engine falls back to an exact aggregation scan.
	VectorSearchEnabled bool
	VectorIndexName     string
	VectorDimensions    int

	// Redis
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Generative engine selection: gemini, openai, deepseek or ollama.
	ActiveEngine string

	GeminiAPIKey string
	GeminiModel  string

	GoogleEmbeddingsModel string
	EmbedCacheSize        int
	EmbedBatchSize        int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	DeepSeekModel   string

	OllamaBaseURL string
	OllamaModel   string

	// Client-side timeout for one synchronous generation call, seconds.
	GenerationTimeout int
	// Engine requests per second allowed by the client-side limiter.
	EngineRateLimit float64
	// Per-student daily cap on synchronous generation calls. 0 disables.
	DailyGenerationLimit int

	// Chunking
	MaxChunkSize int
	ChunkOverlap int

	// Web ingestion
	CrawlMaxPages int
	CrawlTimeout  int // seconds per fetched page
	CrawlRenderJS bool

	// Exercise pool
	PoolSize       int
	PoolTTL        int // seconds
	RefillAttempts int

	// Cache TTLs, seconds
	ContextTTL int
	SummaryTTL int
	HintTTL    int

	// Prefetch scope on session entry
	PrefetchContextTopics  int
	PrefetchExerciseTopics int

	// Worker
	WorkerConcurrency int
	SweepInterval     int // minutes between pool sweeps, 0 disables
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "debug"),
		CORSOrigins:     strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		OperatorKeyHash: getEnv("OPERATOR_KEY_HASH", ""),
		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),
		GenLimitReqs:    getEnvInt("GEN_RATE_LIMIT_REQUESTS", 20),
		GenLimitWindow:  getEnvInt("GEN_RATE_LIMIT_WINDOW", 60),
		MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB upload ceiling
		FileStorageDir:  getEnv("FILE_STORAGE_DIR", "./storage"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/ai_tutor"),
		DBName:   getEnv("DB_NAME", "ai_tutor"),

		VectorSearchEnabled: getEnvBool("MONGODB_VECTOR_ENABLED", false),
		VectorIndexName:     getEnv("MONGODB_VECTOR_INDEX", "chunks_vector"),
		VectorDimensions:    getEnvInt("VECTOR_DIM", 768),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ActiveEngine: getEnv("ACTIVE_AI_ENGINE", "gemini"),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		EmbedCacheSize:        getEnvInt("EMBED_CACHE_SIZE", 5000),
		EmbedBatchSize:        getEnvInt("EMBED_BATCH_SIZE", 32),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		DeepSeekAPIKey:  getEnv("DEEPSEEK_API_KEY", ""),
		DeepSeekBaseURL: getEnv("DEEPSEEK_BASE_URL", "https://api.deepseek.com/v1"),
		DeepSeekModel:   getEnv("DEEPSEEK_MODEL", "deepseek-chat"),

		OllamaBaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:   getEnv("OLLAMA_MODEL", "llama3"),

		GenerationTimeout:    getEnvInt("GENERATION_TIMEOUT", 60),
		EngineRateLimit:      getEnvFloat64("ENGINE_RATE_LIMIT", 2.0),
		DailyGenerationLimit: getEnvInt("DAILY_GENERATION_LIMIT", 0),

		MaxChunkSize: getEnvInt("MAX_CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 10),
		CrawlTimeout:  getEnvInt("CRAWL_TIMEOUT", 60),
		CrawlRenderJS: getEnvBool("CRAWL_RENDER_JS", false),

		PoolSize:       getEnvInt("EXERCISE_POOL_SIZE", 5),
		PoolTTL:        getEnvInt("EXERCISE_POOL_TTL", 86400),
		RefillAttempts: getEnvInt("POOL_REFILL_ATTEMPTS", 3),

		ContextTTL: getEnvInt("CONTEXT_CACHE_TTL", 86400),
		SummaryTTL: getEnvInt("SUMMARY_CACHE_TTL", 86400),
		HintTTL:    getEnvInt("HINT_CACHE_TTL", 3600),

		PrefetchContextTopics:  getEnvInt("PREFETCH_CONTEXT_TOPICS", 3),
		PrefetchExerciseTopics: getEnvInt("PREFETCH_EXERCISE_TOPICS", 2),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 20),
		SweepInterval:     getEnvInt("POOL_SWEEP_INTERVAL", 30),
	}

	// JWT_SECRET is deliberately not validated here: the worker never
	// verifies tokens, and the API server enforces it in release mode.

	// Embeddings always go through the Google model, regardless of the
	// active generation engine.
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	switch cfg.ActiveEngine {
	case "gemini", "ollama":
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when ACTIVE_AI_ENGINE=openai")
		}
	case "deepseek":
		if cfg.DeepSeekAPIKey == "" {
			return nil, fmt.Errorf("DEEPSEEK_API_KEY is required when ACTIVE_AI_ENGINE=deepseek")
		}
	default:
		return nil, fmt.Errorf("unsupported ACTIVE_AI_ENGINE: %s", cfg.ActiveEngine)
	}

	if cfg.VectorDimensions <= 0 {
		return nil, fmt.Errorf("VECTOR_DIM must be positive")
	}

	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("EXERCISE_POOL_SIZE must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
