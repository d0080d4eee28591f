package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/embeddings"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/queue"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/middleware"
	"ai-tutor-platform/routes"
	"ai-tutor-platform/services"
	"ai-tutor-platform/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.GinMode == "release" && cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set in release mode")
	}

	shutdownTracer, err := telemetry.InitTracer("ai-tutor-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
		shutdownTracer = func() {}
	}
	defer shutdownTracer()

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
	db := mongoClient.Database(cfg.DBName)

	if cfg.VectorSearchEnabled {
		if err := config.EnsureVectorSearchIndex(mongoClient, cfg); err != nil {
			logger.Warn("Vector search index unavailable, retrieval will use the scan fallback", "error", err)
		}
	}

	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	embedder, err := embeddings.Get(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	engine, err := ai.NewEngine(cfg, metrics)
	if err != nil {
		log.Fatal("Failed to initialize AI engine:", err)
	}
	if closer, ok := engine.(interface{ Close() error }); ok {
		defer closer.Close()
	}
	logger.Info("AI engine ready", "engine", engine.Name())

	redisOpt, err := queue.RedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build queue Redis options:", err)
	}
	taskClient := queue.NewClient(redisOpt)
	defer taskClient.Close()

	// Service graph. The retriever doubles as the chunk store for
	// ingestion; the context service doubles as the derived-cache owner.
	cache := services.NewRedisCache(rdb, metrics)
	retriever := services.NewRetriever(db, embedder, cfg, metrics)
	contexts := services.NewContextService(db, retriever, engine, cache, cfg)
	pool := services.NewExercisePool(rdb, cfg.PoolSize, time.Duration(cfg.PoolTTL)*time.Second, metrics)
	exerciseStore := services.NewMongoExerciseStore(db)
	quota := ai.NewQuotaKeeper(db, cfg.DailyGenerationLimit)
	exercises := services.NewExerciseService(exerciseStore, pool, contexts, engine, cache, quota, taskClient, cfg, metrics)
	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	sources := services.NewSourceService(db, retriever, chunker, services.NewPDFExtractor(), services.NewWebExtractor(cfg), engine, contexts, taskClient, metrics)
	exports := services.NewExportService(db)

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Tracing())
	router.Use(middleware.Metrics(metrics))
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxFileSize))
	router.Use(middleware.RateLimit(rdb, cfg))

	// Liveness: Mongo down means the platform cannot serve; Redis down is
	// degraded but survivable (caches always-miss, pools always-empty).
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := utils.WithShortTimeout(c.Request.Context())
		defer cancel()

		health := gin.H{"status": "healthy", "timestamp": time.Now()}
		status := http.StatusOK
		if err := mongoClient.Ping(ctx, nil); err != nil {
			health["status"] = "unhealthy"
			health["mongo"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else if err := rdb.Ping(ctx).Err(); err != nil {
			health["status"] = "degraded"
			health["redis"] = "unreachable"
		}
		c.JSON(status, health)
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	routes.SetupPracticeRoutes(router, cfg, rdb, exercises, contexts, quota, taskClient, authMiddleware)
	routes.SetupTopicRoutes(router, contexts, authMiddleware)
	routes.SetupSourceRoutes(router, cfg, sources)
	routes.SetupExportRoutes(router, cfg, exports)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("API server exited")
}
