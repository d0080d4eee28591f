package main

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/embeddings"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/queue"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer("ai-tutor-worker")
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

	// Same service graph as the API server; only the entry points differ.
	// Worker-side refills pass no student id, so the quota keeper never
	// fires on this path.
	cache := services.NewRedisCache(rdb, metrics)
	retriever := services.NewRetriever(db, embedder, cfg, metrics)
	contexts := services.NewContextService(db, retriever, engine, cache, cfg)
	pool := services.NewExercisePool(rdb, cfg.PoolSize, time.Duration(cfg.PoolTTL)*time.Second, metrics)
	exerciseStore := services.NewMongoExerciseStore(db)
	quota := ai.NewQuotaKeeper(db, cfg.DailyGenerationLimit)
	exercises := services.NewExerciseService(exerciseStore, pool, contexts, engine, cache, quota, taskClient, cfg, metrics)
	chunker := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	sources := services.NewSourceService(db, retriever, chunker, services.NewPDFExtractor(), services.NewWebExtractor(cfg), engine, contexts, taskClient, metrics)

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 20
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				queue.QueueCritical: 6,
				queue.QueueDefault:  3,
				queue.QueueLow:      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(sources, contexts, exercises, cache, metrics)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	sweeper := queue.NewSweeper(contexts, pool, taskClient, cfg.SweepInterval)
	if err := sweeper.Start(); err != nil {
		log.Fatal("Failed to schedule pool sweep:", err)
	}
	defer sweeper.Stop()

	logger.Info("Worker starting",
		"concurrency", concurrency,
		"queues", "critical(6) default(3) low(1)",
		"sweep_interval_min", cfg.SweepInterval,
	)

	// Run blocks until SIGTERM/SIGINT and drains in-flight tasks.
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
