package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/services"
)

// TaskProcessor executes queued work against the service layer.
type TaskProcessor struct {
	sources   *services.SourceService
	contexts  *services.ContextService
	exercises *services.ExerciseService
	cache     services.Cache
	metrics   *telemetry.Metrics
}

func NewTaskProcessor(sources *services.SourceService, contexts *services.ContextService, exercises *services.ExerciseService, cache services.Cache, metrics *telemetry.Metrics) *TaskProcessor {
	return &TaskProcessor{
		sources:   sources,
		contexts:  contexts,
		exercises: exercises,
		cache:     cache,
		metrics:   metrics,
	}
}

// Register wires every handler into the mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSourceIngest, p.HandleSourceIngest)
	mux.HandleFunc(TaskPrefetchContext, p.HandleContextPrefetch)
	mux.HandleFunc(TaskPrefetchExercise, p.HandleExercisePrefetch)
	mux.HandleFunc(TaskCacheClear, p.HandleCacheClear)
}

// HandleSourceIngest runs the ingestion pipeline. A source deleted between
// enqueue and execution is done work, not a failure.
func (p *TaskProcessor) HandleSourceIngest(ctx context.Context, t *asynq.Task) error {
	var payload SourceIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	start := time.Now()
	err := p.sources.Ingest(ctx, payload.SourceID)
	p.record(TaskSourceIngest, err, start)

	if errors.Is(err, services.ErrSourceNotFound) {
		logger.Warn("Ingest target vanished", "source_id", payload.SourceID)
		return fmt.Errorf("source %s gone: %w", payload.SourceID, asynq.SkipRetry)
	}
	return err
}

// HandleContextPrefetch warms the retrieval context a topic's generation
// path will read. Warms are best effort: failures are logged and dropped so
// a cold cache never turns into queue churn.
func (p *TaskProcessor) HandleContextPrefetch(ctx context.Context, t *asynq.Task) error {
	var payload ContextPrefetchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	start := time.Now()
	_, err := p.contexts.GetContextForTopic(ctx, payload.TopicID, services.ContextTopKGeneration)
	p.record(TaskPrefetchContext, err, start)
	if err != nil {
		logger.Warn("Context prefetch failed", "topic_id", payload.TopicID, "error", err)
	}
	return nil
}

// HandleExercisePrefetch tops up one pool slot. Validation failures cannot
// improve on retry; generation failures can.
func (p *TaskProcessor) HandleExercisePrefetch(ctx context.Context, t *asynq.Task) error {
	var payload ExercisePrefetchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	start := time.Now()
	err := p.exercises.RefillPool(ctx, payload.TopicID, payload.Difficulty, payload.StudentID)
	p.record(TaskPrefetchExercise, err, start)

	if errors.Is(err, services.ErrInvalidDifficulty) {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return err
}

// HandleCacheClear wipes one key family.
func (p *TaskProcessor) HandleCacheClear(ctx context.Context, t *asynq.Task) error {
	var payload CacheClearPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	deleted := p.cache.ClearPattern(ctx, payload.Pattern)
	logger.Info("Cache family cleared", "pattern", payload.Pattern, "deleted", deleted)
	return nil
}

func (p *TaskProcessor) record(taskType string, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordTask(taskType, status, time.Since(start).Seconds())
}
