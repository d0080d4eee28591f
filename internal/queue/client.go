package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
)

// RedisOpt builds the asynq connection option from the shared Redis
// settings. REDIS_URL may be a full URL (managed providers) or plain
// host:port, same as the cache client.
func RedisOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url for queue: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, nil
}

// Client enqueues background work. It satisfies the services package's
// RefillEnqueuer and IngestEnqueuer interfaces so the service layer never
// sees asynq.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpt asynq.RedisConnOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpt)}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueSourceIngest(ctx context.Context, sourceID string) error {
	task, err := NewSourceIngestTask(sourceID)
	if err != nil {
		return fmt.Errorf("building ingest task: %w", err)
	}
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueueing ingest: %w", err)
	}
	logger.Info("Enqueued source ingestion", "source_id", sourceID, "task_id", info.ID)
	return nil
}

// EnqueueContextPrefetch queues a context warm. Fire and forget: a lost
// warm only costs the first student a cache miss, so failures are logged
// here and never surfaced.
func (c *Client) EnqueueContextPrefetch(ctx context.Context, topicID string) {
	task, err := NewContextPrefetchTask(topicID)
	if err == nil {
		_, err = c.client.EnqueueContext(ctx, task)
	}
	if err != nil {
		logger.Warn("Context prefetch enqueue failed", "topic_id", topicID, "error", err)
	}
}

// EnqueueExerciseRefill queues one pool refill. Same fire-and-forget
// contract as context warms.
func (c *Client) EnqueueExerciseRefill(ctx context.Context, topicID, difficulty, studentID string) {
	task, err := NewExercisePrefetchTask(topicID, difficulty, studentID)
	if err == nil {
		_, err = c.client.EnqueueContext(ctx, task)
	}
	if err != nil {
		logger.Warn("Exercise refill enqueue failed", "topic_id", topicID, "difficulty", difficulty, "error", err)
	}
}

func (c *Client) EnqueueCacheClear(ctx context.Context, pattern string) error {
	task, err := NewCacheClearTask(pattern)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task)
	return err
}
