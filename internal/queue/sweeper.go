package queue

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/models"
	"ai-tutor-platform/services"
)

// Sweeper periodically tops up exercise pools that drained between
// sessions, so the first request after a quiet stretch still lands on a
// pool hit instead of a synchronous generation.
type Sweeper struct {
	scheduler *gocron.Scheduler
	contexts  *services.ContextService
	pool      *services.ExercisePool
	client    *Client
	interval  time.Duration
}

// NewSweeper builds a sweeper running every intervalMinutes. A value of 0
// or less disables it.
func NewSweeper(contexts *services.ContextService, pool *services.ExercisePool, client *Client, intervalMinutes int) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Sweeper{
		scheduler: s,
		contexts:  contexts,
		pool:      pool,
		client:    client,
		interval:  time.Duration(intervalMinutes) * time.Minute,
	}
}

func (s *Sweeper) Start() error {
	if s.interval <= 0 {
		logger.Info("Pool sweep disabled")
		return nil
	}
	if _, err := s.scheduler.Every(s.interval).Tag("pool-sweep").Do(s.sweep); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	logger.Info("Pool sweep scheduled", "interval", s.interval.String())
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// sweep queues one refill per under-capacity pool. The refill task
// re-checks capacity before generating, so racing an active session only
// costs a no-op task.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	topics, err := s.contexts.ListTopics(ctx, "")
	if err != nil {
		logger.Warn("Pool sweep could not list topics", "error", err)
		return
	}

	enqueued := 0
	for _, topic := range topics {
		for _, difficulty := range models.Difficulties {
			key := services.PoolKey{Topic: topic.Name, Difficulty: difficulty, Course: topic.Course}
			if s.pool.Size(ctx, key) >= s.pool.Capacity() {
				continue
			}
			s.client.EnqueueExerciseRefill(ctx, topic.ID.Hex(), difficulty, "")
			enqueued++
		}
	}
	if enqueued > 0 {
		logger.Info("Pool sweep queued refills", "count", enqueued)
	}
}
