package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names, entity:verb.
const (
	TaskSourceIngest     = "source:ingest"
	TaskPrefetchContext  = "prefetch:context"
	TaskPrefetchExercise = "prefetch:exercise"
	TaskCacheClear       = "cache:clear"
)

// Queue names in descending strict priority. Ingestion outranks everything:
// a course with no chunks serves nothing.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

type SourceIngestPayload struct {
	SourceID string `json:"source_id"`
}

type ContextPrefetchPayload struct {
	TopicID string `json:"topic_id"`
}

type ExercisePrefetchPayload struct {
	TopicID    string `json:"topic_id"`
	Difficulty string `json:"difficulty"`
	StudentID  string `json:"student_id,omitempty"`
}

type CacheClearPayload struct {
	Pattern string `json:"pattern"`
}

func NewSourceIngestTask(sourceID string) (*asynq.Task, error) {
	payload, err := json.Marshal(SourceIngestPayload{SourceID: sourceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskSourceIngest,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

func NewContextPrefetchTask(topicID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ContextPrefetchPayload{TopicID: topicID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskPrefetchContext,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Minute),
		asynq.Queue(QueueLow),
	), nil
}

func NewExercisePrefetchTask(topicID, difficulty, studentID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ExercisePrefetchPayload{
		TopicID:    topicID,
		Difficulty: difficulty,
		StudentID:  studentID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskPrefetchExercise,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(QueueDefault),
	), nil
}

func NewCacheClearTask(pattern string) (*asynq.Task, error) {
	payload, err := json.Marshal(CacheClearPayload{Pattern: pattern})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TaskCacheClear,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(30*time.Second),
		asynq.Queue(QueueLow),
	), nil
}
