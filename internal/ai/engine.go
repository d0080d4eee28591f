// Package ai holds the generative engine abstraction and its providers. All
// tutoring content (exercises, evaluations, hints, schemes, summaries, topic
// extraction) flows through one Engine implementation selected at startup.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// ErrEngineUnavailable is returned when the provider is down, rate limited
// or shed by the circuit breaker. Callers translate it to a 502.
var ErrEngineUnavailable = errors.New("ai engine unavailable")

// topicSampleChunks caps how many leading chunks feed a topic-extraction
// prompt. The table of contents sits at the front of a book.
const topicSampleChunks = 10

// firstN returns at most the first n elements of items.
func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// SourceMetadata describes the document a topic-extraction call works on.
type SourceMetadata struct {
	Title   string
	Course  string
	Subject string
}

// ExtractedTopic is one topic proposed by the model for an ingested source.
type ExtractedTopic struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Engine is implemented by every model provider. Implementations must be
// safe for concurrent use; generation calls respect the passed context.
type Engine interface {
	// GenerateExercise produces one exercise for the topic grounded on the
	// retrieved textbook context. It never fails on malformed model output:
	// unparseable responses degrade to a content-only payload.
	GenerateExercise(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error)

	// EvaluateSubmission judges a student answer against the canonical
	// solution and methodology.
	EvaluateSubmission(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error)

	// GenerateHint produces a short textual hint that must not reveal the
	// solution.
	GenerateHint(ctx context.Context, exercise, contextText string) (string, error)

	// GenerateVisualScheme produces a Mermaid diagram guiding the solution
	// structure.
	GenerateVisualScheme(ctx context.Context, exercise, contextText string) (string, error)

	// ExtractTopics proposes the topic list for an ingested source from a
	// sample of its chunks.
	ExtractTopics(ctx context.Context, chunks []string, meta SourceMetadata) ([]ExtractedTopic, error)

	// GenerateTopicSummary produces a Markdown study summary for a topic.
	GenerateTopicSummary(ctx context.Context, topic, contextText, course string) (string, error)

	// Name identifies the provider in logs and metrics.
	Name() string
}

// NewEngine builds the provider selected by ACTIVE_AI_ENGINE.
func NewEngine(cfg *config.Config, metrics *telemetry.Metrics) (Engine, error) {
	switch strings.ToLower(cfg.ActiveEngine) {
	case "gemini":
		return NewGeminiEngine(cfg, metrics)
	case "openai":
		return NewOpenAIEngine("openai", cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, metrics), nil
	case "deepseek":
		// DeepSeek speaks the OpenAI chat completions protocol.
		return NewOpenAIEngine("deepseek", cfg.DeepSeekBaseURL, cfg.DeepSeekAPIKey, cfg.DeepSeekModel, metrics), nil
	case "ollama":
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	default:
		return nil, fmt.Errorf("unsupported engine %q (available: gemini, openai, deepseek, ollama)", cfg.ActiveEngine)
	}
}
