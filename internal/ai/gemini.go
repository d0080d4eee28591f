package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// GeminiEngine generates tutoring content through the Gemini API. Calls pass
// a client-side rate limiter and a circuit breaker so a degraded upstream
// sheds load instead of queueing it.
type GeminiEngine struct {
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	metrics *telemetry.Metrics
}

func NewGeminiEngine(cfg *config.Config, metrics *telemetry.Metrics) (*GeminiEngine, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if metrics != nil {
				metrics.RecordCircuitBreakerState(name, to.String())
			}
		},
	})

	burst := int(cfg.EngineRateLimit)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.EngineRateLimit), burst)

	return &GeminiEngine{
		client:  client,
		model:   cfg.GeminiModel,
		breaker: breaker,
		limiter: limiter,
		metrics: metrics,
	}, nil
}

func (g *GeminiEngine) Name() string { return "gemini" }

// generate runs one model call through the limiter and breaker and returns
// the concatenated text parts of the response.
func (g *GeminiEngine) generate(ctx context.Context, operation, system, prompt string, temperature float32) (string, error) {
	tracer := otel.Tracer("gemini-engine")
	ctx, span := tracer.Start(ctx, "gemini."+operation)
	defer span.End()

	estimated := estimateTokens(prompt)
	span.SetAttributes(
		attribute.String("gemini.model", g.model),
		attribute.Int("gemini.estimated_tokens", estimated),
	)

	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		model := g.client.GenerativeModel(g.model)
		model.SetTemperature(temperature)
		model.SetMaxOutputTokens(2048)
		if system != "" {
			model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
		}
		return model.GenerateContent(ctx, genai.Text(prompt))
	})
	if err != nil {
		span.SetAttributes(attribute.Bool("gemini.error", true))
		g.record(operation, "error", start, 0)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "", fmt.Errorf("%w: circuit breaker open", ErrEngineUnavailable)
		}
		return "", fmt.Errorf("gemini %s: %w", operation, err)
	}

	resp := result.(*genai.GenerateContentResponse)
	text := responseText(resp)
	if text == "" {
		g.record(operation, "empty", start, 0)
		return "", fmt.Errorf("gemini %s: empty response", operation)
	}

	tokens := extractTokenUsage(resp)
	span.SetAttributes(attribute.Int("gemini.actual_tokens", tokens))
	g.record(operation, "ok", start, int64(tokens))
	return text, nil
}

func (g *GeminiEngine) record(operation, status string, start time.Time, tokens int64) {
	if g.metrics != nil {
		g.metrics.RecordEngineCall("gemini", operation, status, time.Since(start).Seconds(), tokens)
	}
}

func (g *GeminiEngine) GenerateExercise(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
	raw, err := g.generate(ctx, "generate_exercise", systemExercise, exercisePrompt(topic, contextText, difficulty, course), tempExercise)
	if err != nil {
		return nil, err
	}
	return ParseExercisePayload(raw), nil
}

func (g *GeminiEngine) EvaluateSubmission(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
	raw, err := g.generate(ctx, "evaluate_submission", systemEvaluation,
		evaluationPrompt(exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology), tempEvaluation)
	if err != nil {
		return nil, err
	}
	return ParseEvaluation(raw), nil
}

func (g *GeminiEngine) GenerateHint(ctx context.Context, exercise, contextText string) (string, error) {
	return g.generate(ctx, "generate_hint", systemHint, hintPrompt(exercise, contextText), tempHint)
}

func (g *GeminiEngine) GenerateVisualScheme(ctx context.Context, exercise, contextText string) (string, error) {
	return g.generate(ctx, "generate_visual_scheme", systemScheme, schemePrompt(exercise, contextText), tempScheme)
}

func (g *GeminiEngine) ExtractTopics(ctx context.Context, chunks []string, meta SourceMetadata) ([]ExtractedTopic, error) {
	sample := strings.Join(firstN(chunks, topicSampleChunks), "\n\n")
	raw, err := g.generate(ctx, "extract_topics", systemTopics, topicsPrompt(sample, meta), tempTopics)
	if err != nil {
		return nil, err
	}
	return ParseTopics(raw), nil
}

func (g *GeminiEngine) GenerateTopicSummary(ctx context.Context, topic, contextText, course string) (string, error) {
	return g.generate(ctx, "generate_topic_summary", systemSummary, summaryPrompt(topic, contextText, course), tempSummary)
}

// Close releases the underlying API client.
func (g *GeminiEngine) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// responseText concatenates the text parts of a Gemini response.
func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

// extractTokenUsage reads actual token usage from response metadata, falling
// back to a four characters per token estimate.
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	estimated := len(responseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

// estimateTokens roughly sizes a prompt at 4 characters per token.
func estimateTokens(prompt string) int {
	return len(prompt) / 4
}
