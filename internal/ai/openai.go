package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// OpenAIEngine speaks the OpenAI chat completions protocol. DeepSeek exposes
// the same protocol, so one implementation covers both behind a base URL.
type OpenAIEngine struct {
	name       string
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	metrics    *telemetry.Metrics
}

func NewOpenAIEngine(name, baseURL, apiKey, model string, metrics *telemetry.Metrics) *OpenAIEngine {
	return &OpenAIEngine{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		metrics:    metrics,
	}
}

func (e *OpenAIEngine) Name() string { return e.name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// chat runs one chat completion and returns the first choice's content.
func (e *OpenAIEngine) chat(ctx context.Context, operation, system, prompt string, temperature float32) (string, error) {
	start := time.Now()
	body, err := json.Marshal(chatCompletionRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.record(operation, "error", start, 0)
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.record(operation, "error", start, 0)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", fmt.Errorf("%w: status %d", ErrEngineUnavailable, resp.StatusCode)
		}
		return "", fmt.Errorf("%s chat: unexpected status %d", e.name, resp.StatusCode)
	}

	var result chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		e.record(operation, "error", start, 0)
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		e.record(operation, "empty", start, 0)
		return "", fmt.Errorf("%s chat: empty response", e.name)
	}

	e.record(operation, "ok", start, result.Usage.TotalTokens)
	return result.Choices[0].Message.Content, nil
}

func (e *OpenAIEngine) record(operation, status string, start time.Time, tokens int64) {
	if e.metrics != nil {
		e.metrics.RecordEngineCall(e.name, operation, status, time.Since(start).Seconds(), tokens)
	}
}

func (e *OpenAIEngine) GenerateExercise(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
	raw, err := e.chat(ctx, "generate_exercise", systemExercise, exercisePrompt(topic, contextText, difficulty, course), tempExercise)
	if err != nil {
		return nil, err
	}
	return ParseExercisePayload(raw), nil
}

func (e *OpenAIEngine) EvaluateSubmission(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
	raw, err := e.chat(ctx, "evaluate_submission", systemEvaluation,
		evaluationPrompt(exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology), tempEvaluation)
	if err != nil {
		return nil, err
	}
	return ParseEvaluation(raw), nil
}

func (e *OpenAIEngine) GenerateHint(ctx context.Context, exercise, contextText string) (string, error) {
	return e.chat(ctx, "generate_hint", systemHint, hintPrompt(exercise, contextText), tempHint)
}

func (e *OpenAIEngine) GenerateVisualScheme(ctx context.Context, exercise, contextText string) (string, error) {
	return e.chat(ctx, "generate_visual_scheme", systemScheme, schemePrompt(exercise, contextText), tempScheme)
}

func (e *OpenAIEngine) ExtractTopics(ctx context.Context, chunks []string, meta SourceMetadata) ([]ExtractedTopic, error) {
	sample := strings.Join(firstN(chunks, topicSampleChunks), "\n\n")
	raw, err := e.chat(ctx, "extract_topics", systemTopics, topicsPrompt(sample, meta), tempTopics)
	if err != nil {
		return nil, err
	}
	return ParseTopics(raw), nil
}

func (e *OpenAIEngine) GenerateTopicSummary(ctx context.Context, topic, contextText, course string) (string, error) {
	return e.chat(ctx, "generate_topic_summary", systemSummary, summaryPrompt(topic, contextText, course), tempSummary)
}
