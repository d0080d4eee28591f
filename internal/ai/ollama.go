package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ai-tutor-platform/models"
)

// OllamaEngine runs generation against a local Ollama server. Meant for
// development and offline classrooms; no breaker or metrics around it.
type OllamaEngine struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewOllamaEngine(baseURL, model string) *OllamaEngine {
	return &OllamaEngine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

func (e *OllamaEngine) Name() string { return "ollama" }

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// generate calls POST /api/generate with a single combined prompt. The
// generate endpoint has no system role, so the persona is prepended.
func (e *OllamaEngine) generate(ctx context.Context, system, prompt string, temperature float32) (string, error) {
	full := prompt
	if system != "" {
		full = system + "\n\n" + prompt
	}
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   e.model,
		Prompt:  full,
		Stream:  false,
		Options: ollamaOptions{Temperature: temperature},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama generate: unexpected status %d", resp.StatusCode)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding generate response: %w", err)
	}
	return result.Response, nil
}

func (e *OllamaEngine) GenerateExercise(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
	// Local models handle shorter contexts better.
	if len(contextText) > 1000 {
		contextText = strings.ToValidUTF8(contextText[:1000], "")
	}
	raw, err := e.generate(ctx, systemExercise, exercisePrompt(topic, contextText, difficulty, course), tempExercise)
	if err != nil {
		return nil, err
	}
	return ParseExercisePayload(raw), nil
}

func (e *OllamaEngine) EvaluateSubmission(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
	raw, err := e.generate(ctx, systemEvaluation,
		evaluationPrompt(exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology), tempEvaluation)
	if err != nil {
		return nil, err
	}
	return ParseEvaluation(raw), nil
}

func (e *OllamaEngine) GenerateHint(ctx context.Context, exercise, contextText string) (string, error) {
	return e.generate(ctx, systemHint, hintPrompt(exercise, contextText), tempHint)
}

func (e *OllamaEngine) GenerateVisualScheme(ctx context.Context, exercise, contextText string) (string, error) {
	return e.generate(ctx, systemScheme, schemePrompt(exercise, contextText), tempScheme)
}

func (e *OllamaEngine) ExtractTopics(ctx context.Context, chunks []string, meta SourceMetadata) ([]ExtractedTopic, error) {
	sample := strings.Join(firstN(chunks, topicSampleChunks), "\n\n")
	raw, err := e.generate(ctx, systemTopics, topicsPrompt(sample, meta), tempTopics)
	if err != nil {
		return nil, err
	}
	return ParseTopics(raw), nil
}

func (e *OllamaEngine) GenerateTopicSummary(ctx context.Context, topic, contextText, course string) (string, error) {
	return e.generate(ctx, systemSummary, summaryPrompt(topic, contextText, course), tempSummary)
}
