package ai

import (
	"encoding/json"
	"strings"

	"ai-tutor-platform/models"
)

// stripCodeFences extracts the body of the first markdown code fence, if
// any. Models routinely wrap JSON in ```json blocks despite instructions.
func stripCodeFences(s string) string {
	if _, after, found := strings.Cut(s, "```json"); found {
		if body, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(body)
		}
		return strings.TrimSpace(after)
	}
	if _, after, found := strings.Cut(s, "```"); found {
		if body, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(body)
		}
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(s)
}

// ParseExercisePayload decodes a model response into an exercise payload.
// Responses without valid JSON degrade to a content-only payload carrying
// the raw text, so generation never fails on format drift.
func ParseExercisePayload(raw string) *models.ExercisePayload {
	body := stripCodeFences(raw)
	var p models.ExercisePayload
	if err := json.Unmarshal([]byte(body), &p); err == nil && p.Content != "" {
		return &p
	}
	return &models.ExercisePayload{Content: body}
}

// ParseEvaluation decodes an evaluation response. Malformed responses become
// a failed evaluation whose feedback carries the raw text so the student
// still sees what the model said.
func ParseEvaluation(raw string) *models.Evaluation {
	body := stripCodeFences(raw)
	var ev models.Evaluation
	if err := json.Unmarshal([]byte(body), &ev); err == nil && ev.Feedback != "" {
		return &ev
	}
	return &models.Evaluation{
		ErrorsFound: []string{"Error al evaluar"},
		Feedback:    body,
	}
}

type topicsResponse struct {
	Topics []ExtractedTopic `json:"topics"`
}

// ParseTopics decodes a topic-extraction response, dropping entries without
// a name. Malformed responses yield an empty list.
func ParseTopics(raw string) []ExtractedTopic {
	body := stripCodeFences(raw)
	var tr topicsResponse
	if err := json.Unmarshal([]byte(body), &tr); err != nil {
		return nil
	}
	var topics []ExtractedTopic
	for _, t := range tr.Topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
