package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/models"
)

// stubCache is an in-memory Cache for service tests.
type stubCache struct {
	values  map[string]string
	cleared []string
}

func newStubCache() *stubCache {
	return &stubCache{values: map[string]string{}}
}

func (c *stubCache) GetString(ctx context.Context, key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *stubCache) SetString(ctx context.Context, key, value string, ttl time.Duration) {
	c.values[key] = value
}

func (c *stubCache) Delete(ctx context.Context, keys ...string) {
	for _, k := range keys {
		delete(c.values, k)
	}
}

func (c *stubCache) ClearPattern(ctx context.Context, pattern string) int {
	c.cleared = append(c.cleared, pattern)
	return 0
}

func (c *stubCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(ctx context.Context) (string, error)) (string, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}
	v, err := compute(ctx)
	if err != nil {
		return "", err
	}
	c.values[key] = v
	return v, nil
}

// stubRetriever fakes the retrieval engine.
type stubRetriever struct {
	calls   int
	results []models.ScoredChunk
	err     error
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string, topK int, sourceID string) ([]models.ScoredChunk, error) {
	r.calls++
	return r.results, r.err
}

// mockEngine implements ai.Engine with pluggable behavior per method.
type mockEngine struct {
	generateExercise func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error)
	evaluate         func(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error)
	hint             func(ctx context.Context, exercise, contextText string) (string, error)
	scheme           func(ctx context.Context, exercise, contextText string) (string, error)
	extractTopics    func(ctx context.Context, chunks []string, meta ai.SourceMetadata) ([]ai.ExtractedTopic, error)
	summary          func(ctx context.Context, topic, contextText, course string) (string, error)
}

func (m *mockEngine) GenerateExercise(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
	if m.generateExercise == nil {
		return &models.ExercisePayload{Content: "ejercicio de " + topic}, nil
	}
	return m.generateExercise(ctx, topic, contextText, difficulty, course)
}

func (m *mockEngine) EvaluateSubmission(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
	if m.evaluate == nil {
		return &models.Evaluation{Feedback: "ok"}, nil
	}
	return m.evaluate(ctx, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology)
}

func (m *mockEngine) GenerateHint(ctx context.Context, exercise, contextText string) (string, error) {
	if m.hint == nil {
		return "pista", nil
	}
	return m.hint(ctx, exercise, contextText)
}

func (m *mockEngine) GenerateVisualScheme(ctx context.Context, exercise, contextText string) (string, error) {
	if m.scheme == nil {
		return "flowchart TD", nil
	}
	return m.scheme(ctx, exercise, contextText)
}

func (m *mockEngine) ExtractTopics(ctx context.Context, chunks []string, meta ai.SourceMetadata) ([]ai.ExtractedTopic, error) {
	if m.extractTopics == nil {
		return nil, nil
	}
	return m.extractTopics(ctx, chunks, meta)
}

func (m *mockEngine) GenerateTopicSummary(ctx context.Context, topic, contextText, course string) (string, error) {
	if m.summary == nil {
		return "resumen", nil
	}
	return m.summary(ctx, topic, contextText, course)
}

func (m *mockEngine) Name() string { return "mock" }

func contextCacheKey(topicID string, topK int) string {
	return CacheKey(CachePrefixContext, map[string]string{
		"topic_id": topicID,
		"top_k":    strconv.Itoa(topK),
	})
}

func TestGetContextForTopic_CachedValueSkipsRetrieval(t *testing.T) {
	cache := newStubCache()
	cache.values[contextCacheKey("64f000000000000000000001", 2)] = "contexto cacheado"
	retriever := &stubRetriever{}

	svc := &ContextService{retriever: retriever, cache: cache, cfg: &config.Config{}}

	got, err := svc.GetContextForTopic(context.Background(), "64f000000000000000000001", 2)
	if err != nil {
		t.Fatalf("GetContextForTopic: %v", err)
	}
	if got != "contexto cacheado" {
		t.Errorf("context = %q", got)
	}
	if retriever.calls != 0 {
		t.Errorf("retriever called %d times on a cache hit", retriever.calls)
	}
}

func TestGetContextForTopic_MalformedIDYieldsEmpty(t *testing.T) {
	svc := &ContextService{retriever: &stubRetriever{}, cache: newStubCache(), cfg: &config.Config{}}

	got, err := svc.GetContextForTopic(context.Background(), "no-es-un-objectid", 2)
	if err != nil {
		t.Fatalf("GetContextForTopic: %v", err)
	}
	if got != "" {
		t.Errorf("context = %q, want empty for unknown topic", got)
	}
}

func TestGetTopicSummary_CachedSkipsEngine(t *testing.T) {
	cache := newStubCache()
	key := CacheKey(CachePrefixSummary, map[string]string{"topic_id": "64f000000000000000000002"})
	cache.values[key] = "# Resumen"

	engineCalls := 0
	engine := &mockEngine{summary: func(ctx context.Context, topic, contextText, course string) (string, error) {
		engineCalls++
		return "", errors.New("should not be called")
	}}

	svc := &ContextService{engine: engine, cache: cache, cfg: &config.Config{}}

	got, err := svc.GetTopicSummary(context.Background(), "64f000000000000000000002")
	if err != nil {
		t.Fatalf("GetTopicSummary: %v", err)
	}
	if got != "# Resumen" {
		t.Errorf("summary = %q", got)
	}
	if engineCalls != 0 {
		t.Errorf("engine called %d times on a cache hit", engineCalls)
	}
}

func TestClearDerivedCaches_CoversContextAndSummaries(t *testing.T) {
	cache := newStubCache()
	svc := &ContextService{cache: cache, cfg: &config.Config{}}

	svc.ClearDerivedCaches(context.Background())

	if len(cache.cleared) != 2 {
		t.Fatalf("patterns cleared = %v", cache.cleared)
	}
	if cache.cleared[0] != "context:*" || cache.cleared[1] != "summary:*" {
		t.Errorf("patterns = %v, want context:* and summary:*", cache.cleared)
	}
}
