package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	EngineCalls         metric.Int64Counter
	EngineDuration      metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	CacheLookups        metric.Int64Counter
	PoolOperations      metric.Int64Counter
	EmbeddingDuration   metric.Float64Histogram
	IngestDuration      metric.Float64Histogram
	TaskDuration        metric.Float64Histogram
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("ai-tutor-platform")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	engineCalls, err := meter.Int64Counter(
		"engine.calls.total",
		metric.WithDescription("Total generative engine calls"),
	)
	if err != nil {
		return nil, err
	}

	engineDuration, err := meter.Float64Histogram(
		"engine.call.duration",
		metric.WithDescription("Generative engine call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"engine.tokens.used",
		metric.WithDescription("Estimated engine tokens used"),
	)
	if err != nil {
		return nil, err
	}

	cacheLookups, err := meter.Int64Counter(
		"cache.lookups.total",
		metric.WithDescription("Cache lookups by cache name and result"),
	)
	if err != nil {
		return nil, err
	}

	poolOperations, err := meter.Int64Counter(
		"pool.operations.total",
		metric.WithDescription("Exercise pool takes and adds by result"),
	)
	if err != nil {
		return nil, err
	}

	embeddingDuration, err := meter.Float64Histogram(
		"embeddings.duration",
		metric.WithDescription("Embedding call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"source.processing.duration",
		metric.WithDescription("Source ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	taskDuration, err := meter.Float64Histogram(
		"task.duration",
		metric.WithDescription("Background task duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		EngineCalls:         engineCalls,
		EngineDuration:      engineDuration,
		TokensUsed:          tokensUsed,
		CacheLookups:        cacheLookups,
		PoolOperations:      poolOperations,
		EmbeddingDuration:   embeddingDuration,
		IngestDuration:      ingestDuration,
		TaskDuration:        taskDuration,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordEngineCall records one generative engine invocation
func (m *Metrics) RecordEngineCall(provider, operation, status string, duration float64, tokens int64) {
	attrs := []attribute.KeyValue{
		attribute.String("engine.provider", provider),
		attribute.String("engine.operation", operation),
		attribute.String("engine.status", status),
	}

	m.EngineCalls.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.EngineDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
	if tokens > 0 {
		m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(
			attribute.String("engine.provider", provider),
		))
	}
}

// RecordCacheLookup records a hit or miss against a named cache
func (m *Metrics) RecordCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	attrs := []attribute.KeyValue{
		attribute.String("cache.name", cache),
		attribute.String("cache.result", result),
	}

	m.CacheLookups.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordPoolOperation records a take or add against the exercise pool
func (m *Metrics) RecordPoolOperation(op, result string) {
	attrs := []attribute.KeyValue{
		attribute.String("pool.op", op),
		attribute.String("pool.result", result),
	}

	m.PoolOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordEmbedding records an embedding model call
func (m *Metrics) RecordEmbedding(duration float64, batch bool) {
	attrs := []attribute.KeyValue{
		attribute.Bool("embeddings.batch", batch),
	}

	m.EmbeddingDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordIngest records source ingestion metrics
func (m *Metrics) RecordIngest(kind, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("source.kind", kind),
		attribute.String("source.status", status),
	}

	m.IngestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTask records background task metrics
func (m *Metrics) RecordTask(taskType, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("task.type", taskType),
		attribute.String("task.status", status),
	}

	m.TaskDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
