package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	RequestCounter    metric.Int64Counter
	RequestDuration   metric.Float64Histogram
	ChunksIndexed     metric.Int64Counter
	ChunksFailed      metric.Int64Counter
	EmbeddingCalls    metric.Int64Counter
	RetrievalDuration metric.Float64Histogram
	GenerationCalls   metric.Int64Counter
}

// InitMetrics initializes all pipeline metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("textbook-rag-backend")

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

	chunksIndexed, err := meter.Int64Counter(
		"ingest.chunks.indexed",
		metric.WithDescription("Chunks successfully embedded and upserted"),
	)
	if err != nil {
		return nil, err
	}

	chunksFailed, err := meter.Int64Counter(
		"ingest.chunks.failed",
		metric.WithDescription("Chunks skipped due to embedding or upsert failure"),
	)
	if err != nil {
		return nil, err
	}

	embeddingCalls, err := meter.Int64Counter(
		"embedding.calls.total",
		metric.WithDescription("Embedding provider round-trips"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"retrieval.duration",
		metric.WithDescription("Vector search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	generationCalls, err := meter.Int64Counter(
		"generation.calls.total",
		metric.WithDescription("Generation provider round-trips"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:    requestCounter,
		RequestDuration:   requestDuration,
		ChunksIndexed:     chunksIndexed,
		ChunksFailed:      chunksFailed,
		EmbeddingCalls:    embeddingCalls,
		RetrievalDuration: retrievalDuration,
		GenerationCalls:   generationCalls,
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

// RecordIngest records per-run ingestion outcomes
func (m *Metrics) RecordIngest(indexed, failed int64, provider string) {
	attrs := []attribute.KeyValue{
		attribute.String("embedding.provider", provider),
	}

	m.ChunksIndexed.Add(context.Background(), indexed, metric.WithAttributes(attrs...))
	m.ChunksFailed.Add(context.Background(), failed, metric.WithAttributes(attrs...))
}

// RecordEmbeddingCall counts one provider round-trip
func (m *Metrics) RecordEmbeddingCall(provider, intent string) {
	m.EmbeddingCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("embedding.provider", provider),
		attribute.String("embedding.intent", intent),
	))
}

// RecordRetrieval records a vector search
func (m *Metrics) RecordRetrieval(duration float64, results int) {
	m.RetrievalDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.Int("retrieval.results", results),
	))
}

// RecordGeneration counts one generation round-trip
func (m *Metrics) RecordGeneration(provider, status string) {
	m.GenerationCalls.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("generation.provider", provider),
		attribute.String("generation.status", status),
	))
}
