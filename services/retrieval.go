package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/embeddings"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// defaultTopK is how many chunks a retrieval returns when the caller does
// not say otherwise.
const defaultTopK = 3

// Retriever embeds chunks into the "chunks" collection and answers
// similarity queries over them. With Atlas vector search enabled it runs a
// $vectorSearch aggregation; otherwise it falls back to an exact in-process
// cosine scan, which is fine at single-course corpus sizes.
type Retriever struct {
	chunks   *mongo.Collection
	embedder embeddings.Embedder
	cfg      *config.Config
	metrics  *telemetry.Metrics
}

func NewRetriever(db *mongo.Database, embedder embeddings.Embedder, cfg *config.Config, metrics *telemetry.Metrics) *Retriever {
	return &Retriever{
		chunks:   db.Collection("chunks"),
		embedder: embedder,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// StoreChunks embeds and persists chunks for one source, in embedder-sized
// batches so a long document neither blows the API limit nor holds every
// vector in memory at once. Returns how many chunks were stored; on error
// the count covers the batches committed before the failure.
func (r *Retriever) StoreChunks(ctx context.Context, sourceID string, chunks []models.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	batchSize := r.cfg.EmbedBatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	stored := 0
	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, ch := range batch {
			texts[i] = ch.Text
		}

		embedStart := time.Now()
		vectors, err := r.embedder.EmbedBatch(ctx, texts)
		r.recordEmbedding(time.Since(embedStart), true)
		if err != nil {
			return stored, fmt.Errorf("embedding batch at chunk %d: %w", start, err)
		}

		docs := make([]interface{}, len(batch))
		now := time.Now()
		for i, ch := range batch {
			if len(vectors[i]) != r.embedder.Dimensions() {
				return stored, fmt.Errorf("chunk %d: %w: got %d, want %d",
					start+i, embeddings.ErrDimensionMismatch, len(vectors[i]), r.embedder.Dimensions())
			}
			ch.SourceID = sourceID
			ch.Embedding = vectors[i]
			ch.CreatedAt = now
			docs[i] = ch
		}

		if _, err := r.chunks.InsertMany(ctx, docs); err != nil {
			return stored, fmt.Errorf("storing chunk batch at %d: %w", start, err)
		}
		stored += len(docs)
	}

	logger.Info("Stored source chunks", "source_id", sourceID, "count", stored)
	return stored, nil
}

// Retrieve returns the topK chunks most similar to query, optionally scoped
// to a single source. Results come back in descending score order.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, sourceID string) ([]models.ScoredChunk, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	embedStart := time.Now()
	queryVec, err := r.embedder.Embed(ctx, query)
	r.recordEmbedding(time.Since(embedStart), false)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if r.cfg.VectorSearchEnabled {
		results, err := r.vectorSearch(ctx, queryVec, topK, sourceID)
		if err == nil {
			return results, nil
		}
		// A missing or misnamed Atlas index should degrade retrieval
		// quality, not take practice sessions down.
		logger.Warn("Vector search failed, falling back to exact scan", "error", err)
	}

	return r.exactScan(ctx, queryVec, topK, sourceID)
}

// DeleteSourceChunks removes every chunk belonging to sourceID.
func (r *Retriever) DeleteSourceChunks(ctx context.Context, sourceID string) (int64, error) {
	res, err := r.chunks.DeleteMany(ctx, bson.M{"source_id": sourceID})
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for source %s: %w", sourceID, err)
	}
	return res.DeletedCount, nil
}

// SampleChunkTexts returns the texts of the first n chunks of a source in
// ingestion order, used to give the topic extractor a representative slice.
func (r *Retriever) SampleChunkTexts(ctx context.Context, sourceID string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
		SetLimit(int64(n))
	cursor, err := r.chunks.Find(ctx, bson.M{"source_id": sourceID}, opts)
	if err != nil {
		return nil, fmt.Errorf("sampling chunks for source %s: %w", sourceID, err)
	}
	defer cursor.Close(ctx)

	var chunks []models.Chunk
	if err := cursor.All(ctx, &chunks); err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	return texts, nil
}

func (r *Retriever) vectorSearch(ctx context.Context, queryVec []float32, topK int, sourceID string) ([]models.ScoredChunk, error) {
	search := bson.M{
		"index":         r.cfg.VectorIndexName,
		"path":          "embedding",
		"queryVector":   queryVec,
		"numCandidates": topK * 10,
		"limit":         topK,
	}
	if sourceID != "" {
		search["filter"] = bson.M{"source_id": sourceID}
	}

	pipeline := []bson.M{
		{"$vectorSearch": search},
		{"$project": bson.M{
			"_id":        0,
			"chunk_text": 1,
			"score":      bson.M{"$meta": "vectorSearchScore"},
		}},
	}

	cursor, err := r.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Text  string  `bson:"chunk_text"`
		Score float64 `bson:"score"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	results := make([]models.ScoredChunk, len(rows))
	for i, row := range rows {
		results[i] = models.ScoredChunk{Text: row.Text, Score: row.Score}
	}
	return results, nil
}

func (r *Retriever) exactScan(ctx context.Context, queryVec []float32, topK int, sourceID string) ([]models.ScoredChunk, error) {
	filter := bson.M{}
	if sourceID != "" {
		filter["source_id"] = sourceID
	}

	cursor, err := r.chunks.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []models.Chunk
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	return rankBySimilarity(queryVec, docs, topK), nil
}

func (r *Retriever) recordEmbedding(d time.Duration, batch bool) {
	if r.metrics != nil {
		r.metrics.RecordEmbedding(d.Seconds(), batch)
	}
}

// rankBySimilarity scores every chunk against the query vector and returns
// the topK best in descending order. Chunks whose stored vector does not
// match the query dimensions score zero and sort to the bottom.
func rankBySimilarity(queryVec []float32, docs []models.Chunk, topK int) []models.ScoredChunk {
	scored := make([]models.ScoredChunk, 0, len(docs))
	for _, doc := range docs {
		scored = append(scored, models.ScoredChunk{
			Text:  doc.Text,
			Score: cosineSimilarity(queryVec, doc.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// cosineSimilarity returns cos(a, b) in [-1, 1], or 0 for mismatched or
// zero-magnitude vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
