package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/crawler"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// ErrSourceNotFound is returned for unknown or malformed source ids.
var ErrSourceNotFound = errors.New("source not found")

// sourceSampleChunks is how many leading chunks feed topic extraction.
const sourceSampleChunks = 10

type pdfExtractor interface {
	ExtractPages(path string) ([]PageText, error)
}

type webFetcher interface {
	Fetch(url string, crawl bool) (*crawler.Result, error)
}

type chunkStore interface {
	StoreChunks(ctx context.Context, sourceID string, chunks []models.Chunk) (int, error)
	DeleteSourceChunks(ctx context.Context, sourceID string) (int64, error)
	SampleChunkTexts(ctx context.Context, sourceID string, n int) ([]string, error)
}

type derivedCaches interface {
	ClearDerivedCaches(ctx context.Context) int
}

// IngestEnqueuer hands a stored source to the background worker. Cache
// clears ride the same queue so a foreground delete never blocks on a
// Redis scan.
type IngestEnqueuer interface {
	EnqueueSourceIngest(ctx context.Context, sourceID string) error
	EnqueueCacheClear(ctx context.Context, pattern string) error
}

// SourceService owns the material lifecycle: registering uploads, running
// the extract-chunk-embed-topics pipeline on the worker, and cascading
// deletes. A source serves retrieval only once its status is completed.
type SourceService struct {
	sources  *mongo.Collection
	topics   *mongo.Collection
	store    chunkStore
	chunker  *Chunker
	pdf      pdfExtractor
	web      webFetcher
	engine   ai.Engine
	caches   derivedCaches
	enqueuer IngestEnqueuer
	metrics  *telemetry.Metrics
}

func NewSourceService(db *mongo.Database, store chunkStore, chunker *Chunker, pdf pdfExtractor, web webFetcher, engine ai.Engine, caches derivedCaches, enqueuer IngestEnqueuer, metrics *telemetry.Metrics) *SourceService {
	return &SourceService{
		sources:  db.Collection("sources"),
		topics:   db.Collection("topics"),
		store:    store,
		chunker:  chunker,
		pdf:      pdf,
		web:      web,
		engine:   engine,
		caches:   caches,
		enqueuer: enqueuer,
		metrics:  metrics,
	}
}

// CreatePDFSource registers an uploaded PDF and queues its ingestion. The
// file must already sit at filePath; the worker reads it from there.
func (s *SourceService) CreatePDFSource(ctx context.Context, title, course, subject, filePath string) (*models.Source, error) {
	source := &models.Source{
		ID:        uuid.NewString(),
		Title:     title,
		Kind:      models.SourceKindPDF,
		Course:    course,
		Subject:   subject,
		FilePath:  filePath,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	return s.insertAndEnqueue(ctx, source)
}

// CreateWebSource registers a lesson URL. With crawl set the worker walks
// same-domain links up to the configured page cap.
func (s *SourceService) CreateWebSource(ctx context.Context, title, course, subject, url string, crawl bool) (*models.Source, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("url is required")
	}
	source := &models.Source{
		ID:        uuid.NewString(),
		Title:     title,
		Kind:      models.SourceKindWeb,
		Course:    course,
		Subject:   subject,
		URL:       url,
		Crawl:     crawl,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	return s.insertAndEnqueue(ctx, source)
}

// CreateTranscriptSource registers a video transcript posted as caption
// segments.
func (s *SourceService) CreateTranscriptSource(ctx context.Context, title, course, subject string, captions []models.CaptionSegment) (*models.Source, error) {
	if len(captions) == 0 {
		return nil, fmt.Errorf("transcript requires at least one caption segment")
	}
	source := &models.Source{
		ID:        uuid.NewString(),
		Title:     title,
		Kind:      models.SourceKindTranscript,
		Course:    course,
		Subject:   subject,
		Captions:  captions,
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	}
	return s.insertAndEnqueue(ctx, source)
}

func (s *SourceService) insertAndEnqueue(ctx context.Context, source *models.Source) (*models.Source, error) {
	if strings.TrimSpace(source.Course) == "" {
		return nil, fmt.Errorf("course is required")
	}
	if _, err := s.sources.InsertOne(ctx, source); err != nil {
		return nil, fmt.Errorf("inserting source: %w", err)
	}
	if err := s.enqueuer.EnqueueSourceIngest(ctx, source.ID); err != nil {
		cause := fmt.Errorf("enqueueing ingestion: %w", err)
		s.markFailed(ctx, source.ID, cause)
		return nil, cause
	}
	logger.Info("Source registered", "source_id", source.ID, "kind", source.Kind, "course", source.Course)
	return source, nil
}

func (s *SourceService) GetSource(ctx context.Context, id string) (*models.Source, error) {
	var source models.Source
	err := s.sources.FindOne(ctx, bson.M{"_id": id}).Decode(&source)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading source: %w", err)
	}
	return &source, nil
}

// ListSources returns sources newest first, optionally scoped to a course.
func (s *SourceService) ListSources(ctx context.Context, course string) ([]models.Source, error) {
	filter := bson.M{}
	if course != "" {
		filter["course"] = course
	}
	cursor, err := s.sources.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	defer cursor.Close(ctx)

	sources := []models.Source{}
	if err := cursor.All(ctx, &sources); err != nil {
		return nil, fmt.Errorf("decoding sources: %w", err)
	}
	return sources, nil
}

// Reingest queues a source for another pipeline run. Stored chunks are
// replaced wholesale when the run reaches the embed step.
func (s *SourceService) Reingest(ctx context.Context, id string) error {
	if _, err := s.GetSource(ctx, id); err != nil {
		return err
	}
	s.setStatus(ctx, id, models.StatusPending)
	if err := s.enqueuer.EnqueueSourceIngest(ctx, id); err != nil {
		cause := fmt.Errorf("enqueueing ingestion: %w", err)
		s.markFailed(ctx, id, cause)
		return cause
	}
	return nil
}

// DeleteSource removes the source, its chunks, its topics and its stored
// file, then drops derived caches that may quote the deleted material.
func (s *SourceService) DeleteSource(ctx context.Context, id string) error {
	source, err := s.GetSource(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.store.DeleteSourceChunks(ctx, id); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	if _, err := s.topics.DeleteMany(ctx, bson.M{"source_id": id}); err != nil {
		return fmt.Errorf("deleting topics: %w", err)
	}
	if _, err := s.sources.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting source: %w", err)
	}
	if source.FilePath != "" {
		if err := os.Remove(source.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Removing source file failed", "path", source.FilePath, "error", err)
		}
	}

	// Cache invalidation rides the queue; the Redis scan should not hold
	// this request. Queue down → clear inline.
	queued := true
	for _, pattern := range []string{CachePrefixContext + ":*", CachePrefixSummary + ":*"} {
		if err := s.enqueuer.EnqueueCacheClear(ctx, pattern); err != nil {
			queued = false
			break
		}
	}
	if !queued {
		s.caches.ClearDerivedCaches(ctx)
	}

	logger.Info("Source deleted", "source_id", id, "kind", source.Kind)
	return nil
}

// Ingest runs the full pipeline for one source on the worker: extract,
// chunk, embed, register topics. Any step failing marks the source failed
// with the cause; a later retry or reingest starts over.
func (s *SourceService) Ingest(ctx context.Context, sourceID string) error {
	source, err := s.GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	s.setStatus(ctx, sourceID, models.StatusProcessing)
	logger.Info("Ingesting source", "source_id", sourceID, "kind", source.Kind)
	started := time.Now()
	ingestStatus := "error"
	defer func() { s.recordIngest(source.Kind, ingestStatus, time.Since(started)) }()

	chunks, err := s.buildChunks(ctx, source)
	if err != nil {
		s.markFailed(ctx, sourceID, err)
		return err
	}
	if len(chunks) == 0 {
		err := fmt.Errorf("no text extracted from %s source", source.Kind)
		s.markFailed(ctx, sourceID, err)
		return err
	}

	// Re-ingest replaces previous vectors before writing the new set.
	if _, err := s.store.DeleteSourceChunks(ctx, sourceID); err != nil {
		s.markFailed(ctx, sourceID, err)
		return err
	}
	stored, err := s.store.StoreChunks(ctx, sourceID, chunks)
	if err != nil {
		s.markFailed(ctx, sourceID, err)
		return err
	}

	topicCount, err := s.registerTopics(ctx, source)
	if err != nil {
		s.markFailed(ctx, sourceID, err)
		return err
	}

	s.caches.ClearDerivedCaches(ctx)

	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"status":       models.StatusCompleted,
			"chunk_count":  stored,
			"topic_count":  topicCount,
			"processed_at": now,
		},
		"$unset": bson.M{"error_message": ""},
	}
	if _, err := s.sources.UpdateByID(ctx, sourceID, update); err != nil {
		return fmt.Errorf("completing source: %w", err)
	}

	ingestStatus = "ok"
	logger.Info("Source ingested",
		"source_id", sourceID,
		"chunks", stored,
		"topics", topicCount,
		"duration", time.Since(started).String())
	return nil
}

func (s *SourceService) recordIngest(kind, status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordIngest(kind, status, d.Seconds())
	}
}

func (s *SourceService) buildChunks(ctx context.Context, source *models.Source) ([]models.Chunk, error) {
	switch source.Kind {
	case models.SourceKindPDF:
		pages, err := s.pdf.ExtractPages(source.FilePath)
		if err != nil {
			return nil, fmt.Errorf("extracting pdf: %w", err)
		}
		return s.chunker.ChunkPages(pages), nil

	case models.SourceKindWeb:
		result, err := s.web.Fetch(source.URL, source.Crawl)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source.URL, err)
		}
		s.adoptCrawlTitle(ctx, source, result)

		var chunks []models.Chunk
		for _, page := range result.Pages {
			pageChunks := s.chunker.ChunkText(page.Content)
			for i := range pageChunks {
				pageChunks[i].URL = page.URL
			}
			chunks = append(chunks, pageChunks...)
		}
		// Indexes restart per page inside ChunkText; renumber across the crawl.
		for i := range chunks {
			chunks[i].Index = i
		}
		return chunks, nil

	case models.SourceKindTranscript:
		return s.chunker.ChunkTranscript(source.Captions), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", source.Kind)
}

// adoptCrawlTitle fills a blank source title from page metadata so listings
// show something better than the raw URL.
func (s *SourceService) adoptCrawlTitle(ctx context.Context, source *models.Source, result *crawler.Result) {
	if source.Title != "" {
		return
	}
	title := result.Meta.Title
	if title == "" {
		title = result.Title
	}
	if title == "" {
		return
	}
	source.Title = title
	if _, err := s.sources.UpdateByID(ctx, source.ID, bson.M{"$set": bson.M{"title": title}}); err != nil {
		logger.Warn("Persisting crawled title failed", "source_id", source.ID, "error", err)
	}
}

// registerTopics asks the engine for the source's topic list and upserts it
// keyed by (name, course), so repeated ingests keep stable topic ids and
// exercises keep valid references.
func (s *SourceService) registerTopics(ctx context.Context, source *models.Source) (int, error) {
	sample, err := s.store.SampleChunkTexts(ctx, source.ID, sourceSampleChunks)
	if err != nil {
		return 0, fmt.Errorf("sampling chunks: %w", err)
	}
	extracted, err := s.engine.ExtractTopics(ctx, sample, ai.SourceMetadata{
		Title:   source.Title,
		Course:  source.Course,
		Subject: source.Subject,
	})
	if err != nil {
		return 0, fmt.Errorf("extracting topics: %w", err)
	}

	count := 0
	now := time.Now()
	for position, topic := range extracted {
		name := strings.TrimSpace(topic.Name)
		if name == "" {
			continue
		}
		update := bson.M{
			"$set": bson.M{
				"description": topic.Description,
				"source_id":   source.ID,
				"position":    position,
			},
			"$setOnInsert": bson.M{"created_at": now},
		}
		_, err := s.topics.UpdateOne(ctx, bson.M{"name": name, "course": source.Course}, update, options.Update().SetUpsert(true))
		if err != nil {
			return count, fmt.Errorf("upserting topic %q: %w", name, err)
		}
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("engine proposed no usable topics")
	}
	return count, nil
}

func (s *SourceService) setStatus(ctx context.Context, id, status string) {
	if _, err := s.sources.UpdateByID(ctx, id, bson.M{"$set": bson.M{"status": status}}); err != nil {
		logger.Warn("Updating source status failed", "source_id", id, "status", status, "error", err)
	}
}

func (s *SourceService) markFailed(ctx context.Context, id string, cause error) {
	update := bson.M{"$set": bson.M{
		"status":        models.StatusFailed,
		"error_message": cause.Error(),
	}}
	if _, err := s.sources.UpdateByID(ctx, id, update); err != nil {
		logger.Warn("Marking source failed did not persist", "source_id", id, "error", err)
	}
	logger.Error("Source ingestion failed", "source_id", id, "error", cause)
}
