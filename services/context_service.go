package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/models"
)

// ErrTopicNotFound reports a topic id that resolves to nothing.
var ErrTopicNotFound = errors.New("topic not found")

// Retrieval depths per consumer. Generation and hints keep the context tight;
// summaries read a little wider.
const (
	ContextTopKGeneration = 2
	ContextTopKSummary    = 3
)

// topicRetriever is the slice of Retriever the context service consumes.
type topicRetriever interface {
	Retrieve(ctx context.Context, query string, topK int, sourceID string) ([]models.ScoredChunk, error)
}

// ContextService resolves topics to retrieval-backed context strings and
// memoizes the expensive products (context, topic summaries) in Redis.
type ContextService struct {
	topics    *mongo.Collection
	retriever topicRetriever
	engine    ai.Engine
	cache     Cache
	cfg       *config.Config
}

func NewContextService(db *mongo.Database, retriever topicRetriever, engine ai.Engine, cache Cache, cfg *config.Config) *ContextService {
	return &ContextService{
		topics:    db.Collection("topics"),
		retriever: retriever,
		engine:    engine,
		cache:     cache,
		cfg:       cfg,
	}
}

// GetTopic resolves a topic by its hex id. A malformed id reads the same as
// a missing topic.
func (s *ContextService) GetTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	oid, err := primitive.ObjectIDFromHex(topicID)
	if err != nil {
		return nil, ErrTopicNotFound
	}

	var topic models.Topic
	err = s.topics.FindOne(ctx, bson.M{"_id": oid}).Decode(&topic)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrTopicNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading topic %s: %w", topicID, err)
	}
	return &topic, nil
}

// ListTopics returns topics in study order (source position, then name),
// optionally scoped to a course.
func (s *ContextService) ListTopics(ctx context.Context, course string) ([]models.Topic, error) {
	filter := bson.M{}
	if course != "" {
		filter["course"] = course
	}
	sort := bson.D{{Key: "position", Value: 1}, {Key: "name", Value: 1}}
	cursor, err := s.topics.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer cursor.Close(ctx)

	topics := []models.Topic{}
	if err := cursor.All(ctx, &topics); err != nil {
		return nil, fmt.Errorf("decoding topics: %w", err)
	}
	return topics, nil
}

// GetContextForTopic retrieves the topK chunks most relevant to a topic,
// using the topic name as the query scoped to the topic's source, and joins
// them into one context string. The result is cached; an unknown topic
// yields "" without error so generation can proceed context-free.
func (s *ContextService) GetContextForTopic(ctx context.Context, topicID string, topK int) (string, error) {
	key := CacheKey(CachePrefixContext, map[string]string{
		"topic_id": topicID,
		"top_k":    strconv.Itoa(topK),
	})

	return s.cache.GetOrCompute(ctx, key, s.ttl(s.cfg.ContextTTL), func(ctx context.Context) (string, error) {
		topic, err := s.GetTopic(ctx, topicID)
		if errors.Is(err, ErrTopicNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}

		results, err := s.retriever.Retrieve(ctx, topic.Name, topK, topic.SourceID)
		if err != nil {
			return "", fmt.Errorf("retrieving context for topic %s: %w", topicID, err)
		}

		parts := make([]string, len(results))
		for i, r := range results {
			parts[i] = r.Text
		}
		return strings.Join(parts, "\n\n"), nil
	})
}

// GetTopicSummary returns the memoized study summary for a topic,
// generating it on first request. A cached summary answers without touching
// Mongo or the engine.
func (s *ContextService) GetTopicSummary(ctx context.Context, topicID string) (string, error) {
	key := CacheKey(CachePrefixSummary, map[string]string{"topic_id": topicID})

	return s.cache.GetOrCompute(ctx, key, s.ttl(s.cfg.SummaryTTL), func(ctx context.Context) (string, error) {
		topic, err := s.GetTopic(ctx, topicID)
		if err != nil {
			return "", err
		}
		contextText, err := s.GetContextForTopic(ctx, topicID, ContextTopKSummary)
		if err != nil {
			return "", err
		}
		return s.engine.GenerateTopicSummary(ctx, topic.Name, contextText, topic.Course)
	})
}

// ClearDerivedCaches drops every cached context and summary. Re-ingesting a
// source changes what retrieval returns, so everything derived from chunk
// content is stale.
func (s *ContextService) ClearDerivedCaches(ctx context.Context) int {
	cleared := s.cache.ClearPattern(ctx, CachePrefixContext+":*")
	cleared += s.cache.ClearPattern(ctx, CachePrefixSummary+":*")
	return cleared
}

func (s *ContextService) ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(seconds) * time.Second
}
