package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	// Test connection
	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	// Create indexes
	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	// Chunks: scoped retrieval and ordered reads per source
	chunksCollection := db.Collection("chunks")
	chunkIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "source_id", Value: 1}}},
		{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "chunk_index", Value: 1}}},
	}
	_, err := chunksCollection.Indexes().CreateMany(context.Background(), chunkIndexes)
	if err != nil {
		return err
	}

	// Sources: status polling and per-course listing
	sourcesCollection := db.Collection("sources")
	sourceIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "course", Value: 1}}},
	}
	_, err = sourcesCollection.Indexes().CreateMany(context.Background(), sourceIndexes)
	if err != nil {
		return err
	}

	// Topics: prefetch reads topics by course in position order
	topicsCollection := db.Collection("topics")
	topicIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "course", Value: 1}, {Key: "position", Value: 1}}},
		{Keys: bson.D{{Key: "source_id", Value: 1}}},
		{Keys: bson.D{{Key: "name", Value: 1}}},
	}
	_, err = topicsCollection.Indexes().CreateMany(context.Background(), topicIndexes)
	if err != nil {
		return err
	}

	// Exercises: export and per-pool listing
	exercisesCollection := db.Collection("exercises")
	exerciseIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "topic", Value: 1}, {Key: "difficulty", Value: 1}, {Key: "course", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	}
	_, err = exercisesCollection.Indexes().CreateMany(context.Background(), exerciseIndexes)
	if err != nil {
		return err
	}

	// Submissions: the completed-content history is a distinct over
	// exercise_content filtered by student_id, covered by this index
	submissionsCollection := db.Collection("submissions")
	submissionIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "student_id", Value: 1}, {Key: "exercise_content", Value: 1}}},
		{Keys: bson.D{{Key: "exercise_id", Value: 1}}},
	}
	_, err = submissionsCollection.Indexes().CreateMany(context.Background(), submissionIndexes)
	if err != nil {
		return err
	}

	// Generation quotas: the bounded-counter upsert depends on uniqueness
	quotasCollection := db.Collection("generation_quotas")
	quotaIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "student_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	_, err = quotasCollection.Indexes().CreateMany(context.Background(), quotaIndexes)
	if err != nil {
		return err
	}

	return nil
}

// EnsureVectorSearchIndex creates the Atlas vector search index over the
// chunks embedding field. Atlas builds search indexes asynchronously, so a
// fresh index may take a minute to become queryable. On non-Atlas
// deployments this fails and the caller should log and continue; retrieval
// degrades to the exact-scan path.
func EnsureVectorSearchIndex(client *mongo.Client, cfg *Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	coll := client.Database(cfg.DBName).Collection("chunks")

	definition := bson.D{
		{Key: "fields", Value: bson.A{
			bson.D{
				{Key: "type", Value: "vector"},
				{Key: "path", Value: "embedding"},
				{Key: "numDimensions", Value: cfg.VectorDimensions},
				{Key: "similarity", Value: "cosine"},
			},
			bson.D{
				{Key: "type", Value: "filter"},
				{Key: "path", Value: "source_id"},
			},
		}},
	}

	model := mongo.SearchIndexModel{
		Definition: definition,
		Options:    options.SearchIndexes().SetName(cfg.VectorIndexName).SetType("vectorSearch"),
	}

	_, err := coll.SearchIndexes().CreateOne(ctx, model)
	if err != nil {
		if strings.Contains(err.Error(), "Duplicate Index") || strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("failed to create vector search index: %v", err)
	}

	return nil
}
