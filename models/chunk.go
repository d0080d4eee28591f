package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is one embedded slice of an ingested source, stored in the "chunks"
// collection. Chunks are immutable; deleting a source cascades to its chunks.
type Chunk struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SourceID  string             `bson:"source_id" json:"source_id"`
	Text      string             `bson:"chunk_text" json:"chunk_text"`
	Index     int                `bson:"chunk_index" json:"chunk_index"`
	Page      int                `bson:"page,omitempty" json:"page,omitempty"`
	URL       string             `bson:"url,omitempty" json:"url,omitempty"`
	Timecode  string             `bson:"timecode,omitempty" json:"timecode,omitempty"` // "MM:SS" locator for transcript chunks
	Embedding []float32          `bson:"embedding" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// ScoredChunk is a retrieval result: chunk text plus its cosine similarity
// to the query, in [0, 1].
type ScoredChunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}
