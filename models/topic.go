package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Topic is a unit of study tied to one source. Topics are written by topic
// extraction during ingestion and are read-only inputs to retrieval and
// generation.
type Topic struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	SourceID    string             `bson:"source_id" json:"source_id"`
	Course      string             `bson:"course" json:"course"`
	Position    int                `bson:"position" json:"position"` // order within the source, drives prefetch priority
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
