package models

import "time"

// Source kinds.
const (
	SourceKindPDF        = "pdf"
	SourceKindWeb        = "web"
	SourceKindTranscript = "transcript"
)

// Ingestion status constants.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// CaptionSegment is one transcript line posted by the media pipeline.
type CaptionSegment struct {
	Start float64 `bson:"start" json:"start_seconds"`
	Text  string  `bson:"text" json:"text"`
}

// Source is an ingested study material (book PDF, lesson page, video
// transcript). The ID is a UUID string so the API server and the worker can
// both mint and reference sources without an extra round-trip.
type Source struct {
	ID           string           `bson:"_id" json:"id"`
	Title        string           `bson:"title" json:"title"`
	Kind         string           `bson:"kind" json:"kind"`
	Course       string           `bson:"course" json:"course"`
	Subject      string           `bson:"subject,omitempty" json:"subject,omitempty"`
	URL          string           `bson:"url,omitempty" json:"url,omitempty"`
	FilePath     string           `bson:"file_path,omitempty" json:"-"`
	Crawl        bool             `bson:"crawl,omitempty" json:"crawl,omitempty"`
	Captions     []CaptionSegment `bson:"captions,omitempty" json:"-"`
	Status       string           `bson:"status" json:"status"`
	ChunkCount   int              `bson:"chunk_count" json:"chunk_count"`
	TopicCount   int              `bson:"topic_count" json:"topic_count"`
	ErrorMessage string           `bson:"error_message,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	ProcessedAt  *time.Time       `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}
