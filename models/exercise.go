package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Difficulty levels accepted by the generation pipeline.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Difficulties lists every supported level, in prefetch order.
var Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ValidDifficulty reports whether d is a supported difficulty level.
func ValidDifficulty(d string) bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Procedure describes one solution technique a student can pick when
// answering. IDs are small integers assigned by the generation model.
type Procedure struct {
	ID          int    `bson:"id" json:"id"`
	Name        string `bson:"name" json:"name"`
	Description string `bson:"description,omitempty" json:"description,omitempty"`
}

// ExercisePayload is the structured output of one generation call. The
// Content string doubles as the pool deduplication key: two payloads are the
// same exercise iff their contents are byte-identical.
type ExercisePayload struct {
	Content             string      `json:"content"`
	Solution            string      `json:"solution"`
	Methodology         string      `json:"methodology"`
	AvailableProcedures []Procedure `json:"available_procedures,omitempty"`
	ExpectedProcedures  []int       `json:"expected_procedures,omitempty"`
}

// Exercise is a served payload persisted to the "exercises" collection for
// evaluation and completed-content history. TopicID links back to the topic
// so hints and schemes can re-derive the retrieval context.
type Exercise struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TopicID             string             `bson:"topic_id" json:"topic_id"`
	Topic               string             `bson:"topic" json:"topic"`
	Difficulty          string             `bson:"difficulty" json:"difficulty"`
	Course              string             `bson:"course" json:"course"`
	Content             string             `bson:"content" json:"content"`
	Solution            string             `bson:"solution" json:"solution"`
	Methodology         string             `bson:"methodology" json:"methodology"`
	AvailableProcedures []Procedure        `bson:"available_procedures,omitempty" json:"available_procedures,omitempty"`
	ExpectedProcedures  []int              `bson:"expected_procedures,omitempty" json:"expected_procedures,omitempty"`
	FromPool            bool               `bson:"from_pool" json:"from_pool"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
}

// NewExercise builds the persisted record for a payload served under the
// given topic and difficulty.
func NewExercise(p *ExercisePayload, topic Topic, difficulty string, fromPool bool) Exercise {
	return Exercise{
		TopicID:             topic.ID.Hex(),
		Topic:               topic.Name,
		Difficulty:          difficulty,
		Course:              topic.Course,
		Content:             p.Content,
		Solution:            p.Solution,
		Methodology:         p.Methodology,
		AvailableProcedures: p.AvailableProcedures,
		ExpectedProcedures:  p.ExpectedProcedures,
		FromPool:            fromPool,
		CreatedAt:           time.Now(),
	}
}
