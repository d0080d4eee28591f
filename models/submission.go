package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Evaluation is the verdict for one submission. The engine judges result and
// methodology; CorrectProcedures comes from comparing the student's selected
// procedure ids against the exercise's expected set.
type Evaluation struct {
	IsCorrectResult      bool     `bson:"is_correct_result" json:"is_correct_result"`
	IsCorrectMethodology bool     `bson:"is_correct_methodology" json:"is_correct_methodology"`
	CorrectProcedures    bool     `bson:"correct_procedures" json:"correct_procedures"`
	ErrorsFound          []string `bson:"errors_found,omitempty" json:"errors_found"`
	Feedback             string   `bson:"feedback" json:"feedback"`
}

// Submission records a student's answer to a served exercise.
// ExerciseContent is denormalized from the exercise so that a student's
// completed-content history is a single distinct query.
type Submission struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID          string             `bson:"student_id" json:"student_id"`
	ExerciseID         primitive.ObjectID `bson:"exercise_id" json:"exercise_id"`
	ExerciseContent    string             `bson:"exercise_content" json:"-"`
	Answer             string             `bson:"answer" json:"answer"`
	Methodology        string             `bson:"methodology,omitempty" json:"methodology,omitempty"`
	SelectedProcedures []int              `bson:"selected_procedures,omitempty" json:"selected_procedures,omitempty"`
	Evaluation         Evaluation         `bson:"evaluation" json:"evaluation"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
}
