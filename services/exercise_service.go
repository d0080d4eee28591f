package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// ErrExerciseNotFound reports an exercise id that resolves to nothing.
var ErrExerciseNotFound = errors.New("exercise not found")

// ErrInvalidDifficulty reports a difficulty outside easy/medium/hard where
// no silent default applies.
var ErrInvalidDifficulty = errors.New("unsupported difficulty")

// exercisePool is the slice of ExercisePool the practice flow consumes.
type exercisePool interface {
	Take(ctx context.Context, key PoolKey, history map[string]struct{}) (*models.ExercisePayload, error)
	Add(ctx context.Context, key PoolKey, payload *models.ExercisePayload) AddResult
	Size(ctx context.Context, key PoolKey) int
	Capacity() int
}

// contextProvider is the slice of ContextService the practice flow consumes.
type contextProvider interface {
	GetTopic(ctx context.Context, topicID string) (*models.Topic, error)
	GetContextForTopic(ctx context.Context, topicID string, topK int) (string, error)
}

// generationQuota caps synchronous generation per student. A nil quota means
// unlimited.
type generationQuota interface {
	Consume(ctx context.Context, studentID string) error
}

// RefillEnqueuer hands rolling-refill work to the background queue. Enqueue
// failures are the implementation's problem; the practice flow never waits.
type RefillEnqueuer interface {
	EnqueueExerciseRefill(ctx context.Context, topicID, difficulty, studentID string)
}

// ExerciseStore persists served exercises and submissions.
type ExerciseStore interface {
	InsertExercise(ctx context.Context, ex models.Exercise) (primitive.ObjectID, error)
	GetExercise(ctx context.Context, id primitive.ObjectID) (*models.Exercise, error)
	InsertSubmission(ctx context.Context, sub models.Submission) (primitive.ObjectID, error)
	CompletedContents(ctx context.Context, studentID string) (map[string]struct{}, error)
}

// MongoExerciseStore is the Mongo-backed ExerciseStore.
type MongoExerciseStore struct {
	exercises   *mongo.Collection
	submissions *mongo.Collection
}

func NewMongoExerciseStore(db *mongo.Database) *MongoExerciseStore {
	return &MongoExerciseStore{
		exercises:   db.Collection("exercises"),
		submissions: db.Collection("submissions"),
	}
}

func (s *MongoExerciseStore) InsertExercise(ctx context.Context, ex models.Exercise) (primitive.ObjectID, error) {
	res, err := s.exercises.InsertOne(ctx, ex)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("inserting exercise: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (s *MongoExerciseStore) GetExercise(ctx context.Context, id primitive.ObjectID) (*models.Exercise, error) {
	var ex models.Exercise
	err := s.exercises.FindOne(ctx, bson.M{"_id": id}).Decode(&ex)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrExerciseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading exercise %s: %w", id.Hex(), err)
	}
	return &ex, nil
}

func (s *MongoExerciseStore) InsertSubmission(ctx context.Context, sub models.Submission) (primitive.ObjectID, error) {
	res, err := s.submissions.InsertOne(ctx, sub)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("inserting submission: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

// CompletedContents returns the set of exercise contents the student has
// already submitted answers for. Contents are denormalized onto submissions,
// so this is one distinct query.
func (s *MongoExerciseStore) CompletedContents(ctx context.Context, studentID string) (map[string]struct{}, error) {
	values, err := s.submissions.Distinct(ctx, "exercise_content", bson.M{"student_id": studentID})
	if err != nil {
		return nil, fmt.Errorf("loading completed contents: %w", err)
	}

	history := make(map[string]struct{}, len(values))
	for _, v := range values {
		if text, ok := v.(string); ok && text != "" {
			history[text] = struct{}{}
		}
	}
	return history, nil
}

// SubmissionResult is what a graded submission returns to the student. The
// canonical solution is only revealed on a retry.
type SubmissionResult struct {
	SubmissionID string            `json:"submission_id"`
	Evaluation   models.Evaluation `json:"evaluation"`
	Solution     string            `json:"solution,omitempty"`
	IsRetry      bool              `json:"is_retry"`
}

// ExerciseService runs the practice flow: pool-first serving, synchronous
// generation fallback, submission grading and hint generation.
type ExerciseService struct {
	store    ExerciseStore
	pool     exercisePool
	contexts contextProvider
	engine   ai.Engine
	cache    Cache
	quota    generationQuota
	enqueuer RefillEnqueuer
	cfg      *config.Config
	metrics  *telemetry.Metrics
}

func NewExerciseService(store ExerciseStore, pool exercisePool, contexts contextProvider, engine ai.Engine, cache Cache, quota generationQuota, enqueuer RefillEnqueuer, cfg *config.Config, metrics *telemetry.Metrics) *ExerciseService {
	return &ExerciseService{
		store:    store,
		pool:     pool,
		contexts: contexts,
		engine:   engine,
		cache:    cache,
		quota:    quota,
		enqueuer: enqueuer,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// GetExercise serves one exercise for the student: pool first, then one
// synchronous generation. Pool hits cost no engine call and no quota.
func (s *ExerciseService) GetExercise(ctx context.Context, studentID, topicID, difficulty string) (*models.Exercise, error) {
	if !models.ValidDifficulty(difficulty) {
		difficulty = models.DifficultyMedium
	}

	topic, err := s.contexts.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.CompletedContents(ctx, studentID)
	if err != nil {
		return nil, err
	}

	key := PoolKey{Topic: topic.Name, Difficulty: difficulty, Course: topic.Course}

	payload, err := s.pool.Take(ctx, key, history)
	if err == nil {
		ex, err := s.persistExercise(ctx, payload, *topic, difficulty, true)
		if err != nil {
			return nil, err
		}
		if s.enqueuer != nil {
			s.enqueuer.EnqueueExerciseRefill(ctx, topicID, difficulty, studentID)
		}
		return ex, nil
	}
	if !errors.Is(err, ErrPoolExhausted) {
		return nil, err
	}

	// Pool miss: one synchronous generation, quota-gated.
	if s.quota != nil {
		if err := s.quota.Consume(ctx, studentID); err != nil {
			return nil, err
		}
	}

	contextText, err := s.contexts.GetContextForTopic(ctx, topicID, ContextTopKGeneration)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := s.engineContext(ctx)
	payload, err = s.engine.GenerateExercise(genCtx, topic.Name, contextText, difficulty, topic.Course)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("generating exercise for topic %s: %w", topic.Name, err)
	}

	ex, err := s.persistExercise(ctx, payload, *topic, difficulty, false)
	if err != nil {
		return nil, err
	}

	// Offer the fresh payload to the pool for the next student. Rejection
	// (duplicate, full, Redis down) is not this request's problem.
	s.pool.Add(ctx, key, payload)

	return ex, nil
}

// Evaluate grades a submission: engine verdict, local procedure matching,
// then persistence. The solution comes back only when the student is on a
// retry attempt.
func (s *ExerciseService) Evaluate(ctx context.Context, studentID, exerciseID, answer, methodology string, selectedProcedures []int, isRetry bool) (*SubmissionResult, error) {
	ex, err := s.loadExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	evalCtx, cancel := s.engineContext(ctx)
	evaluation, err := s.engine.EvaluateSubmission(evalCtx, ex.Content, ex.Solution, ex.Methodology, answer, methodology)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("evaluating submission for exercise %s: %w", exerciseID, err)
	}

	applyProcedureCheck(evaluation, ex.ExpectedProcedures, selectedProcedures)

	sub := models.Submission{
		StudentID:          studentID,
		ExerciseID:         ex.ID,
		ExerciseContent:    ex.Content,
		Answer:             answer,
		Methodology:        methodology,
		SelectedProcedures: selectedProcedures,
		Evaluation:         *evaluation,
		CreatedAt:          time.Now(),
	}
	subID, err := s.store.InsertSubmission(ctx, sub)
	if err != nil {
		return nil, err
	}

	result := &SubmissionResult{
		SubmissionID: subID.Hex(),
		Evaluation:   *evaluation,
		IsRetry:      isRetry,
	}
	if isRetry {
		result.Solution = ex.Solution
	}
	return result, nil
}

// GetHint returns the memoized textual hint for an exercise.
func (s *ExerciseService) GetHint(ctx context.Context, exerciseID string) (string, error) {
	return s.hintOrScheme(ctx, exerciseID, "hint")
}

// GetScheme returns the memoized Mermaid scheme for an exercise.
func (s *ExerciseService) GetScheme(ctx context.Context, exerciseID string) (string, error) {
	return s.hintOrScheme(ctx, exerciseID, "scheme")
}

func (s *ExerciseService) hintOrScheme(ctx context.Context, exerciseID, kind string) (string, error) {
	key := CacheKey(CachePrefixHint, map[string]string{
		"exercise_id": exerciseID,
		"kind":        kind,
	})

	ttl := time.Duration(s.cfg.HintTTL) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}

	return s.cache.GetOrCompute(ctx, key, ttl, func(ctx context.Context) (string, error) {
		ex, err := s.loadExercise(ctx, exerciseID)
		if err != nil {
			return "", err
		}

		contextText, err := s.contexts.GetContextForTopic(ctx, ex.TopicID, ContextTopKGeneration)
		if err != nil {
			return "", err
		}

		genCtx, cancel := s.engineContext(ctx)
		defer cancel()
		if kind == "hint" {
			return s.engine.GenerateHint(genCtx, ex.Content, contextText)
		}
		return s.engine.GenerateVisualScheme(genCtx, ex.Content, contextText)
	})
}

// RefillPool tries to put one fresh, unseen exercise into the pool. It is
// the background counterpart of GetExercise's inline Add: up to
// cfg.RefillAttempts generations, retrying only on duplicate content.
// Exhausting the budget without a unique exercise is not an error.
func (s *ExerciseService) RefillPool(ctx context.Context, topicID, difficulty, studentID string) error {
	if !models.ValidDifficulty(difficulty) {
		return fmt.Errorf("refill difficulty %q: %w", difficulty, ErrInvalidDifficulty)
	}

	topic, err := s.contexts.GetTopic(ctx, topicID)
	if errors.Is(err, ErrTopicNotFound) {
		// Topic removed between enqueue and execution.
		return nil
	}
	if err != nil {
		return err
	}

	key := PoolKey{Topic: topic.Name, Difficulty: difficulty, Course: topic.Course}
	if s.pool.Size(ctx, key) >= s.pool.Capacity() {
		return nil
	}

	var history map[string]struct{}
	if studentID != "" {
		history, err = s.store.CompletedContents(ctx, studentID)
		if err != nil {
			// History only improves dedup; refill proceeds without it.
			logger.Warn("Refill proceeding without student history", "student_id", studentID, "error", err)
			history = nil
		}
	}

	contextText, err := s.contexts.GetContextForTopic(ctx, topicID, ContextTopKGeneration)
	if err != nil {
		return err
	}

	attempts := s.cfg.RefillAttempts
	if attempts <= 0 {
		attempts = 3
	}

	for attempt := 0; attempt < attempts; attempt++ {
		genCtx, cancel := s.engineContext(ctx)
		payload, err := s.engine.GenerateExercise(genCtx, topic.Name, contextText, difficulty, topic.Course)
		cancel()
		if err != nil {
			return fmt.Errorf("refill generation for topic %s: %w", topic.Name, err)
		}

		if _, seen := history[payload.Content]; seen {
			continue
		}

		switch s.pool.Add(ctx, key, payload) {
		case AddDuplicate:
			continue
		default:
			// Added, full, or Redis down: nothing left to do here.
			return nil
		}
	}

	logger.Info("Refill attempts exhausted without a unique exercise",
		"topic", topic.Name, "difficulty", difficulty)
	return nil
}

func (s *ExerciseService) persistExercise(ctx context.Context, payload *models.ExercisePayload, topic models.Topic, difficulty string, fromPool bool) (*models.Exercise, error) {
	ex := models.NewExercise(payload, topic, difficulty, fromPool)
	id, err := s.store.InsertExercise(ctx, ex)
	if err != nil {
		return nil, err
	}
	ex.ID = id
	return &ex, nil
}

func (s *ExerciseService) loadExercise(ctx context.Context, exerciseID string) (*models.Exercise, error) {
	oid, err := primitive.ObjectIDFromHex(exerciseID)
	if err != nil {
		return nil, ErrExerciseNotFound
	}
	return s.store.GetExercise(ctx, oid)
}

func (s *ExerciseService) engineContext(ctx context.Context) (context.Context, context.CancelFunc) {
	secs := s.cfg.GenerationTimeout
	if secs <= 0 {
		secs = 60
	}
	return context.WithTimeout(ctx, time.Duration(secs)*time.Second)
}

// applyProcedureCheck reconciles the engine's methodology verdict with the
// student's procedure selection: when the exercise declares expected
// procedures and the student picked some, selecting every expected one
// decides methodology correctness, overriding the engine.
func applyProcedureCheck(ev *models.Evaluation, expected, selected []int) {
	if len(expected) == 0 || len(selected) == 0 {
		return
	}
	ok := containsAll(selected, expected)
	ev.CorrectProcedures = ok
	ev.IsCorrectMethodology = ok
}

// containsAll reports whether every needle appears in haystack.
func containsAll(haystack, needles []int) bool {
	set := make(map[int]struct{}, len(haystack))
	for _, v := range haystack {
		set[v] = struct{}{}
	}
	for _, n := range needles {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}
