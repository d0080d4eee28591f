package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"ai-tutor-platform/internal/ai"
	"ai-tutor-platform/internal/config"
	"ai-tutor-platform/models"
)

// fakePool is an in-memory pool with the same capacity and dedup rules the
// Lua script enforces in Redis.
type fakePool struct {
	mu       sync.Mutex
	capacity int
	entries  []*models.ExercisePayload
}

func (p *fakePool) Take(ctx context.Context, key PoolKey, history map[string]struct{}) (*models.ExercisePayload, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, e := range p.entries {
		if _, seen := history[e.Content]; seen {
			continue
		}
		p.entries = append(p.entries[:i], p.entries[i+1:]...)
		return e, nil
	}
	return nil, ErrPoolExhausted
}

func (p *fakePool) Add(ctx context.Context, key PoolKey, payload *models.ExercisePayload) AddResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) >= p.capacity {
		return AddPoolFull
	}
	for _, e := range p.entries {
		if e.Content == payload.Content {
			return AddDuplicate
		}
	}
	p.entries = append(p.entries, payload)
	return AddOK
}

func (p *fakePool) Size(ctx context.Context, key PoolKey) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

func (p *fakePool) Capacity() int { return p.capacity }

func (p *fakePool) contents() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.Content
	}
	return out
}

// fakeStore is an in-memory ExerciseStore.
type fakeStore struct {
	mu          sync.Mutex
	exercises   map[string]models.Exercise
	submissions []models.Submission
	history     map[string]struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{exercises: map[string]models.Exercise{}, history: map[string]struct{}{}}
}

func (s *fakeStore) InsertExercise(ctx context.Context, ex models.Exercise) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := primitive.NewObjectID()
	ex.ID = id
	s.exercises[id.Hex()] = ex
	return id, nil
}

func (s *fakeStore) GetExercise(ctx context.Context, id primitive.ObjectID) (*models.Exercise, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exercises[id.Hex()]
	if !ok {
		return nil, ErrExerciseNotFound
	}
	return &ex, nil
}

func (s *fakeStore) InsertSubmission(ctx context.Context, sub models.Submission) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.ID = primitive.NewObjectID()
	s.submissions = append(s.submissions, sub)
	return sub.ID, nil
}

func (s *fakeStore) CompletedContents(ctx context.Context, studentID string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]struct{}, len(s.history))
	for k := range s.history {
		out[k] = struct{}{}
	}
	return out, nil
}

// fakeContexts resolves every topic id to one fixed topic.
type fakeContexts struct {
	topic       *models.Topic
	contextText string
}

func (c *fakeContexts) GetTopic(ctx context.Context, topicID string) (*models.Topic, error) {
	if c.topic == nil {
		return nil, ErrTopicNotFound
	}
	return c.topic, nil
}

func (c *fakeContexts) GetContextForTopic(ctx context.Context, topicID string, topK int) (string, error) {
	return c.contextText, nil
}

type fakeQuota struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (q *fakeQuota) Consume(ctx context.Context, studentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	return q.err
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	calls []string
}

func (e *fakeEnqueuer) EnqueueExerciseRefill(ctx context.Context, topicID, difficulty, studentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, topicID+"/"+difficulty)
}

func testTopic() *models.Topic {
	return &models.Topic{
		ID:       primitive.NewObjectID(),
		Name:     "derivadas",
		SourceID: "src-1",
		Course:   "calculo-1",
	}
}

func fullPayload(content string) *models.ExercisePayload {
	return &models.ExercisePayload{
		Content:     content,
		Solution:    "x = 2",
		Methodology: "derivar e igualar a cero",
		AvailableProcedures: []models.Procedure{
			{ID: 1, Name: "Regla de la cadena"},
			{ID: 2, Name: "Regla del producto"},
		},
		ExpectedProcedures: []int{1},
	}
}

type exerciseServiceFixture struct {
	svc      *ExerciseService
	store    *fakeStore
	pool     *fakePool
	engine   *mockEngine
	quota    *fakeQuota
	enqueuer *fakeEnqueuer
	cache    *stubCache
}

func newExerciseFixture(topic *models.Topic) *exerciseServiceFixture {
	f := &exerciseServiceFixture{
		store:    newFakeStore(),
		pool:     &fakePool{capacity: 5},
		engine:   &mockEngine{},
		quota:    &fakeQuota{},
		enqueuer: &fakeEnqueuer{},
		cache:    newStubCache(),
	}
	cfg := &config.Config{GenerationTimeout: 5, RefillAttempts: 3, HintTTL: 3600}
	f.svc = NewExerciseService(f.store, f.pool, &fakeContexts{topic: topic, contextText: "contexto"}, f.engine, f.cache, f.quota, f.enqueuer, cfg, nil)
	return f
}

func TestGetExercise_PoolHitSkipsEngine(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.pool.entries = []*models.ExercisePayload{
		fullPayload("e1"), fullPayload("e2"), fullPayload("e3"),
	}

	engineCalls := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		engineCalls++
		return fullPayload("generado"), nil
	}

	ex, err := f.svc.GetExercise(context.Background(), "student-1", "topic-1", models.DifficultyEasy)
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if engineCalls != 0 {
		t.Errorf("engine called %d times on a pool hit", engineCalls)
	}
	if ex.Content != "e1" {
		t.Errorf("served content = %q, want head of queue", ex.Content)
	}
	if !ex.FromPool {
		t.Errorf("FromPool = false, want true")
	}
	if f.quota.calls != 0 {
		t.Errorf("quota consumed on a pool hit")
	}
	if len(f.enqueuer.calls) != 1 {
		t.Errorf("rolling refill enqueued %d times, want 1", len(f.enqueuer.calls))
	}
}

func TestGetExercise_SkipsCompletedContent(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.pool.entries = []*models.ExercisePayload{fullPayload("visto"), fullPayload("nuevo")}
	f.store.history["visto"] = struct{}{}

	ex, err := f.svc.GetExercise(context.Background(), "student-1", "topic-1", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if ex.Content != "nuevo" {
		t.Errorf("served content = %q, want the unseen exercise", ex.Content)
	}
}

func TestGetExercise_EmptyPoolGeneratesOnce(t *testing.T) {
	f := newExerciseFixture(testTopic())

	engineCalls := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		engineCalls++
		if topic != "derivadas" || course != "calculo-1" || contextText != "contexto" {
			t.Errorf("engine inputs = %q %q %q", topic, course, contextText)
		}
		return fullPayload("fresco"), nil
	}

	ex, err := f.svc.GetExercise(context.Background(), "student-1", "topic-1", models.DifficultyHard)
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if engineCalls != 1 {
		t.Errorf("engine calls = %d, want exactly 1", engineCalls)
	}
	if ex.Content == "" || ex.Solution == "" || ex.Methodology == "" ||
		len(ex.AvailableProcedures) == 0 || len(ex.ExpectedProcedures) == 0 {
		t.Errorf("persisted exercise missing payload fields: %+v", ex)
	}
	if ex.FromPool {
		t.Errorf("FromPool = true for a synchronous generation")
	}
	if f.quota.calls != 1 {
		t.Errorf("quota consumed %d times, want 1", f.quota.calls)
	}
	if got := f.pool.contents(); len(got) != 1 || got[0] != "fresco" {
		t.Errorf("pool after generation = %v, want the fresh payload offered once", got)
	}
}

func TestGetExercise_QuotaBlocksGeneration(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.quota.err = ai.ErrQuotaExceeded

	engineCalls := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		engineCalls++
		return fullPayload("no deberia existir"), nil
	}

	_, err := f.svc.GetExercise(context.Background(), "student-1", "topic-1", models.DifficultyEasy)
	if !errors.Is(err, ai.ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if engineCalls != 0 {
		t.Errorf("engine called despite exhausted quota")
	}
}

func TestGetExercise_UnknownTopic(t *testing.T) {
	f := newExerciseFixture(nil)

	_, err := f.svc.GetExercise(context.Background(), "student-1", "missing", models.DifficultyEasy)
	if !errors.Is(err, ErrTopicNotFound) {
		t.Fatalf("err = %v, want ErrTopicNotFound", err)
	}
}

func TestGetExercise_ContentOnlyPayloadServed(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		// What the parser produces when the model answered in prose.
		return &models.ExercisePayload{Content: "Resuelve la integral de x dx"}, nil
	}

	ex, err := f.svc.GetExercise(context.Background(), "student-1", "topic-1", models.DifficultyMedium)
	if err != nil {
		t.Fatalf("GetExercise: %v", err)
	}
	if ex.Content != "Resuelve la integral de x dx" {
		t.Errorf("content = %q", ex.Content)
	}
	if ex.Solution != "" {
		t.Errorf("solution = %q, want empty for a degraded payload", ex.Solution)
	}
}

func TestRefillPool_ConcurrentStaysBounded(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.pool.entries = []*models.ExercisePayload{
		fullPayload("p1"), fullPayload("p2"), fullPayload("p3"), fullPayload("p4"),
	}

	var mu sync.Mutex
	n := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		mu.Lock()
		n++
		content := "generado-" + string(rune('a'+n))
		mu.Unlock()
		return fullPayload(content), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.RefillPool(context.Background(), "topic-1", models.DifficultyEasy, ""); err != nil {
				t.Errorf("RefillPool: %v", err)
			}
		}()
	}
	wg.Wait()

	contents := f.pool.contents()
	if len(contents) > 5 {
		t.Errorf("pool size = %d, want <= capacity 5", len(contents))
	}
	seen := map[string]struct{}{}
	for _, c := range contents {
		if _, dup := seen[c]; dup {
			t.Errorf("duplicate content %q in pool", c)
		}
		seen[c] = struct{}{}
	}
}

func TestRefillPool_RetriesOnDuplicate(t *testing.T) {
	f := newExerciseFixture(testTopic())
	f.pool.entries = []*models.ExercisePayload{fullPayload("repetido")}

	calls := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		calls++
		if calls == 1 {
			return fullPayload("repetido"), nil
		}
		return fullPayload("distinto"), nil
	}

	if err := f.svc.RefillPool(context.Background(), "topic-1", models.DifficultyMedium, ""); err != nil {
		t.Fatalf("RefillPool: %v", err)
	}
	if calls != 2 {
		t.Errorf("engine calls = %d, want 2 (retry after duplicate)", calls)
	}
	contents := f.pool.contents()
	if len(contents) != 2 {
		t.Fatalf("pool = %v, want repetido + distinto", contents)
	}
}

func TestRefillPool_SkipsWhenFull(t *testing.T) {
	f := newExerciseFixture(testTopic())
	for i := 0; i < 5; i++ {
		f.pool.entries = append(f.pool.entries, fullPayload("lleno-"+string(rune('a'+i))))
	}

	calls := 0
	f.engine.generateExercise = func(ctx context.Context, topic, contextText, difficulty, course string) (*models.ExercisePayload, error) {
		calls++
		return fullPayload("descartado"), nil
	}

	if err := f.svc.RefillPool(context.Background(), "topic-1", models.DifficultyEasy, ""); err != nil {
		t.Fatalf("RefillPool: %v", err)
	}
	if calls != 0 {
		t.Errorf("engine called %d times against a full pool", calls)
	}
}

func TestEvaluate_ProcedureSubsetOverridesEngine(t *testing.T) {
	f := newExerciseFixture(testTopic())
	ex := models.NewExercise(fullPayload("evaluame"), *testTopic(), models.DifficultyMedium, false)
	ex.ExpectedProcedures = []int{1, 3}
	id, _ := f.store.InsertExercise(context.Background(), ex)

	f.engine.evaluate = func(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
		return &models.Evaluation{IsCorrectResult: true, IsCorrectMethodology: false, Feedback: "revisa el método"}, nil
	}

	res, err := f.svc.Evaluate(context.Background(), "student-1", id.Hex(), "42", "derivando", []int{3, 1, 5}, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Evaluation.IsCorrectMethodology {
		t.Errorf("IsCorrectMethodology = false, want true when every expected procedure was selected")
	}
	if !res.Evaluation.CorrectProcedures {
		t.Errorf("CorrectProcedures = false, want true")
	}
	if len(f.store.submissions) != 1 {
		t.Fatalf("submissions persisted = %d, want 1", len(f.store.submissions))
	}
	if f.store.submissions[0].ExerciseContent != "evaluame" {
		t.Errorf("submission content = %q, want denormalized exercise content", f.store.submissions[0].ExerciseContent)
	}
}

func TestEvaluate_MissingSelectionKeepsEngineVerdict(t *testing.T) {
	f := newExerciseFixture(testTopic())
	id, _ := f.store.InsertExercise(context.Background(), models.NewExercise(fullPayload("sin procs"), *testTopic(), models.DifficultyEasy, false))

	f.engine.evaluate = func(ctx context.Context, exercise, expectedSolution, expectedMethodology, studentAnswer, studentMethodology string) (*models.Evaluation, error) {
		return &models.Evaluation{IsCorrectMethodology: true, Feedback: "bien"}, nil
	}

	res, err := f.svc.Evaluate(context.Background(), "student-1", id.Hex(), "x", "", nil, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Evaluation.IsCorrectMethodology {
		t.Errorf("engine verdict overridden without a procedure selection")
	}
}

func TestEvaluate_SolutionOnlyOnRetry(t *testing.T) {
	f := newExerciseFixture(testTopic())
	id, _ := f.store.InsertExercise(context.Background(), models.NewExercise(fullPayload("con solucion"), *testTopic(), models.DifficultyEasy, false))

	first, err := f.svc.Evaluate(context.Background(), "student-1", id.Hex(), "intento", "", nil, false)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if first.Solution != "" {
		t.Errorf("solution revealed on first attempt")
	}

	retry, err := f.svc.Evaluate(context.Background(), "student-1", id.Hex(), "otro intento", "", nil, true)
	if err != nil {
		t.Fatalf("Evaluate retry: %v", err)
	}
	if retry.Solution != "x = 2" {
		t.Errorf("retry solution = %q, want canonical solution", retry.Solution)
	}
}

func TestEvaluate_UnknownExercise(t *testing.T) {
	f := newExerciseFixture(testTopic())

	_, err := f.svc.Evaluate(context.Background(), "student-1", primitive.NewObjectID().Hex(), "x", "", nil, false)
	if !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("err = %v, want ErrExerciseNotFound", err)
	}
}

func TestGetHint_MemoizedPerExercise(t *testing.T) {
	f := newExerciseFixture(testTopic())
	id, _ := f.store.InsertExercise(context.Background(), models.NewExercise(fullPayload("con pista"), *testTopic(), models.DifficultyEasy, false))

	hintCalls := 0
	f.engine.hint = func(ctx context.Context, exercise, contextText string) (string, error) {
		hintCalls++
		return "usa la regla de la cadena", nil
	}

	for i := 0; i < 2; i++ {
		hint, err := f.svc.GetHint(context.Background(), id.Hex())
		if err != nil {
			t.Fatalf("GetHint: %v", err)
		}
		if hint != "usa la regla de la cadena" {
			t.Errorf("hint = %q", hint)
		}
	}
	if hintCalls != 1 {
		t.Errorf("engine hint calls = %d, want 1 (memoized)", hintCalls)
	}
}

func TestGetScheme_DistinctCacheEntryFromHint(t *testing.T) {
	f := newExerciseFixture(testTopic())
	id, _ := f.store.InsertExercise(context.Background(), models.NewExercise(fullPayload("con esquema"), *testTopic(), models.DifficultyEasy, false))

	f.engine.hint = func(ctx context.Context, exercise, contextText string) (string, error) {
		return "pista textual", nil
	}
	f.engine.scheme = func(ctx context.Context, exercise, contextText string) (string, error) {
		return "flowchart TD\n  A --> B", nil
	}

	hint, err := f.svc.GetHint(context.Background(), id.Hex())
	if err != nil {
		t.Fatalf("GetHint: %v", err)
	}
	scheme, err := f.svc.GetScheme(context.Background(), id.Hex())
	if err != nil {
		t.Fatalf("GetScheme: %v", err)
	}
	if hint == scheme {
		t.Errorf("hint and scheme share a cache entry")
	}
}

func TestContainsAll(t *testing.T) {
	tests := []struct {
		name     string
		haystack []int
		needles  []int
		want     bool
	}{
		{"exact", []int{1, 2}, []int{1, 2}, true},
		{"superset", []int{1, 2, 3}, []int{1, 3}, true},
		{"missing one", []int{1, 2}, []int{1, 3}, false},
		{"empty needles", []int{1}, nil, true},
		{"empty haystack", nil, []int{1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsAll(tt.haystack, tt.needles); got != tt.want {
				t.Errorf("containsAll(%v, %v) = %v, want %v", tt.haystack, tt.needles, got, tt.want)
			}
		})
	}
}
