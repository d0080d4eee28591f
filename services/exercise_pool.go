package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ai-tutor-platform/internal/logger"
	"ai-tutor-platform/internal/telemetry"
	"ai-tutor-platform/models"
)

// ErrPoolExhausted reports that a pool has no entry the student has not
// already completed. Callers fall through to synchronous generation.
var ErrPoolExhausted = errors.New("exercise pool exhausted")

// takeSnapshots bounds how many times Take re-reads the list after losing
// every candidate to concurrent consumers.
const takeSnapshots = 3

// PoolKey identifies one FIFO queue of pre-generated exercises.
type PoolKey struct {
	Topic      string
	Difficulty string
	Course     string
}

// String renders the Redis list key.
func (k PoolKey) String() string {
	return "pool:" + k.Topic + ":" + k.Difficulty + ":" + k.Course
}

// AddResult says what an insert attempt did to the pool.
type AddResult int

const (
	AddOK AddResult = iota
	AddDuplicate
	AddPoolFull
	AddUnavailable
)

// addScript enforces the pool invariants atomically: bounded length and no
// two entries with identical content. The API server and the worker both
// produce into the same lists, so the check-then-push must happen inside
// Redis, not in process memory.
//
// Returns -1 when full, 0 when content already present, else the new length.
var addScript = redis.NewScript(`
local key = KEYS[1]
local payload = ARGV[1]
local content = ARGV[2]
local capacity = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

if redis.call('LLEN', key) >= capacity then
  return -1
end
local entries = redis.call('LRANGE', key, 0, -1)
for i, entry in ipairs(entries) do
  local ok, decoded = pcall(cjson.decode, entry)
  if ok and decoded['content'] == content then
    return 0
  end
end
redis.call('RPUSH', key, payload)
redis.call('EXPIRE', key, ttl)
return redis.call('LLEN', key)
`)

// ExercisePool is the bounded, deduplicated queue of pre-generated exercise
// payloads per (topic, difficulty, course). Redis being unreachable reads as
// an always-empty pool; production and consumption both degrade silently.
type ExercisePool struct {
	rdb      *redis.Client
	capacity int
	ttl      time.Duration
	metrics  *telemetry.Metrics
}

func NewExercisePool(rdb *redis.Client, capacity int, ttl time.Duration, metrics *telemetry.Metrics) *ExercisePool {
	if capacity <= 0 {
		capacity = 5
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ExercisePool{rdb: rdb, capacity: capacity, ttl: ttl, metrics: metrics}
}

// Capacity returns the per-key entry limit.
func (p *ExercisePool) Capacity() int { return p.capacity }

// Add offers one payload to the pool. Duplicate content and full pools are
// reported, not errors; a down Redis reads as AddUnavailable.
func (p *ExercisePool) Add(ctx context.Context, key PoolKey, payload *models.ExercisePayload) AddResult {
	if p.rdb == nil || payload == nil || payload.Content == "" {
		return AddUnavailable
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Pool payload marshal failed", "key", key.String(), "error", err)
		return AddUnavailable
	}

	n, err := addScript.Run(ctx, p.rdb, []string{key.String()},
		raw, payload.Content, p.capacity, int(p.ttl.Seconds())).Int()
	if err != nil {
		logger.Warn("Pool add failed, skipping", "key", key.String(), "error", err)
		p.recordOp("add", "unavailable")
		return AddUnavailable
	}

	switch {
	case n == -1:
		p.recordOp("add", "full")
		return AddPoolFull
	case n == 0:
		p.recordOp("add", "duplicate")
		return AddDuplicate
	default:
		p.recordOp("add", "ok")
		return AddOK
	}
}

// Take removes and returns the first entry whose content the student has not
// completed. Concurrent consumers race on LREM; losing a candidate falls
// through to the next one, and losing a whole snapshot re-reads the list.
// Returns ErrPoolExhausted when nothing suitable remains.
func (p *ExercisePool) Take(ctx context.Context, key PoolKey, history map[string]struct{}) (*models.ExercisePayload, error) {
	if p.rdb == nil {
		return nil, ErrPoolExhausted
	}

	for snapshot := 0; snapshot < takeSnapshots; snapshot++ {
		entries, err := p.rdb.LRange(ctx, key.String(), 0, -1).Result()
		if err != nil {
			logger.Warn("Pool read failed, treating as empty", "key", key.String(), "error", err)
			p.recordOp("take", "unavailable")
			return nil, ErrPoolExhausted
		}
		if len(entries) == 0 {
			p.recordOp("take", "empty")
			return nil, ErrPoolExhausted
		}

		candidates := filterCandidates(entries, history)
		if len(candidates) == 0 {
			p.recordOp("take", "exhausted")
			return nil, ErrPoolExhausted
		}

		for _, cand := range candidates {
			removed, err := p.rdb.LRem(ctx, key.String(), 1, cand.raw).Result()
			if err != nil {
				logger.Warn("Pool remove failed", "key", key.String(), "error", err)
				p.recordOp("take", "unavailable")
				return nil, ErrPoolExhausted
			}
			if removed > 0 {
				p.recordOp("take", "hit")
				return cand.payload, nil
			}
			// A concurrent consumer already took this entry.
		}
	}

	p.recordOp("take", "contended")
	return nil, ErrPoolExhausted
}

// Size returns the current number of entries under key; 0 when Redis is
// unreachable.
func (p *ExercisePool) Size(ctx context.Context, key PoolKey) int {
	if p.rdb == nil {
		return 0
	}
	n, err := p.rdb.LLen(ctx, key.String()).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (p *ExercisePool) recordOp(op, result string) {
	if p.metrics != nil {
		p.metrics.RecordPoolOperation(op, result)
	}
}

// poolCandidate pairs a decoded payload with the raw list entry needed for
// an exact-value LREM.
type poolCandidate struct {
	raw     string
	payload *models.ExercisePayload
}

// filterCandidates decodes entries in queue order and keeps those whose
// content is not in the student's history. Undecodable entries are skipped.
func filterCandidates(entries []string, history map[string]struct{}) []poolCandidate {
	var candidates []poolCandidate
	for _, raw := range entries {
		var payload models.ExercisePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil || payload.Content == "" {
			continue
		}
		if _, completed := history[payload.Content]; completed {
			continue
		}
		candidates = append(candidates, poolCandidate{raw: raw, payload: &payload})
	}
	return candidates
}
