package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrQuotaExceeded is returned when a student has spent their daily
// allowance of synchronous generation calls.
var ErrQuotaExceeded = errors.New("daily generation quota exceeded")

// StudentQuota tracks one student's synchronous generation calls for the
// current day. Background refills never consume quota.
type StudentQuota struct {
	StudentID        string    `bson:"student_id"`
	GenerationsToday int       `bson:"generations_today"`
	LastResetDate    time.Time `bson:"last_reset_date"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

// QuotaKeeper enforces the per-student daily cap on foreground generation.
// It relies on the unique student_id index of the generation_quotas
// collection: a conditional $inc upsert either reserves one call or proves
// the cap is reached, with no read-then-write race between API replicas.
type QuotaKeeper struct {
	col   *mongo.Collection
	limit int
}

// NewQuotaKeeper builds a keeper with the given daily cap. A cap of zero or
// less disables enforcement entirely.
func NewQuotaKeeper(db *mongo.Database, dailyLimit int) *QuotaKeeper {
	return &QuotaKeeper{col: db.Collection("generation_quotas"), limit: dailyLimit}
}

// Limit returns the configured daily cap.
func (q *QuotaKeeper) Limit() int { return q.limit }

func utcDay(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Consume reserves one generation call for the student, resetting the
// counter at UTC day boundaries. Returns ErrQuotaExceeded once the cap is
// reached.
func (q *QuotaKeeper) Consume(ctx context.Context, studentID string) error {
	if q.limit <= 0 {
		return nil
	}

	now := time.Now().UTC()
	today := utcDay(now)

	// Reset stale counters from previous days.
	_, err := q.col.UpdateOne(ctx,
		bson.M{"student_id": studentID, "last_reset_date": bson.M{"$lt": today}},
		bson.M{"$set": bson.M{
			"generations_today": 0,
			"last_reset_date":   today,
			"updated_at":        now,
		}},
	)
	if err != nil {
		return err
	}

	// Reserve one call only while under the cap; the upsert covers first
	// use. When the document exists at the cap the filter matches nothing
	// and the insert trips the unique index instead.
	res, err := q.col.UpdateOne(ctx,
		bson.M{"student_id": studentID, "generations_today": bson.M{"$lt": q.limit}},
		bson.M{
			"$inc":         bson.M{"generations_today": 1},
			"$set":         bson.M{"updated_at": now},
			"$setOnInsert": bson.M{"last_reset_date": today},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrQuotaExceeded
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

// Status returns the student's current counter. Missing documents and
// counters from previous days read as zero usage.
func (q *QuotaKeeper) Status(ctx context.Context, studentID string) (*StudentQuota, error) {
	var quota StudentQuota
	err := q.col.FindOne(ctx, bson.M{"student_id": studentID}).Decode(&quota)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &StudentQuota{StudentID: studentID}, nil
	}
	if err != nil {
		return nil, err
	}
	if quota.LastResetDate.Before(utcDay(time.Now().UTC())) {
		quota.GenerationsToday = 0
	}
	return &quota, nil
}
