package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/models"
)

// LockRepository implements an advisory lease per cron job name: a singleton
// document acquired via conditional update, with a TTL so a crashed holder
// cannot wedge the job forever. It is a liveness optimization only; batch
// correctness rests on idempotent crediting and per-entry status checks.
type LockRepository struct {
	locks *mongo.Collection
}

func NewLockRepository(client *mongo.Client) *LockRepository {
	return &LockRepository{
		locks: config.GetCollection(client, config.CronLocksCollection),
	}
}

// Acquire takes the named lock for ttl, returning an owner token for release.
// Fails with ErrLockHeld when another owner holds a non-expired lease.
func (r *LockRepository) Acquire(ctx context.Context, jobName string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	owner := uuid.NewString()

	// Matches only an expired lease; an absent document upserts, a live lease
	// trips the unique jobName index instead.
	filter := bson.M{
		"jobName":   jobName,
		"expiresAt": bson.M{"$lte": now},
	}
	lease := models.CronLock{
		JobName:   jobName,
		Owner:     owner,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	update := bson.M{"$set": lease}

	_, err := r.locks.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return "", ErrLockHeld
	}
	if err != nil {
		return "", fmt.Errorf("acquire lock %s: %w", jobName, err)
	}
	return owner, nil
}

// Release frees the lock if this owner still holds it. A lost or expired
// lease is not an error: the TTL already handled it.
func (r *LockRepository) Release(ctx context.Context, jobName, owner string) error {
	_, err := r.locks.DeleteOne(ctx, bson.M{"jobName": jobName, "owner": owner})
	if err != nil {
		return fmt.Errorf("release lock %s: %w", jobName, err)
	}
	return nil
}
