package services

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaturationJobName keys the cron lock for the maturation batch.
const MaturationJobName = "maturation"

// Maturation defaults, overridable per invocation.
const (
	DefaultBatchUsers        = 200
	DefaultMaxEntriesPerUser = 100
	DefaultMaturationTimeout = 60 * time.Second
)

// MaturationStore is the slice of the ledger store the engine drives.
type MaturationStore interface {
	FindMaturable(ctx context.Context, now time.Time, limit int) ([]primitive.ObjectID, error)
	MatureEntries(ctx context.Context, userID primitive.ObjectID, now time.Time, maxEntries int) (int, error)
}

// CronLocker is the advisory lease guarding concurrent batch runs.
type CronLocker interface {
	Acquire(ctx context.Context, jobName string, ttl time.Duration) (string, error)
	Release(ctx context.Context, jobName, owner string) error
}

// MaturationOptions tunes one batch run. MaxEntriesPerUser caps how much of
// the time budget a single pathological user can consume.
type MaturationOptions struct {
	BatchUsers        int
	MaxEntriesPerUser int
	Timeout           time.Duration
}

// MaturationResult summarizes a run. A timed-out run is a partial success:
// users not reached stay pending and are picked up next invocation, since
// availableAt never moves.
type MaturationResult struct {
	Matured        int  `json:"matured"`
	ProcessedUsers int  `json:"processedUsers"`
	TimedOut       bool `json:"timedOut"`
}

// MaturationService transitions pending commission entries to available once
// their hold period elapses, one advisory-locked batch at a time.
type MaturationService struct {
	store MaturationStore
	locks CronLocker
	nowFn func() time.Time
}

func NewMaturationService(store MaturationStore, locks CronLocker) *MaturationService {
	return &MaturationService{store: store, locks: locks, nowFn: time.Now}
}

// Run executes one maturation batch. It fails with the lock error (typically
// repositories.ErrLockHeld, benign) when another run is in flight, processes
// users oldest-money-first, and stops early with a partial result once the
// wall-clock budget is spent. The lock is released unconditionally; if the
// release is lost, the TTL expires it.
func (s *MaturationService) Run(ctx context.Context, opts MaturationOptions) (MaturationResult, error) {
	if opts.BatchUsers <= 0 {
		opts.BatchUsers = DefaultBatchUsers
	}
	if opts.MaxEntriesPerUser <= 0 {
		opts.MaxEntriesPerUser = DefaultMaxEntriesPerUser
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultMaturationTimeout
	}

	var result MaturationResult

	owner, err := s.locks.Acquire(ctx, MaturationJobName, opts.Timeout+10*time.Second)
	if err != nil {
		return result, err
	}
	defer func() {
		// Release on a fresh context: the run's own context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := s.locks.Release(releaseCtx, MaturationJobName, owner); rerr != nil {
			log.Printf("Failed to release maturation lock (TTL will expire it): %v", rerr)
		}
	}()

	start := s.nowFn()
	now := start.UTC()

	userIDs, err := s.store.FindMaturable(ctx, now, opts.BatchUsers)
	if err != nil {
		return result, err
	}

	for _, userID := range userIDs {
		if s.nowFn().Sub(start) >= opts.Timeout {
			result.TimedOut = true
			break
		}
		matured, err := s.store.MatureEntries(ctx, userID, now, opts.MaxEntriesPerUser)
		if err != nil {
			// Partial progress already committed stays committed; the caller's
			// next invocation picks up where this one failed.
			return result, err
		}
		result.Matured += matured
		result.ProcessedUsers++
	}

	return result, nil
}
