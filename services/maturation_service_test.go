package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/creatorlens/affiliate_backend/repositories"
)

type fakeMaturationStore struct {
	users          []primitive.ObjectID
	maturedPerUser map[primitive.ObjectID]int
	matureErr      error

	findCalls   int
	findLimit   int
	matureCalls []primitive.ObjectID
	matureMax   int
}

func (f *fakeMaturationStore) FindMaturable(ctx context.Context, now time.Time, limit int) ([]primitive.ObjectID, error) {
	f.findCalls++
	f.findLimit = limit
	return f.users, nil
}

func (f *fakeMaturationStore) MatureEntries(ctx context.Context, userID primitive.ObjectID, now time.Time, maxEntries int) (int, error) {
	f.matureCalls = append(f.matureCalls, userID)
	f.matureMax = maxEntries
	if f.matureErr != nil && len(f.matureCalls) > 1 {
		return 0, f.matureErr
	}
	return f.maturedPerUser[userID], nil
}

type fakeCronLocker struct {
	acquireErr  error
	releaseErr  error
	acquired    int
	released    int
	releasedJob string
	releasedBy  string
}

func (f *fakeCronLocker) Acquire(ctx context.Context, jobName string, ttl time.Duration) (string, error) {
	f.acquired++
	if f.acquireErr != nil {
		return "", f.acquireErr
	}
	return "owner-1", nil
}

func (f *fakeCronLocker) Release(ctx context.Context, jobName, owner string) error {
	f.released++
	f.releasedJob = jobName
	f.releasedBy = owner
	return f.releaseErr
}

func newTestService(store *fakeMaturationStore, locks *fakeCronLocker) *MaturationService {
	svc := NewMaturationService(store, locks)
	return svc
}

func TestMaturationRunHappyPath(t *testing.T) {
	u1 := primitive.NewObjectID()
	u2 := primitive.NewObjectID()
	store := &fakeMaturationStore{
		users: []primitive.ObjectID{u1, u2},
		maturedPerUser: map[primitive.ObjectID]int{
			u1: 3,
			u2: 1,
		},
	}
	locks := &fakeCronLocker{}
	svc := newTestService(store, locks)

	result, err := svc.Run(context.Background(), MaturationOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Matured)
	assert.Equal(t, 2, result.ProcessedUsers)
	assert.False(t, result.TimedOut)

	// Zero options fall back to the defaults.
	assert.Equal(t, DefaultBatchUsers, store.findLimit)
	assert.Equal(t, DefaultMaxEntriesPerUser, store.matureMax)

	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
	assert.Equal(t, MaturationJobName, locks.releasedJob)
	assert.Equal(t, "owner-1", locks.releasedBy)
}

func TestMaturationRunSkipsWhenLockHeld(t *testing.T) {
	store := &fakeMaturationStore{users: []primitive.ObjectID{primitive.NewObjectID()}}
	locks := &fakeCronLocker{acquireErr: repositories.ErrLockHeld}
	svc := newTestService(store, locks)

	result, err := svc.Run(context.Background(), MaturationOptions{})
	require.ErrorIs(t, err, repositories.ErrLockHeld)

	assert.Zero(t, result.Matured)
	assert.Zero(t, result.ProcessedUsers)
	assert.Equal(t, 0, store.findCalls, "store must not be touched without the lock")
	assert.Equal(t, 0, locks.released, "nothing to release when acquire failed")
}

func TestMaturationRunTimesOutWithPartialResult(t *testing.T) {
	u1 := primitive.NewObjectID()
	u2 := primitive.NewObjectID()
	u3 := primitive.NewObjectID()
	store := &fakeMaturationStore{
		users: []primitive.ObjectID{u1, u2, u3},
		maturedPerUser: map[primitive.ObjectID]int{
			u1: 2, u2: 2, u3: 2,
		},
	}
	locks := &fakeCronLocker{}
	svc := newTestService(store, locks)

	// Each clock read advances 40s; with a 60s budget the run processes one
	// user and then trips the deadline check.
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	calls := 0
	svc.nowFn = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 40 * time.Second)
	}

	result, err := svc.Run(context.Background(), MaturationOptions{Timeout: 60 * time.Second})
	require.NoError(t, err)

	assert.True(t, result.TimedOut)
	assert.Equal(t, 1, result.ProcessedUsers)
	assert.Equal(t, 2, result.Matured)
	assert.Equal(t, []primitive.ObjectID{u1}, store.matureCalls, "users past the budget stay for the next run")
	assert.Equal(t, 1, locks.released)
}

func TestMaturationRunReturnsPartialResultOnStoreError(t *testing.T) {
	u1 := primitive.NewObjectID()
	u2 := primitive.NewObjectID()
	storeErr := errors.New("ledger write failed")
	store := &fakeMaturationStore{
		users:          []primitive.ObjectID{u1, u2},
		maturedPerUser: map[primitive.ObjectID]int{u1: 5},
		matureErr:      storeErr,
	}
	locks := &fakeCronLocker{}
	svc := newTestService(store, locks)

	result, err := svc.Run(context.Background(), MaturationOptions{})
	require.ErrorIs(t, err, storeErr)

	// The first user's work stays committed and is reported.
	assert.Equal(t, 5, result.Matured)
	assert.Equal(t, 1, result.ProcessedUsers)
	assert.Equal(t, 1, locks.released, "lock released even on failure")
}

func TestMaturationRunReleasesLockDespiteReleaseError(t *testing.T) {
	store := &fakeMaturationStore{}
	locks := &fakeCronLocker{releaseErr: errors.New("connection reset")}
	svc := newTestService(store, locks)

	// A failed release is logged and swallowed; the TTL covers it.
	result, err := svc.Run(context.Background(), MaturationOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.ProcessedUsers)
	assert.Equal(t, 1, locks.released)
}
