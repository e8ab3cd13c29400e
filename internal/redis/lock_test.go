package redisclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSlotLocker(client, 5*time.Second), mr
}

func slotKey(start time.Time) string {
	return fmt.Sprintf("lock:slot:%d", start.UTC().Unix())
}

func TestWithSlotLockRunsCriticalSection(t *testing.T) {
	locker, mr := newTestLocker(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ran := false
	err := locker.WithSlotLock(context.Background(), start, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(slotKey(start)), "lock must be held inside the section")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(slotKey(start)), "lock must be released afterwards")
}

func TestWithSlotLockRejectsHeldSlot(t *testing.T) {
	locker, mr := newTestLocker(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, mr.Set(slotKey(start), "someone-else"))

	err := locker.WithSlotLock(context.Background(), start, func(ctx context.Context) error {
		t.Fatal("critical section must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestWithSlotLockDistinctSlotsDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)
	first := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	second := first.Add(30 * time.Minute)

	err := locker.WithSlotLock(context.Background(), first, func(ctx context.Context) error {
		return locker.WithSlotLock(ctx, second, func(context.Context) error { return nil })
	})
	assert.NoError(t, err)
}

func TestWithSlotLockPropagatesError(t *testing.T) {
	locker, mr := newTestLocker(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	boom := errors.New("insert failed")
	err := locker.WithSlotLock(context.Background(), start, func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(slotKey(start)), "lock releases even on failure")
}

func TestReleaseLeavesStolenLockAlone(t *testing.T) {
	locker, mr := newTestLocker(t)
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(context.Background(), start, func(context.Context) error {
		// Simulate TTL expiry plus reacquisition by another process.
		require.NoError(t, mr.Set(slotKey(start), "other-holder"))
		return nil
	})
	require.NoError(t, err)

	val, err := mr.Get(slotKey(start))
	require.NoError(t, err)
	assert.Equal(t, "other-holder", val, "release must not delete a lock it no longer owns")
}
