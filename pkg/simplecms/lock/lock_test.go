package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/lock"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := lock.NewRedisLocker(client, time.Minute)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	unlock, err := locker.LockSites(ctx, []uuid.UUID{a, b, a})
	require.NoError(t, err)
	assert.True(t, mr.Exists("simplecms:lock:site:"+a.String()))
	assert.True(t, mr.Exists("simplecms:lock:site:"+b.String()))

	_, err = locker.LockSites(ctx, []uuid.UUID{b})
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict)

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("simplecms:lock:site:"+a.String()))

	unlock, err = locker.LockSites(ctx, []uuid.UUID{b})
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestRedisLocker_AllOrNothing(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := lock.NewRedisLocker(client, time.Minute)
	ctx := context.Background()
	free, busy := uuid.New(), uuid.New()

	unlock, err := locker.LockSites(ctx, []uuid.UUID{busy})
	require.NoError(t, err)
	defer unlock(ctx)

	_, err = locker.LockSites(ctx, []uuid.UUID{free, busy})
	require.ErrorIs(t, err, lock.ErrNotAcquired)
	assert.False(t, mr.Exists("simplecms:lock:site:"+free.String()))
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := lock.NewRedisLocker(client, time.Second)
	ctx := context.Background()
	site := uuid.New()
	key := "simplecms:lock:site:" + site.String()

	unlock, err := locker.LockSites(ctx, []uuid.UUID{site})
	require.NoError(t, err)

	// The lock expires and another holder takes it.
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set(key, "someone-else"))

	require.NoError(t, unlock(ctx))
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestLocalLocker(t *testing.T) {
	locker := lock.NewLocalLocker(50 * time.Millisecond)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	unlock, err := locker.LockSites(ctx, []uuid.UUID{a, b})
	require.NoError(t, err)

	_, err = locker.LockSites(ctx, []uuid.UUID{b})
	assert.ErrorIs(t, err, simplecms.ErrConcurrencyConflict)

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "a second unlock is a no-op")

	unlock, err = locker.LockSites(ctx, []uuid.UUID{a, b})
	require.NoError(t, err)
	require.NoError(t, unlock(ctx))
}

func TestLocalLocker_WaitsForRelease(t *testing.T) {
	locker := lock.NewLocalLocker(time.Second)
	ctx := context.Background()
	site := uuid.New()

	unlock, err := locker.LockSites(ctx, []uuid.UUID{site})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = unlock(ctx)
	}()

	second, err := locker.LockSites(ctx, []uuid.UUID{site})
	require.NoError(t, err)
	require.NoError(t, second(ctx))
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	locker := lock.NewLocalLocker(time.Second)
	site := uuid.New()

	unlock, err := locker.LockSites(context.Background(), []uuid.UUID{site})
	require.NoError(t, err)
	defer unlock(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.LockSites(ctx, []uuid.UUID{site})
	assert.ErrorIs(t, err, context.Canceled)
}
