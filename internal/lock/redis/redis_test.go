package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/lock"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) *Locker {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return NewLocker(client, ttl)
}

func TestLocker_ExclusiveAndRelease(t *testing.T) {
	l := newTestLocker(t, 5*time.Second)
	key := lock.SessionKey(uuid.NewString())

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	release()

	again, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	again()
}

func TestLocker_ReleaseKeepsForeignToken(t *testing.T) {
	l := newTestLocker(t, 5*time.Second)
	key := lock.SessionKey(uuid.NewString())
	ctx := context.Background()

	require.NoError(t, l.client.Set(ctx, key, "someone-else", time.Minute).Err())
	l.release(key, "my-token")

	val, err := l.client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
	l.client.Del(ctx, key)
}

func TestLocker_RenewsWhileHeld(t *testing.T) {
	l := newTestLocker(t, 300*time.Millisecond)
	key := lock.SessionKey(uuid.NewString())
	ctx := context.Background()

	release, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	time.Sleep(time.Second)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, key)
	assert.ErrorIs(t, err, lock.ErrNotAcquired, "lock must survive past its ttl while held")

	release()
	release()

	n, err := l.client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLocker_RenewStopsWhenLost(t *testing.T) {
	l := newTestLocker(t, 5*time.Second)
	key := lock.SessionKey(uuid.NewString())
	ctx := context.Background()

	require.NoError(t, l.client.Set(ctx, key, "someone-else", time.Minute).Err())
	assert.False(t, l.renew(key, "my-token"))

	val, err := l.client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", val)
	l.client.Del(ctx, key)
}
