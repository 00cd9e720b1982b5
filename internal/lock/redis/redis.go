// Package redis implements lock.Locker on Redis so several register processes share one
// writer per session.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dacrab/clubos-legacy-sub000/internal/lock"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key's TTL only if it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Locker takes locks with SET NX PX and releases them with a token check.
type Locker struct {
	client *goredis.Client
	ttl    time.Duration
	retry  time.Duration
}

var _ lock.Locker = (*Locker)(nil)

// NewLocker creates a Locker. ttl bounds how long a crashed holder blocks others. A live
// holder renews the TTL every ttl/3 until it releases, so a mutation may outlast ttl.
func NewLocker(client *goredis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl, retry: 25 * time.Millisecond}
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, ctx.Err()) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return l.hold(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(lock.ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}
}

// hold renews the lock in the background and returns its release function.
func (l *Locker) hold(key, token string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !l.renew(key, token) {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			l.release(key, token)
		})
	}
}

// renew extends the TTL and reports whether the lock is still ours.
func (l *Locker) renew(key, token string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
	defer cancel()

	n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
	if err != nil {
		slog.Error("Failed to renew lock", "key", key, "err", err)
		return true
	}
	if n == 0 {
		slog.Warn("Lock lost before release", "key", key)
		return false
	}
	return true
}

func (l *Locker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		slog.Error("Failed to release lock", "key", key, "err", err)
	}
}
