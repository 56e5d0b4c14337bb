// Package lock provides simplecms.SiteLocker implementations.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ErrNotAcquired reports a site lock held by someone else. The guard treats
// it as a concurrency conflict and retries.
var ErrNotAcquired = fmt.Errorf("site lock not acquired: %w", simplecms.ErrConcurrencyConflict)

// DefaultTTL bounds how long a crashed holder can keep a site locked.
const DefaultTTL = 10 * time.Second

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker locks sites across processes with SET NX and a TTL. Each
// acquisition carries a random token so only the holder can release it.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker returns a locker using client. A zero ttl uses DefaultTTL.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, prefix: "simplecms:lock:site:", ttl: ttl}
}

var _ simplecms.SiteLocker = (*RedisLocker)(nil)

func (l *RedisLocker) key(id uuid.UUID) string {
	return l.prefix + id.String()
}

// LockSites takes every site lock in id order or none of them.
func (l *RedisLocker) LockSites(ctx context.Context, siteIDs []uuid.UUID) (func(context.Context) error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ids := sortedIDs(siteIDs)

	held := make([]string, 0, len(ids))
	unlock := func(ctx context.Context) error {
		var errs []error
		for _, key := range held {
			if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", key, err))
			}
		}
		return errors.Join(errs...)
	}

	for _, id := range ids {
		key := l.key(id)
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			_ = unlock(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if !ok {
			_ = unlock(context.WithoutCancel(ctx))
			return nil, ErrNotAcquired
		}
		held = append(held, key)
	}
	return unlock, nil
}

// sortedIDs returns a sorted copy of ids without duplicates.
func sortedIDs(ids []uuid.UUID) []uuid.UUID {
	out := slices.Clone(ids)
	simplecms.SortIDs(out)
	return slices.Compact(out)
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
