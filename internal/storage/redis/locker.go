package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/lounge/internal/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 20 * time.Millisecond
)

// locker implements storage.Locker with SET NX PX and a token-checked release,
// so several lounge processes can share one Redis.
type locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// Lock polls until the key is acquired or ctx is done.
func (l *locker) Lock(ctx context.Context, key string) (storage.Unlock, error) {
	token := uuid.NewString()
	redisKey := lockKey(key)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("acquire lock %s: %w: %w", key, storage.ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w: %w", key, storage.ErrLockTimeout, ctx.Err())
		case <-time.After(l.retry):
		}
	}

	return func() {
		// Release with a fresh context so a cancelled caller still frees the lock
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = releaseLock.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
	}, nil
}
