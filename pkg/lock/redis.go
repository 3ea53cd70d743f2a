package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a best-effort distributed lock built on SET NX PX.
// The TTL bounds how long a crashed holder can block others.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	retry  time.Duration
	logger *zap.Logger
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		rdb:    rdb,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
		logger: logger,
	}
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// 释放时不使用调用方的 ctx，避免 ctx 已取消导致锁残留到 TTL
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}, nil
}
