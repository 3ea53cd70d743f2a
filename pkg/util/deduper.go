package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	return NewDeduperWithLogger(rdb, ttl, nil)
}

// NewDeduperWithLogger creates a deduper with logger support
func NewDeduperWithLogger(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// FormatDedupKey builds the dedup key for a handler, user and email.
func FormatDedupKey(handler, userID, emailID string) string {
	return fmt.Sprintf("dedup:%s:%s:%s", handler, userID, emailID)
}

// AcquireOnce reports whether this is the first time (handler, user, email)
// is seen within the TTL. Redis failures allow processing.
func (d *Deduper) AcquireOnce(ctx context.Context, handler, userID, emailID string) bool {
	key := FormatDedupKey(handler, userID, emailID)

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		// Redis 挂了？为了安全：当 redis 不可用时，不阻止处理，返回 true
		if d.logger != nil {
			d.logger.Warn("Redis dedup check failed, allowing processing",
				zap.String("handler", handler),
				zap.String("user_id", userID),
				zap.String("email_id", emailID),
				zap.Error(err),
			)
		}
		return true
	}

	// 去重命中：记录日志
	if !ok && d.logger != nil {
		d.logger.Info("Skipped duplicated event",
			zap.String("handler", handler),
			zap.String("user_id", userID),
			zap.String("email_id", emailID),
			zap.String("dedup_key", key),
		)
	}

	return ok
}

// Release drops the dedup key so a failed attempt can be redelivered.
func (d *Deduper) Release(ctx context.Context, handler, userID, emailID string) error {
	return d.rdb.Del(ctx, FormatDedupKey(handler, userID, emailID)).Err()
}
