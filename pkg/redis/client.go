package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"jobmail/pkg/config"
)

// NewRedisClient connects and pings Redis; the client is shared by the
// deduper, the retry counter and the merge lock.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	logger.Info("Redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return rdb, nil
}
