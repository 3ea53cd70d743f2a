package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL increments KEYS[1] and sets its TTL on the first increment, in
// one round trip so a counter never outlives its window.
var incrWithTTL = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RetryCounter counts deliveries of one message across redeliveries.
type RetryCounter struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRetryCounter(rdb *redis.Client, ttl time.Duration) *RetryCounter {
	return &RetryCounter{rdb: rdb, ttl: ttl}
}

// IncrementAndGet records one more delivery for key and returns the total.
func (r *RetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	n, err := incrWithTTL.Run(ctx, r.rdb, []string{key}, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("retry counter %s: %w", key, err)
	}
	return n, nil
}

// Reset forgets key, typically once the message has been acked.
func (r *RetryCounter) Reset(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

// FormatRetryKey formats a retry key for a handler, user and email.
func FormatRetryKey(handler, userID, emailID string) string {
	return fmt.Sprintf("retry:%s:%s:%s", handler, userID, emailID)
}
