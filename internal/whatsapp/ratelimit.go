package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter caps messages per contact with a fixed window counter in
// Redis. Scope separates counters for different directions (inbound webhook
// storms vs outbound sends). A nil limiter allows everything.
type RateLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int64
	window time.Duration
}

func NewRateLimiter(rdb *redis.Client, scope string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{rdb: rdb, scope: scope, limit: int64(limit), window: window}
}

// Allow increments the per-contact counter and reports whether this message
// is within the limit. Redis errors fail open: a broken limiter must not
// block guest messaging.
func (r *RateLimiter) Allow(ctx context.Context, propertyID, channel, contactHash string) bool {
	if r == nil || r.rdb == nil {
		return true
	}
	key := fmt.Sprintf("wa:%s:%s:%s:%s", r.scope, propertyID, channel, contactHash)
	pipe := r.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return incr.Val() <= r.limit
}
