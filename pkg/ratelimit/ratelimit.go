// Package ratelimit provides the coarse token-per-minute abuse guard that
// runs in front of the governance engine. The fine-grained per-request
// window check lives in the engine itself, keyed on the profile's
// last_request_at.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	extratelimit "github.com/vnmchuo/ratelimiter"
)

// Limiter is a thin wrapper around github.com/vnmchuo/ratelimiter
type Limiter struct {
	store extratelimit.Limiter
}

func NewLimiter(rdb *redis.Client, defaultTPM int64) *Limiter {
	store := extratelimit.NewRedisStore(rdb,
		extratelimit.WithLimit(int(defaultTPM)),
		extratelimit.WithWindow(time.Minute),
	)
	return &Limiter{store: store}
}

func NewTestLimiter(store extratelimit.Limiter) *Limiter {
	return &Limiter{store: store}
}

func (l *Limiter) Allow(ctx context.Context, userID string, tokens int) (bool, error) {
	key := fmt.Sprintf("ratelimit:user:%s", userID)
	res, err := l.store.AllowN(ctx, key, tokens)
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}

func (l *Limiter) Status(ctx context.Context, userID string) (*extratelimit.Result, error) {
	key := fmt.Sprintf("ratelimit:user:%s", userID)
	return l.store.Status(ctx, key)
}
