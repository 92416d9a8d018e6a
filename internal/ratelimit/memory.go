package ratelimit

import (
	"context"
	"fmt"
	"time"

	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// StoreLimiter adapts a ulule limiter store to Allower. It is the fallback
// when no Redis instance is configured and counts are per process.
type StoreLimiter struct {
	Store limiter.Store
}

// NewMemoryLimiter returns a StoreLimiter over an in-process store.
func NewMemoryLimiter(prefix string) StoreLimiter {
	return StoreLimiter{Store: memory.NewStoreWithOptions(limiter.StoreOptions{
		Prefix:          prefix,
		CleanUpInterval: time.Minute,
	})}
}

// Allow implements Allower with a fixed window of the given length.
func (s StoreLimiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	if s.Store == nil || max <= 0 || window <= 0 {
		return true, max, time.Now().Add(window), nil
	}
	res, err := s.Store.Get(ctx, key, limiter.Rate{Period: window, Limit: int64(max)})
	if err != nil {
		return false, 0, time.Now().Add(window), fmt.Errorf("ratelimit %s: %w", key, err)
	}
	return !res.Reached, int(res.Remaining), time.Unix(res.Reset, 0), nil
}
