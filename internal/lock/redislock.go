package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotConfigured is returned when the locker has no Redis client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrLost is the cancellation cause seen by fn when the lease could not
	// be renewed and another holder may have taken over.
	ErrLost = errors.New("lock: lease lost")
)

// Both scripts act only while the key still carries our token, so a lease
// that expired and was taken by another replica is left alone.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Locker is a Redis lease lock. Edge replicas sharing one offline cache use
// it so only one of them installs or purges at a time.
type Locker struct {
	R            *redis.Client
	Prefix       string
	RetryBackoff time.Duration
}

// WithLock runs fn while holding the lease for key. The lease is renewed every
// ttl/3 for as long as fn runs; if renewal fails fn's context is cancelled
// with ErrLost. The lease is released when fn returns, error or not.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key = l.Prefix + key
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.R, []string{key}, token).Err()
	}()

	held, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	defer close(done)
	go l.renew(held, cancel, done, key, token, ttl)

	return fn(held)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l Locker) renew(ctx context.Context, cancel context.CancelCauseFunc, done <-chan struct{}, key, token string, ttl time.Duration) {
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.R, []string{key}, token, ttl.Milliseconds()).Int()
			if err != nil || n == 0 {
				cancel(ErrLost)
				return
			}
		}
	}
}
