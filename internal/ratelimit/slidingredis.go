package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Allower decides whether one more event for key fits in the window.
type Allower interface {
	Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error)
}

// slidingWindow trims expired members, then admits the event only when the
// window has room. Rejected events are not recorded, so a client hammering a
// full window is released once its earlier requests age out.
//
// KEYS[1] window key; ARGV now_ms, window_ms, max, member.
// Returns {admitted, count, oldest_ms}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])
local admitted = 0
if count < max then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  admitted = 1
end
redis.call("PEXPIRE", KEYS[1], window)
local oldest = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
local oldestScore = now
if oldest[2] then
  oldestScore = tonumber(oldest[2])
end
return {admitted, count, oldestScore}
`)

// Limiter is a sliding window limiter on Redis sorted sets. Every replica
// sharing the Redis instance sees the same counts.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records an event for key when it fits and reports when the oldest
// counted event leaves the window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}

	res, err := slidingWindow.Run(ctx, l.Client, []string{l.Prefix + key},
		now.UnixMilli(), window.Milliseconds(), max, uuid.NewString()).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit %s: %w", key, err)
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit %s: unexpected reply %v", key, res)
	}

	remaining := max - int(res[1])
	reset := time.UnixMilli(res[2]).Add(window)
	return res[0] == 1, remaining, reset, nil
}
