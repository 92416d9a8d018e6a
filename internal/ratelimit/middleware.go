package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// Config describes how to derive a rate limit key and thresholds.
type Config struct {
	Key    func(*http.Request) string
	Window time.Duration
	Max    int
}

// ByClientIP keys limits on the caller address under name.
func ByClientIP(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return name + ":" + common.ClientIP(r)
	}
}

// Handler enforces rate limits before delegating to the next handler.
type Handler struct {
	Limiter Allower
	Config  Config
	OnError func(error)
}

// Middleware implements the http.Handler middleware interface. Limiter
// failures are reported through OnError and the request is let through.
func (h Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.Config.Key == nil || h.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := h.Config.Key(r)
		allowed, remaining, resetAt, err := h.Limiter.Allow(r.Context(), key, h.Config.Window, h.Config.Max)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(max(h.Config.Max, 0)))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			wait := max(int(math.Ceil(time.Until(resetAt).Seconds())), 1)
			headers.Set("Retry-After", strconv.Itoa(wait))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later",
				map[string]int{"retryAfterSeconds": wait})
			return
		}

		next.ServeHTTP(w, r)
	})
}
