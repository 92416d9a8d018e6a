package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

type routePatternKey struct{}

// WithRoutePattern stores the matched router pattern on the context.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext extracts the route pattern from context if present.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(routePatternKey{}).(string); ok {
		return v
	}
	return ""
}

// routeOf resolves the route label for r. chi fills the pattern in while
// routing, so this is accurate once the handler has run.
func routeOf(r *http.Request, fallback string) string {
	if route := RoutePatternFromContext(r.Context()); route != "" {
		return route
	}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return fallback
}

// WithRequestLogger attaches a request scoped logger so handlers can use
// zerolog.Ctx and inherit the request id.
func WithRequestLogger(ctx context.Context, logger zerolog.Logger, requestID string) context.Context {
	l := logger
	if requestID != "" {
		l = logger.With().Str("request_id", requestID).Logger()
	}
	return l.WithContext(ctx)
}
