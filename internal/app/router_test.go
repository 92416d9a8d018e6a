package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/ratelimit"
)

func newTestDeps(t *testing.T, env map[string]string) *Dependencies {
	t.Helper()
	base := map[string]string{
		"REDIS_URL":          "",
		"DATABASE_URL":       "",
		"OBS_ENABLE_TRACING": "false",
		"OBS_LOG_LEVEL":      "error",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadForTests(base)
	require.NoError(t, err)
	deps, err := New(context.Background(), cfg, "invoice-test")
	require.NoError(t, err)
	t.Cleanup(func() { deps.Close(context.Background()) })
	return deps
}

func TestRouterHealthProbes(t *testing.T) {
	deps := newTestDeps(t, nil)
	healthy := true
	r := deps.Router(map[string]health.Check{
		"offline": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("worker installing")
		},
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "offline")

	healthy = false
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "worker installing")
}

func TestRouterServesMetrics(t *testing.T) {
	deps := newTestDeps(t, nil)
	r := deps.Router(nil)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	require.Contains(t, body, "go_goroutines")
	require.Contains(t, body, "invoice_http_requests_total")
}

func TestRouterWithoutPrometheus(t *testing.T) {
	deps := newTestDeps(t, map[string]string{"OBS_ENABLE_PROMETHEUS": "false"})
	require.Nil(t, deps.Registry)

	rr := httptest.NewRecorder()
	deps.Router(nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterProtectsPprof(t *testing.T) {
	deps := newTestDeps(t, map[string]string{
		"OBS_ENABLE_PPROF":             "true",
		"SECURE_PPROF_BASIC_AUTH_USER": "ops",
		"SECURE_PPROF_BASIC_AUTH_PASS": "s3cret",
	})
	r := deps.Router(nil)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.NotEmpty(t, rr.Header().Get("WWW-Authenticate"))

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.SetBasicAuth("ops", "wrong")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
	req.SetBasicAuth("ops", "s3cret")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterCORSExposesOfflineSource(t *testing.T) {
	deps := newTestDeps(t, map[string]string{"CORS_ALLOWED_ORIGINS": "https://billing.example.com"})
	r := deps.Router(nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "https://billing.example.com")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, "https://billing.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	require.True(t, strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), "X-Offline-Source"))
}

func TestNewLimiterFallsBackToMemory(t *testing.T) {
	deps := newTestDeps(t, nil)
	limiter := deps.NewLimiter("test:")
	_, ok := limiter.(ratelimit.StoreLimiter)
	require.True(t, ok)

	allowed, _, _, err := limiter.Allow(context.Background(), "client", time.Minute, 1)
	require.NoError(t, err)
	require.True(t, allowed)
	allowed, _, _, err = limiter.Allow(context.Background(), "client", time.Minute, 1)
	require.NoError(t, err)
	require.False(t, allowed)
}

func TestHealthChecksOnlyConfiguredStores(t *testing.T) {
	deps := newTestDeps(t, nil)
	require.Empty(t, deps.HealthChecks())
}
