package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"PORT":                  "",
		"EDGE_PORT":             "",
		"UPI_QR_SIZE":           "",
		"OFFLINE_ORIGIN_URL":    "",
		"OFFLINE_CACHE_VERSION": "",
		"OFFLINE_SHELL_PATHS":   "",
		"IDEMPOTENCY_TTL":       "",
		"OBS_ENABLE_TRACING":    "",
	})
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, ":8081", cfg.EdgeAddr())
	require.Equal(t, 256, cfg.UPI.QRSize)
	require.Equal(t, "v1", cfg.Offline.CacheVersion)
	require.Nil(t, cfg.Offline.ShellPaths)
	require.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	require.False(t, cfg.Obs.EnableTracing)

	_, err = cfg.RequireOrigin()
	require.Error(t, err)
}

func TestLoadOfflineSettings(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"OFFLINE_ORIGIN_URL":    "https://app.example.com",
		"OFFLINE_CACHE_VERSION": "v7",
		"OFFLINE_SHELL_PATHS":   "/, /index.html ,/assets/index.js",
		"OFFLINE_BYPASS_HOSTS":  "api.razorpay.com,supabase.co",
		"OFFLINE_FETCH_TIMEOUT": "3s",
		"EDGE_PORT":             ":9090",
	})
	require.NoError(t, err)
	require.Equal(t, "v7", cfg.Offline.CacheVersion)
	require.Equal(t, []string{"/", "/index.html", "/assets/index.js"}, cfg.Offline.ShellPaths)
	require.Equal(t, []string{"api.razorpay.com", "supabase.co"}, cfg.Offline.BypassHosts)
	require.Equal(t, 3*time.Second, cfg.Offline.FetchTimeout)
	require.Equal(t, ":9090", cfg.EdgeAddr())

	origin, err := cfg.RequireOrigin()
	require.NoError(t, err)
	require.Equal(t, "app.example.com", origin.Host)
}

func TestLoadRejectsRelativeOrigin(t *testing.T) {
	_, err := LoadForTests(map[string]string{"OFFLINE_ORIGIN_URL": "/just/a/path"})
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveQRSize(t *testing.T) {
	_, err := LoadForTests(map[string]string{"UPI_QR_SIZE": "-1"})
	require.Error(t, err)
}
