package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	EdgePort           string
	DatabaseURL        string
	DBAutoMigrate      bool
	RedisURL           string
	CORSAllowedOrigins []string

	UPI     UPI
	Offline Offline
	Obs     Observability
	Sec     Security

	RateLimitQRPerMinute int
	IdempotencyTTL       time.Duration
}

// UPI holds the default payee used when a request omits one.
type UPI struct {
	PayeeVPA  string
	PayeeName string
	QRSize    int
}

// Offline configures the edge process.
type Offline struct {
	OriginURL     string
	CacheVersion  string
	ShellPaths    []string
	ShellDocument string
	BypassHosts   []string
	FetchTimeout  time.Duration
	MaxEntryBytes int64
	RedisPrefix   string
}

// Security configures response headers and request size limits for the API.
type Security struct {
	EnableHeaders         bool
	EnableHSTS            bool
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	MaxBodyBytes          int64
}

// Observability toggles logging format, metrics, tracing and pprof.
type Observability struct {
	LogFormat        string
	LogLevel         string
	MetricsNamespace string
	MetricsBuckets   string
	EnablePrometheus bool
	EnableTracing    bool
	EnablePprof      bool
	PprofUser        string
	PprofPass        string
	TracingExporter  string
	OTLPEndpoint     string
	SamplingRatio    float64
	ServiceName      string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		EdgePort:           valueOrDefault(k.String("EDGE_PORT"), "8081"),
		DatabaseURL:        strings.TrimSpace(k.String("DATABASE_URL")),
		DBAutoMigrate:      parseBool(k.String("DB_AUTO_MIGRATE"), true),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		UPI: UPI{
			PayeeVPA:  strings.TrimSpace(k.String("UPI_PAYEE_VPA")),
			PayeeName: strings.TrimSpace(k.String("UPI_PAYEE_NAME")),
			QRSize:    parseInt(k.String("UPI_QR_SIZE"), 256),
		},
		Offline: Offline{
			OriginURL:     strings.TrimSpace(k.String("OFFLINE_ORIGIN_URL")),
			CacheVersion:  valueOrDefault(k.String("OFFLINE_CACHE_VERSION"), "v1"),
			ShellPaths:    splitAndTrim(k.String("OFFLINE_SHELL_PATHS")),
			ShellDocument: valueOrDefault(k.String("OFFLINE_SHELL_DOCUMENT"), "/index.html"),
			BypassHosts:   splitAndTrim(k.String("OFFLINE_BYPASS_HOSTS")),
			FetchTimeout:  parseDuration(k.String("OFFLINE_FETCH_TIMEOUT"), "10s"),
			MaxEntryBytes: int64(parseInt(k.String("OFFLINE_MAX_ENTRY_BYTES"), 10<<20)),
			RedisPrefix:   valueOrDefault(k.String("OFFLINE_REDIS_PREFIX"), "offline:"),
		},
		Obs: Observability{
			LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "invoice"),
			MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
			EnablePrometheus: parseBool(k.String("OBS_ENABLE_PROMETHEUS"), true),
			EnableTracing:    parseBool(k.String("OBS_ENABLE_TRACING"), false),
			EnablePprof:      parseBool(k.String("OBS_ENABLE_PPROF"), false),
			PprofUser:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
			PprofPass:        strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
			TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:     strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			SamplingRatio:    parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1),
			ServiceName:      strings.TrimSpace(k.String("OBS_SERVICE_NAME")),
		},
		RateLimitQRPerMinute: parseInt(k.String("RATE_LIMIT_QR_PER_MINUTE"), 30),
		IdempotencyTTL:       parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		Sec: Security{
			EnableHeaders:         parseBool(k.String("SECURITY_HEADERS_ENABLED"), true),
			EnableHSTS:            parseBool(k.String("SECURITY_HSTS_ENABLED"), false),
			HSTSMaxAge:            parseInt(k.String("SECURITY_HSTS_MAX_AGE"), 31536000),
			HSTSIncludeSubdomains: parseBool(k.String("SECURITY_HSTS_INCLUDE_SUBDOMAINS"), false),
			MaxBodyBytes:          int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		},
	}

	if cfg.UPI.QRSize <= 0 {
		return nil, errors.New("UPI_QR_SIZE must be positive")
	}
	if cfg.Offline.OriginURL != "" {
		u, err := url.Parse(cfg.Offline.OriginURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("OFFLINE_ORIGIN_URL must be an absolute url: %q", cfg.Offline.OriginURL)
		}
	}

	return cfg, nil
}

// RequireOrigin reports an error when the edge has no origin to front.
func (c *Config) RequireOrigin() (*url.URL, error) {
	if c.Offline.OriginURL == "" {
		return nil, errors.New("OFFLINE_ORIGIN_URL is required")
	}
	return url.Parse(c.Offline.OriginURL)
}

// HTTPAddr returns the address the API server should bind to.
func (c *Config) HTTPAddr() string {
	return listenAddr(c.Port, "8080")
}

// EdgeAddr returns the address the offline edge should bind to.
func (c *Config) EdgeAddr() string {
	return listenAddr(c.EdgePort, "8081")
}

func listenAddr(port, fallback string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		port = fallback
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
