package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/ratelimit"
	"github.com/noah-isme/backend-invoice/internal/resilience"
)

// Dependencies enumerates the services shared by the api and edge binaries.
// DB and Redis are nil when their URLs are not configured.
type Dependencies struct {
	Config         *config.Config
	Logger         zerolog.Logger
	Registry       *prometheus.Registry
	HTTPMetrics    *obs.HTTPMetrics
	TracingEnabled bool
	DB             *pgxpool.Pool
	Redis          *redis.Client
	Validator      *validator.Validate

	closers []func(context.Context) error
}

// New wires logging, metrics, tracing and the optional stores for service.
func New(ctx context.Context, cfg *config.Config, service string) (*Dependencies, error) {
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().
		Str("env", cfg.AppEnv).
		Str("service", service).
		Logger()

	d := &Dependencies{
		Config:    cfg,
		Logger:    logger,
		Validator: validator.New(validator.WithRequiredStructEnabled()),
	}

	if cfg.Obs.EnablePrometheus {
		d.Registry = obs.NewRegistry()
		d.HTTPMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), d.Registry)
		obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, d.Registry)
		resilience.MustRegisterMetrics(d.Registry)
	}

	if cfg.Obs.EnableTracing {
		name := cfg.Obs.ServiceName
		if name == "" {
			name = service
		}
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   name,
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			d.TracingEnabled = true
			d.closers = append(d.closers, shutdown)
		}
	}

	if cfg.RedisURL != "" {
		client, err := NewRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
		if err != nil {
			d.Close(ctx)
			return nil, err
		}
		d.Redis = client
		d.closers = append(d.closers, func(context.Context) error { return client.Close() })
	}

	return d, nil
}

// NewRedis opens and pings an instrumented Redis client.
func NewRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OpenDatabase connects the pgx pool and, when enabled, applies the embedded
// migrations. It is a no-op without DATABASE_URL.
func (d *Dependencies) OpenDatabase(ctx context.Context, appName string) error {
	if d.Config.DatabaseURL == "" {
		return nil
	}
	poolConfig, err := pgxpool.ParseConfig(d.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	if d.Config.DBAutoMigrate {
		m, err := db.NewMigrator(d.Config.DatabaseURL)
		if err != nil {
			pool.Close()
			return err
		}
		err = RunMigrations(m)
		srcErr, dbErr := m.Close()
		if err != nil {
			pool.Close()
			return err
		}
		if cerr := errors.Join(srcErr, dbErr); cerr != nil {
			d.Logger.Warn().Err(cerr).Msg("close migrator")
		}
		d.Logger.Info().Msg("database migrations applied")
	}

	d.DB = pool
	d.closers = append(d.closers, func(context.Context) error { pool.Close(); return nil })
	return nil
}

// RunMigrations applies pending migrations; an up-to-date schema is not an error.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewLimiter returns the Redis sliding-window limiter when Redis is
// configured and an in-process limiter otherwise.
func (d *Dependencies) NewLimiter(prefix string) ratelimit.Allower {
	if d.Redis != nil {
		return ratelimit.Limiter{Client: d.Redis, Prefix: prefix}
	}
	return ratelimit.NewMemoryLimiter(prefix)
}

// HealthChecks probes the stores that are configured.
func (d *Dependencies) HealthChecks() map[string]health.Check {
	checks := map[string]health.Check{}
	if d.DB != nil {
		checks["db"] = func(ctx context.Context) error { return d.DB.Ping(ctx) }
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases everything in reverse order of acquisition.
func (d *Dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			d.Logger.Error().Err(err).Msg("close dependency")
		}
	}
	d.closers = nil
}
