package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-invoice/internal/app"
	"github.com/noah-isme/backend-invoice/internal/config"
	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/lock"
	"github.com/noah-isme/backend-invoice/internal/offline"
	"github.com/noah-isme/backend-invoice/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	origin, err := cfg.RequireOrigin()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.New(ctx, cfg, "invoice-edge")
	if err != nil {
		panic(err)
	}
	defer deps.Close(context.Background())
	logger := deps.Logger

	var store offline.Store = offline.NewMemoryStore()
	if deps.Redis != nil {
		store = offline.NewRedisStore(deps.Redis, cfg.Offline.RedisPrefix)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	fetcher := offline.HTTPFetcher{Client: resilience.HTTPClient{
		Client:      &http.Client{Transport: otelhttp.NewTransport(transport)},
		Breaker:     resilience.NewBreaker(20, 0.5, 30*time.Second).WithTarget("origin").WithLogger(logger),
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  2 * time.Second,
		MaxAttempts: 3,
		Jitter:      0.2,
		Timeout:     cfg.Offline.FetchTimeout,
	}}

	worker, err := offline.NewWorker(offline.Config{
		Version:       cfg.Offline.CacheVersion,
		Origin:        origin,
		ShellPaths:    cfg.Offline.ShellPaths,
		ShellDocument: cfg.Offline.ShellDocument,
		BypassHosts:   cfg.Offline.BypassHosts,
		MaxEntryBytes: cfg.Offline.MaxEntryBytes,
	}, store, fetcher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure offline worker")
	}
	if deps.Redis != nil {
		worker.WithLocker(lock.Locker{R: deps.Redis})
	}

	go startWorker(ctx, worker, logger)

	r := deps.Router(map[string]health.Check{
		"offline": func(context.Context) error {
			if s := worker.State(); s != offline.StateActive {
				return errors.New("worker " + s.String())
			}
			return nil
		},
	})
	r.Handle("/*", offline.NewProxy(worker, transport, logger))

	srv := &http.Server{
		Addr:              cfg.EdgeAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := app.Serve(ctx, srv, 15*time.Second, logger); err != nil {
		logger.Error().Err(err).Msg("server exited unexpectedly")
	}
	worker.Wait()
}

// startWorker installs and activates the worker, retrying with backoff while
// the origin is unreachable. Requests pass through until it succeeds.
func startWorker(ctx context.Context, worker *offline.Worker, logger zerolog.Logger) {
	for attempt := 1; ; attempt++ {
		err := worker.Start(ctx)
		if err == nil {
			return
		}
		delay := resilience.CappedBackoff(time.Second, time.Minute, attempt, 0.2)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("offline_start")
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
