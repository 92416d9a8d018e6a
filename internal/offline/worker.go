package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/backend-invoice/internal/obs"
)

var (
	// ErrNotInstalled is returned when activation is attempted before a successful install.
	ErrNotInstalled = errors.New("offline: worker not installed")
	// ErrNoMatch is returned when neither the network nor a cache can answer.
	ErrNoMatch = errors.New("offline: no network response and no cached copy")
)

// State is the worker lifecycle state.
type State int32

const (
	// StateInstalling is the initial state; the application shell is being cached.
	StateInstalling State = iota
	// StateActivating means the shell is cached and stale caches are pending purge.
	StateActivating
	// StateActive means fetches are intercepted.
	StateActive
	// StateRedundant means the last install failed; fetches pass through.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	default:
		return "unknown"
	}
}

// Source reports what answered a fetch.
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceShell       Source = "shell"
	SourcePassThrough Source = "pass-through"
)

// Response is the outcome of one intercepted request: either a snapshot to
// serve or a pass-through decision.
type Response struct {
	Strategy Strategy
	Source   Source
	Entry    Entry
}

// PassThrough reports whether the request must go to the network untouched.
func (r Response) PassThrough() bool { return r.Source == SourcePassThrough }

// DefaultShellPaths is the application shell cached at install time.
var DefaultShellPaths = []string{
	"/",
	"/index.html",
	"/assets/index.js",
	"/assets/index.css",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

// Config describes the caches and shell of one deployment.
type Config struct {
	// Version derives the cache names when StaticCache/DynamicCache are empty.
	Version       string
	StaticCache   string
	DynamicCache  string
	Origin        *url.URL
	ShellPaths    []string
	ShellDocument string
	BypassHosts   []string
	MaxEntryBytes int64
	LockTTL       time.Duration
}

// CacheNames returns the static and dynamic cache names for a version token.
func CacheNames(version string) (static, dynamic string) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = "v1"
	}
	return "static-" + version, "dynamic-" + version
}

func (c Config) withDefaults() Config {
	static, dynamic := CacheNames(c.Version)
	if c.StaticCache == "" {
		c.StaticCache = static
	}
	if c.DynamicCache == "" {
		c.DynamicCache = dynamic
	}
	if len(c.ShellPaths) == 0 {
		c.ShellPaths = DefaultShellPaths
	}
	if c.ShellDocument == "" {
		c.ShellDocument = "/index.html"
	}
	if c.BypassHosts == nil {
		c.BypassHosts = DefaultBypassHosts
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if c.LockTTL <= 0 {
		c.LockTTL = time.Minute
	}
	return c
}

// Locker serialises lifecycle phases across processes sharing a store.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Worker applies the offline caching policy. Install and Activate must both
// succeed before Fetch intercepts anything.
type Worker struct {
	cfg        Config
	store      Store
	fetcher    Fetcher
	classifier Classifier
	logger     zerolog.Logger
	locker     Locker
	now        func() time.Time

	state     atomic.Int32
	lifecycle sync.Mutex
	bg        sync.WaitGroup
}

// NewWorker constructs a worker in the installing state.
func NewWorker(cfg Config, store Store, fetcher Fetcher, logger zerolog.Logger) (*Worker, error) {
	if cfg.Origin == nil || !cfg.Origin.IsAbs() {
		return nil, errors.New("offline: absolute origin url is required")
	}
	if store == nil {
		return nil, errors.New("offline: store is required")
	}
	if fetcher == nil {
		return nil, errors.New("offline: fetcher is required")
	}
	cfg = cfg.withDefaults()
	w := &Worker{
		cfg:        cfg,
		store:      store,
		fetcher:    fetcher,
		classifier: Classifier{BypassHosts: cfg.BypassHosts},
		logger:     logger.With().Str("static_cache", cfg.StaticCache).Str("dynamic_cache", cfg.DynamicCache).Logger(),
		now:        time.Now,
	}
	w.state.Store(int32(StateInstalling))
	return w, nil
}

// WithLocker makes lifecycle phases hold a distributed lock.
func (w *Worker) WithLocker(l Locker) *Worker {
	w.locker = l
	return w
}

// Config returns the effective configuration.
func (w *Worker) Config() Config { return w.cfg }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

func (w *Worker) setState(s State) {
	prev := State(w.state.Swap(int32(s)))
	if prev != s {
		w.logger.Debug().Str("from_state", prev.String()).Str("to_state", s.String()).Msg("offline_state")
	}
}

// Start installs and then activates the worker.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

// Install fetches every shell path and stores the responses in the static
// cache. All paths must answer 200; otherwise nothing is stored and the worker
// becomes redundant.
func (w *Worker) Install(ctx context.Context) error {
	return w.withLifecycleLock(ctx, func(ctx context.Context) (err error) {
		ctx, span := obs.StartSpan(ctx, "offline.install",
			attribute.String("offline.cache", w.cfg.StaticCache),
			attribute.Int("offline.shell_paths", len(w.cfg.ShellPaths)))
		defer func() { obs.EndSpan(span, err) }()

		w.setState(StateInstalling)
		start := time.Now()
		if err := w.install(ctx); err != nil {
			w.setState(StateRedundant)
			obs.RecordOfflineLifecycle("install", "error")
			w.logger.Error().Err(err).Msg("offline_install")
			return err
		}
		w.setState(StateActivating)
		obs.RecordOfflineLifecycle("install", "ok")
		w.logger.Info().Int("shell_paths", len(w.cfg.ShellPaths)).Int64("duration_ms", time.Since(start).Milliseconds()).Msg("offline_install")
		return nil
	})
}

func (w *Worker) install(ctx context.Context) error {
	keys := make([]string, len(w.cfg.ShellPaths))
	entries := make([]Entry, len(w.cfg.ShellPaths))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range w.cfg.ShellPaths {
		g.Go(func() error {
			key, err := w.resolve(p)
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(gctx, http.MethodGet, key, nil)
			if err != nil {
				return fmt.Errorf("shell %s: %w", p, err)
			}
			entry, complete, err := w.network(gctx, req)
			if err != nil {
				return fmt.Errorf("shell %s: %w", p, err)
			}
			if !entry.OK() {
				return fmt.Errorf("shell %s: unexpected status %d", p, entry.Status)
			}
			if !complete {
				return fmt.Errorf("shell %s: body exceeds %d bytes", p, w.cfg.MaxEntryBytes)
			}
			keys[i] = key
			entries[i] = entry.shared()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range keys {
		if err := w.store.Put(ctx, w.cfg.StaticCache, keys[i], entries[i]); err != nil {
			if dropErr := w.store.Drop(context.WithoutCancel(ctx), w.cfg.StaticCache); dropErr != nil {
				w.logger.Error().Err(dropErr).Msg("offline_install_rollback")
			}
			return fmt.Errorf("store shell %s: %w", keys[i], err)
		}
	}
	return nil
}

// Activate deletes every cache other than the current static and dynamic
// caches and then takes control of fetches.
func (w *Worker) Activate(ctx context.Context) error {
	return w.withLifecycleLock(ctx, func(ctx context.Context) (err error) {
		ctx, span := obs.StartSpan(ctx, "offline.activate")
		defer func() { obs.EndSpan(span, err) }()

		switch w.State() {
		case StateActive:
			return nil
		case StateActivating:
		default:
			return ErrNotInstalled
		}
		purged, err := w.purge(ctx)
		if err != nil {
			obs.RecordOfflineLifecycle("activate", "error")
			w.logger.Error().Err(err).Msg("offline_activate")
			return err
		}
		w.setState(StateActive)
		span.SetAttributes(attribute.StringSlice("offline.purged", purged))
		obs.RecordOfflineLifecycle("activate", "ok")
		w.logger.Info().Strs("purged", purged).Msg("offline_activate")
		return nil
	})
}

func (w *Worker) purge(ctx context.Context) ([]string, error) {
	names, err := w.store.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	var purged []string
	for _, name := range names {
		if name == w.cfg.StaticCache || name == w.cfg.DynamicCache {
			continue
		}
		if err := w.store.Drop(ctx, name); err != nil {
			return purged, fmt.Errorf("drop cache %s: %w", name, err)
		}
		purged = append(purged, name)
	}
	return purged, nil
}

func (w *Worker) withLifecycleLock(ctx context.Context, fn func(context.Context) error) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()
	if w.locker == nil {
		return fn(ctx)
	}
	return w.locker.WithLock(ctx, "offline:lifecycle:"+w.cfg.StaticCache, w.cfg.LockTTL, fn)
}

// Fetch answers one request. Until the worker is active every request passes
// through. A returned error means neither the network nor a cache could answer.
func (w *Worker) Fetch(ctx context.Context, req *http.Request) (Response, error) {
	if w.State() != StateActive {
		obs.RecordOfflineFetch(string(Bypass), string(SourcePassThrough))
		return Response{Strategy: Bypass, Source: SourcePassThrough}, nil
	}
	strategy := w.classifier.Classify(req)
	if !w.servesHost(req.URL) {
		// only the origin's responses are ever cached
		strategy = Bypass
	}

	var (
		res Response
		err error
	)
	switch strategy {
	case NetworkFirst:
		res, err = w.networkFirst(ctx, req)
	case StaleWhileRevalidate:
		res, err = w.staleWhileRevalidate(ctx, req)
	case CacheFirst:
		res, err = w.cacheFirst(ctx, req)
	default:
		res = Response{Source: SourcePassThrough}
	}
	res.Strategy = strategy

	source := string(res.Source)
	if err != nil {
		source = "miss"
	}
	obs.RecordOfflineFetch(string(strategy), source)
	return res, err
}

func (w *Worker) networkFirst(ctx context.Context, req *http.Request) (Response, error) {
	key := Key(req.URL)
	entry, complete, netErr := w.network(ctx, req)
	if netErr == nil {
		return w.fromNetwork(ctx, req, key, entry, complete), nil
	}
	if cached, ok := w.match(ctx, key); ok {
		return Response{Source: SourceCache, Entry: cached}, nil
	}
	shellKey, err := w.resolve(w.cfg.ShellDocument)
	if err == nil {
		if shell, ok := w.match(ctx, shellKey); ok {
			return Response{Source: SourceShell, Entry: shell}, nil
		}
	}
	return Response{}, fmt.Errorf("%w: %w", ErrNoMatch, netErr)
}

func (w *Worker) staleWhileRevalidate(ctx context.Context, req *http.Request) (Response, error) {
	key := Key(req.URL)
	if cached, ok := w.match(ctx, key); ok {
		w.revalidate(ctx, req, key)
		return Response{Source: SourceCache, Entry: cached}, nil
	}
	entry, complete, err := w.network(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrNoMatch, err)
	}
	return w.fromNetwork(ctx, req, key, entry, complete), nil
}

func (w *Worker) cacheFirst(ctx context.Context, req *http.Request) (Response, error) {
	key := Key(req.URL)
	if cached, ok := w.match(ctx, key); ok {
		return Response{Source: SourceCache, Entry: cached}, nil
	}
	entry, complete, err := w.network(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrNoMatch, err)
	}
	return w.fromNetwork(ctx, req, key, entry, complete), nil
}

// fromNetwork stores a complete, shareable 200 snapshot and answers with the
// unstripped one. Oversized bodies were truncated while reading, so the request
// is handed back to the proxy to stream instead.
func (w *Worker) fromNetwork(ctx context.Context, req *http.Request, key string, entry Entry, complete bool) Response {
	if !complete {
		return Response{Source: SourcePassThrough}
	}
	if shareable(req, entry) {
		w.put(ctx, key, entry.shared())
	}
	return Response{Source: SourceNetwork, Entry: entry}
}

// servesHost reports whether u addresses the origin. Relative URLs do.
func (w *Worker) servesHost(u *url.URL) bool {
	return u == nil || u.Host == "" || strings.EqualFold(u.Host, w.cfg.Origin.Host)
}

// revalidate refreshes key in the background. The refresh outlives the
// request that triggered it and is never cancelled.
func (w *Worker) revalidate(ctx context.Context, req *http.Request, key string) {
	bg := context.WithoutCancel(ctx)
	out := req.Clone(bg)
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		ctx, span := obs.StartSpan(bg, "offline.revalidate", attribute.String("offline.key", key))
		defer span.End()
		entry, complete, err := w.network(ctx, out)
		if err != nil {
			span.RecordError(err)
			obs.RecordRevalidate("error")
			w.logger.Debug().Err(err).Str("key", key).Msg("offline_revalidate")
			return
		}
		if !entry.OK() || !complete || !shareable(out, entry) {
			obs.RecordRevalidate("skipped")
			return
		}
		if err := w.store.Put(ctx, w.cfg.DynamicCache, key, entry.shared()); err != nil {
			span.RecordError(err)
			obs.RecordRevalidate("error")
			w.logger.Error().Err(err).Str("key", key).Msg("offline_revalidate")
			return
		}
		obs.RecordRevalidate("updated")
	}()
}

// Wait blocks until background revalidations have finished.
func (w *Worker) Wait() {
	w.bg.Wait()
}

// network fetches req and snapshots the response.
func (w *Worker) network(ctx context.Context, req *http.Request) (Entry, bool, error) {
	out := req.Clone(ctx)
	out.RequestURI = ""
	out.Host = ""
	resp, err := w.fetcher.Fetch(ctx, out)
	if err != nil {
		return Entry{}, false, err
	}
	return readEntry(resp, w.cfg.MaxEntryBytes, w.now())
}

// match looks the key up in the dynamic cache first, as it holds the most
// recent copies, and then in the static cache. Store errors count as misses.
func (w *Worker) match(ctx context.Context, key string) (Entry, bool) {
	for _, cache := range []string{w.cfg.DynamicCache, w.cfg.StaticCache} {
		entry, ok, err := w.store.Get(ctx, cache, key)
		if err != nil {
			w.logger.Error().Err(err).Str("cache", cache).Str("key", key).Msg("offline_cache_read")
			continue
		}
		if ok {
			return entry, true
		}
	}
	return Entry{}, false
}

func (w *Worker) put(ctx context.Context, key string, entry Entry) {
	if !entry.OK() {
		return
	}
	if err := w.store.Put(ctx, w.cfg.DynamicCache, key, entry); err != nil {
		w.logger.Error().Err(err).Str("key", key).Msg("offline_cache_write")
	}
}

func (w *Worker) resolve(p string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(p))
	if err != nil {
		return "", fmt.Errorf("shell path %q: %w", p, err)
	}
	return Key(w.cfg.Origin.ResolveReference(ref)), nil
}
