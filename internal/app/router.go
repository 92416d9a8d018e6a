package app

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/noah-isme/backend-invoice/internal/health"
	"github.com/noah-isme/backend-invoice/internal/obs"
)

// Router returns a chi router carrying the shared middleware stack and the
// operational endpoints: health probes, metrics and pprof. extra checks are
// added to the readiness probe.
func (d *Dependencies) Router(extra map[string]health.Check) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if d.TracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if d.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: d.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Disposition", "Retry-After", obs.OfflineSourceHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if d.Registry != nil {
		r.Handle("/metrics", obs.MetricsHandler(d.Registry))
	}
	if d.Config.Obs.EnablePprof {
		r.Mount("/debug", protectPprof(middleware.Profiler(), d.Config.Obs.PprofUser, d.Config.Obs.PprofPass))
	}

	checks := d.HealthChecks()
	for name, check := range extra {
		checks[name] = check
	}
	healthHandler := health.Handler{Checks: checks}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	return r
}

func (d *Dependencies) allowedOrigins() []string {
	if len(d.Config.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return d.Config.CORSAllowedOrigins
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
