package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// NewLogger returns a stdout logger. format "console" (or "text") is human
// readable, anything else is JSON; an unknown level means info.
func NewLogger(format, level string) zerolog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// probePaths are polled by orchestrators and scrapers; their request logs go
// to debug so they do not drown the edge's own traffic.
var probePaths = []string{"/health/", "/metrics"}

func isProbe(path string) bool {
	for _, p := range probePaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// OfflineSourceHeader names the response header the offline edge uses to report
// which source answered a request.
const OfflineSourceHeader = "X-Offline-Source"

// RequestLogger records structured HTTP request logs enriched with tracing metadata.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements chi middleware for structured request logs.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := wrap(w, r)
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		next.ServeHTTP(ww, r.WithContext(WithRequestLogger(r.Context(), l.Logger, reqID)))

		duration := time.Since(start)
		route := routeOf(r, r.URL.Path)
		spanCtx := trace.SpanContextFromContext(r.Context())
		traceID := ""
		spanID := ""
		if spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
			spanID = spanCtx.SpanID().String()
		}

		status := statusOf(ww)
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = l.Logger.Error()
		case isProbe(r.URL.Path):
			evt = l.Logger.Debug()
		default:
			evt = l.Logger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", route).
			Str("path", r.URL.Path).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("bytes", ww.BytesWritten()).
			Str("request_id", reqID).
			Str("trace_id", traceID).
			Str("span_id", spanID)
		if src := ww.Header().Get(OfflineSourceHeader); src != "" {
			evt = evt.Str("offline_source", src)
		}
		if host := strings.TrimSpace(r.Host); host != "" {
			evt = evt.Str("host", host)
		}
		if ip := common.ClientIP(r); ip != "" {
			evt = evt.Str("client_ip", ip)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
