package offline

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/obs"
)

// Proxy serves the origin through a Worker. Requests the worker declines are
// streamed to the network unchanged. Absolute-form requests for any host other
// than the origin or a bypass host are refused, so the edge is never an open
// forward proxy.
type Proxy struct {
	worker      *Worker
	origin      *url.URL
	passthrough *httputil.ReverseProxy
	logger      zerolog.Logger
}

// NewProxy constructs a proxy in front of the worker's origin. A nil transport
// uses http.DefaultTransport.
func NewProxy(w *Worker, transport http.RoundTripper, logger zerolog.Logger) *Proxy {
	if transport == nil {
		transport = http.DefaultTransport
	}
	p := &Proxy{worker: w, origin: w.Config().Origin, logger: logger}
	p.passthrough = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			// the inbound URL is already absolute
			pr.Out.Host = ""
			pr.SetXForwarded()
		},
		Transport: otelhttp.NewTransport(transport),
		ErrorHandler: func(rw http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn().Err(err).Str("url", r.URL.String()).Msg("offline_passthrough")
			common.JSONError(rw, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "upstream request failed", nil)
		},
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	in, ok := p.outbound(r)
	if !ok {
		p.logger.Warn().Str("host", r.URL.Host).Msg("offline_foreign_host")
		common.JSONError(rw, http.StatusMisdirectedRequest, "MISDIRECTED_REQUEST", "host is not served by this edge", nil)
		return
	}

	res, err := p.worker.Fetch(r.Context(), in)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			rw.Header().Set(obs.OfflineSourceHeader, "miss")
			common.JSONError(rw, http.StatusGatewayTimeout, "OFFLINE_MISS", "resource unavailable offline", nil)
			return
		}
		p.logger.Error().Err(err).Str("url", in.URL.String()).Msg("offline_fetch")
		common.JSONError(rw, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	rw.Header().Set(obs.OfflineSourceHeader, string(res.Source))
	if res.PassThrough() {
		p.passthrough.ServeHTTP(rw, in)
		return
	}
	if err := res.Entry.WriteTo(rw); err != nil {
		p.logger.Debug().Err(err).Msg("offline_write")
	}
}

// outbound rewrites r to address the origin with an absolute URL, with the Host
// header taken from that URL. An absolute-form request keeps its target only
// when that is a bypass host; any other foreign host is refused.
func (p *Proxy) outbound(r *http.Request) (*http.Request, bool) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.Host = ""
	u := *out.URL
	switch {
	case !u.IsAbs(), strings.EqualFold(u.Host, p.origin.Host):
		u.Scheme = p.origin.Scheme
		u.Host = p.origin.Host
	case !p.worker.classifier.bypassed(out):
		return nil, false
	}
	out.URL = &u
	// snapshots are stored decoded
	out.Header.Del("Accept-Encoding")
	return out, true
}
