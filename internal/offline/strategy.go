package offline

import (
	"net"
	"net/http"
	"path"
	"strings"
)

// Strategy names how a request is answered.
type Strategy string

const (
	// Bypass leaves the request to the network untouched.
	Bypass Strategy = "bypass"
	// NetworkFirst tries the network and falls back to cached copies.
	NetworkFirst Strategy = "network-first"
	// StaleWhileRevalidate serves the cached copy and refreshes it in the background.
	StaleWhileRevalidate Strategy = "stale-while-revalidate"
	// CacheFirst serves the cached copy when present, else fetches and stores.
	CacheFirst Strategy = "cache-first"
)

// DefaultBypassHosts lists remote API hosts whose responses must always be live:
// the payment gateway, the hosted database service and the geo-IP lookup.
var DefaultBypassHosts = []string{
	"api.razorpay.com",
	"checkout.razorpay.com",
	"supabase.co",
	"ipapi.co",
}

// Classifier decides the strategy for a request.
type Classifier struct {
	// BypassHosts match exactly or as a parent domain ("supabase.co" matches
	// "xyz.supabase.co"). A leading "*." or "." is accepted and ignored.
	BypassHosts []string
}

// Classify returns the strategy for req. Non-GET requests are never cached.
func (c Classifier) Classify(req *http.Request) Strategy {
	if req == nil || req.URL == nil {
		return Bypass
	}
	if req.Method != http.MethodGet && req.Method != "" {
		return Bypass
	}
	if c.bypassed(req) {
		return Bypass
	}
	if isNavigation(req) {
		return NetworkFirst
	}
	switch destination(req) {
	case "script", "style":
		return StaleWhileRevalidate
	}
	return CacheFirst
}

func (c Classifier) bypassed(req *http.Request) bool {
	host := strings.ToLower(req.URL.Hostname())
	if host == "" {
		host = strings.ToLower(hostOnly(req.Host))
	}
	if host == "" {
		return false
	}
	for _, candidate := range c.BypassHosts {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		candidate = strings.TrimPrefix(candidate, "*")
		candidate = strings.TrimPrefix(candidate, ".")
		if candidate == "" {
			continue
		}
		if host == candidate || strings.HasSuffix(host, "."+candidate) {
			return true
		}
	}
	return false
}

func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return strings.EqualFold(mode, "navigate")
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// destination mirrors Request.destination, falling back to the path extension
// for clients that do not send Sec-Fetch-Dest.
func destination(req *http.Request) string {
	if dest := strings.ToLower(strings.TrimSpace(req.Header.Get("Sec-Fetch-Dest"))); dest != "" && dest != "empty" {
		return dest
	}
	switch strings.ToLower(path.Ext(req.URL.Path)) {
	case ".js", ".mjs":
		return "script"
	case ".css":
		return "style"
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".avif":
		return "image"
	case ".woff", ".woff2", ".ttf", ".otf", ".eot":
		return "font"
	case ".webmanifest":
		return "manifest"
	}
	return ""
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}
