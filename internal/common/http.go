package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address taken from RemoteAddr, normalised so
// IPv4-mapped IPv6 forms share a key with plain IPv4. Forwarding headers are
// only trusted through chi's RealIP middleware, which rewrites RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String()
	}
	return host
}
