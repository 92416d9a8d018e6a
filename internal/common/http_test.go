package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientIP(t *testing.T) {
	cases := map[string]string{
		"203.0.113.7:443":          "203.0.113.7",
		"[2001:db8::1]:8080":       "2001:db8::1",
		"[::ffff:198.51.100.4]:80": "198.51.100.4",
		"198.51.100.9":             "198.51.100.9",
		"unix-socket":              "unix-socket",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		require.Equal(t, want, ClientIP(req), remote)
	}
}

func TestClientIPIgnoresForwardingHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:1234"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	require.Equal(t, "10.0.0.5", ClientIP(req))
	require.Empty(t, ClientIP(nil))
}
