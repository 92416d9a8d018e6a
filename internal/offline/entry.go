package offline

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxEntryBytes caps the body size of a response snapshot.
const DefaultMaxEntryBytes = 10 << 20

// Entry is a stored response snapshot.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body,omitempty"`
	StoredAt time.Time   `json:"storedAt"`
}

// hop-by-hop headers are connection scoped and never replayed.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

// Clone returns a deep copy so callers never share header maps or body slices
// with a store.
func (e Entry) Clone() Entry {
	out := e
	if e.Header != nil {
		out.Header = e.Header.Clone()
	}
	if e.Body != nil {
		out.Body = bytes.Clone(e.Body)
	}
	return out
}

// perClientHeaders belong to the client that triggered the fetch and are
// dropped before a snapshot enters the shared cache.
var perClientHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// shared returns the copy of e that may be stored for every client.
func (e Entry) shared() Entry {
	out := e.Clone()
	for _, h := range perClientHeaders {
		out.Header.Del(h)
	}
	return out
}

// shareable reports whether the answer to req may be stored in the cache all
// clients read from. Credentialed requests and private or no-store responses
// stay out of it.
func shareable(req *http.Request, e Entry) bool {
	if req != nil && (req.Header.Get("Authorization") != "" || req.Header.Get("Cookie") != "") {
		return false
	}
	for _, v := range e.Header.Values("Cache-Control") {
		for directive := range strings.SplitSeq(v, ",") {
			directive = strings.ToLower(strings.TrimSpace(directive))
			if directive == "no-store" || directive == "private" || strings.HasPrefix(directive, "private=") {
				return false
			}
		}
	}
	return true
}

// OK reports whether the snapshot may be written to a cache.
func (e Entry) OK() bool { return e.Status == http.StatusOK }

// WriteTo replays the snapshot on w.
func (e Entry) WriteTo(w http.ResponseWriter) error {
	dst := w.Header()
	for k, vs := range e.Header {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
	dst.Set("Content-Length", strconv.Itoa(len(e.Body)))
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, err := w.Write(e.Body)
	return err
}

// readEntry snapshots resp and closes its body. The second result is false
// when the body exceeded limit and was truncated, in which case the snapshot
// must not be stored.
func readEntry(resp *http.Response, limit int64, now time.Time) (Entry, bool, error) {
	defer func() { _ = resp.Body.Close() }()
	if limit <= 0 {
		limit = DefaultMaxEntryBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return Entry{}, false, err
	}
	complete := int64(len(body)) <= limit
	if !complete {
		body = body[:limit]
	}
	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}
	return Entry{Status: resp.StatusCode, Header: header, Body: body, StoredAt: now}, complete, nil
}

// Key returns the cache key for u: the absolute URL without its fragment.
func Key(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}
