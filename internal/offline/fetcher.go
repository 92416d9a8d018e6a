package offline

import (
	"context"
	"net/http"

	"github.com/noah-isme/backend-invoice/internal/resilience"
)

// Fetcher performs a network fetch. An error means the network could not
// produce a usable response.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// HTTPFetcher fetches from the origin through the resilience client, so
// transient 5xx answers are retried and a failing origin trips the breaker.
// A 5xx that survives the retries counts as a network failure.
type HTTPFetcher struct {
	Client resilience.HTTPClient
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f.Client.Do(ctx, req)
}
