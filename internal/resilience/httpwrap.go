package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient sends origin requests with per-attempt timeouts, retries 5xx and
// transport errors with backoff, and reports every outcome to Breaker.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	// MaxBackoff caps both the computed backoff and an upstream Retry-After.
	MaxBackoff  time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// ErrNoClient is returned by Do when Client is nil.
var ErrNoClient = errors.New("resilience: http client not configured")

// StatusError reports an upstream 5xx answer that exhausted the retries.
type StatusError struct {
	Code       int
	Status     string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e.Status != "" {
		return "resilience: upstream " + e.Status
	}
	return "resilience: upstream status " + strconv.Itoa(e.Code)
}

// Do sends req until it gets an answer below 500 or runs out of attempts. The
// body is buffered once so every attempt replays it. When the caller's ctx
// ends, Do returns ctx.Err() and the breaker is not charged for it.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, ErrNoClient
	}
	attempts := max(cl.MaxAttempts, 1)
	next, err := replayable(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !cl.Breaker.Allow(ctx) {
			if lastErr == nil {
				return nil, ErrOpenCircuit
			}
			return nil, errors.Join(ErrOpenCircuit, lastErr)
		}
		resp, err := cl.attempt(ctx, next(ctx))
		switch {
		case err == nil && resp.StatusCode < http.StatusInternalServerError:
			cl.Breaker.Report(ctx, true)
			return resp, nil
		case ctx.Err() != nil:
			cl.Breaker.Release()
			if resp != nil {
				discard(resp)
			}
			return nil, ctx.Err()
		case err != nil:
			lastErr = err
		default:
			lastErr = &StatusError{
				Code:       resp.StatusCode,
				Status:     resp.Status,
				RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
			discard(resp)
		}
		cl.Breaker.Report(ctx, false)
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, cl.delay(attempt, lastErr)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) delay(attempt int, lastErr error) time.Duration {
	d := CappedBackoff(cl.BaseBackoff, cl.MaxBackoff, attempt, cl.Jitter)
	var se *StatusError
	if errors.As(lastErr, &se) && se.RetryAfter > d {
		d = se.RetryAfter
		if cl.MaxBackoff > 0 {
			d = min(d, cl.MaxBackoff)
		}
	}
	return d
}

// attempt issues one request. The per-attempt deadline is released when the
// response body is closed, not when attempt returns.
func (cl HTTPClient) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Timeout <= 0 {
		return cl.Client.Do(req.WithContext(ctx))
	}
	callCtx, cancel := context.WithTimeout(ctx, cl.Timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// discard reads a little of a failed body so the connection can be reused.
func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// replayable buffers req's body and returns a constructor for per-attempt
// copies of req bound to a context.
func replayable(req *http.Request) (func(context.Context) *http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func(ctx context.Context) *http.Request { return req.Clone(ctx) }, nil
	}
	src := req.Body
	if req.GetBody != nil {
		var err error
		if src, err = req.GetBody(); err != nil {
			return nil, err
		}
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}
	getBody := func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(data)), nil }
	return func(ctx context.Context) *http.Request {
		clone := req.Clone(ctx)
		clone.Body, _ = getBody()
		clone.GetBody = getBody
		clone.ContentLength = int64(len(data))
		return clone
	}, nil
}

// retryAfter parses a Retry-After header in either delta-seconds or HTTP-date
// form. Unparseable or past values yield zero.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
