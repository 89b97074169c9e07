package restclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// HTTPDoer executes requests. *http.Client and *RetryClient satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryClient retries throttled and unavailable collaborator calls.
//
// Transport errors and 429/500/502/503/504 are retried with full-jitter
// exponential backoff. A Retry-After header on the response takes the place
// of the computed wait, capped at maxDelay. The final response is returned
// unread so Client can report its status and body.
type RetryClient struct {
	client     HTTPDoer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *slog.Logger
}

// NewRetryClient wraps client. A nil client gets a default with a 15s
// timeout; maxRetries <= 0 means 2.
func NewRetryClient(client HTTPDoer, maxRetries int, log *slog.Logger) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxRetries <= 0 {
		maxRetries = 2
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryClient{
		client:     client,
		maxRetries: maxRetries,
		baseDelay:  200 * time.Millisecond,
		maxDelay:   2 * time.Second,
		log:        log,
	}
}

func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var wait time.Duration
	var lastErr error

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if err := rewind(req); err != nil {
				return nil, err
			}
			rc.log.Debug("retrying collaborator call", "attempt", attempt,
				"method", req.Method, "path", req.URL.Path, "wait", wait, "cause", lastErr)
			if err := sleep(ctx, wait); err != nil {
				return nil, lastErr
			}
		}

		resp, err := rc.client.Do(req)
		final := attempt == rc.maxRetries
		switch {
		case err != nil:
			if ctx.Err() != nil || final {
				return nil, err
			}
			lastErr = err
			wait = rc.backoff(attempt + 1)
		case !retryableStatus(resp.StatusCode) || final:
			return resp, nil
		default:
			wait = rc.backoff(attempt + 1)
			if d, ok := retryAfter(resp.Header.Get("Retry-After")); ok {
				wait = min(d, rc.maxDelay)
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("restclient: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
		}
	}
}

// backoff is a uniform draw from [0, min(maxDelay, baseDelay<<(n-1))).
func (rc *RetryClient) backoff(n int) time.Duration {
	ceiling := rc.maxDelay
	if shift := n - 1; shift < 32 {
		if d := rc.baseDelay << shift; d > 0 && d < ceiling {
			ceiling = d
		}
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}

// rewind restores the request body for another attempt.
func rewind(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return fmt.Errorf("restclient: %s %s: body cannot be replayed", req.Method, req.URL.Path)
	}
	body, err := req.GetBody()
	if err != nil {
		return fmt.Errorf("restclient: reset request body: %w", err)
	}
	req.Body = body
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryAfter parses a Retry-After value given in seconds or as an HTTP date.
func retryAfter(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	return max(time.Until(at), 0), true
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
