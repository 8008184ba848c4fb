package httpclient

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryPolicy controls retries of transport failures (DNS, connect, timeout, reset).
// HTTP responses of any status are returned as-is: the portal signals application
// errors inside 200 bodies, and those go through the re-handshake path instead.
type RetryPolicy struct {
	Retries int           // extra attempts after the first
	Backoff time.Duration // fixed wait between attempts
}

// DefaultRetryPolicy: 2 retries, 500ms apart.
var DefaultRetryPolicy = RetryPolicy{Retries: 2, Backoff: 500 * time.Millisecond}

// NoRetry sends exactly once.
var NoRetry = RetryPolicy{}

// DoWithRetry builds a fresh request with newReq for every attempt and sends it with client.
// Context cancellation is never retried. Caller must close resp.Body when err == nil.
func DoWithRetry(ctx context.Context, client *http.Client, newReq func(ctx context.Context) (*http.Request, error), policy RetryPolicy) (*http.Response, error) {
	if client == nil {
		client = Default()
	}
	var lastErr error
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if attempt > 0 && policy.Backoff > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(policy.Backoff):
			}
		}
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, err
		}
	}
	return nil, lastErr
}
