// Package portal talks to a Stalker/Ministra middleware portal as a virtual MAG set-top box:
// handshake and session upkeep, profile sync, genre and channel discovery, and turning a
// channel's playback command into a stream URL.
package portal

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/snapetech/stalkertuner/internal/httpclient"
	"github.com/snapetech/stalkertuner/internal/metrics"
	"github.com/snapetech/stalkertuner/internal/store"
)

// Client is the portal session manager. One Client per portal+MAC; it is safe for
// concurrent use. Session state lives in Store so it survives restarts.
type Client struct {
	BaseURL string // portal base, no trailing slash (e.g. http://host/stalker_portal)
	MAC     string
	Store   store.Store

	HTTP    *http.Client
	Retry   httpclient.RetryPolicy // genre/channel discovery only
	Limiter *httpclient.HostLimiter
	Sem     *httpclient.HostSemaphore

	SessionMaxAge time.Duration
	ProfileMaxAge time.Duration

	Now  func() time.Time
	Rand io.Reader // nonce source for profile metrics

	// mu serialises read session -> act -> write session.
	mu sync.Mutex
}

// New returns a Client with the default HTTP client, retry policy and session ages.
func New(baseURL, mac string, s store.Store) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		MAC:           strings.TrimSpace(mac),
		Store:         s,
		HTTP:          httpclient.NoRedirect(httpclient.Default()),
		Retry:         httpclient.DefaultRetryPolicy,
		Sem:           httpclient.GlobalHostSem,
		SessionMaxAge: 24 * time.Hour,
		ProfileMaxAge: 30 * time.Minute,
		Now:           time.Now,
		Rand:          rand.Reader,
	}
}

// loadURL returns <base>/server/load.php?<query>.
func (c *Client) loadURL(query string) string {
	return c.BaseURL + "/server/load.php?" + query
}

type response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Cookies []*http.Cookie
}

// get issues one portal GET. Transport failures are retried per policy; any HTTP status
// is returned to the caller, which judges the body.
func (c *Client) get(ctx context.Context, action, rawURL string, headers map[string]string, policy httpclient.RetryPolicy) (*response, error) {
	if c.BaseURL == "" {
		return nil, ErrNoPortal
	}
	if err := c.Limiter.Wait(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if c.Sem != nil {
		release, err := c.Sem.Acquire(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", action, err)
		}
		defer release()
	}
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return req, nil
	}
	resp, err := httpclient.DoWithRetry(ctx, c.HTTP, newReq, policy)
	if err != nil {
		metrics.PortalRequests.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()
	body, err := httpclient.DecodeBody(resp)
	if err != nil {
		metrics.PortalRequests.WithLabelValues(action, "error").Inc()
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	metrics.PortalRequests.WithLabelValues(action, "ok").Inc()
	return &response{Status: resp.StatusCode, Header: resp.Header, Body: body, Cookies: resp.Cookies()}, nil
}

func (c *Client) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

var noRetry = httpclient.NoRetry
