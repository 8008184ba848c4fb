package portal

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/logging"
	"github.com/snapetech/stalkertuner/internal/metrics"
	"github.com/snapetech/stalkertuner/internal/store"
)

// Session is the persisted result of a handshake. It is replaced whole, never patched.
type Session struct {
	Portal    string            `json:"portal"` // <base>/c/
	MAC       string            `json:"mac"`
	Token     string            `json:"token"`
	Cookie    string            `json:"cookie"`
	Headers   map[string]string `json:"headers"`
	FetchedAt int64             `json:"fetched_at"` // unix milliseconds
}

// Handshake exchanges the device MAC for a session token and persists the new session.
// A response without a token fails with ErrNoToken; it is not retried.
func (c *Client) Handshake(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handshakeLocked(ctx)
}

func (c *Client) handshakeLocked(ctx context.Context) (*Session, error) {
	log.Printf("Handshake with %s", c.BaseURL)
	cookie := initialCookie(c.MAC)
	u := c.loadURL("type=stb&action=handshake&prehash=" + EncodeUpper(c.MAC) + "&token=&JsHttpRequest=1-xml")
	resp, err := c.get(ctx, "handshake", u, BuildHeaders(c.BaseURL, cookie, ""), noRetry)
	if err != nil {
		metrics.Handshakes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("handshake: %w", err)
	}
	token := ""
	if root, err := catalog.DecodeJSON(resp.Body); err == nil {
		if m, ok := root.(map[string]interface{}); ok {
			if js, ok := m["js"].(map[string]interface{}); ok {
				token = catalog.String(js["token"])
			}
			if token == "" {
				token = catalog.String(m["token"])
			}
		}
	}
	cookie = mergeCookies(cookie, resp.Cookies)
	if token == "" {
		metrics.Handshakes.WithLabelValues("no_token").Inc()
		return nil, ErrNoToken
	}
	sess := &Session{
		Portal:    c.BaseURL + "/c/",
		MAC:       c.MAC,
		Token:     token,
		Cookie:    cookie,
		Headers:   BuildHeaders(c.BaseURL, cookie, token),
		FetchedAt: c.now().UnixMilli(),
	}
	if err := store.SaveJSON(ctx, c.Store, store.KeySession, sess); err != nil {
		log.WithError(err).Warn("Handshake: session not persisted")
	}
	metrics.Handshakes.WithLabelValues("ok").Inc()
	log.Printf("Handshake token: %s", logging.Redact(token))
	return sess, nil
}

// Validate probes get_profile with the session's headers. The session is valid only when
// the response carries a non-empty id or phone at the top level or under js. Transport
// and decode failures count as invalid.
func (c *Client) Validate(ctx context.Context, sess *Session) bool {
	if sess == nil || sess.Token == "" {
		return false
	}
	resp, err := c.get(ctx, "get_profile", c.profileURL(), sess.Headers, noRetry)
	if err != nil {
		log.WithError(err).Debug("Validate: probe failed")
		return false
	}
	root, err := catalog.DecodeJSON(resp.Body)
	if err != nil {
		return false
	}
	m, ok := root.(map[string]interface{})
	if !ok {
		return false
	}
	if js, ok := m["js"].(map[string]interface{}); ok {
		if !catalog.IsEmpty(js["id"]) || !catalog.IsEmpty(js["phone"]) {
			return true
		}
	}
	return !catalog.IsEmpty(m["id"]) || !catalog.IsEmpty(m["phone"])
}

// EnsureSession returns a usable session:
//  1. none persisted, force, or older than SessionMaxAge: handshake, then profile sync;
//  2. persisted but failing Validate: same as 1;
//  3. otherwise keep it, syncing the profile if that is absent or older than ProfileMaxAge.
//
// Profile sync is best-effort; only a failed handshake is returned as an error.
func (c *Client) EnsureSession(ctx context.Context, force bool) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var sess Session
	_, ok := store.LoadJSON(ctx, c.Store, store.KeySession, &sess)
	stale := !ok || sess.Token == "" || sess.MAC != c.MAC ||
		c.now().UnixMilli()-sess.FetchedAt > c.SessionMaxAge.Milliseconds()
	if force || stale {
		log.Printf("No recent session, doing handshake")
		return c.refreshLocked(ctx)
	}
	if !c.Validate(ctx, &sess) {
		log.Printf("Session invalid, re-handshake")
		return c.refreshLocked(ctx)
	}
	var profile interface{}
	mod, ok := store.LoadJSON(ctx, c.Store, store.KeyProfile, &profile)
	if !ok || c.now().Sub(mod) > c.ProfileMaxAge {
		c.syncProfile(ctx, &sess)
	}
	return &sess, nil
}

// refreshLocked handshakes and syncs the profile. Caller holds c.mu.
func (c *Client) refreshLocked(ctx context.Context) (*Session, error) {
	sess, err := c.handshakeLocked(ctx)
	if err != nil {
		return nil, err
	}
	c.syncProfile(ctx, sess)
	return sess, nil
}

// Refresh forces a new handshake plus profile sync.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	return c.EnsureSession(ctx, true)
}
