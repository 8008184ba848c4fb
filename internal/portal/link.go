package portal

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/metrics"
	"github.com/snapetech/stalkertuner/internal/safeurl"
	"github.com/snapetech/stalkertuner/internal/store"
)

var httpURLRe = regexp.MustCompile(`(?i)(https?://[^\s"']+)`)

// LinkResult is the outcome of a create_link call.
// NonJSON marks a body that did not decode; it is a result, not an error, so callers can
// re-handshake and retry.
type LinkResult struct {
	NonJSON bool
	Text    string      // raw body when NonJSON
	Value   interface{} // decoded js (or the whole body when it has no js)
}

// Payload returns the result as a JSON-encodable value.
func (r *LinkResult) Payload() interface{} {
	if r.NonJSON {
		return map[string]interface{}{"status": "non-json", "text": r.Text}
	}
	return r.Value
}

// CreateLink asks the portal to turn cmd into a playable link. A command that is not
// ffrt-prefixed but already embeds an http(s) URL is answered locally as
// {direct, source_cmd}. Successful JSON results are stored as the last created link.
func (c *Client) CreateLink(ctx context.Context, sess *Session, cmd string) (*LinkResult, error) {
	short := cmd
	if len(short) > 120 {
		short = short[:120] + "..."
	}
	log.Printf("create_link for cmd: %s", short)
	if m := httpURLRe.FindStringSubmatch(cmd); m != nil && !hasPrefixFold(strings.TrimSpace(cmd), "ffrt") {
		return &LinkResult{Value: map[string]interface{}{"direct": strings.TrimSpace(m[1]), "source_cmd": cmd}}, nil
	}
	u := c.loadURL("type=itv&action=create_link&cmd=" + EncodeUpper(cmd) + "&JsHttpRequest=1-xml")
	resp, err := c.get(ctx, "create_link", u, sess.Headers, noRetry)
	if err != nil {
		return nil, fmt.Errorf("create_link: %w", err)
	}
	root, err := catalog.DecodeJSON(resp.Body)
	if err != nil {
		return &LinkResult{NonJSON: true, Text: string(resp.Body)}, nil
	}
	switch t := root.(type) {
	case map[string]interface{}:
		if js, ok := t["js"]; ok && js != nil {
			root = js
		}
	case []interface{}:
	default:
		return &LinkResult{NonJSON: true, Text: string(resp.Body)}, nil
	}
	if err := store.SaveJSON(ctx, c.Store, store.KeyCreatedLink, root); err != nil {
		log.WithError(err).Warn("create_link: result not persisted")
	}
	return &LinkResult{Value: root}, nil
}

// Target is what a channel resolves to: a URL to redirect to, or, when the portal gave
// none, a JSON value to hand back instead.
type Target struct {
	URL    string
	Raw    interface{}
	Branch string // direct, ffmpeg, ffrt, create_link
}

// Resolve turns ch's command into a stream URL. First match wins:
//  1. an embedded http(s) URL in a command not starting with ffrt is returned as-is;
//  2. an ffmpeg-prefixed command yields the URL after the prefix;
//  3. an ffrt command goes through create_link; the portal's direct/cmd/url wins,
//     otherwise its decoded response is returned raw;
//  4. anything else also goes through create_link, falling back to the raw command.
//
// A non-JSON create_link answer triggers exactly one re-handshake and one retry.
func (c *Client) Resolve(ctx context.Context, sess *Session, ch catalog.Channel) (*Target, error) {
	cmd := ch.Command()
	if cmd == "" {
		return nil, ErrNoCommand
	}

	if m := httpURLRe.FindStringSubmatch(cmd); m != nil && !hasPrefixFold(cmd, "ffrt") {
		metrics.LinkResolutions.WithLabelValues("direct").Inc()
		return &Target{URL: strings.TrimSpace(m[1]), Branch: "direct"}, nil
	}

	if hasPrefixFold(cmd, "ffmpeg") {
		stripped := strings.TrimSpace(cmd[len("ffmpeg"):])
		if m := httpURLRe.FindStringSubmatch(stripped); m != nil {
			metrics.LinkResolutions.WithLabelValues("ffmpeg").Inc()
			return &Target{URL: strings.TrimSpace(m[1]), Branch: "ffmpeg"}, nil
		}
	}

	branch := "create_link"
	if hasPrefixFold(cmd, "ffrt") {
		branch = "ffrt"
	}
	res, err := c.createLinkRetry(ctx, sess, cmd)
	if err != nil {
		metrics.LinkResolutions.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.LinkResolutions.WithLabelValues(branch).Inc()
	if u := extractLinkURL(res); u != "" {
		return &Target{URL: u, Branch: branch}, nil
	}
	if branch == "ffrt" {
		return &Target{Raw: res.Payload(), Branch: branch}, nil
	}
	return &Target{Raw: map[string]interface{}{"cmd": cmd}, Branch: branch}, nil
}

// createLinkRetry calls CreateLink; on a non-JSON answer it re-handshakes once and retries
// once with the new session. A failed re-handshake or retry keeps the non-JSON result.
func (c *Client) createLinkRetry(ctx context.Context, sess *Session, cmd string) (*LinkResult, error) {
	res, err := c.CreateLink(ctx, sess, cmd)
	if err != nil || !res.NonJSON {
		return res, err
	}
	log.Warn("create_link returned non-json, re-handshake and retry")
	fresh, herr := c.Handshake(ctx)
	if herr != nil {
		log.WithError(herr).Warn("Re-handshake after non-json create_link failed")
		return res, nil
	}
	retried, rerr := c.CreateLink(ctx, fresh, cmd)
	if rerr != nil {
		log.WithError(rerr).Warn("create_link retry failed; keeping the non-json result")
		return res, nil
	}
	return retried, nil
}

// extractLinkURL returns the first of direct, cmd or url from the result, then cmd/url
// nested one level under js. Only http(s) values qualify.
func extractLinkURL(res *LinkResult) string {
	if res == nil || res.NonJSON {
		return ""
	}
	js, ok := res.Value.(map[string]interface{})
	if !ok {
		return ""
	}
	if s, ok := js["direct"].(string); ok && safeurl.IsHTTPOrHTTPS(s) {
		return strings.TrimSpace(s)
	}
	if u := httpField(js, "cmd"); u != "" {
		return u
	}
	if u := httpField(js, "url"); u != "" {
		return u
	}
	if nested, ok := js["js"].(map[string]interface{}); ok {
		if u := httpField(nested, "cmd"); u != "" {
			return u
		}
		return httpField(nested, "url")
	}
	return ""
}

// httpField returns m[key] when it is a string starting with http. Portals often answer
// create_link with "ffmpeg http://..."; the ffmpeg wrapper is stripped first.
func httpField(m map[string]interface{}, key string) string {
	s, ok := m[key].(string)
	if !ok || catalog.IsEmpty(s) {
		return ""
	}
	s = strings.TrimSpace(s)
	if hasPrefixFold(s, "ffmpeg ") {
		s = strings.TrimSpace(s[len("ffmpeg "):])
	}
	if !hasPrefixFold(s, "http") {
		return ""
	}
	return s
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
