package portal

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/snapetech/stalkertuner/internal/device"
	"golang.org/x/net/http/httpguts"
)

const (
	// UserAgent is the stock MAG200/250 browser string portals expect.
	UserAgent  = "Mozilla/5.0 (QtEmbedded; U; Linux; C) AppleWebKit/533.3 (KHTML, like Gecko) MAG200 stbapp ver: 2 rev: 250 Safari/533.3"
	XUserAgent = "Model: " + device.Model + "; Link: WiFi"
)

// BuildHeaders returns the device-style request headers. cookie and token are omitted when empty.
func BuildHeaders(portal, cookie, token string) map[string]string {
	h := map[string]string{
		"User-Agent":      UserAgent,
		"X-User-Agent":    XUserAgent,
		"Referer":         strings.TrimRight(portal, "/") + "/c/",
		"Accept":          "*/*",
		"Connection":      "Keep-Alive",
		"Accept-Encoding": "gzip",
	}
	if cookie != "" {
		h["Cookie"] = cookie
	}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// EncodeUpper percent-encodes s as RFC 3986 (space as %20, only unreserved characters
// left bare). Escapes are uppercase hex, which some portal parsers require.
func EncodeUpper(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// initialCookie is the cookie a fresh device sends on handshake.
func initialCookie(mac string) string {
	return "mac=" + mac + "; stb_lang=en; timezone=GMT"
}

// mergeCookies folds Set-Cookie values into the cookie string base ("a=1; b=2").
// Names keep their first-seen position; a later value for the same name replaces the
// earlier one. Cookies with names or values unfit for a request header are dropped.
func mergeCookies(base string, set []*http.Cookie) string {
	var order []string
	vals := map[string]string{}
	add := func(name, value string) {
		if name == "" || !validCookieName(name) || !httpguts.ValidHeaderFieldValue(value) || strings.ContainsAny(value, ";\r\n") {
			return
		}
		if _, seen := vals[name]; !seen {
			order = append(order, name)
		}
		vals[name] = value
	}
	for _, part := range strings.Split(base, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok {
			add(strings.TrimSpace(name), strings.TrimSpace(value))
		}
	}
	for _, ck := range set {
		add(ck.Name, ck.Value)
	}
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, name+"="+vals[name])
	}
	return strings.Join(parts, "; ")
}

func validCookieName(name string) bool {
	for _, r := range name {
		if !httpguts.IsTokenRune(r) {
			return false
		}
	}
	return true
}
