// Package safeurl vets URLs that come back from a portal before they are redirected to or logged.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https and a host.
// Portal answers are untrusted: file://, javascript: and friends must never become a redirect.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		return false
	}
	s := strings.ToLower(parsed.Scheme)
	return s == "http" || s == "https"
}

// Redact drops userinfo and the query string (play tokens live there) for log lines.
// Values that don't parse are cut to 40 characters.
func Redact(u string) string {
	parsed, err := url.Parse(strings.TrimSpace(u))
	if err != nil || parsed.Host == "" {
		if len(u) > 40 {
			return u[:40] + "..."
		}
		return u
	}
	parsed.User = nil
	if parsed.RawQuery != "" {
		parsed.RawQuery = "..."
	}
	parsed.Fragment = ""
	return parsed.String()
}
