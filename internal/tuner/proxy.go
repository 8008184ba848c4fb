package tuner

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/http/httpguts"
)

// forwardedHeaders are only honoured when the connecting peer is a trusted proxy.
var forwardedHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Real-IP",
	"True-Client-IP",
}

// proxyTrust is the set of peers allowed to set forwarded headers.
type proxyTrust []netip.Prefix

// parseTrustedProxies accepts IPs and CIDRs. Invalid entries are logged and skipped.
func parseTrustedProxies(vals []string) proxyTrust {
	var out proxyTrust
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if p, err := netip.ParsePrefix(v); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			log.Warnf("Ignoring trusted proxy %q: not an IP or CIDR", v)
			continue
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

func (p proxyTrust) trusts(remoteAddr string) bool {
	if len(p) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// stripForwarded drops forwarded headers from requests whose peer is not trusted, so
// neither RealIP nor the playlist base URL can be steered by arbitrary clients.
func stripForwarded(trusted proxyTrust) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !trusted.trusts(r.RemoteAddr) {
				for _, h := range forwardedHeaders {
					r.Header.Del(h)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedHost returns the first X-Forwarded-Host value when it is a valid host.
func forwardedHost(r *http.Request) string {
	v := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Host"), ",")[0])
	if v == "" || !httpguts.ValidHostHeader(v) {
		return ""
	}
	return v
}
