// Package metrics registers the tuner's Prometheus collectors and serves them at /metrics.
//
//	stalker_portal_requests_total{action,result}   portal calls by load.php action
//	stalker_handshakes_total{result}               handshakes (ok, no_token, error)
//	stalker_link_resolutions_total{branch}         LinkResolver outcomes by decision branch
//	stalker_playlist_regenerations_total{reason}   missing, hash_changed, hits, empty
//	stalker_playlist_hits_total                    playlist fetches
//	stalker_http_requests_total{method,route,status}
//	stalker_http_request_duration_seconds{method,route}
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var PortalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stalker_portal_requests_total",
	Help: "Portal load.php requests by action and result.",
}, []string{"action", "result"})

var Handshakes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stalker_handshakes_total",
	Help: "Portal handshakes by result.",
}, []string{"result"})

var LinkResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stalker_link_resolutions_total",
	Help: "Link resolutions by decision branch.",
}, []string{"branch"})

var PlaylistRegenerations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stalker_playlist_regenerations_total",
	Help: "Playlist regenerations by trigger.",
}, []string{"reason"})

var PlaylistHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "stalker_playlist_hits_total",
	Help: "Playlist fetches recorded in the hit log.",
})

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stalker_http_requests_total",
	Help: "HTTP requests served, by route pattern.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "stalker_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records one served HTTP request. route should be the matched pattern
// ("/getlink/{index}"), never the raw path, to keep label cardinality bounded.
func Observe(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
