package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve_countsByRoute(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/getlink/{index}", "302"))
	Observe("GET", "/getlink/{index}", 302, 10*time.Millisecond)
	Observe("GET", "/getlink/{index}", 302, 20*time.Millisecond)
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "/getlink/{index}", "302"))
	if after-before != 2 {
		t.Errorf("delta = %v, want 2", after-before)
	}
	Observe("GET", "", 404, time.Millisecond)
	if testutil.ToFloat64(HTTPRequests.WithLabelValues("GET", "unmatched", "404")) < 1 {
		t.Error("empty route not recorded as unmatched")
	}
}

func TestHandler_exposesCollectors(t *testing.T) {
	PlaylistHits.Inc()
	Handshakes.WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"stalker_playlist_hits_total", "stalker_handshakes_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("missing %s in scrape output", name)
		}
	}
}
