// Package tuner is the HTTP surface: playlist, link resolution, session refresh and the
// info page, routed with chi.
package tuner

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/metrics"
	"github.com/snapetech/stalkertuner/internal/playlist"
	"github.com/snapetech/stalkertuner/internal/portal"
	"github.com/snapetech/stalkertuner/internal/store"
)

// Server serves the playlist and link endpoints for one portal client.
type Server struct {
	Addr    string
	BaseURL string // public base for playlist links; empty = derive from each request

	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-* headers are honoured.
	// Forwarded headers from anyone else are dropped.
	TrustedProxies []string

	Portal *portal.Client
	Cache  *playlist.Cache
	Store  store.Store
}

// Handler returns the routed handler with logging and recovery middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(stripForwarded(parseTrustedProxies(s.TrustedProxies)))
	r.Use(middleware.RealIP)
	r.Use(logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.serveInfo)
	r.Get("/index.php", s.serveInfo)
	r.Get("/refresh_session", s.serveRefresh)
	r.Get("/playlist.m3u", s.servePlaylist)
	r.Get("/getlink", s.serveGetLink)
	r.Get("/getlink/{index}", s.serveGetLink)
	r.Get("/create_link", s.serveCreateLink)
	r.Get("/healthz", s.serveHealth)
	r.Handle("/metrics", metrics.Handler())
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = ":8080"
	}
	if s.BaseURL == "" {
		log.Warn("No base URL set: playlist links follow each request's Host header. Set STALKER_TUNER_BASE_URL when untrusted clients can reach this server")
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("Tuner listening on %s (BaseURL %q, portal %s)", addr, s.BaseURL, s.Portal.BaseURL)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("Shutting down tuner ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Tuner shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// baseURL is the configured BaseURL, or scheme://host of the request. X-Forwarded-Proto
// and X-Forwarded-Host only reach here from trusted proxies.
func (s *Server) baseURL(r *http.Request) string {
	if s.BaseURL != "" {
		return strings.TrimSuffix(s.BaseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	switch p := strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0])); p {
	case "http", "https":
		scheme = p
	}
	host := forwardedHost(r)
	if host == "" {
		host = r.Host
	}
	if host == "" {
		host = "localhost"
	}
	return scheme + "://" + host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Warn("http: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests logs one line per request and feeds the HTTP metrics. Each request gets an
// X-Request-Id (the caller's, or a fresh uuid).
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		dur := time.Since(start)
		route := ""
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		metrics.Observe(r.Method, route, status, dur)
		log.WithField("request_id", reqID).Printf(
			"http: %s %s status=%d bytes=%d dur=%s ua=%q remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, dur.Round(time.Millisecond), r.UserAgent(), r.RemoteAddr,
		)
	})
}

// serveHealth returns 200 {"status":"ok",...} once a channel catalog is stored, 503
// {"status":"loading"} before.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	count := 0
	var lastRefresh time.Time
	if doc, err := s.Store.Load(r.Context(), store.KeyChannels); err == nil {
		if channels, err := catalog.Decode(doc.Data); err == nil {
			count = len(channels)
			lastRefresh = doc.ModTime
		}
	}
	if count == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"channels":     count,
		"last_refresh": lastRefresh.UTC().Format(time.RFC3339),
	})
}
