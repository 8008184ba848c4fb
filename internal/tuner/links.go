package tuner

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/catalog"
	"github.com/snapetech/stalkertuner/internal/portal"
	"github.com/snapetech/stalkertuner/internal/safeurl"
)

// channelIndex reads the index from /getlink/{index} or ?id=. ok is false when neither is
// given; valid is false when the value is not a non-negative integer.
func channelIndex(r *http.Request) (idx int, ok, valid bool) {
	raw := chi.URLParam(r, "index")
	if raw == "" {
		raw = r.URL.Query().Get("id")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, true, false
	}
	return n, true, true
}

// serveGetLink resolves the channel at the requested catalog index and redirects to its
// stream. When no URL comes back, the raw resolver result is returned as JSON.
func (s *Server) serveGetLink(w http.ResponseWriter, r *http.Request) {
	idx, ok, valid := channelIndex(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Channel id required (path or ?id=)")
		return
	}
	if !valid {
		writeError(w, http.StatusNotFound, "Invalid channel id")
		return
	}
	ctx := r.Context()
	sess, err := s.Portal.EnsureSession(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	cat := catalog.New()
	if _, err := cat.Load(ctx, s.Store); err != nil || cat.Len() == 0 {
		channels, err := s.Portal.FetchChannels(ctx, sess)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		cat.Replace(channels)
	}
	ch, found := cat.At(idx)
	if !found {
		writeError(w, http.StatusNotFound, "Invalid channel id")
		return
	}

	target, err := s.Portal.Resolve(ctx, sess, ch)
	switch {
	case errors.Is(err, portal.ErrNoCommand):
		writeError(w, http.StatusBadRequest, "No cmd available for channel")
		return
	case err != nil:
		log.WithError(err).Printf("getlink %d failed", idx)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if target.URL != "" {
		log.Debugf("getlink %d -> %s (%s)", idx, safeurl.Redact(target.URL), target.Branch)
		http.Redirect(w, r, target.URL, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, target.Raw)
}

// serveCreateLink passes ?cmd= straight to the portal's create_link.
func (s *Server) serveCreateLink(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if _, ok := q["cmd"]; !ok {
		writeError(w, http.StatusBadRequest, "cmd query param required")
		return
	}
	ctx := r.Context()
	sess, err := s.Portal.EnsureSession(ctx, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res, err := s.Portal.CreateLink(ctx, sess, q.Get("cmd"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res.Payload())
}

// serveRefresh forces a handshake plus profile sync.
func (s *Server) serveRefresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Portal.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "token": sess.Token})
}
