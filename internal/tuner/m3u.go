package tuner

import (
	"net/http"
	"strings"

	"github.com/snapetech/stalkertuner/internal/playlist"
)

// servePlaylist serves the cached playlist, regenerating it through the cache when stale.
// ?group=, ?include=a,b and ?exclude=c narrow the served entries without renumbering
// their links.
// Failures are answered as a plaintext M3U comment so players don't choke on JSON.
func (s *Server) servePlaylist(w http.ResponseWriter, r *http.Request) {
	text, err := s.Cache.Get(r.Context(), s.Portal, s.baseURL(r))
	if err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		if playlist.IsFetchError(err) {
			_, _ = w.Write([]byte("# Error fetching channels: " + err.Error()))
		} else {
			_, _ = w.Write([]byte("# Error: " + err.Error()))
		}
		return
	}

	q := r.URL.Query()
	include := playlist.SplitTerms(q["include"]...)
	exclude := playlist.SplitTerms(q["exclude"]...)
	groups := playlist.SplitTerms(q["group"]...)
	if len(include) > 0 || len(exclude) > 0 || len(groups) > 0 {
		entries, err := playlist.Parse(strings.NewReader(text))
		if err == nil {
			text = playlist.Encode(playlist.Filter(playlist.FilterGroups(entries, groups), include, exclude))
		}
	}

	w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="playlist.m3u"`)
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(text))
}
