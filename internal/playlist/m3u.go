package playlist

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/snapetech/stalkertuner/internal/catalog"
)

const maxLineSize = 1 << 20 // 1 MiB per line

// Entry is one playlist item. Index is the catalog position the URL points at.
type Entry struct {
	Index int
	Name  string
	Logo  string
	Group string
	URL   string
}

// LinkURL is the self-referential playback URL for catalog index i.
func LinkURL(base string, i int) string {
	return strings.TrimSuffix(base, "/") + "/getlink/" + strconv.Itoa(i)
}

// Entries builds one Entry per channel, in catalog order.
func Entries(channels []catalog.Channel, base string) []Entry {
	out := make([]Entry, 0, len(channels))
	for i, ch := range channels {
		out = append(out, Entry{
			Index: i,
			Name:  ch.Name(i),
			Logo:  ch.Logo(),
			Group: ch.Group(),
			URL:   LinkURL(base, i),
		})
	}
	return out
}

// Render returns the M3U text for channels. Stream URLs never point at the portal:
// each is <base>/getlink/<i>, so link resolution runs fresh on every playback.
func Render(channels []catalog.Channel, base string) string {
	return Encode(Entries(channels, base))
}

// Encode writes entries as M3U lines joined by "\n". Double quotes in attribute values
// become apostrophes; line breaks in names become spaces.
func Encode(entries []Entry) string {
	var b strings.Builder
	b.WriteString("#EXTM3U")
	for _, e := range entries {
		b.WriteString("\n#EXTINF:-1 tvg-logo=\"")
		b.WriteString(attr(e.Logo))
		b.WriteString("\" group-title=\"")
		b.WriteString(attr(e.Group))
		b.WriteString("\",")
		b.WriteString(strings.NewReplacer("\r", " ", "\n", " ").Replace(e.Name))
		b.WriteString("\n")
		b.WriteString(e.URL)
	}
	return b.String()
}

func attr(s string) string {
	return strings.NewReplacer(`"`, "'", "\r", " ", "\n", " ").Replace(s)
}

var attrRe = regexp.MustCompile(`([A-Za-z0-9_-]+)="([^"]*)"`)

// Parse reads EXTINF + URL pairs. Lines between an EXTINF and its URL (#EXTGRP etc.)
// are skipped; an EXTINF with no URL is dropped.
func Parse(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)
	var entries []Entry
	var extinf string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXTINF:") {
			extinf = line
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if extinf != "" {
			entries = append(entries, parseEntry(extinf, line))
			extinf = ""
		}
	}
	return entries, sc.Err()
}

func parseEntry(extinf, url string) Entry {
	e := Entry{Index: -1, URL: url}
	for _, m := range attrRe.FindAllStringSubmatch(extinf, -1) {
		switch strings.ToLower(m[1]) {
		case "tvg-logo":
			e.Logo = m[2]
		case "group-title":
			e.Group = m[2]
		}
	}
	// The display name follows the first comma after the last attribute.
	rest := extinf
	if q := strings.LastIndex(rest, `"`); q >= 0 {
		rest = rest[q+1:]
	}
	if i := strings.Index(rest, ","); i >= 0 {
		e.Name = strings.TrimSpace(rest[i+1:])
	}
	if i := strings.LastIndex(url, "/getlink/"); i >= 0 {
		if n, err := strconv.Atoi(url[i+len("/getlink/"):]); err == nil {
			e.Index = n
		}
	}
	return e
}

// Filter keeps entries whose name contains any include term (all entries when include
// is empty), drops entries whose name contains any exclude term, and keeps only the
// first entry per lowercased name. Matching is case-insensitive. URLs are untouched,
// so filtered playlists still address original catalog indices.
func Filter(entries []Entry, include, exclude []string) []Entry {
	include = lowerTerms(include)
	exclude = lowerTerms(exclude)
	seen := map[string]bool{}
	var out []Entry
	for _, e := range entries {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if len(include) > 0 && !containsAny(name, include) {
			continue
		}
		if containsAny(name, exclude) {
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, e)
	}
	return out
}

// FilterGroups keeps entries whose group-title equals one of groups, ignoring case and
// surrounding space. An empty groups list keeps everything.
func FilterGroups(entries []Entry, groups []string) []Entry {
	groups = lowerTerms(groups)
	if len(groups) == 0 {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		g := strings.ToLower(strings.TrimSpace(e.Group))
		for _, want := range groups {
			if g == want {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// SplitTerms splits a comma-separated query value into trimmed, non-empty terms.
func SplitTerms(vals ...string) []string {
	var out []string
	for _, v := range vals {
		for _, t := range strings.Split(v, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

func lowerTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
