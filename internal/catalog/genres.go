package catalog

import (
	"sort"
	"strconv"
	"strings"
)

// GenreMap maps a portal category id to its display name.
type GenreMap map[string]string

// lookup tries the exact key, the trimmed key, then any key numerically equal to id.
func (g GenreMap) lookup(id string) string {
	if name := g[id]; name != "" {
		return name
	}
	trimmed := strings.TrimSpace(id)
	if name := g[trimmed]; name != "" {
		return name
	}
	want, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return ""
	}
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if f, err := strconv.ParseFloat(strings.TrimSpace(k), 64); err == nil && f == want && g[k] != "" {
			return g[k]
		}
	}
	return ""
}

var (
	genreIDKeys   = []string{"id", "genre_id", "tv_genre_id", "category_id", "key"}
	genreNameKeys = []string{"name", "title", "genre_name", "tv_genre_name", "category_name"}
)

// GenreList picks the category payload out of a decoded genre response:
// js.data, js as a list, the body as a list, data, or the body itself.
// It returns nil when the payload is empty.
func GenreList(root interface{}) interface{} {
	var out interface{}
	switch t := root.(type) {
	case []interface{}:
		out = t
	case map[string]interface{}:
		switch js := t["js"].(type) {
		case map[string]interface{}:
			if d, ok := js["data"]; ok {
				out = d
			} else {
				out = pickData(t)
			}
		case []interface{}:
			out = js
		default:
			out = pickData(t)
		}
	}
	if isEmpty(out) {
		return nil
	}
	return out
}

func pickData(m map[string]interface{}) interface{} {
	if d, ok := m["data"]; ok {
		return d
	}
	return m
}

// NormalizeGenres turns a genre payload into a GenreMap. A list holds category objects
// (id from id|genre_id|tv_genre_id|category_id|key, name from
// name|title|genre_name|tv_genre_name|category_name); an object maps id to either a
// name string or an object carrying name/title.
func NormalizeGenres(payload interface{}) GenreMap {
	out := GenreMap{}
	switch t := payload.(type) {
	case []interface{}:
		for _, item := range t {
			g, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			id := ""
			for _, k := range genreIDKeys {
				if s, ok := scalarString(g[k]); ok && s != "" {
					id = s
					break
				}
			}
			if id == "" {
				continue
			}
			name := ""
			for _, k := range genreNameKeys {
				if v, present := g[k]; present && v != nil {
					name, _ = scalarString(v)
					break
				}
			}
			out[id] = strings.TrimSpace(name)
		}
	case map[string]interface{}:
		for k, v := range t {
			switch vv := v.(type) {
			case string:
				out[k] = vv
			case map[string]interface{}:
				for _, nk := range []string{"name", "title"} {
					if nv, present := vv[nk]; present && nv != nil {
						if s := String(nv); s != "" {
							out[k] = s
						}
						break
					}
				}
			}
		}
	}
	return out
}

// SynthesizeGenres builds a GenreMap from the channel list itself when no portal endpoint
// produced one. First pass: each distinct category-like string gets ids 1, 2, ... in
// first-seen order. If that finds nothing, second pass: each distinct genre id value
// becomes "Category <n>".
func SynthesizeGenres(list []interface{}) GenreMap {
	out := GenreMap{}
	seen := map[string]bool{}
	for _, item := range list {
		ch, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		cat := Channel(ch).explicitCategory()
		if cat == "" || seen[cat] {
			continue
		}
		seen[cat] = true
		out[strconv.Itoa(len(out)+1)] = cat
	}
	if len(out) > 0 {
		return out
	}
	for _, item := range list {
		ch, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		for _, f := range idFields {
			s, ok := scalarString(ch[f])
			if !ok || s == "" {
				continue
			}
			if _, dup := out[s]; !dup {
				out[s] = "Category " + strconv.Itoa(len(out)+1)
			}
		}
	}
	return out
}
