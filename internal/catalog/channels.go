package catalog

import "strings"

// ChannelList picks the channel array out of a decoded get_all_channels response.
// Accepted shapes, in order: {"js":{"data":[...]}}, a bare list, {"data":[...]}, or an
// object (js, data or the body) whose values are channel objects. Without the raw body an
// object's values are taken in key order; see ChannelListJSON.
func ChannelList(root interface{}) []interface{} {
	return channelList(root, nil)
}

// ChannelListJSON is ChannelList for a raw response body: channels delivered as an object
// keep the portal's key order, since list position is the channel's public index.
func ChannelListJSON(data []byte, root interface{}) []interface{} {
	return channelList(root, data)
}

func channelList(root interface{}, data []byte) []interface{} {
	switch t := root.(type) {
	case []interface{}:
		return t
	case map[string]interface{}:
		if js, ok := t["js"].(map[string]interface{}); ok {
			if d, present := js["data"]; present && d != nil {
				if list, ok := d.([]interface{}); ok {
					return list
				}
				return objectValues(d, data, "js", "data")
			}
		}
		if list, ok := t["data"].([]interface{}); ok {
			return list
		}
		if m, ok := t["data"].(map[string]interface{}); ok {
			return objectValues(m, data, "data")
		}
		var maybe interface{} = t
		var path []string
		if v, ok := t["js"]; ok && v != nil {
			maybe, path = v, []string{"js"}
		} else if v, ok := t["data"]; ok && v != nil {
			maybe, path = v, []string{"data"}
		}
		if list, ok := maybe.([]interface{}); ok {
			return list
		}
		return objectValues(maybe, data, path...)
	}
	return nil
}

// objectValues returns the object/list values of the object v, found at path in data.
// Keys follow their order in data; when data is absent or unreadable they are sorted.
func objectValues(v interface{}, data []byte, path ...string) []interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := keyOrder(m, data, path)
	var out []interface{}
	for _, k := range keys {
		switch m[k].(type) {
		case map[string]interface{}, []interface{}:
			out = append(out, m[k])
		}
	}
	return out
}

// ResolveCategory returns the display category for ch:
// an explicit category-like field wins; otherwise the genre map entry for the primary id
// (first present of tv_genre_id, genre_id, category_id); otherwise the entry for any id
// field on its own; otherwise Unknown.
func ResolveCategory(ch Channel, genres GenreMap) string {
	if s := ch.explicitCategory(); s != "" {
		return s
	}
	if len(genres) == 0 {
		return Unknown
	}
	for _, f := range idFields {
		v, present := ch[f]
		if !present || v == nil {
			continue
		}
		if id, ok := scalarString(v); ok && id != "" {
			if name := genres.lookup(id); name != "" {
				return strings.TrimSpace(name)
			}
		}
		break
	}
	for _, f := range idFields {
		id, ok := scalarString(ch[f])
		if !ok || id == "" {
			continue
		}
		if name := genres[id]; name != "" {
			return strings.TrimSpace(name)
		}
	}
	return Unknown
}

// Merge copies every entry of list into a Channel with a resolved "category".
// Non-object entries are kept as {"raw": v, "category": "Unknown"} so indices stay stable.
func Merge(list []interface{}, genres GenreMap) []Channel {
	out := make([]Channel, 0, len(list))
	for _, item := range list {
		src, ok := item.(map[string]interface{})
		if !ok {
			out = append(out, Channel{"raw": item, "category": Unknown})
			continue
		}
		ch := make(Channel, len(src)+1)
		for k, v := range src {
			ch[k] = v
		}
		ch["category"] = ResolveCategory(ch, genres)
		out = append(out, ch)
	}
	return out
}
