package catalog

import (
	"bytes"
	"encoding/json"
	"sort"
)

var utf8BOM = []byte("\xef\xbb\xbf")

// keyOrder returns m's keys in the order the object at path appears in data. Duplicate
// keys keep their first position. Keys data does not account for are appended sorted.
func keyOrder(m map[string]interface{}, data []byte, path []string) []string {
	var keys []string
	if data != nil {
		keys, _ = objectKeys(data, path)
	}
	seen := make(map[string]bool, len(m))
	out := make([]string, 0, len(m))
	for _, k := range keys {
		if _, ok := m[k]; ok && !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	var rest []string
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// objectKeys lists, in document order, the keys of the object found by following path
// from the top-level object in data. A repeated path key resolves to its last occurrence,
// as in decoding.
func objectKeys(data []byte, path []string) ([]string, bool) {
	data = bytes.TrimPrefix(bytes.TrimSpace(data), utf8BOM)
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, false
	}
	var keys []string
	var next json.RawMessage
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		k, _ := tok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, false
		}
		if len(path) == 0 {
			keys = append(keys, k)
		} else if k == path[0] {
			next = raw
		}
	}
	if len(path) == 0 {
		return keys, true
	}
	if next == nil {
		return nil, false
	}
	return objectKeys(next, path[1:])
}
