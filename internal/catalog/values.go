package catalog

import (
	"encoding/json"
	"strconv"
	"strings"
)

// scalarString renders a JSON scalar the way a string cast would. ok is false for null,
// objects and arrays.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case bool:
		if t {
			return "1", true
		}
		return "", true
	}
	return "", false
}

// isEmpty reports whether v is a portal "empty" value: null, "", "0", 0, false or an
// empty list/object. Portals use all of these to mean "not set".
func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == "" || t == "0"
	case json.Number:
		f, err := t.Float64()
		return err == nil && f == 0
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	case []interface{}:
		return len(t) == 0
	case map[string]interface{}:
		return len(t) == 0
	}
	return false
}

// IsEmpty is isEmpty for callers outside the package that inspect portal responses.
func IsEmpty(v interface{}) bool { return isEmpty(v) }

// String returns v as a string when it is a non-empty JSON scalar.
func String(v interface{}) string {
	if isEmpty(v) {
		return ""
	}
	s, _ := scalarString(v)
	return strings.TrimSpace(s)
}
