package schema

import (
	"strconv"
	"strings"
)

// SplitPath splits a dotted path into segments, turning bracket indices
// ("items[0].name") into plain segments ("items", "0", "name").
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	path = strings.ReplaceAll(path, "[", ".")
	path = strings.ReplaceAll(path, "]", "")
	return strings.Split(path, ".")
}

// Lookup walks root along segments through nested objects and arrays.
// It reports false when any segment is missing, empty or out of range.
func Lookup(root any, segments []string) (any, bool) {
	current := root
	for _, seg := range segments {
		if seg == "" {
			return nil, false
		}
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// LookupField finds field in a flat payload, trying the exact key first so
// keys that contain dots still work, then falling back to a dotted walk.
func LookupField(payload map[string]any, field string) (any, bool) {
	if payload == nil || field == "" {
		return nil, false
	}
	if v, ok := payload[field]; ok {
		return v, true
	}
	if !strings.ContainsAny(field, ".[") {
		return nil, false
	}
	return Lookup(payload, SplitPath(field))
}
