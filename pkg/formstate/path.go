package formstate

import (
	"strconv"
	"strings"
)

func splitPath(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	parts := strings.Split(name, ".")
	for _, part := range parts {
		if part == "" {
			return nil
		}
	}
	return parts
}

func getPath(root map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 || root == nil {
		return nil, false
	}
	var current any = root
	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at segments, creating intermediate maps, or slices
// when the next segment is numeric.
func setPath(root map[string]any, segments []string, value any) {
	if len(segments) == 0 || root == nil {
		return
	}
	setInto(root, segments, value)
}

func setInto(node any, segments []string, value any) any {
	segment := segments[0]
	last := len(segments) == 1

	if idx, err := strconv.Atoi(segment); err == nil && idx >= 0 {
		if list, ok := node.([]any); ok || node == nil {
			if len(list) <= idx {
				list = append(list, make([]any, idx+1-len(list))...)
			}
			if last {
				list[idx] = value
			} else {
				list[idx] = setInto(list[idx], segments[1:], value)
			}
			return list
		}
	}

	m, ok := node.(map[string]any)
	if !ok || m == nil {
		m = make(map[string]any)
	}
	if last {
		m[segment] = value
	} else {
		m[segment] = setInto(m[segment], segments[1:], value)
	}
	return m
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = deepCopy(v)
		}
		return clone
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []string:
		return append([]string(nil), typed...)
	default:
		return typed
	}
}

func copyValues(src map[string]any) map[string]any {
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = deepCopy(v)
	}
	return out
}

// isEmpty reports whether a value reads as "not filled in".
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case []string:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
