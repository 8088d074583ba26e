package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// walker accumulates issues while reading a decoded JSON tree. Every reader
// returns a zero value on failure so decoding continues and reports all
// problems in one pass.
type walker struct {
	issues []Issue
}

func (w *walker) add(path, msg string) {
	w.issues = append(w.issues, Issue{Path: path, Message: msg})
}

func (w *walker) object(path string, v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok {
		w.add(path, fmt.Sprintf("expected object, received %s", describe(v)))
		return nil, false
	}
	return obj, true
}

func (w *walker) requiredObject(obj map[string]any, path, key string) (map[string]any, bool) {
	raw, present := obj[key]
	if !present || raw == nil {
		w.add(join(path, key), "Required")
		return nil, false
	}
	return w.object(join(path, key), raw)
}

func (w *walker) requiredString(obj map[string]any, path, key string, nonEmpty bool) string {
	p := join(path, key)
	raw, present := obj[key]
	if !present || raw == nil {
		w.add(p, "Required")
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		w.add(p, fmt.Sprintf("expected string, received %s", describe(raw)))
		return ""
	}
	if nonEmpty && strings.TrimSpace(s) == "" {
		w.add(p, "must not be empty")
		return ""
	}
	return s
}

func (w *walker) optionalString(obj map[string]any, path, key string) string {
	raw, present := obj[key]
	if !present || raw == nil {
		return ""
	}
	s, ok := raw.(string)
	if !ok {
		w.add(join(path, key), fmt.Sprintf("expected string, received %s", describe(raw)))
		return ""
	}
	return s
}

func (w *walker) optionalBool(obj map[string]any, path, key string) bool {
	raw, present := obj[key]
	if !present || raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		w.add(join(path, key), fmt.Sprintf("expected boolean, received %s", describe(raw)))
		return false
	}
	return b
}

// optionalStrings returns nil for an absent or empty list.
func (w *walker) optionalStrings(obj map[string]any, path, key string) []string {
	raw, present := obj[key]
	if !present || raw == nil {
		return nil
	}
	p := join(path, key)
	items, ok := raw.([]any)
	if !ok {
		w.add(p, fmt.Sprintf("expected array, received %s", describe(raw)))
		return nil
	}
	var out []string
	for i, item := range items {
		if s, ok := w.stringItem(index(p, i), item); ok {
			out = append(out, s)
		}
	}
	return out
}

func (w *walker) array(obj map[string]any, path, key string, minLen int) ([]any, bool) {
	p := join(path, key)
	raw, present := obj[key]
	if !present || raw == nil {
		w.add(p, "Required")
		return nil, false
	}
	items, ok := raw.([]any)
	if !ok {
		w.add(p, fmt.Sprintf("expected array, received %s", describe(raw)))
		return nil, false
	}
	if len(items) < minLen {
		w.add(p, fmt.Sprintf("must contain at least %d element(s)", minLen))
	}
	return items, true
}

func (w *walker) stringItem(path string, v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		w.add(path, fmt.Sprintf("expected string, received %s", describe(v)))
		return "", false
	}
	return s, true
}

func oneOf[T ~string](w *walker, obj map[string]any, path, key string, allowed []T) T {
	p := join(path, key)
	raw, present := obj[key]
	if !present || raw == nil {
		w.add(p, "Required")
		return ""
	}
	s, ok := raw.(string)
	if ok {
		for _, a := range allowed {
			if T(s) == a {
				return a
			}
		}
	}
	opts := make([]string, len(allowed))
	for i, a := range allowed {
		opts[i] = "'" + string(a) + "'"
	}
	w.add(p, fmt.Sprintf("invalid enum value %s; expected %s", describe(raw), strings.Join(opts, " | ")))
	return ""
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return join(path, strconv.Itoa(i))
}

func describe(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case bool:
		return "boolean"
	case float64, float32, int, int64, int32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
