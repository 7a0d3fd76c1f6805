package docstore

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeSettings flattens the "index" wrapper and "index." key prefixes
// and renders scalars as strings, the form a cluster reports settings in.
// Nested objects such as "analysis" stay nested.
func NormalizeSettings(in map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range in {
		if k == "index" {
			if sub, ok := v.(map[string]any); ok {
				for sk, sv := range NormalizeSettings(sub) {
					out[sk] = sv
				}
				continue
			}
		}
		out[strings.TrimPrefix(k, "index.")] = Stringify(v)
	}
	return out
}

// Stringify renders every scalar in v as a string, recursing into objects
// and arrays. Nil stays nil.
func Stringify(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Stringify(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Stringify(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case nil:
		return nil
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
