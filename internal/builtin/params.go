package builtin

import "encoding/json"

// stringParam extracts a non-empty string parameter.
func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// stringOr extracts a string parameter with a fallback default.
func stringOr(params map[string]any, key, def string) string {
	if s, ok := stringParam(params, key); ok {
		return s
	}
	return def
}

// numberParam extracts a numeric parameter. JSON decoding yields float64,
// but handlers are also called directly from tests and the MCP bridge, so
// the integer types are accepted too.
func numberParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// intOr extracts an integer parameter with a fallback default.
func intOr(params map[string]any, key string, def int) int {
	if f, ok := numberParam(params, key); ok {
		return int(f)
	}
	return def
}

// toFloat converts any JSON-decoded numeric value to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
