package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// JSONTransform applies one structural operation to a JSON value.
//
// Requires "input" (parsed first when supplied as a string) and accepts
// "operation" ∈ extract, keys, values, flatten, filter, count; any other
// operation passes the input through unchanged.
func (t *Tools) JSONTransform(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	raw, ok := params["input"]
	if !ok || raw == nil {
		return tool.Errf(start, "JSON transform requires an 'input' parameter")
	}
	input := raw
	if s, isString := raw.(string); isString {
		if err := json.Unmarshal([]byte(s), &input); err != nil {
			return tool.Errf(start, "Invalid JSON input: %v", err)
		}
	}

	operation := stringOr(params, "operation", "")
	switch operation {
	case "extract":
		return extractPath(start, input, stringOr(params, "path", ""))

	case "keys":
		obj, ok := input.(map[string]any)
		if !ok {
			return tool.Errf(start, "keys operation requires an object input")
		}
		keys := slices.Sorted(maps.Keys(obj))
		return tool.Ok(map[string]any{"result": keys, "count": len(keys)}, start)

	case "values":
		obj, ok := input.(map[string]any)
		if !ok {
			return tool.Errf(start, "values operation requires an object input")
		}
		values := make([]any, 0, len(obj))
		for _, k := range slices.Sorted(maps.Keys(obj)) {
			values = append(values, obj[k])
		}
		return tool.Ok(map[string]any{"result": values, "count": len(values)}, start)

	case "flatten":
		return tool.Ok(map[string]any{"result": flattenValue(input)}, start)

	case "filter":
		return filterArray(start, input, params)

	case "count":
		return tool.Ok(map[string]any{"result": countValue(input)}, start)

	default:
		return tool.Ok(map[string]any{"result": input}, start)
	}
}

// extractPath walks a dot-separated path through the input. A missing
// segment short-circuits to a nil result — extraction of an absent path is
// not itself a failure.
func extractPath(start time.Time, input any, path string) tool.Result {
	if path == "" {
		return tool.Ok(map[string]any{"result": input, "path": path}, start)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return tool.Errf(start, "extract operation failed: %v", err)
	}
	res := gjson.GetBytes(raw, path)
	var value any
	if res.Exists() {
		value = res.Value()
	}
	return tool.Ok(map[string]any{"result": value, "path": path}, start)
}

// flattenValue deep-flattens arrays and flattens nested objects into
// dot-separated keys. Scalars pass through unchanged.
func flattenValue(input any) any {
	switch v := input.(type) {
	case []any:
		var flat []any
		for _, item := range v {
			if nested, ok := item.([]any); ok {
				if f, ok := flattenValue(nested).([]any); ok {
					flat = append(flat, f...)
					continue
				}
			}
			flat = append(flat, item)
		}
		if flat == nil {
			flat = []any{}
		}
		return flat
	case map[string]any:
		out := make(map[string]any)
		flattenObject("", v, out)
		return out
	default:
		return input
	}
}

func flattenObject(prefix string, obj map[string]any, out map[string]any) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenObject(key, nested, out)
		} else {
			out[key] = v
		}
	}
}

// filterArray keeps array items matching a single {field, operator, value}
// condition. The condition may be supplied as a "condition" object or as
// top-level field/operator/value parameters.
func filterArray(start time.Time, input any, params map[string]any) tool.Result {
	arr, ok := input.([]any)
	if !ok {
		return tool.Errf(start, "filter operation requires an array input")
	}

	cond := params
	if c, ok := params["condition"].(map[string]any); ok {
		cond = c
	}
	field := stringOr(cond, "field", "")
	operator := stringOr(cond, "operator", "")
	want := cond["value"]

	filtered := make([]any, 0, len(arr))
	for _, item := range arr {
		if matchCondition(item, field, operator, want) {
			filtered = append(filtered, item)
		}
	}
	return tool.Ok(map[string]any{"result": filtered, "count": len(filtered)}, start)
}

// matchCondition evaluates one comparison against an array item. Unknown
// operators include the item — filtering is include-by-default.
func matchCondition(item any, field, operator string, want any) bool {
	var got any = item
	if field != "" {
		obj, ok := item.(map[string]any)
		if !ok {
			return false
		}
		got = obj[field]
	}

	switch operator {
	case "eq":
		return looseEqual(got, want)
	case "ne":
		return !looseEqual(got, want)
	case "gt":
		return looseCompare(got, want) > 0
	case "lt":
		return looseCompare(got, want) < 0
	case "contains":
		switch g := got.(type) {
		case string:
			s, ok := want.(string)
			return ok && strings.Contains(g, s)
		case []any:
			for _, e := range g {
				if looseEqual(e, want) {
					return true
				}
			}
			return false
		default:
			return false
		}
	default:
		return true
	}
}

// looseEqual compares values the way the platform's JSON callers expect:
// numerically when both sides are numbers, structurally otherwise.
func looseEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// looseCompare orders two values: numerically when both are numbers,
// lexically when both are strings, otherwise incomparable (0).
func looseCompare(a, b any) int {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af > bf:
				return 1
			case af < bf:
				return -1
			default:
				return 0
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}

// countValue reports the size of a JSON value: array length, object key
// count, string length, and 1 for any other non-nil scalar.
func countValue(input any) int {
	switch v := input.(type) {
	case []any:
		return len(v)
	case map[string]any:
		return len(v)
	case string:
		return len([]rune(v))
	case nil:
		return 0
	default:
		return 1
	}
}
