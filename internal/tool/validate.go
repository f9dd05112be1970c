package tool

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Validate checks params against a tool's declared input schema and returns
// whether the parameters are acceptable together with the list of failures.
//
// Two checks are performed:
//
//   - every name in schema.Required must be present and non-null, otherwise
//     "Missing required parameter: <name>" is reported;
//   - every supplied parameter that appears in schema.Properties must match
//     the declared JSON type, otherwise
//     "Parameter '<key>' should be of type <declared>, got <actual>" is
//     reported.
//
// A schema with no properties and no required list produces no errors — the
// permissive default is deliberate platform behavior, not an oversight.
// Null values are treated as absent: they trip the required check but are
// skipped by the type check. Validate is pure and has no side effects.
func Validate(params map[string]any, schema Schema) (bool, []string) {
	var errs []string

	for _, name := range schema.Required {
		if v, ok := params[name]; !ok || v == nil {
			errs = append(errs, fmt.Sprintf("Missing required parameter: %s", name))
		}
	}

	// Sorted iteration keeps the error list deterministic.
	for _, key := range slices.Sorted(maps.Keys(params)) {
		prop, declared := schema.Properties[key]
		value := params[key]
		if !declared || value == nil || prop.Type == "" {
			continue
		}
		if actual := jsonTypeName(value); actual != prop.Type {
			errs = append(errs, fmt.Sprintf("Parameter '%s' should be of type %s, got %s", key, prop.Type, actual))
		}
	}

	return len(errs) == 0, errs
}

// jsonTypeName maps a decoded JSON value to its schema type name.
func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int8, int16, int32, int64, uint, uint8,
		uint16, uint32, uint64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}
