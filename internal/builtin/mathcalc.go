package builtin

import (
	"context"
	"math"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// MathCalculate evaluates one arithmetic operation.
//
// Array operations (sum, average, min, max, multiply) require a "values"
// array of numbers; round requires "value" and accepts "decimals";
// percentage requires "value" and a non-zero "total". Unlike the other
// handlers there is no passthrough default — an unknown operation is a hard
// failure.
func (t *Tools) MathCalculate(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	operation, ok := stringParam(params, "operation")
	if !ok {
		return tool.Errf(start, "Math calculation requires an 'operation' parameter")
	}

	switch operation {
	case "sum", "average", "min", "max", "multiply":
		values, ok := floatValues(params["values"])
		if !ok {
			return tool.Errf(start, "Operation '%s' requires a 'values' array of numbers", operation)
		}
		result, errMsg := reduce(operation, values)
		if errMsg != "" {
			return tool.Errf(start, "%s", errMsg)
		}
		return mathResult(start, operation, result)

	case "round":
		value, ok := numberParam(params, "value")
		if !ok {
			return tool.Errf(start, "Operation 'round' requires a numeric 'value'")
		}
		decimals := intOr(params, "decimals", 0)
		if decimals < 0 {
			decimals = 0
		}
		pow := math.Pow(10, float64(decimals))
		return mathResult(start, operation, math.Round(value*pow)/pow)

	case "percentage":
		value, ok := numberParam(params, "value")
		if !ok {
			return tool.Errf(start, "Operation 'percentage' requires a numeric 'value'")
		}
		total, ok := numberParam(params, "total")
		if !ok {
			return tool.Errf(start, "Operation 'percentage' requires a numeric 'total'")
		}
		if total == 0 {
			return tool.Errf(start, "Cannot calculate percentage with a total of 0")
		}
		return mathResult(start, operation, value/total*100)

	default:
		return tool.Errf(start, "Unknown math operation: %s", operation)
	}
}

// mathResult normalizes whole-number float results to integers so JSON
// output reads "6" rather than "6.000000".
func mathResult(start time.Time, operation string, result float64) tool.Result {
	var value any = result
	if result == math.Trunc(result) && math.Abs(result) < 1<<53 {
		value = int64(result)
	}
	return tool.Ok(map[string]any{"result": value, "operation": operation}, start)
}

// reduce folds values for the array operations. It returns a non-empty
// message on precondition failure.
func reduce(operation string, values []float64) (float64, string) {
	switch operation {
	case "sum":
		var total float64
		for _, v := range values {
			total += v
		}
		return total, ""
	case "average":
		if len(values) == 0 {
			return 0, "Cannot calculate average of an empty array"
		}
		var total float64
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), ""
	case "min":
		if len(values) == 0 {
			return 0, "Cannot calculate min of an empty array"
		}
		m := values[0]
		for _, v := range values[1:] {
			m = math.Min(m, v)
		}
		return m, ""
	case "max":
		if len(values) == 0 {
			return 0, "Cannot calculate max of an empty array"
		}
		m := values[0]
		for _, v := range values[1:] {
			m = math.Max(m, v)
		}
		return m, ""
	case "multiply":
		product := 1.0
		for _, v := range values {
			product *= v
		}
		return product, ""
	}
	return 0, "Unknown math operation: " + operation
}

// floatValues converts a decoded JSON array to floats. Any non-numeric
// element rejects the whole array.
func floatValues(v any) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	values := make([]float64, len(arr))
	for i, e := range arr {
		f, ok := toFloat(e)
		if !ok {
			return nil, false
		}
		values[i] = f
	}
	return values, true
}
