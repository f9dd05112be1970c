package builtin

import (
	"context"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// dateLayouts are tried in order by parseDate. RFC 3339 first so the
// handler's own ISO output round-trips exactly.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123,
	time.RFC1123Z,
}

// Datetime evaluates one calendar operation: now, parse, diff, or add.
//
// All date-bearing operations fail on unparseable input. add applies
// "amount" of "unit" ∈ days, hours, minutes, months, years; an unrecognized
// unit leaves the date unchanged — a documented edge case, not an error.
func (t *Tools) Datetime(ctx context.Context, params map[string]any) tool.Result {
	start := time.Now()

	operation, ok := stringParam(params, "operation")
	if !ok {
		return tool.Errf(start, "Datetime requires an 'operation' parameter")
	}

	switch operation {
	case "now":
		now := time.Now().UTC()
		return tool.Ok(map[string]any{
			"iso":      now.Format(time.RFC3339),
			"unix":     now.Unix(),
			"timezone": "UTC",
		}, start)

	case "parse":
		raw, ok := stringParam(params, "date")
		if !ok {
			return tool.Errf(start, "parse operation requires a 'date' string")
		}
		parsed, err := parseDate(raw)
		if err != nil {
			return tool.Errf(start, "Invalid date: %s", raw)
		}
		parsed = parsed.UTC()
		return tool.Ok(map[string]any{
			"iso":     parsed.Format(time.RFC3339),
			"unix":    parsed.Unix(),
			"year":    parsed.Year(),
			"month":   int(parsed.Month()),
			"day":     parsed.Day(),
			"weekday": parsed.Weekday().String(),
		}, start)

	case "diff":
		first, ok := stringParam(params, "date1")
		if !ok {
			return tool.Errf(start, "diff operation requires a 'date1' string")
		}
		second, ok := stringParam(params, "date2")
		if !ok {
			return tool.Errf(start, "diff operation requires a 'date2' string")
		}
		d1, err := parseDate(first)
		if err != nil {
			return tool.Errf(start, "Invalid date: %s", first)
		}
		d2, err := parseDate(second)
		if err != nil {
			return tool.Errf(start, "Invalid date: %s", second)
		}
		delta := d2.Sub(d1)
		return tool.Ok(map[string]any{
			"milliseconds": delta.Milliseconds(),
			"seconds":      int64(delta.Seconds()),
			"minutes":      int64(delta.Minutes()),
			"hours":        int64(delta.Hours()),
			"days":         int64(delta.Hours() / 24),
		}, start)

	case "add":
		raw, ok := stringParam(params, "date")
		if !ok {
			return tool.Errf(start, "add operation requires a 'date' string")
		}
		base, err := parseDate(raw)
		if err != nil {
			return tool.Errf(start, "Invalid date: %s", raw)
		}
		amount, ok := numberParam(params, "amount")
		if !ok {
			return tool.Errf(start, "add operation requires a numeric 'amount'")
		}
		result := addUnit(base, amount, stringOr(params, "unit", ""))
		result = result.UTC()
		return tool.Ok(map[string]any{
			"iso":  result.Format(time.RFC3339),
			"unix": result.Unix(),
		}, start)

	default:
		return tool.Errf(start, "Unknown datetime operation: %s", operation)
	}
}

// addUnit shifts base by amount of the named unit. Unknown units return the
// date unchanged.
func addUnit(base time.Time, amount float64, unit string) time.Time {
	switch unit {
	case "days":
		return base.AddDate(0, 0, int(amount))
	case "hours":
		return base.Add(time.Duration(amount * float64(time.Hour)))
	case "minutes":
		return base.Add(time.Duration(amount * float64(time.Minute)))
	case "months":
		return base.AddDate(0, int(amount), 0)
	case "years":
		return base.AddDate(int(amount), 0, 0)
	default:
		return base
	}
}

// parseDate tries each known layout in order.
func parseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			return parsed, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
