package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// systemTools are the six built-in tool records every deployment needs. The
// catalog is otherwise managed externally; seeding only fills the gap on a
// fresh database.
var systemTools = []tool.Tool{
	{
		Name:        "web_search",
		Description: "Search the web and return a list of results",
		Category:    "search",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"query":       {Type: "string", Description: "Search query"},
				"max_results": {Type: "number", Description: "Maximum number of results (default 5)"},
			},
			Required: []string{"query"},
		},
	},
	{
		Name:        "http_request",
		Description: "Perform an outbound HTTP request and return the response",
		Category:    "http",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"url":     {Type: "string", Description: "Target URL"},
				"method":  {Type: "string", Description: "HTTP method (default GET)"},
				"headers": {Type: "object", Description: "Request headers"},
				"body":    {Type: "object", Description: "Request body for POST/PUT/PATCH"},
			},
			Required: []string{"url"},
		},
	},
	{
		Name:        "json_transform",
		Description: "Extract, filter, and reshape JSON data",
		Category:    "json",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"operation": {Type: "string", Description: "extract, keys, values, flatten, filter, or count"},
				"input":     {Type: "object", Description: "Input value, or a JSON-encoded string"},
				"path":      {Type: "string", Description: "Dot path for extract"},
				"condition": {Type: "object", Description: "Filter condition: field, operator, value"},
			},
			Required: []string{"operation", "input"},
		},
	},
	{
		Name:        "text_process",
		Description: "Word counts, extraction, summarisation, and string transforms",
		Category:    "text",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"operation": {Type: "string", Description: "word_count, extract_urls, extract_emails, summarize, split, replace, trim, lowercase, uppercase"},
				"text":      {Type: "string", Description: "Input text"},
			},
			Required: []string{"operation", "text"},
		},
	},
	{
		Name:        "math_calculate",
		Description: "Arithmetic over number arrays plus rounding and percentages",
		Category:    "math",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"operation": {Type: "string", Description: "sum, average, min, max, multiply, round, percentage"},
				"values":    {Type: "array", Description: "Number array for aggregate operations"},
				"value":     {Type: "number", Description: "Scalar for round and percentage"},
				"total":     {Type: "number", Description: "Denominator for percentage"},
			},
			Required: []string{"operation"},
		},
	},
	{
		Name:        "datetime",
		Description: "Current time, parsing, differences, and date arithmetic",
		Category:    "datetime",
		InputSchema: tool.Schema{
			Type: "object",
			Properties: map[string]tool.Property{
				"operation": {Type: "string", Description: "now, parse, diff, or add"},
				"date":      {Type: "string", Description: "Input date for parse and add"},
				"date1":     {Type: "string", Description: "First date for diff"},
				"date2":     {Type: "string", Description: "Second date for diff"},
				"amount":    {Type: "number", Description: "Amount to add"},
				"unit":      {Type: "string", Description: "days, hours, minutes, months, or years"},
			},
			Required: []string{"operation"},
		},
	},
}

// SeedSystemTools inserts the built-in tool records, keyed by name so that
// re-seeding an existing database is a no-op and operator edits to existing
// rows survive restarts.
func (s *PostgresStore) SeedSystemTools(ctx context.Context) error {
	const query = `
		INSERT INTO tools (
			id, name, description, category, capabilities,
			input_schema, output_schema, status, is_system, is_custom, created_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,FALSE,'system')
		ON CONFLICT (name) DO NOTHING`

	for _, t := range systemTools {
		capsJSON, err := json.Marshal([]string{})
		if err != nil {
			return fmt.Errorf("store: marshal capabilities: %w", err)
		}
		inJSON, err := json.Marshal(t.InputSchema)
		if err != nil {
			return fmt.Errorf("store: marshal input_schema for %q: %w", t.Name, err)
		}
		outJSON, err := json.Marshal(t.OutputSchema)
		if err != nil {
			return fmt.Errorf("store: marshal output_schema for %q: %w", t.Name, err)
		}

		_, err = s.db.Exec(ctx, query,
			uuid.NewString(), t.Name, t.Description, t.Category, capsJSON,
			inJSON, outJSON, string(tool.StatusActive),
		)
		if err != nil {
			return fmt.Errorf("store: seed %q: %w", t.Name, err)
		}
	}
	return nil
}
