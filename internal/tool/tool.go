// Package tool defines the core types shared by the HIVE tool-execution
// service: the Tool record loaded from the database, the resolved execution
// Kind, the uniform Result envelope, and parameter validation against a
// tool's declared input schema.
package tool

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a tool record. Only active tools may be
// executed.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Property describes a single named parameter in a tool's input schema.
type Property struct {
	// Type is the declared JSON type of the parameter: "string", "number",
	// "boolean", "object", or "array".
	Type string `json:"type"`

	// Description is free-form documentation shown to tool authors.
	Description string `json:"description,omitempty"`
}

// Schema is the JSON-schema-like contract declared on a tool. It covers the
// subset the platform actually uses: a properties map and a required list.
type Schema struct {
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// HasProperties reports whether the schema declares any parameters. The
// authorization gate only runs validation when this is true — an absent or
// empty schema means "anything goes".
func (s Schema) HasProperties() bool {
	return len(s.Properties) > 0
}

// Tool is a named capability record. Records are created by the admin
// back-office or the AI-assisted tool generator (both external to this
// service) and are read-only at execution time.
type Tool struct {
	ID           string
	Name         string
	Description  string
	Category     string
	Capabilities []string
	InputSchema  Schema
	OutputSchema Schema

	// WrapperCode is the source text executed for custom tools. Empty for
	// built-in tools.
	WrapperCode string

	Status Status

	// IsSystem marks platform-owned tools that bypass per-user grant checks.
	IsSystem bool

	// IsCustom routes execution to the sandbox instead of a built-in handler.
	IsCustom bool

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TypeLabel is the human-readable tag used in "unknown tool type" errors:
// the category when present, otherwise the name.
func (t *Tool) TypeLabel() string {
	if t.Category != "" {
		return t.Category
	}
	return t.Name
}

// Request is the ephemeral execution request carried in one HTTP call. Its
// shape is echoed into the usage record but never persisted directly.
type Request struct {
	ToolID     string         `json:"tool_id"`
	Parameters map[string]any `json:"parameters"`
	AgentID    string         `json:"agent_id,omitempty"`
	SwarmID    string         `json:"swarm_id,omitempty"`
}

// Result is the uniform execution envelope produced by every handler.
// Exactly one of Data and Error is meaningful depending on Success.
// ExecutionTimeMS covers the handler body only, not validation or logging.
type Result struct {
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
}

// Ok builds a successful Result, stamping the elapsed time since start.
func Ok(data any, start time.Time) Result {
	return Result{
		Success:         true,
		Data:            data,
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}

// Errf builds a failed Result with a formatted error message, stamping the
// elapsed time since start.
func Errf(start time.Time, format string, args ...any) Result {
	return Result{
		Error:           fmt.Sprintf(format, args...),
		ExecutionTimeMS: time.Since(start).Milliseconds(),
	}
}
