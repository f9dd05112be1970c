// Package store provides PostgreSQL persistence for the tool-execution
// service: the tools catalog, per-agent and per-user grants, API tokens, and
// the append-only tool_usage audit table.
package store

import (
	"context"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Grant is one row of the agent_tools or user_tools table: a binding between
// a principal and a tool. A grant that exists but is disabled is
// distinguishable from a missing grant, because the two produce different
// rejection codes.
type Grant struct {
	ToolID    string
	Enabled   bool
	CreatedAt time.Time
}

// Identity is the resolved owner of an API token.
type Identity struct {
	UserID string

	// AgentID is set when the token is bound to a single agent. Requests
	// carrying a different agent_id are rejected by the gate.
	AgentID string

	TokenName string
}

// UsageRecord is one append-only audit row in tool_usage. It is created once
// per execution attempt regardless of outcome and never updated or deleted
// by this service.
type UsageRecord struct {
	ToolID          string
	UserID          string
	AgentID         string
	SwarmID         string
	ActionType      string // always "execute" for this service
	InputParams     map[string]any
	OutputResult    any // the success payload, or {"error": message}
	Status          string
	ErrorMessage    string
	ExecutionTimeMS int64
	StartedAt       time.Time
	CompletedAt     time.Time
	Metadata        map[string]any
}

// Store is the persistence interface consumed by the authorization gate and
// the usage logger. Implementations must be safe for concurrent use.
type Store interface {
	// GetTool retrieves a tool record by ID. Returns (nil, nil) if not found.
	GetTool(ctx context.Context, id string) (*tool.Tool, error)

	// ListActiveTools returns every active tool in the catalog, ordered by
	// name. Used to publish the catalog over MCP.
	ListActiveTools(ctx context.Context) ([]*tool.Tool, error)

	// AgentGrant retrieves the agent_tools row binding agentID to toolID.
	// Returns (nil, nil) if no grant exists.
	AgentGrant(ctx context.Context, agentID, toolID string) (*Grant, error)

	// UserGrant retrieves the user_tools row binding userID to toolID.
	// Returns (nil, nil) if no grant exists.
	UserGrant(ctx context.Context, userID, toolID string) (*Grant, error)

	// IdentityByTokenHash resolves a hashed bearer token to its owner,
	// skipping revoked and expired tokens. Returns (nil, nil) if the token
	// is unknown. Implementations update the token's last-used timestamp.
	IdentityByTokenHash(ctx context.Context, hash string) (*Identity, error)

	// InsertUsage appends one audit row to tool_usage.
	InsertUsage(ctx context.Context, rec *UsageRecord) error
}
