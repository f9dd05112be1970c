package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Schema is the SQL DDL for every table this service touches. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment. All
// statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS tools (
    id            TEXT        PRIMARY KEY,
    name          TEXT        NOT NULL UNIQUE,
    description   TEXT        NOT NULL DEFAULT '',
    category      TEXT        NOT NULL DEFAULT '',
    capabilities  JSONB       NOT NULL DEFAULT '[]',
    input_schema  JSONB       NOT NULL DEFAULT '{}',
    output_schema JSONB       NOT NULL DEFAULT '{}',
    wrapper_code  TEXT        NOT NULL DEFAULT '',
    status        TEXT        NOT NULL DEFAULT 'active',
    is_system     BOOLEAN     NOT NULL DEFAULT FALSE,
    is_custom     BOOLEAN     NOT NULL DEFAULT FALSE,
    created_by    TEXT        NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tools_category ON tools(category);
CREATE INDEX IF NOT EXISTS idx_tools_status ON tools(status);

CREATE TABLE IF NOT EXISTS agent_tools (
    agent_id   TEXT        NOT NULL,
    tool_id    TEXT        NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
    enabled    BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (agent_id, tool_id)
);

CREATE TABLE IF NOT EXISTS user_tools (
    user_id    TEXT        NOT NULL,
    tool_id    TEXT        NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
    enabled    BOOLEAN     NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, tool_id)
);

CREATE TABLE IF NOT EXISTS api_tokens (
    token_hash   TEXT        PRIMARY KEY,
    user_id      TEXT        NOT NULL,
    agent_id     TEXT        NOT NULL DEFAULT '',
    name         TEXT        NOT NULL DEFAULT '',
    expires_at   TIMESTAMPTZ,
    revoked_at   TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_used_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);

CREATE TABLE IF NOT EXISTS tool_usage (
    id                BIGSERIAL   PRIMARY KEY,
    tool_id           TEXT        NOT NULL,
    user_id           TEXT        NOT NULL DEFAULT '',
    agent_id          TEXT        NOT NULL DEFAULT '',
    swarm_id          TEXT        NOT NULL DEFAULT '',
    action_type       TEXT        NOT NULL DEFAULT 'execute',
    input_params      JSONB       NOT NULL DEFAULT '{}',
    output_result     JSONB       NOT NULL DEFAULT 'null',
    status            TEXT        NOT NULL,
    error_message     TEXT        NOT NULL DEFAULT '',
    execution_time_ms BIGINT      NOT NULL DEFAULT 0,
    started_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ NOT NULL,
    metadata          JSONB       NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tool_usage_tool ON tool_usage(tool_id);
CREATE INDEX IF NOT EXISTS idx_tool_usage_user ON tool_usage(user_id);
CREATE INDEX IF NOT EXISTS idx_tool_usage_created ON tool_usage(created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database. Structured
// sub-fields (capabilities, schemas, usage payloads) are serialised as JSONB.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] that uses the given database
// connection or pool. The caller is responsible for calling
// [PostgresStore.Migrate] to ensure the schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating all tables
// and indexes if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// toolColumns is the SELECT list matching [scanTool]'s destinations.
const toolColumns = `id, name, description, category, capabilities,
	       input_schema, output_schema, wrapper_code, status,
	       is_system, is_custom, created_by, created_at, updated_at`

// scanTool scans one tools row, decoding the JSONB columns.
func scanTool(row pgx.Row) (*tool.Tool, error) {
	var t tool.Tool
	var capsJSON, inJSON, outJSON []byte

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Category, &capsJSON,
		&inJSON, &outJSON, &t.WrapperCode, &t.Status,
		&t.IsSystem, &t.IsCustom, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(capsJSON, &t.Capabilities); err != nil {
		return nil, fmt.Errorf("store: unmarshal capabilities: %w", err)
	}
	if err := json.Unmarshal(inJSON, &t.InputSchema); err != nil {
		return nil, fmt.Errorf("store: unmarshal input_schema: %w", err)
	}
	if err := json.Unmarshal(outJSON, &t.OutputSchema); err != nil {
		return nil, fmt.Errorf("store: unmarshal output_schema: %w", err)
	}
	return &t, nil
}

// GetTool retrieves a tool record by ID. It returns (nil, nil) if no tool
// with the given ID exists.
func (s *PostgresStore) GetTool(ctx context.Context, id string) (*tool.Tool, error) {
	const query = `SELECT ` + toolColumns + ` FROM tools WHERE id = $1`

	t, err := scanTool(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get tool %q: %w", id, err)
	}
	return t, nil
}

// ListActiveTools returns every active tool ordered by name.
func (s *PostgresStore) ListActiveTools(ctx context.Context) ([]*tool.Tool, error) {
	const query = `SELECT ` + toolColumns + ` FROM tools WHERE status = 'active' ORDER BY name`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list active tools: %w", err)
	}
	defer rows.Close()

	var tools []*tool.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list active tools: %w", err)
		}
		tools = append(tools, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list active tools: %w", err)
	}
	return tools, nil
}

// AgentGrant retrieves the agent_tools row binding agentID to toolID. It
// returns (nil, nil) if no grant exists.
func (s *PostgresStore) AgentGrant(ctx context.Context, agentID, toolID string) (*Grant, error) {
	return s.grant(ctx,
		`SELECT tool_id, enabled, created_at FROM agent_tools WHERE agent_id = $1 AND tool_id = $2`,
		agentID, toolID)
}

// UserGrant retrieves the user_tools row binding userID to toolID. It
// returns (nil, nil) if no grant exists.
func (s *PostgresStore) UserGrant(ctx context.Context, userID, toolID string) (*Grant, error) {
	return s.grant(ctx,
		`SELECT tool_id, enabled, created_at FROM user_tools WHERE user_id = $1 AND tool_id = $2`,
		userID, toolID)
}

func (s *PostgresStore) grant(ctx context.Context, query, principal, toolID string) (*Grant, error) {
	var g Grant
	err := s.db.QueryRow(ctx, query, principal, toolID).Scan(&g.ToolID, &g.Enabled, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: grant lookup for %q on %q: %w", principal, toolID, err)
	}
	return &g, nil
}

// IdentityByTokenHash resolves a hashed bearer token to its owner, skipping
// revoked and expired tokens, and stamps last_used_at in the same statement.
// It returns (nil, nil) if the token is unknown.
func (s *PostgresStore) IdentityByTokenHash(ctx context.Context, hash string) (*Identity, error) {
	const query = `
		UPDATE api_tokens
		SET last_used_at = now()
		WHERE token_hash = $1
		  AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > now())
		RETURNING user_id, agent_id, name`

	var id Identity
	err := s.db.QueryRow(ctx, query, hash).Scan(&id.UserID, &id.AgentID, &id.TokenName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: token lookup: %w", err)
	}
	return &id, nil
}

// InsertUsage appends one audit row to tool_usage.
func (s *PostgresStore) InsertUsage(ctx context.Context, rec *UsageRecord) error {
	paramsJSON, err := json.Marshal(emptyMap(rec.InputParams))
	if err != nil {
		return fmt.Errorf("store: marshal input_params: %w", err)
	}
	resultJSON, err := json.Marshal(rec.OutputResult)
	if err != nil {
		return fmt.Errorf("store: marshal output_result: %w", err)
	}
	metaJSON, err := json.Marshal(emptyMap(rec.Metadata))
	if err != nil {
		return fmt.Errorf("store: marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO tool_usage (
			tool_id, user_id, agent_id, swarm_id, action_type,
			input_params, output_result, status, error_message,
			execution_time_ms, started_at, completed_at, metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = s.db.Exec(ctx, query,
		rec.ToolID, rec.UserID, rec.AgentID, rec.SwarmID, defaultActionType(rec.ActionType),
		paramsJSON, resultJSON, rec.Status, rec.ErrorMessage,
		rec.ExecutionTimeMS, rec.StartedAt, rec.CompletedAt, metaJSON,
	)
	if err != nil {
		return fmt.Errorf("store: insert usage: %w", err)
	}
	return nil
}

// defaultActionType returns the action type, defaulting to "execute" if empty.
func defaultActionType(a string) string {
	if a == "" {
		return "execute"
	}
	return a
}

// emptyMap returns m if non-nil, otherwise an empty non-nil map. This ensures
// JSON marshalling produces "{}" instead of "null".
func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
