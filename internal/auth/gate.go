// Package auth implements the per-request authorization gate: bearer-token
// authentication, grant checks, and parameter validation. The gate is a
// linear sequence of hard checks — a failure at any step short-circuits the
// whole request with a typed [Rejection] carrying the HTTP status and wire
// code.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Wire codes attached to gate rejections. Plain authentication and lookup
// failures carry no code; the HTTP status is the whole signal.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeToolDisabled     = "TOOL_DISABLED"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"
)

// Rejection is a gate failure. It implements error so it can flow through
// ordinary error returns; callers unwrap it with errors.As to build the HTTP
// response.
type Rejection struct {
	Status  int
	Code    string
	Message string

	// Details itemizes validation failures, one entry per problem.
	Details []string
}

func (r *Rejection) Error() string { return r.Message }

func reject(status int, code, message string) *Rejection {
	return &Rejection{Status: status, Code: code, Message: message}
}

// HashToken returns the hex-encoded SHA-256 digest of a raw bearer token.
// Only digests are stored; a database leak does not leak usable tokens.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Admission is the outcome of a successful gate pass: the authenticated
// caller and the tool record cleared for execution.
type Admission struct {
	Identity *store.Identity
	Tool     *tool.Tool
}

// Gate runs the authorization sequence against the backing store.
type Gate struct {
	store store.Store
}

// NewGate creates a Gate backed by the given store.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s}
}

// Admit runs the full gate sequence for one request. The authHeader is the
// raw Authorization header value. On failure the returned error is either a
// *Rejection (caller fault, mapped to 4xx) or a wrapped store error (mapped
// to 500 by the HTTP layer).
func (g *Gate) Admit(ctx context.Context, authHeader string, req *tool.Request) (*Admission, error) {
	identity, err := g.authenticate(ctx, authHeader)
	if err != nil {
		return nil, err
	}

	if req.ToolID == "" {
		return nil, reject(http.StatusBadRequest, "", "tool_id is required")
	}

	t, err := g.store.GetTool(ctx, req.ToolID)
	if err != nil {
		return nil, fmt.Errorf("auth: load tool: %w", err)
	}
	if t == nil {
		return nil, reject(http.StatusNotFound, "", "Tool not found")
	}
	if t.Status != tool.StatusActive {
		return nil, reject(http.StatusBadRequest, "", "Tool is not active")
	}

	if err := g.checkGrant(ctx, identity, req, t); err != nil {
		return nil, err
	}

	if t.InputSchema.HasProperties() {
		if valid, problems := tool.Validate(req.Parameters, t.InputSchema); !valid {
			return nil, &Rejection{
				Status:  http.StatusBadRequest,
				Code:    CodeValidationError,
				Message: "Invalid parameters",
				Details: problems,
			}
		}
	}

	return &Admission{Identity: identity, Tool: t}, nil
}

// authenticate resolves the Authorization header to an identity.
func (g *Gate) authenticate(ctx context.Context, authHeader string) (*store.Identity, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return nil, reject(http.StatusUnauthorized, "", "Missing authorization header")
	}

	identity, err := g.store.IdentityByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("auth: token lookup: %w", err)
	}
	if identity == nil {
		return nil, reject(http.StatusUnauthorized, "", "Invalid authentication")
	}
	return identity, nil
}

// checkGrant enforces the grant rules: agent-level calls need an agent_tools
// row, user-level calls on non-system tools need a user_tools row. A missing
// row and a disabled row reject with different codes so callers can tell
// "never granted" from "switched off".
func (g *Gate) checkGrant(ctx context.Context, identity *store.Identity, req *tool.Request, t *tool.Tool) error {
	if identity.AgentID != "" && req.AgentID != "" && identity.AgentID != req.AgentID {
		return reject(http.StatusForbidden, CodePermissionDenied,
			"Token is not valid for the requested agent")
	}

	if req.AgentID != "" {
		grant, err := g.store.AgentGrant(ctx, req.AgentID, t.ID)
		if err != nil {
			return fmt.Errorf("auth: agent grant: %w", err)
		}
		if grant == nil {
			return reject(http.StatusForbidden, CodePermissionDenied,
				"Agent does not have access to this tool")
		}
		if !grant.Enabled {
			return reject(http.StatusForbidden, CodeToolDisabled,
				"This tool is disabled for the agent")
		}
		return nil
	}

	// System tools skip the user-level grant check entirely.
	if t.IsSystem {
		return nil
	}

	grant, err := g.store.UserGrant(ctx, identity.UserID, t.ID)
	if err != nil {
		return fmt.Errorf("auth: user grant: %w", err)
	}
	if grant == nil {
		return reject(http.StatusForbidden, CodePermissionDenied,
			"You do not have access to this tool")
	}
	if !grant.Enabled {
		return reject(http.StatusForbidden, CodeToolDisabled,
			"This tool is disabled")
	}
	return nil
}
