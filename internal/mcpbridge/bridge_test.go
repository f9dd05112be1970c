package mcpbridge

import (
	"context"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/builtin"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/exec"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// fakeStore implements store.Store in memory.
type fakeStore struct {
	tools      []*tool.Tool
	identities map[string]*store.Identity
}

func (f *fakeStore) GetTool(ctx context.Context, id string) (*tool.Tool, error) {
	for _, t := range f.tools {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListActiveTools(ctx context.Context) ([]*tool.Tool, error) {
	return f.tools, nil
}

func (f *fakeStore) AgentGrant(ctx context.Context, agentID, toolID string) (*store.Grant, error) {
	return nil, nil
}

func (f *fakeStore) UserGrant(ctx context.Context, userID, toolID string) (*store.Grant, error) {
	return nil, nil
}

func (f *fakeStore) IdentityByTokenHash(ctx context.Context, hash string) (*store.Identity, error) {
	return f.identities[hash], nil
}

func (f *fakeStore) InsertUsage(ctx context.Context, rec *store.UsageRecord) error { return nil }

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	fs := &fakeStore{
		tools: []*tool.Tool{
			{ID: "m1", Name: "math_calculate", Description: "Arithmetic over value arrays",
				Category: "math", Status: tool.StatusActive, IsSystem: true,
				InputSchema: tool.Schema{
					Properties: map[string]tool.Property{
						"operation": {Type: "string"},
					},
					Required: []string{"operation"},
				}},
			{ID: "t1", Name: "text_process", Category: "text",
				Status: tool.StatusActive, IsSystem: true},
		},
		identities: map[string]*store.Identity{
			auth.HashToken("service-token"): {UserID: "mcp-service"},
		},
	}
	runner := exec.New(builtin.New(builtin.Config{}).Registry(), nil, nil, nil, nil)

	b, err := New(Config{
		Store:        fs,
		Gate:         auth.NewGate(fs),
		Runner:       runner,
		ServiceToken: "service-token",
		Version:      "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

// connect wires the bridge's server to an in-memory client session.
func connect(t *testing.T, b *Bridge) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	srv, err := b.Server(ctx)
	if err != nil {
		t.Fatalf("Server: %v", err)
	}

	clientTr, serverTr := mcpsdk.NewInMemoryTransports()
	if _, err := srv.Connect(ctx, serverTr, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "test"}, nil)
	cs, err := client.Connect(ctx, clientTr, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestServer_PublishesCatalogue(t *testing.T) {
	t.Parallel()
	cs := connect(t, newTestBridge(t))

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(res.Tools) != 2 {
		t.Fatalf("published %d tools, want 2", len(res.Tools))
	}

	names := map[string]bool{}
	for _, tl := range res.Tools {
		names[tl.Name] = true
	}
	if !names["math_calculate"] || !names["text_process"] {
		t.Errorf("tool names = %v", names)
	}
}

func TestCallTool_ExecutesThroughPipeline(t *testing.T) {
	t.Parallel()
	cs := connect(t, newTestBridge(t))

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "math_calculate",
		Arguments: map[string]any{"operation": "sum", "values": []any{1, 2, 3}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	tc := res.Content[0].(*mcpsdk.TextContent)
	if tc.Text != `{"operation":"sum","result":6}` {
		t.Errorf("content = %q", tc.Text)
	}
}

func TestCallTool_GateRejectionIsToolError(t *testing.T) {
	t.Parallel()
	cs := connect(t, newTestBridge(t))

	// Missing the schema-required operation parameter. Depending on where
	// validation fires first (the SDK's schema check or the gate), this is
	// either a protocol error or a tool error — never a clean result.
	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "math_calculate",
		Arguments: map[string]any{},
	})
	if err == nil && !res.IsError {
		t.Fatalf("result = %+v, want an error", res)
	}
}

func TestCallTool_HandlerFailureIsToolError(t *testing.T) {
	t.Parallel()
	cs := connect(t, newTestBridge(t))

	res, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "math_calculate",
		Arguments: map[string]any{"operation": "average", "values": []any{}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Fatalf("result = %+v, want tool error", res)
	}
	tc := res.Content[0].(*mcpsdk.TextContent)
	if tc.Text != "Cannot calculate average of an empty array" {
		t.Errorf("content = %q", tc.Text)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
