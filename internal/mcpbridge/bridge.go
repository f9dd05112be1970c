// Package mcpbridge publishes the active tool catalogue as a Model Context
// Protocol server, so MCP-speaking agent runtimes can call the same tools
// without the bespoke HTTP contract. Every call still passes the full
// authorization gate and execution pipeline under a configured service
// identity; MCP is a second front door, not a bypass.
package mcpbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// Runner executes one admitted request. Satisfied by [exec.Executor].
type Runner interface {
	Execute(ctx context.Context, adm *auth.Admission, req *tool.Request) tool.Result
}

// Config wires the bridge into the execution pipeline.
type Config struct {
	Store  store.Store
	Gate   *auth.Gate
	Runner Runner

	// ServiceToken is the raw bearer token MCP calls execute under. It must
	// resolve to a valid identity; the gate checks it on every call.
	ServiceToken string

	// Version is reported in the MCP server implementation info.
	Version string

	Log *slog.Logger
}

// Bridge builds MCP servers over the tool catalogue.
type Bridge struct {
	store        store.Store
	gate         *auth.Gate
	runner       Runner
	serviceToken string
	version      string
	log          *slog.Logger
}

// New creates a Bridge. Store, Gate, and Runner are required.
func New(cfg Config) (*Bridge, error) {
	if cfg.Store == nil || cfg.Gate == nil || cfg.Runner == nil {
		return nil, errors.New("mcpbridge: store, gate, and runner are required")
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		store:        cfg.Store,
		gate:         cfg.Gate,
		runner:       cfg.Runner,
		serviceToken: cfg.ServiceToken,
		version:      cfg.Version,
		log:          log,
	}, nil
}

// Server builds an MCP server exposing every active catalogue tool as of the
// call. The catalogue is snapshotted; restart the bridge to pick up new
// tools.
func (b *Bridge) Server(ctx context.Context) (*mcpsdk.Server, error) {
	tools, err := b.store.ListActiveTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: list tools: %w", err)
	}

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "hived", Version: b.version}, nil)
	for _, t := range tools {
		srv.AddTool(&mcpsdk.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: inputSchema(t.InputSchema),
		}, b.call(t.ID))
	}
	b.log.Info("mcp catalogue published", "tools", len(tools))
	return srv, nil
}

// HTTPHandler wraps srv in the streamable HTTP transport.
func HTTPHandler(srv *mcpsdk.Server) http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return srv }, nil)
}

// call builds the handler for one catalogue tool. Gate rejections and handler
// failures surface as MCP tool errors; store failures become protocol errors.
func (b *Bridge) call(toolID string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		params, err := decodeArguments(req.Params.Arguments)
		if err != nil {
			return toolError("Invalid arguments: " + err.Error()), nil
		}

		execReq := &tool.Request{ToolID: toolID, Parameters: params}
		adm, err := b.gate.Admit(ctx, "Bearer "+b.serviceToken, execReq)
		if err != nil {
			var rej *auth.Rejection
			if errors.As(err, &rej) {
				return toolError(rej.Message), nil
			}
			return nil, err
		}

		res := b.runner.Execute(ctx, adm, execReq)
		if !res.Success {
			return toolError(res.Error), nil
		}

		text, err := json.Marshal(res.Data)
		if err != nil {
			return nil, fmt.Errorf("mcpbridge: encode result: %w", err)
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		}, nil
	}
}

// decodeArguments normalises the SDK's argument payload into the parameter
// bag the pipeline expects.
func decodeArguments(args any) (map[string]any, error) {
	if args == nil {
		return nil, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return params, nil
}

// inputSchema converts a catalogue schema into the MCP wire schema. An empty
// schema publishes as a bare object, matching the gate's "anything goes"
// validation for schemaless tools.
func inputSchema(s tool.Schema) *jsonschema.Schema {
	out := &jsonschema.Schema{Type: "object", Required: s.Required}
	if s.Type != "" {
		out.Type = s.Type
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*jsonschema.Schema, len(s.Properties))
		for name, p := range s.Properties {
			out.Properties[name] = &jsonschema.Schema{Type: p.Type, Description: p.Description}
		}
	}
	return out
}

func toolError(message string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: message}},
	}
}
