// Package exec routes admitted execution requests to their handlers: the
// built-in dispatch table for catalog tools, the sandbox for custom tools.
// It owns the per-attempt bookkeeping — metrics and the audit record —
// around a single handler call.
package exec

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/builtin"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/observe"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// maxAuditOutputBytes caps the serialized output stored in a usage record.
// Larger payloads are replaced with a size marker; the caller already
// received the full result.
const maxAuditOutputBytes = 16 * 1024

// Sandbox executes custom tool wrapper code.
type Sandbox interface {
	Run(ctx context.Context, code string, params map[string]any) tool.Result
}

// UsageRecorder accepts audit records. Implementations must not block.
type UsageRecorder interface {
	Record(rec *store.UsageRecord)
}

// Executor dispatches admitted requests and records the outcome.
type Executor struct {
	handlers map[tool.Kind]builtin.Handler
	sandbox  Sandbox
	usage    UsageRecorder
	metrics  *observe.Metrics
	log      *slog.Logger
}

// New creates an Executor. usage and metrics may be nil, in which case the
// corresponding bookkeeping is skipped (useful in tests).
func New(handlers map[tool.Kind]builtin.Handler, sandbox Sandbox, usage UsageRecorder, metrics *observe.Metrics, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		handlers: handlers,
		sandbox:  sandbox,
		usage:    usage,
		metrics:  metrics,
		log:      log,
	}
}

// Execute runs one admitted request to completion and returns the uniform
// result envelope. It never returns an error: every failure mode is folded
// into the envelope. One audit record is emitted per call regardless of
// outcome.
func (e *Executor) Execute(ctx context.Context, adm *auth.Admission, req *tool.Request) tool.Result {
	startedAt := time.Now()
	kind := tool.ResolveKind(adm.Tool)

	if e.metrics != nil {
		e.metrics.ActiveExecutions.Add(ctx, 1)
		defer e.metrics.ActiveExecutions.Add(ctx, -1)
	}

	res := e.dispatch(ctx, kind, adm.Tool, req.Parameters)
	completedAt := time.Now()

	status := "success"
	if !res.Success {
		status = "error"
	}

	if e.metrics != nil {
		e.metrics.RecordExecution(ctx, adm.Tool.Name, kind.String(), status, completedAt.Sub(startedAt).Seconds())
	}
	e.log.Info("tool executed",
		"tool_id", adm.Tool.ID,
		"tool", adm.Tool.Name,
		"kind", kind.String(),
		"status", status,
		"execution_time_ms", res.ExecutionTimeMS,
	)

	if e.usage != nil {
		e.usage.Record(&store.UsageRecord{
			ToolID:          adm.Tool.ID,
			UserID:          adm.Identity.UserID,
			AgentID:         req.AgentID,
			SwarmID:         req.SwarmID,
			ActionType:      "execute",
			InputParams:     req.Parameters,
			OutputResult:    auditOutput(res),
			Status:          status,
			ErrorMessage:    res.Error,
			ExecutionTimeMS: res.ExecutionTimeMS,
			StartedAt:       startedAt,
			CompletedAt:     completedAt,
			Metadata: map[string]any{
				"tool_name": adm.Tool.Name,
				"category":  adm.Tool.Category,
				"kind":      kind.String(),
			},
		})
	}
	return res
}

// dispatch routes to the sandbox or a built-in handler. An unresolvable kind
// is a hard failure with zero execution time — nothing ran.
func (e *Executor) dispatch(ctx context.Context, kind tool.Kind, t *tool.Tool, params map[string]any) tool.Result {
	if kind == tool.KindCustom {
		return e.sandbox.Run(ctx, t.WrapperCode, params)
	}
	if handler, ok := e.handlers[kind]; ok {
		return handler(ctx, params)
	}
	return tool.Result{
		Error: "Unknown tool type: " + t.TypeLabel() + ". Tool execution not implemented.",
	}
}

// auditOutput is the output_result stored in the usage record: the success
// payload, or {error} on failure, size-capped for the audit table.
func auditOutput(res tool.Result) any {
	var out any
	if res.Success {
		out = res.Data
	} else {
		out = map[string]any{"error": res.Error}
	}
	if encoded, err := json.Marshal(out); err == nil && len(encoded) > maxAuditOutputBytes {
		return map[string]any{"truncated": true, "bytes": len(encoded)}
	}
	return out
}
