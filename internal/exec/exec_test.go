package exec

import (
	"context"
	"strings"
	"testing"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/auth"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/builtin"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/store"
	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

type fakeSandbox struct {
	lastCode   string
	lastParams map[string]any
	result     tool.Result
}

func (f *fakeSandbox) Run(ctx context.Context, code string, params map[string]any) tool.Result {
	f.lastCode = code
	f.lastParams = params
	return f.result
}

type captureUsage struct {
	records []*store.UsageRecord
}

func (c *captureUsage) Record(rec *store.UsageRecord) { c.records = append(c.records, rec) }

func admission(t *tool.Tool) *auth.Admission {
	return &auth.Admission{
		Identity: &store.Identity{UserID: "user-1"},
		Tool:     t,
	}
}

func TestExecute_DispatchesBuiltin(t *testing.T) {
	t.Parallel()
	usage := &captureUsage{}
	e := New(builtin.New(builtin.Config{}).Registry(), &fakeSandbox{}, usage, nil, nil)

	mathTool := &tool.Tool{ID: "t1", Name: "math_calculate", Category: "math", Status: tool.StatusActive}
	res := e.Execute(context.Background(), admission(mathTool), &tool.Request{
		ToolID:     "t1",
		Parameters: map[string]any{"operation": "sum", "values": []any{1.0, 2.0, 3.0}},
		SwarmID:    "swarm-9",
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}
	data := res.Data.(map[string]any)
	if data["result"] != int64(6) || data["operation"] != "sum" {
		t.Errorf("data = %v", data)
	}

	if len(usage.records) != 1 {
		t.Fatalf("recorded %d usage rows, want 1", len(usage.records))
	}
	rec := usage.records[0]
	if rec.Status != "success" || rec.ToolID != "t1" || rec.UserID != "user-1" || rec.SwarmID != "swarm-9" {
		t.Errorf("usage record = %+v", rec)
	}
	if rec.ActionType != "execute" {
		t.Errorf("action_type = %q", rec.ActionType)
	}
	if rec.Metadata["tool_name"] != "math_calculate" || rec.Metadata["category"] != "math" {
		t.Errorf("metadata = %v", rec.Metadata)
	}
	if rec.CompletedAt.Before(rec.StartedAt) {
		t.Error("completed_at precedes started_at")
	}
}

func TestExecute_CustomToolUsesSandbox(t *testing.T) {
	t.Parallel()
	sb := &fakeSandbox{result: tool.Result{Success: true, Data: "done", ExecutionTimeMS: 3}}
	usage := &captureUsage{}
	e := New(nil, sb, usage, nil, nil)

	customTool := &tool.Tool{
		ID: "c1", Name: "my_custom", IsCustom: true,
		WrapperCode: `return "done"`, Status: tool.StatusActive,
	}
	params := map[string]any{"x": 1.0}
	res := e.Execute(context.Background(), admission(customTool), &tool.Request{ToolID: "c1", Parameters: params})
	if !res.Success || res.Data != "done" {
		t.Fatalf("result = %+v", res)
	}
	if sb.lastCode != `return "done"` {
		t.Errorf("sandbox code = %q", sb.lastCode)
	}
	if sb.lastParams["x"] != 1.0 {
		t.Errorf("sandbox params = %v", sb.lastParams)
	}
	if usage.records[0].Metadata["kind"] != "custom" {
		t.Errorf("metadata kind = %v", usage.records[0].Metadata["kind"])
	}
}

func TestExecute_UnknownKind(t *testing.T) {
	t.Parallel()
	usage := &captureUsage{}
	e := New(builtin.New(builtin.Config{}).Registry(), &fakeSandbox{}, usage, nil, nil)

	odd := &tool.Tool{ID: "u1", Name: "mystery", Category: "unknown_category", Status: tool.StatusActive}
	res := e.Execute(context.Background(), admission(odd), &tool.Request{ToolID: "u1"})
	if res.Success {
		t.Fatal("unknown kind succeeded")
	}
	if res.Error != "Unknown tool type: unknown_category. Tool execution not implemented." {
		t.Errorf("error = %q", res.Error)
	}
	if res.ExecutionTimeMS != 0 {
		t.Errorf("execution_time_ms = %d, want 0 (nothing ran)", res.ExecutionTimeMS)
	}

	rec := usage.records[0]
	if rec.Status != "error" || !strings.Contains(rec.ErrorMessage, "Unknown tool type") {
		t.Errorf("usage record = %+v", rec)
	}
}

func TestExecute_FailureRecordsErrorOutput(t *testing.T) {
	t.Parallel()
	usage := &captureUsage{}
	e := New(builtin.New(builtin.Config{}).Registry(), &fakeSandbox{}, usage, nil, nil)

	mathTool := &tool.Tool{ID: "t1", Name: "math_calculate", Category: "math", Status: tool.StatusActive}
	res := e.Execute(context.Background(), admission(mathTool), &tool.Request{
		ToolID:     "t1",
		Parameters: map[string]any{"operation": "average", "values": []any{}},
	})
	if res.Success {
		t.Fatal("average of empty array succeeded")
	}

	rec := usage.records[0]
	out := rec.OutputResult.(map[string]any)
	if out["error"] != "Cannot calculate average of an empty array" {
		t.Errorf("output_result = %v", out)
	}
	if rec.ErrorMessage != res.Error {
		t.Errorf("error_message = %q, want %q", rec.ErrorMessage, res.Error)
	}
}

func TestExecute_OversizedOutputIsTruncatedInAudit(t *testing.T) {
	t.Parallel()
	big := strings.Repeat("x", maxAuditOutputBytes)
	sb := &fakeSandbox{result: tool.Result{Success: true, Data: big, ExecutionTimeMS: 1}}
	usage := &captureUsage{}
	e := New(nil, sb, usage, nil, nil)

	customTool := &tool.Tool{ID: "c1", Name: "big", IsCustom: true, WrapperCode: "return x", Status: tool.StatusActive}
	res := e.Execute(context.Background(), admission(customTool), &tool.Request{ToolID: "c1"})
	if res.Data != big {
		t.Error("caller response must carry the full payload")
	}
	out := usage.records[0].OutputResult.(map[string]any)
	if out["truncated"] != true {
		t.Errorf("audit output = %v, want truncation marker", out)
	}
}

func TestExecute_NilUsageAndMetrics(t *testing.T) {
	t.Parallel()
	e := New(builtin.New(builtin.Config{}).Registry(), &fakeSandbox{}, nil, nil, nil)
	mathTool := &tool.Tool{ID: "t1", Name: "math_calculate", Category: "math", Status: tool.StatusActive}

	res := e.Execute(context.Background(), admission(mathTool), &tool.Request{
		ToolID:     "t1",
		Parameters: map[string]any{"operation": "round", "value": 1.25, "decimals": 1.0},
	})
	if !res.Success {
		t.Fatalf("execute failed: %s", res.Error)
	}
}
