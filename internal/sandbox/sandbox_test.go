package sandbox

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRun_ReturnValueBecomesData(t *testing.T) {
	t.Parallel()
	r := New(0)

	res := r.Run(context.Background(), `return { sum = params.a + params.b, tag = "ok" }`,
		map[string]any{"a": 2.0, "b": 3.0})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	want := map[string]any{"sum": int64(5), "tag": "ok"}
	if !reflect.DeepEqual(res.Data, want) {
		t.Errorf("data = %v, want %v", res.Data, want)
	}
}

func TestRun_ArraysRoundTrip(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), `
		local out = {}
		for i, v in ipairs(params.items) do
			out[i] = v * 2
		end
		return out
	`, map[string]any{"items": []any{1.0, 2.0, 3.0}})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if want := []any{int64(2), int64(4), int64(6)}; !reflect.DeepEqual(res.Data, want) {
		t.Errorf("data = %v, want %v", res.Data, want)
	}
}

func TestRun_NoReturnYieldsNilData(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), `local x = 1 + 1`, nil)
	if !res.Success || res.Data != nil {
		t.Errorf("result = %+v, want success with nil data", res)
	}
}

func TestRun_EmptyWrapperFails(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), "", map[string]any{"a": 1.0})
	if res.Success || !strings.Contains(res.Error, "no wrapper code") {
		t.Errorf("result = %+v, want missing-wrapper failure", res)
	}
}

func TestRun_RuntimeErrorIsWrapped(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), `error("boom")`, nil)
	if res.Success {
		t.Fatal("expected failure")
	}
	if !strings.HasPrefix(res.Error, "Custom tool execution failed: ") || !strings.Contains(res.Error, "boom") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestRun_SyntaxErrorIsWrapped(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), `return (`, nil)
	if res.Success || !strings.HasPrefix(res.Error, "Custom tool execution failed: ") {
		t.Errorf("result = %+v, want wrapped compile failure", res)
	}
}

func TestRun_TimeoutMessage(t *testing.T) {
	t.Parallel()
	r := New(50 * time.Millisecond)
	res := r.Run(context.Background(), `while true do end`, nil)
	if res.Success {
		t.Fatal("runaway script succeeded")
	}
	if res.Error != "Tool execution timed out" {
		t.Errorf("error = %q, want exact timeout message", res.Error)
	}
	if res.ExecutionTimeMS < 50 {
		t.Errorf("execution time = %dms, want >= timeout", res.ExecutionTimeMS)
	}
}

func TestRun_LoadPrimitivesRemoved(t *testing.T) {
	t.Parallel()
	for _, name := range loadPrimitives {
		t.Run(name, func(t *testing.T) {
			res := New(0).Run(context.Background(), `return type(`+name+`)`, nil)
			if !res.Success {
				t.Fatalf("probe failed: %s", res.Error)
			}
			if res.Data != "nil" {
				t.Errorf("%s is reachable as %v", name, res.Data)
			}
		})
	}
}

func TestRun_NoOSAccess(t *testing.T) {
	t.Parallel()
	res := New(0).Run(context.Background(), `return os.getenv("HOME")`, nil)
	if res.Success {
		t.Errorf("os library is reachable: %+v", res)
	}
}

func TestRun_ParamsAreAPerRunCopy(t *testing.T) {
	t.Parallel()
	r := New(0)
	params := map[string]any{"x": 1.0}

	res := r.Run(context.Background(), `params.x = 99 return params.x`, params)
	if !res.Success || res.Data != int64(99) {
		t.Fatalf("mutating run = %+v", res)
	}
	res = r.Run(context.Background(), `return params.x`, params)
	if !res.Success || res.Data != int64(1) {
		t.Errorf("second run saw the mutated value: %+v", res)
	}
	if params["x"] != 1.0 {
		t.Errorf("caller's parameter map was mutated: %v", params["x"])
	}
}

func TestRun_StatesAreIsolated(t *testing.T) {
	t.Parallel()
	r := New(0)
	if res := r.Run(context.Background(), `leak = 42 return leak`, nil); !res.Success {
		t.Fatalf("first run failed: %s", res.Error)
	}
	res := r.Run(context.Background(), `return type(leak)`, nil)
	if !res.Success {
		t.Fatalf("second run failed: %s", res.Error)
	}
	if res.Data != "nil" {
		t.Errorf("global leaked across runs: %v", res.Data)
	}
}
