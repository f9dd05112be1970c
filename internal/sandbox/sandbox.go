// Package sandbox executes custom tool wrapper code in an embedded Lua
// interpreter. Each run gets a fresh interpreter state with a restricted
// library set: base, table, string, and math, with the code-loading
// primitives removed. There is no file system, network, or OS access from
// inside the sandbox; the only inputs are the wrapper source and the caller's
// parameter bag, exposed as the global `params` table.
package sandbox

import (
	"context"
	"errors"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/jbb-kryo/hive-protocol-sub002/internal/tool"
)

// DefaultTimeout bounds a single wrapper execution.
const DefaultTimeout = 30 * time.Second

// loadPrimitives are base-library functions that would let wrapper code load
// further chunks at runtime. They are removed from the global table before
// the wrapper runs.
var loadPrimitives = []string{"load", "loadstring", "loadfile", "dofile", "require"}

// Runner executes custom tool wrappers. The zero value is not usable; use
// [New].
type Runner struct {
	timeout time.Duration
}

// New creates a Runner. A non-positive timeout falls back to
// [DefaultTimeout].
func New(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{timeout: timeout}
}

// Run executes the wrapper source with params bound to the global `params`
// table and returns the uniform result envelope. The wrapper's return value
// (the last value it returns, if any) becomes the result data.
//
// Failures never propagate as errors: a missing wrapper, a Lua runtime
// error, and a timeout all produce a Success:false envelope. The timeout
// message is distinguishable from wrapper-raised errors so callers can tell
// a runaway script from a broken one.
func (r *Runner) Run(ctx context.Context, code string, params map[string]any) tool.Result {
	start := time.Now()
	if code == "" {
		return tool.Errf(start, "Custom tool has no wrapper code")
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	openRestrictedLibs(L)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	L.SetContext(ctx)

	L.SetGlobal("params", goToLua(L, params))

	fn, err := L.LoadString(code)
	if err != nil {
		return tool.Errf(start, "Custom tool execution failed: %v", err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return tool.Errf(start, "Tool execution timed out")
		}
		msg := err.Error()
		if apiErr := (*lua.ApiError)(nil); errors.As(err, &apiErr) {
			msg = apiErr.Object.String()
		}
		return tool.Errf(start, "Custom tool execution failed: %s", msg)
	}

	var data any
	if L.GetTop() > 0 {
		data = luaToGo(L.Get(-1))
	}
	return tool.Ok(data, start)
}

// openRestrictedLibs loads the allowed standard libraries into a fresh state
// and strips the load primitives the base library brings along.
func openRestrictedLibs(L *lua.LState) {
	for _, open := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(open.fn))
		L.Push(lua.LString(open.name))
		L.Call(1, 0)
	}
	for _, name := range loadPrimitives {
		L.SetGlobal(name, lua.LNil)
	}
}
