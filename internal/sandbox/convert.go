package sandbox

import (
	"encoding/json"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// goToLua converts a decoded JSON value into its Lua equivalent. Arrays
// become 1-indexed tables; objects become string-keyed tables. Unsupported
// types map to nil rather than panicking, since parameter bags arrive from
// untrusted callers.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case float64:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return lua.LString(v.String())
		}
		return lua.LNumber(f)
	case []any:
		tbl := L.CreateTable(len(v), 0)
		for i, item := range v {
			tbl.RawSetInt(i+1, goToLua(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.CreateTable(0, len(v))
		for key, item := range v {
			tbl.RawSetString(key, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// luaToGo converts a Lua value back into a JSON-encodable Go value. Tables
// with a contiguous 1..n integer key sequence decode as slices; everything
// else decodes as a string-keyed map. Whole numbers come back as int64 so
// that counts and IDs survive a JSON round trip without a fractional part.
func luaToGo(v lua.LValue) any {
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LString:
		return string(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f)
		}
		return f
	case *lua.LTable:
		return tableToGo(v)
	default:
		return v.String()
	}
}

func tableToGo(tbl *lua.LTable) any {
	n := tbl.Len()
	if n > 0 {
		// Treat as an array only when the sequence covers every key.
		total := 0
		tbl.ForEach(func(lua.LValue, lua.LValue) { total++ })
		if total == n {
			out := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				out = append(out, luaToGo(tbl.RawGetInt(i)))
			}
			return out
		}
	}
	out := make(map[string]any)
	tbl.ForEach(func(key, value lua.LValue) {
		out[key.String()] = luaToGo(value)
	})
	return out
}
