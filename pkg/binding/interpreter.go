package binding

import (
	"bytes"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Value is a script value crossing the host boundary: nil, bool, float64 or
// string. Other interpreter values pass through opaquely.
type Value = interface{}

// HostFunc is a host function callable from the script. A returned error
// is raised as a script error at the call site.
type HostFunc func(args []Value) ([]Value, error)

// Interpreter is the narrow host-interpreter contract the binding engine
// relies on. Implementations are not safe for concurrent use.
type Interpreter interface {
	SetGlobal(name string, v Value) error
	GetGlobal(name string) Value
	// Call invokes the global function name.
	Call(name string, args ...Value) ([]Value, error)
	Register(name string, fn HostFunc)
	Close()
}

// LuaInterpreter is an Interpreter backed by gopher-lua. Only the base,
// table, string and math libraries are opened; io, os and package are not.
type LuaInterpreter struct {
	L *lua.LState
}

// NewLuaInterpreter compiles source and runs its top-level code once.
func NewLuaInterpreter(source []byte, name string) (*LuaInterpreter, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSandboxLibs(L)

	fn, err := L.Load(bytes.NewReader(source), name)
	if err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, fmt.Errorf("failed to run top-level code: %w", err)
	}
	L.SetTop(0)

	return &LuaInterpreter{L: L}, nil
}

func openSandboxLibs(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	// The base library can still reach the filesystem through these.
	for _, name := range []string{"dofile", "loadfile"} {
		L.SetGlobal(name, lua.LNil)
	}
}

// SetGlobal implements Interpreter.
func (li *LuaInterpreter) SetGlobal(name string, v Value) error {
	lv, err := toLValue(v)
	if err != nil {
		return fmt.Errorf("global %s: %w", name, err)
	}
	li.L.SetGlobal(name, lv)
	return nil
}

// GetGlobal implements Interpreter.
func (li *LuaInterpreter) GetGlobal(name string) Value {
	return fromLValue(li.L.GetGlobal(name))
}

// Call implements Interpreter.
func (li *LuaInterpreter) Call(name string, args ...Value) ([]Value, error) {
	fn := li.L.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("%s is not a function (got %s)", name, fn.Type())
	}

	top := li.L.GetTop()
	li.L.Push(fn)
	for _, arg := range args {
		lv, err := toLValue(arg)
		if err != nil {
			li.L.SetTop(top)
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		li.L.Push(lv)
	}
	if err := li.L.PCall(len(args), lua.MultRet, nil); err != nil {
		li.L.SetTop(top)
		return nil, err
	}

	n := li.L.GetTop() - top
	rets := make([]Value, n)
	for i := 0; i < n; i++ {
		rets[i] = fromLValue(li.L.Get(top + 1 + i))
	}
	li.L.SetTop(top)
	return rets, nil
}

// Register implements Interpreter.
func (li *LuaInterpreter) Register(name string, fn HostFunc) {
	li.L.SetGlobal(name, li.L.NewFunction(func(L *lua.LState) int {
		args := make([]Value, L.GetTop())
		for i := range args {
			args[i] = fromLValue(L.Get(i + 1))
		}
		rets, err := fn(args)
		if err != nil {
			L.RaiseError("%s: %s", name, err.Error())
			return 0
		}
		for _, ret := range rets {
			lv, err := toLValue(ret)
			if err != nil {
				L.RaiseError("%s: %s", name, err.Error())
				return 0
			}
			L.Push(lv)
		}
		return len(rets)
	}))
}

// Close implements Interpreter.
func (li *LuaInterpreter) Close() {
	li.L.Close()
}

func toLValue(v Value) (lua.LValue, error) {
	switch v := v.(type) {
	case nil:
		return lua.LNil, nil
	case bool:
		return lua.LBool(v), nil
	case float64:
		return lua.LNumber(v), nil
	case int:
		return lua.LNumber(v), nil
	case string:
		return lua.LString(v), nil
	case lua.LValue:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func fromLValue(lv lua.LValue) Value {
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	default:
		return lv
	}
}

// coerceString applies Lua's number to string coercion, so 1 becomes "1".
func coerceString(v Value) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case float64:
		return lua.LNumber(v).String(), true
	default:
		return "", false
	}
}

// truthy applies Lua truthiness: only nil and false are false.
func truthy(v Value) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}

var _ Interpreter = (*LuaInterpreter)(nil)
