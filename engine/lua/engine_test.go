package lua

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

func newSession(t *testing.T, ctx context.Context, opts ...limits.Option) *engine.Session {
	t.Helper()
	policy, err := limits.NewPolicy(opts...)
	require.NoError(t, err)
	return engine.NewSession(ctx, policy)
}

func eval(t *testing.T, e *Engine, src string, opts ...limits.Option) (value.Value, error) {
	t.Helper()
	unit, err := e.Compile(src)
	if err != nil {
		return value.Nil(), err
	}
	return e.Evaluate(context.Background(), unit, newSession(t, context.Background(), opts...))
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"Addition", "return 40 + 2", "42"},
		{"Division", "return 7 / 2", "3.5"},
		{"IntegralPower", "return 2 ^ 10", "1024"},
		{"Concat", `return "Hello, " .. "World"`, "Hello, World"},
		{"StringMethod", `return ("abc"):upper()`, "ABC"},
		{"Repeat", `return string.rep("ab", 3, "-")`, "ab-ab-ab"},
		{"Sequence", "return {1, 2, 3}", "[1, 2, 3]"},
		{"EmptyTable", "return {}", "[]"},
		{"Record", `return {name = "x", n = 1}`, `#{"n": 1, "name": "x"}`},
		{"SparseTable", "return {[1] = 1, [3] = 3}", `#{"1": 1, "3": 3}`},
		{"Nested", `return {list = {true, false}}`, `#{"list": [true, false]}`},
		{"NoResult", "local x = 1", "nil"},
		{"Loop", "local s = 0 for i = 1, 10 do s = s + i end return s", "55"},
		{"Closure", "local function f(n) if n == 0 then return 1 end return n * f(n - 1) end return f(5)", "120"},
		{"TableInsert", "local t = {} table.insert(t, 'a') table.insert(t, 'b') return table.concat(t, ',')", "a,b"},
		{"Pcall", "local ok = pcall(error, 'x') return ok", "false"},
		{"Bit32", "return bit32.band(6, 3)", "2"},
		{"Math", "return math.max(1, 9, 4)", "9"},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval(t, e, tt.script)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCompileErrors(t *testing.T) {
	e := New()
	_, err := e.Compile("local x = \n\n return return")
	require.Error(t, err)
	assert.ErrorIs(t, err, scripterr.ErrCompile)

	var serr *scripterr.Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 3, serr.Line)
}

func TestRuntimeErrors(t *testing.T) {
	e := New()
	for name, src := range map[string]string{
		"ErrorCall":     `error("boom")`,
		"NilArithmetic": "local x = nil return x + 1",
		"NilCall":       "undefined_fn()",
		"CycleResult":   "local t = {} t.self = t return t",
		"FunctionValue": "return print",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := eval(t, e, src)
			assert.ErrorIs(t, err, scripterr.ErrRuntime)
		})
	}

	t.Run("MessageAndLine", func(t *testing.T) {
		_, err := eval(t, e, "local a = 1\nerror(\"boom\")")
		var serr *scripterr.Error
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, "boom", serr.Message)
		assert.Equal(t, 2, serr.Line)
	})
}

func TestDisabledCapabilities(t *testing.T) {
	e := New()
	e.Disable("eval")
	for name, src := range map[string]string{
		"Os":          "return os.time()",
		"Io":          `io.write("x")`,
		"Load":        `return load("return 1")`,
		"Require":     `require("socket")`,
		"Debug":       "return debug.traceback()",
		"Assign":      "os = {}",
		"Eval":        `eval("1")`,
		"PcallCannot": "local ok = pcall(function() return os.exit() end) return 1",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := eval(t, e, src)
			assert.ErrorIs(t, err, scripterr.ErrDisabledCapability)
		})
	}

	t.Run("MetatableIsProtected", func(t *testing.T) {
		_, err := eval(t, e, "setmetatable(_G, nil)")
		assert.ErrorIs(t, err, scripterr.ErrRuntime)
	})
}

func TestLimits(t *testing.T) {
	e := New()

	t.Run("Operations", func(t *testing.T) {
		start := time.Now()
		_, err := eval(t, e, "while true do end", limits.WithMaxOperations(1000))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("PcallCannotCatch", func(t *testing.T) {
		_, err := eval(t, e, "pcall(function() while true do end end) return 1", limits.WithMaxOperations(1000))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
	})

	t.Run("Time", func(t *testing.T) {
		_, err := eval(t, e, "while true do end",
			limits.WithMaxOperations(math.MaxUint64),
			limits.WithMaxDuration(20*time.Millisecond))
		assert.True(t, scripterr.IsLimit(err, scripterr.Time), "got %v", err)
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		unit, err := e.Compile("while true do end")
		require.NoError(t, err)
		_, err = e.Evaluate(ctx, unit, newSession(t, ctx))
		assert.True(t, scripterr.IsLimit(err, scripterr.Time), "got %v", err)
	})

	t.Run("RepeatIsCheckedFirst", func(t *testing.T) {
		_, err := eval(t, e, `return string.rep("x", 1e12)`, limits.WithMaxStringLen(100))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("StringAtLimit", func(t *testing.T) {
		got, err := eval(t, e, `return string.rep("a", 10)`, limits.WithMaxStringLen(10))
		require.NoError(t, err)
		assert.Equal(t, "aaaaaaaaaa", got.String())
	})

	t.Run("StringResult", func(t *testing.T) {
		_, err := eval(t, e, `return "abc" .. "def"`, limits.WithMaxStringLen(5))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("TableInsert", func(t *testing.T) {
		_, err := eval(t, e, "local t = {} for i = 1, 5 do table.insert(t, i) end return 1", limits.WithMaxArraySize(3))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("ArrayResult", func(t *testing.T) {
		_, err := eval(t, e, "local t = {} for i = 1, 5 do t[i] = i end return t", limits.WithMaxArraySize(3))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("ConcatenationPastStringLimit", func(t *testing.T) {
		_, err := eval(t, e, `local s = "x" for i = 1, 26 do s = s .. s end return #s`, limits.WithMaxStringLen(1000))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("ConcatenationCannotBeCaught", func(t *testing.T) {
		_, err := eval(t, e, `
			pcall(function() local s = "x" for i = 1, 26 do s = s .. s end end)
			return 1`, limits.WithMaxStringLen(1000))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("IndexAppendPastArrayLimit", func(t *testing.T) {
		_, err := eval(t, e, "local t = {} for i = 1, 5000 do t[#t + 1] = i end return #t", limits.WithMaxArraySize(1000))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("StringKeysPastArrayLimit", func(t *testing.T) {
		_, err := eval(t, e, `local t = {} for i = 1, 100 do t["k" .. i] = i end return 0`, limits.WithMaxArraySize(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("NestedTablePastArrayLimit", func(t *testing.T) {
		_, err := eval(t, e, `
			local outer = {inner = {}}
			for i = 1, 100 do outer.inner["k" .. i] = i end
			return 0`, limits.WithMaxArraySize(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("Memory", func(t *testing.T) {
		_, err := eval(t, e, `
			local t = {}
			for i = 1, 200 do t[i] = string.rep("x", 9000) .. i end
			return #t`, limits.WithMemoryLimit(1<<20))
		assert.True(t, scripterr.IsLimit(err, scripterr.Memory), "got %v", err)
	})

	t.Run("GarbageIsNotCounted", func(t *testing.T) {
		got, err := eval(t, e, `
			local s
			for i = 1, 500 do s = string.rep("x", 1000) .. i end
			return #s`, limits.WithMemoryLimit(64*1024))
		require.NoError(t, err)
		assert.Equal(t, "1003", got.String())
	})

	t.Run("HeapIsMeasured", func(t *testing.T) {
		ctx := context.Background()
		unit, err := e.Compile(`
			big = {}
			for i = 1, 100 do big[i] = string.rep("y", 1000) end
			local n = 0
			for i = 1, 100 do n = n + 1 end
			return n`)
		require.NoError(t, err)
		s := newSession(t, ctx)
		_, err = e.Evaluate(ctx, unit, s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, s.Meter.PeakHeapBytes(), int64(100*1000))
	})
}

func TestCallFunction(t *testing.T) {
	e := New()
	ctx := context.Background()
	unit, err := e.Compile(`
		function greet(name)
			return "Hello, " .. name .. "!"
		end
		function sum(items)
			local total = 0
			for _, x in ipairs(items) do total = total + x end
			return total
		end
		print("loaded")
	`)
	require.NoError(t, err)

	t.Run("Greet", func(t *testing.T) {
		s := newSession(t, ctx)
		got, err := e.CallFunction(ctx, unit, "greet", []value.Value{value.String("World")}, s)
		require.NoError(t, err)
		assert.Equal(t, "Hello, World!", got.String())
		assert.Equal(t, "loaded\n", s.Output())
	})

	t.Run("ArrayArgument", func(t *testing.T) {
		got, err := e.CallFunction(ctx, unit, "sum",
			[]value.Value{value.Array(value.Int(1), value.Int(2), value.Float(0.5))}, newSession(t, ctx))
		require.NoError(t, err)
		assert.Equal(t, "3.5", got.String())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := e.CallFunction(ctx, unit, "missing", nil, newSession(t, ctx))
		assert.ErrorIs(t, err, scripterr.ErrFunctionNotFound)
	})

	t.Run("DisabledIsNotFound", func(t *testing.T) {
		_, err := e.CallFunction(ctx, unit, "os", nil, newSession(t, ctx))
		assert.ErrorIs(t, err, scripterr.ErrFunctionNotFound)
	})
}

func TestPrint(t *testing.T) {
	e := New()
	unit, err := e.Compile(`print("hi", 1, true) print(nil) return 1`)
	require.NoError(t, err)

	s := newSession(t, context.Background())
	_, err = e.Evaluate(context.Background(), unit, s)
	require.NoError(t, err)
	assert.Equal(t, "hi\t1\ttrue\nnil\n", s.Output())
}

func TestHostFunctions(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterHostFunction("lookup", func(_ context.Context, args []value.Value) (value.Value, error) {
		name, _ := args[0].AsString()
		return value.Map(map[string]value.Value{"name": value.String(name), "tags": value.Array(value.String("a"))}), nil
	}))
	require.NoError(t, e.RegisterHostFunction("fail", func(context.Context, []value.Value) (value.Value, error) {
		return value.Nil(), errors.New("backend unavailable")
	}))

	t.Run("Call", func(t *testing.T) {
		got, err := eval(t, e, `local r = lookup("Bob") return r.name .. #r.tags`)
		require.NoError(t, err)
		assert.Equal(t, "Bob1", got.String())
	})

	t.Run("ErrorIsRuntime", func(t *testing.T) {
		_, err := eval(t, e, "fail()")
		assert.ErrorIs(t, err, scripterr.ErrRuntime)
		assert.Contains(t, err.Error(), "host function 'fail' failed: backend unavailable")
	})

	t.Run("ErrorIsCatchable", func(t *testing.T) {
		got, err := eval(t, e, "local ok = pcall(fail) return ok")
		require.NoError(t, err)
		assert.Equal(t, "false", got.String())
	})

	t.Run("RegistrationRules", func(t *testing.T) {
		noop := func(context.Context, []value.Value) (value.Value, error) { return value.Nil(), nil }
		assert.ErrorIs(t, e.RegisterHostFunction("print", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("lookup", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("os", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("end", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("nil_fn", nil), scripterr.ErrConfig)
	})
}

func TestSessionIsolation(t *testing.T) {
	e := New()
	unit, err := e.Compile("counter = (counter or 0) + 1 return counter")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := e.Evaluate(context.Background(), unit, newSession(t, context.Background()))
		require.NoError(t, err)
		assert.Equal(t, "1", got.String(), "globals never leak between sessions")
	}
}
