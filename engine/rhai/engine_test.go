package rhai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
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
		{"Addition", "40 + 2", "42"},
		{"Precedence", "2 + 3 * 4 - 1", "13"},
		{"Power", "2 ** 10", "1024"},
		{"IntegerDivision", "7 / 2", "3"},
		{"Modulo", "7 % 3", "1"},
		{"FloatDivision", "7.0 / 2", "3.5"},
		{"FloatDivisionByZero", "1.0 / 0", "inf"},
		{"NegativeFloatDivisionByZero", "-1.0 / 0", "-inf"},
		{"FloatZeroByZero", "0.0 / 0.0", "NaN"},
		{"FloatModuloByZero", "5.0 % 0", "NaN"},
		{"FloatRendering", "0.1 + 0.2", "0.30000000000000004"},
		{"IntegralFloat", "1.5 * 2", "3"},
		{"Unary", "-(3 - 5)", "2"},
		{"Bitwise", "(6 & 3) | (1 << 4)", "18"},
		{"Logic", "true && !false || false", "true"},
		{"NumericEquality", "1 == 1.0", "true"},
		{"DeepEquality", "[1, [2, #{a: 3}]] == [1, [2, #{a: 3}]]", "true"},
		{"StringCompare", `"abc" < "abd"`, "true"},
		{"Concat", `"Hello, " + "World" + "!"`, "Hello, World!"},
		{"ConcatNumber", `"n=" + 5`, "n=5"},
		{"Escapes", `"a\tb\x41\u00e9"`, "a\tbAé"},
		{"Unit", "()", "nil"},
		{"LetIsUnit", "let x = 5;", "nil"},
		{"TrailingSemicolon", "let x = 1; x;", "1"},
		{"Shadowing", "let x = 1; let x = x + 1; x", "2"},
		{"BlockValue", "let x = { let y = 2; y * 3 }; x", "6"},
		{"Comments", "// c\n1 /* inline */ + 1", "2"},

		{"Upper", `"abc".to_upper()`, "ABC"},
		{"Lower", `to_lower("ABC")`, "abc"},
		{"Trim", `"  x ".trim()`, "x"},
		{"Split", `"a,b,c".split(",")`, `["a", "b", "c"]`},
		{"SubString", `"hello".sub_string(1, 3)`, "ell"},
		{"SubStringTail", `"hello".sub_string(-2)`, "lo"},
		{"IndexOf", `"héllo".index_of("l")`, "2"},
		{"StringContains", `"hello".contains("ell")`, "true"},
		{"StartsEnds", `"hello".starts_with("he") && "hello".ends_with("lo")`, "true"},
		{"Replace", `"a-b-c".replace("-", "+")`, "a+b+c"},
		{"RuneLength", `"héllo".len()`, "5"},
		{"StringIndex", `"abc"[1] + "abc"[-1]`, "bc"},
		{"ToString", `to_string([1, "a"])`, `[1, "a"]`},

		{"ArrayLiteral", "[1, 2.5, true, (), \"s\"]", `[1, 2.5, true, nil, "s"]`},
		{"Push", "let a = [1, 2]; a.push(3); a", "[1, 2, 3]"},
		{"Pop", "let a = [1, 2, 3]; a.pop()", "3"},
		{"ArrayConcat", "[1, 2] + [3]", "[1, 2, 3]"},
		{"Reverse", "let a = [3, 2, 1]; a.reverse(); a", "[1, 2, 3]"},
		{"ArrayContains", "[1, 2, 3].contains(2)", "true"},
		{"Join", `[1, 2, 3].join("-")`, "1-2-3"},
		{"Remove", "let a = [1, 2, 3]; a.remove(0); a", "[2, 3]"},
		{"Insert", "let a = [1, 3]; a.insert(1, 2); a", "[1, 2, 3]"},
		{"IndexAssign", "let a = [1]; a[0] = 5; a[0] += 1; a", "[6]"},
		{"NegativeIndex", "[1, 2, 3][-1]", "3"},
		{"IsEmpty", "[].is_empty() && \"\".is_empty()", "true"},
		{"ReferenceSemantics", "let a = [1]; let b = a; b.push(2); a", "[1, 2]"},

		{"MapLiteral", "#{b: 2, a: 1}", `#{"a": 1, "b": 2}`},
		{"MapProperty", "let m = #{a: 1}; m.b = 2; m.a += 10; m", `#{"a": 11, "b": 2}`},
		{"MapIndex", `let m = #{"k": "v"}; m["k"]`, "v"},
		{"MissingProperty", "#{a: 1}.x", "nil"},
		{"MapKeys", "#{b: 1, a: 2}.keys()", `["a", "b"]`},
		{"MapValues", "#{b: 1, a: 2}.values()", "[2, 1]"},
		{"MapContains", `#{a: 1}.contains("a")`, "true"},
		{"MapRemove", `let m = #{a: 1, b: 2}; m.remove("a"); len(m)`, "1"},

		{"IfExpression", `let x = if 3 > 2 { "yes" } else { "no" }; x`, "yes"},
		{"ElseIf", `let n = 0; if n > 0 { "pos" } else if n < 0 { "neg" } else { "zero" }`, "zero"},
		{"IfWithoutElse", "if false { 1 }", "nil"},
		{"While", "let i = 0; while i < 5 { i += 1; } i", "5"},
		{"LoopBreakValue", "let r = loop { break 42; }; r", "42"},
		{"ForRange", "let s = 0; for i in 0..5 { s += i; } s", "10"},
		{"ForInclusive", "let s = 0; for i in 0..=5 { s += i; } s", "15"},
		{"ForIndex", `let out = ""; for (v, i) in ["a", "b"] { out += i.to_string() + v; } out`, "0a1b"},
		{"ForString", `let n = 0; for c in "abc" { if c == "b" { continue; } n += 1; } n`, "2"},
		{"ForMapKeys", `let out = ""; for k in #{b: 1, a: 2} { out += k; } out`, "ab"},
		{"NestedBreak", "let n = 0; for i in 0..10 { if i == 3 { break; } n += 1; } n", "3"},

		{"Function", "fn add(a, b) { a + b } add(2, 3)", "5"},
		{"Overload", "fn f(a) { 1 } fn f(a, b) { 2 } f(0) + f(0, 0)", "3"},
		{"Recursion", "fn fact(n) { if n <= 1 { 1 } else { n * fact(n - 1) } } fact(10)", "3628800"},
		{"EarlyReturn", `fn f(x) { if x > 0 { return "pos"; } "neg" } f(1) + f(-1)`, "posneg"},
		{"Hoisting", "let r = later(); fn later() { 7 } r", "7"},
		{"MethodOnScriptFn", "fn double(x) { x * 2 } 21.double()", "42"},
		{"TopLevelReturn", "return 5; 6", "5"},

		{"TryThrow", `try { throw "bad"; } catch (e) { "caught " + e }`, "caught bad"},
		{"TryRuntimeError", "try { 1 / 0 } catch (e) { e }", "division by zero"},
		{"TryWithoutVar", "try { throw 1; } catch { 2 }", "2"},

		{"TypeOf", `[type_of(1), type_of(1.5), type_of(""), type_of([]), type_of(#{}), type_of(()), type_of(true)].join(",")`,
			"i64,f64,string,array,map,(),bool"},
		{"Conversions", `to_int(3.9) + parse_int("42") + parse_int("ff", 16)`, "300"},
		{"ToFloat", "to_float(1) / 4", "0.25"},
		{"ParseFloat", `parse_float("2.5") * 2`, "5"},
		{"Math", "[abs(-3), sqrt(16), round(2.5), floor(2.7), ceiling(2.1), min(1, 2), max(1, 2.5)]", "[3, 4, 3, 2, 3, 1, 2.5]"},
		{"RangeLen", "(0..10).len()", "10"},
		{"RangeValue", "0..3", "[0, 1, 2]"},
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
	tests := []struct {
		name   string
		script string
		msg    string
	}{
		{"Syntax", "let x = ;", "unexpected ';'"},
		{"MissingSemicolon", "let x = 1 let y = 2", "expected ';'"},
		{"UnknownVariable", "y + 1", "variable 'y' not found"},
		{"UnknownFunction", "foo()", "function 'foo' not found"},
		{"BreakOutsideLoop", "break;", "'break' outside of a loop"},
		{"ConstAssign", "const c = 1; c = 2;", "cannot assign to constant 'c'"},
		{"NestedFn", "fn f() { fn g() { } }", "global level"},
		{"DuplicateFn", "fn f(a) { } fn f(b) { }", "already defined"},
		{"FnSeesNoOuterScope", "let x = 1; fn f() { x } f()", "variable 'x' not found"},
		{"BadAssignTarget", "1 = 2;", "cannot assign"},
		{"TooDeep", strings.Repeat("(", maxNesting+1) + "1" + strings.Repeat(")", maxNesting+1), "nested deeper"},
		{"Unclosed", "if true { 1", "expected '}'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Compile(tt.script)
			require.Error(t, err)
			assert.ErrorIs(t, err, scripterr.ErrCompile)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	t.Run("Position", func(t *testing.T) {
		_, err := e.Compile("let x = 1;\nlet y = z;")
		serr := scripterr.From(err)
		require.NotNil(t, serr)
		assert.Equal(t, 2, serr.Line)
		assert.Equal(t, 9, serr.Column)
	})

	t.Run("CompileHasNoSideEffects", func(t *testing.T) {
		_, err := e.Compile("loop { }")
		assert.NoError(t, err)
	})
}

func TestDisabledSymbols(t *testing.T) {
	e := New()
	e.Disable("open", "system")

	for _, src := range []string{
		`eval("1 + 1")`,
		`open("/etc/passwd")`,
		`"/etc/passwd".open()`,
		`let system = 1;`,
		`fn f(open) { 1 }`,
		`import "fs" as fs;`,
		`export const x = 1;`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := e.Compile(src)
			require.Error(t, err)
			assert.ErrorIs(t, err, scripterr.ErrDisabledCapability)
		})
	}

	t.Run("PropertyNamesAreData", func(t *testing.T) {
		got, err := eval(t, e, "#{open: 1}.open")
		require.NoError(t, err)
		assert.Equal(t, "1", got.String())
	})
}

func TestRuntimeErrors(t *testing.T) {
	e := New()
	tests := []struct {
		name   string
		script string
		msg    string
	}{
		{"DivisionByZero", "1 / 0", "division by zero"},
		{"Overflow", "9223372036854775807 + 1", "integer overflow"},
		{"MulOverflow", "3037000500 * 3037000500", "integer overflow"},
		{"PowOverflow", "2 ** 63", "integer overflow"},
		{"OutOfBounds", "[1][5]", "out of bounds"},
		{"Throw", `throw "boom"`, "boom"},
		{"ThrowFromFunction", `fn f() { throw #{code: 7}; } f()`, `#{"code": 7}`},
		{"NonBoolCondition", "if 1 { }", "condition must be a bool"},
		{"TypeMismatch", `"a" - 1`, "cannot be applied to string and i64"},
		{"NoOverload", "fn f(a) { a } f(1, 2)", "not found"},
		{"BuiltinArity", "len(1, 2)", "not found"},
		{"BuiltinTypes", "len(1)", "len (i64)"},
		{"CallDepth", "fn f(n) { f(n + 1) } f(0)", "call stack exceeded"},
		{"SelfContaining", "let a = []; a.push(a); a", "contains itself"},
		{"CannotIterate", "for x in 5 { }", "cannot iterate"},
		{"StringAssign", `let s = "abc"; s[0] = "x";`, "cannot assign into string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eval(t, e, tt.script)
			require.Error(t, err)
			assert.ErrorIs(t, err, scripterr.ErrRuntime)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	t.Run("ErrorCarriesPosition", func(t *testing.T) {
		_, err := eval(t, e, "let a = 1;\nlet b = a / 0;")
		serr := scripterr.From(err)
		require.NotNil(t, serr)
		assert.Equal(t, 2, serr.Line)
	})
}

func TestLimits(t *testing.T) {
	e := New()

	t.Run("OperationsUnboundedLoop", func(t *testing.T) {
		start := time.Now()
		_, err := eval(t, e, "loop { }", limits.WithMaxOperations(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("OperationsForLoop", func(t *testing.T) {
		_, err := eval(t, e, "let x = 0; for i in 0..1000 { x += i; } x", limits.WithMaxOperations(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
	})

	t.Run("OperationsRecursion", func(t *testing.T) {
		_, err := eval(t, e, "fn f(n) { if n == 0 { 0 } else { 1 + f(n - 1) } } f(50)", limits.WithMaxOperations(20))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
	})

	t.Run("Time", func(t *testing.T) {
		_, err := eval(t, e, "loop { }",
			limits.WithMaxOperations(math.MaxUint64),
			limits.WithMaxDuration(20*time.Millisecond))
		assert.True(t, scripterr.IsLimit(err, scripterr.Time), "got %v", err)
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		unit, err := e.Compile("loop { }")
		require.NoError(t, err)
		_, err = e.Evaluate(ctx, unit, newSession(t, ctx))
		assert.True(t, scripterr.IsLimit(err, scripterr.Time), "got %v", err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("StringExactlyAtLimit", func(t *testing.T) {
		got, err := eval(t, e, `let s = ""; for i in 0..10 { s += "a"; } s`, limits.WithMaxStringLen(10))
		require.NoError(t, err)
		assert.Equal(t, strings.Repeat("a", 10), got.String())
	})

	t.Run("StringOneOver", func(t *testing.T) {
		_, err := eval(t, e, `let s = ""; for i in 0..11 { s += "a"; } s`, limits.WithMaxStringLen(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("ArrayPush", func(t *testing.T) {
		_, err := eval(t, e, "let a = []; for i in 0..4 { a.push(i); } a", limits.WithMaxArraySize(3))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("ArrayLiteral", func(t *testing.T) {
		_, err := eval(t, e, "[1, 2, 3, 4]", limits.WithMaxArraySize(3))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("RangeResult", func(t *testing.T) {
		_, err := eval(t, e, "0..100", limits.WithMaxArraySize(10))
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize), "got %v", err)
	})

	t.Run("Memory", func(t *testing.T) {
		_, err := eval(t, e, `let a = []; loop { a.push("item" + a.len()); }`, limits.WithMemoryLimit(1024))
		assert.True(t, scripterr.IsLimit(err, scripterr.Memory), "got %v", err)
	})

	t.Run("SharedNestedArrayResult", func(t *testing.T) {
		ctx := context.Background()
		unit, err := e.Compile(`
			let a = [];
			for i in 0..1000 { a.push(i); }
			let b = [];
			for i in 0..1000 { b.push(a); }
			b`)
		require.NoError(t, err)
		s := newSession(t, ctx, limits.WithMemoryLimit(1<<20))
		_, err = e.Evaluate(ctx, unit, s)
		assert.True(t, scripterr.IsLimit(err, scripterr.Memory), "got %v", err)
		// The overshoot is at most the node that crossed the ceiling.
		assert.LessOrEqual(t, s.Meter.PeakHeapBytes(), int64(1<<20)+arrayBytes+valueBytes*1000)
	})

	t.Run("SharedNestedArrayPrint", func(t *testing.T) {
		_, err := eval(t, e, `
			let a = [];
			for i in 0..1000 { a.push(i); }
			let b = [];
			for i in 0..1000 { b.push(a); }
			print(b);`, limits.WithMemoryLimit(1<<20))
		assert.True(t, scripterr.IsLimit(err, scripterr.Memory), "got %v", err)
	})

	t.Run("SharedArrayWithinLimit", func(t *testing.T) {
		got, err := eval(t, e, `
			let a = [1, 2, 3];
			let b = [a, a, a];
			b`, limits.WithMemoryLimit(4096))
		require.NoError(t, err)
		assert.Equal(t, "[[1, 2, 3], [1, 2, 3], [1, 2, 3]]", got.String())
	})

	t.Run("GarbageIsNotCounted", func(t *testing.T) {
		got, err := eval(t, e, `let s = ""; for i in 0..200 { s = "x" + i; } s`, limits.WithMemoryLimit(256))
		require.NoError(t, err)
		assert.Equal(t, "x199", got.String())
	})

	t.Run("TryCannotCatchLimits", func(t *testing.T) {
		_, err := eval(t, e, "try { loop { } } catch { 1 }", limits.WithMaxOperations(50))
		assert.True(t, scripterr.IsLimit(err, scripterr.Operations), "got %v", err)
	})
}

func TestCallFunction(t *testing.T) {
	e := New()
	ctx := context.Background()
	unit, err := e.Compile(`
		fn greet(name) {
			"Hello, " + name + "!"
		}
		fn sum(items) {
			let total = 0;
			for x in items { total += x; }
			total
		}
		print("loaded");
	`)
	require.NoError(t, err)

	t.Run("Greet", func(t *testing.T) {
		s := newSession(t, ctx)
		got, err := e.CallFunction(ctx, unit, "greet", []value.Value{value.String("World")}, s)
		require.NoError(t, err)
		assert.Equal(t, "Hello, World!", got.String())
		assert.Equal(t, "loaded\n", s.Output(), "top-level statements run before the entry point")
	})

	t.Run("ArrayArgument", func(t *testing.T) {
		got, err := e.CallFunction(ctx, unit, "sum",
			[]value.Value{value.Array(value.Int(1), value.Int(2), value.Float(0.5))}, newSession(t, ctx))
		require.NoError(t, err)
		assert.Equal(t, "3.5", got.String())
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newSession(t, ctx)
		_, err := e.CallFunction(ctx, unit, "missing", nil, s)
		assert.ErrorIs(t, err, scripterr.ErrFunctionNotFound)
		assert.Empty(t, s.Output(), "nothing runs when the entry point is absent")
	})

	t.Run("WrongArity", func(t *testing.T) {
		_, err := e.CallFunction(ctx, unit, "greet", nil, newSession(t, ctx))
		assert.ErrorIs(t, err, scripterr.ErrFunctionNotFound)
	})

	t.Run("BuiltinsAreNotEntryPoints", func(t *testing.T) {
		_, err := e.CallFunction(ctx, unit, "len", []value.Value{value.String("x")}, newSession(t, ctx))
		assert.ErrorIs(t, err, scripterr.ErrFunctionNotFound)
	})

	t.Run("ArgumentLimits", func(t *testing.T) {
		s := newSession(t, ctx, limits.WithMaxStringLen(3))
		_, err := e.CallFunction(ctx, unit, "greet", []value.Value{value.String("World")}, s)
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})
}

func TestPrint(t *testing.T) {
	e := New()
	unit, err := e.Compile(`print("hi"); debug("x"); print([1, "a"]); 1`)
	require.NoError(t, err)

	s := newSession(t, context.Background())
	got, err := e.Evaluate(context.Background(), unit, s)
	require.NoError(t, err)
	assert.Equal(t, "1", got.String())
	assert.Equal(t, "hi\n\"x\"\n[1, \"a\"]\n", s.Output())
}

func TestHostFunctions(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterHostFunction("greet_host", func(_ context.Context, args []value.Value) (value.Value, error) {
		name, _ := args[0].AsString()
		return value.String("Hi " + name), nil
	}))
	require.NoError(t, e.RegisterHostFunction("fail", func(context.Context, []value.Value) (value.Value, error) {
		return value.Nil(), errors.New("backend unavailable")
	}))
	require.NoError(t, e.RegisterHostFunction("lookup", func(context.Context, []value.Value) (value.Value, error) {
		return value.Map(map[string]value.Value{"tags": value.Array(value.String("a"))}), nil
	}))

	t.Run("Call", func(t *testing.T) {
		got, err := eval(t, e, `greet_host("Bob")`)
		require.NoError(t, err)
		assert.Equal(t, "Hi Bob", got.String())
	})

	t.Run("CompositeResult", func(t *testing.T) {
		got, err := eval(t, e, `let r = lookup(); r.tags.push("b"); r.tags`)
		require.NoError(t, err)
		assert.Equal(t, `["a", "b"]`, got.String())
	})

	t.Run("ErrorIsRuntime", func(t *testing.T) {
		_, err := eval(t, e, "fail()")
		assert.ErrorIs(t, err, scripterr.ErrRuntime)
		assert.Contains(t, err.Error(), "host function 'fail' failed: backend unavailable")
	})

	t.Run("ErrorIsCatchable", func(t *testing.T) {
		got, err := eval(t, e, `try { fail() } catch (e) { "recovered" }`)
		require.NoError(t, err)
		assert.Equal(t, "recovered", got.String())
	})

	t.Run("ResultIsBounded", func(t *testing.T) {
		_, err := eval(t, e, `greet_host("Bob")`, limits.WithMaxStringLen(4))
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength), "got %v", err)
	})

	t.Run("RegistrationRules", func(t *testing.T) {
		noop := func(context.Context, []value.Value) (value.Value, error) { return value.Nil(), nil }
		assert.ErrorIs(t, e.RegisterHostFunction("print", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("greet_host", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("eval", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("loop", noop), scripterr.ErrConfig)
		assert.ErrorIs(t, e.RegisterHostFunction("nil_fn", nil), scripterr.ErrConfig)
	})
}

func TestSessionIsolation(t *testing.T) {
	e := New()
	unit, err := e.Compile("fn id(n) { let x = n; for i in 0..100 { x = x + 0; } x } let x = 0; x")
	require.NoError(t, err)

	policy := limits.DefaultPolicy()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			s := engine.NewSession(context.Background(), policy)
			got, err := e.CallFunction(context.Background(), unit, "id", []value.Value{value.Int(n)}, s)
			assert.NoError(t, err)
			assert.Equal(t, fmt.Sprint(n), got.String())
		}(int64(i))
	}
	wg.Wait()
}

func TestIdempotent(t *testing.T) {
	e := New()
	unit, err := e.Compile("let a = [3, 1, 2]; a.reverse(); a")
	require.NoError(t, err)

	first, err := e.Evaluate(context.Background(), unit, newSession(t, context.Background()))
	require.NoError(t, err)
	second, err := e.Evaluate(context.Background(), unit, newSession(t, context.Background()))
	require.NoError(t, err)
	assert.True(t, first.Equal(second))
	assert.Equal(t, "[2, 1, 3]", second.String())
}
