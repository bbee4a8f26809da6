// Package executor is the host-facing façade of the script engine.
//
// An Executor owns one backend, a resource policy and the host functions
// registered before its first run. Every Execute or CallFn call compiles
// the script (or reuses a cached unit), opens a fresh session, runs it to a
// terminal state and reports the result as an Outcome. Failures are data,
// never panics.
//
// The backend is chosen when the binary is built: the Rhai-like
// interpreter by default, or Lua with the "lua" build tag.
//
//	exec, err := executor.New(limits.DefaultPolicy())
//	out := exec.CallFn(ctx, script, "greet", value.String("World"))
//	if !out.OK() {
//	    log.Println(out.Err.Kind, out.Err.Message)
//	}
package executor
