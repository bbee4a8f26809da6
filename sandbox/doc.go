// Package sandbox enforces the execution policy around a backend adapter.
//
// An Enforcer owns the limits policy and the set of disabled symbols. It
// removes those symbols from the backend once at construction, refuses host
// functions that would bring them back, and checks every value crossing the
// boundary against the size ceilings. Backend panics are recovered and
// reported as runtime errors so a faulty adapter cannot take down the host.
//
// Usage:
//
//	enforcer, err := sandbox.New(rhai.New(), limits.DefaultPolicy(),
//	    sandbox.WithLogger(logger))
//	session := enforcer.NewSession(ctx)
//	unit, err := enforcer.Compile(src)
//	v, err := enforcer.Evaluate(ctx, unit, session)
package sandbox
