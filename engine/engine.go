package engine

import (
	"context"

	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/value"
)

// Unit is a compiled script. Units are immutable and may be shared between
// sessions and cached by source text.
type Unit interface {
	// Source returns the text the unit was compiled from.
	Source() string
}

// Adapter is the narrow interface every scripting backend implements.
// Compile and the host function table must be safe for concurrent use once
// registration is over; Evaluate and CallFunction run one session at a
// time per call and keep all bindings inside that session.
type Adapter interface {
	// Name identifies the backend, e.g. "rhai" or "lua".
	Name() string

	// Compile parses and validates src without running it.
	Compile(src string) (Unit, error)

	// Evaluate runs unit to completion inside s and returns the value of
	// its final expression.
	Evaluate(ctx context.Context, unit Unit, s *Session) (value.Value, error)

	// CallFunction loads unit inside s and then invokes the top-level
	// function name with args.
	CallFunction(ctx context.Context, unit Unit, name string, args []value.Value, s *Session) (value.Value, error)

	// RegisterHostFunction exposes fn to scripts under name.
	RegisterHostFunction(name string, fn hostfunc.Func) error

	// Disable removes built-ins from the script environment. Referencing a
	// disabled symbol fails with DisabledCapability.
	Disable(symbols ...string)
}
