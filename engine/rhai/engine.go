package rhai

import (
	"context"
	"maps"
	"sync"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// Name is the backend identifier.
const Name = "rhai"

// Engine is the Rhai-like backend. Host functions and disabled symbols are
// kept in copy-on-write maps, so sessions read them without locking.
type Engine struct {
	mu       sync.Mutex
	host     map[string]hostfunc.Func
	disabled map[string]bool
}

var _ engine.Adapter = (*Engine)(nil)

// New returns an engine with eval already disabled.
func New() *Engine {
	return &Engine{
		host:     map[string]hostfunc.Func{},
		disabled: map[string]bool{"eval": true},
	}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) snapshot() (map[string]hostfunc.Func, map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host, e.disabled
}

// RegisterHostFunction exposes fn under name. Names of built-ins and
// disabled symbols are refused.
func (e *Engine) RegisterHostFunction(name string, fn hostfunc.Func) error {
	if fn == nil {
		return scripterr.ConfigErrorf("host function %q is nil", name)
	}
	if _, ok := builtins[name]; ok {
		return scripterr.ConfigErrorf("host function %q conflicts with a built-in", name)
	}
	if keywords[name] {
		return scripterr.ConfigErrorf("host function %q is a reserved keyword", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disabled[name] {
		return scripterr.ConfigErrorf("host function %q is a disabled symbol", name)
	}
	if _, exists := e.host[name]; exists {
		return scripterr.ConfigErrorf("host function %q already registered", name)
	}
	next := maps.Clone(e.host)
	next[name] = fn
	e.host = next
	return nil
}

// Disable makes every reference to symbols a DisabledCapability error.
func (e *Engine) Disable(symbols ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := maps.Clone(e.disabled)
	for _, s := range symbols {
		next[s] = true
	}
	e.disabled = next
}

// Compile parses and resolves src. Nothing is executed.
func (e *Engine) Compile(src string) (engine.Unit, error) {
	host, disabled := e.snapshot()
	prog, err := parse(src)
	if err != nil {
		return nil, err
	}
	external := func(name string) bool {
		_, ok := host[name]
		return ok
	}
	if err := resolve(prog, disabled, external); err != nil {
		return nil, err
	}
	return prog, nil
}

func (e *Engine) program(unit engine.Unit) (*program, error) {
	prog, ok := unit.(*program)
	if !ok {
		return nil, scripterr.RuntimeErrorf("unit was not compiled by the %s engine", Name)
	}
	return prog, nil
}

// Evaluate runs the whole program and returns the value of its last
// statement.
func (e *Engine) Evaluate(ctx context.Context, unit engine.Unit, s *engine.Session) (value.Value, error) {
	prog, err := e.program(unit)
	if err != nil {
		return value.Nil(), err
	}
	host, _ := e.snapshot()
	it := newInterp(ctx, prog, s, host)

	v, err := it.run()
	if err != nil {
		return value.Nil(), err
	}
	return it.toValue(v)
}

// CallFunction runs the top level of the program, then calls name with
// args. Only functions defined by the script are entry points.
func (e *Engine) CallFunction(ctx context.Context, unit engine.Unit, name string, args []value.Value, s *engine.Session) (value.Value, error) {
	prog, err := e.program(unit)
	if err != nil {
		return value.Nil(), err
	}
	host, _ := e.snapshot()
	it := newInterp(ctx, prog, s, host)

	v, err := it.callEntry(name, args)
	if err != nil {
		return value.Nil(), err
	}
	return it.toValue(v)
}
