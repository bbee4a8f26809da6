package sandbox

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// DefaultDisabledSymbols are removed from every backend: dynamic evaluation,
// module loading and the process, file and debug facilities.
var DefaultDisabledSymbols = []string{
	"eval", "load", "loadstring", "loadfile", "dofile", "require", "module",
	"collectgarbage", "io", "os", "debug", "package",
}

// Enforcer applies a policy and a capability set to an engine adapter.
// All adapter calls go through it so a failing backend surfaces as a
// classified error instead of taking the host down.
type Enforcer struct {
	adapter  engine.Adapter
	policy   limits.Policy
	disabled []string
	logger   *zap.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets the logger used to report recovered panics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// WithDisabledSymbols disables symbols in addition to the defaults.
func WithDisabledSymbols(symbols ...string) Option {
	return func(e *Enforcer) {
		e.disabled = append(e.disabled, symbols...)
	}
}

// New validates policy and disables the configured symbols on adapter.
func New(adapter engine.Adapter, policy limits.Policy, opts ...Option) (*Enforcer, error) {
	if adapter == nil {
		return nil, scripterr.ConfigErrorf("engine adapter is required")
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	e := &Enforcer{
		adapter:  adapter,
		policy:   policy,
		disabled: slices.Clone(DefaultDisabledSymbols),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	slices.Sort(e.disabled)
	e.disabled = slices.Compact(e.disabled)

	adapter.Disable(e.disabled...)
	return e, nil
}

func (e *Enforcer) Policy() limits.Policy { return e.policy }

// Backend returns the adapter name.
func (e *Enforcer) Backend() string { return e.adapter.Name() }

// Disabled returns the sorted disabled symbols.
func (e *Enforcer) Disabled() []string { return slices.Clone(e.disabled) }

// RegisterHostFunction exposes fn to scripts. Panics raised by fn become
// RuntimeErrors.
func (e *Enforcer) RegisterHostFunction(name string, fn hostfunc.Func) error {
	if _, found := slices.BinarySearch(e.disabled, name); found {
		return scripterr.ConfigErrorf("host function %q is a disabled symbol", name)
	}
	if fn == nil {
		return scripterr.ConfigErrorf("host function %q is nil", name)
	}
	return e.adapter.RegisterHostFunction(name, e.recoverHost(name, fn))
}

func (e *Enforcer) recoverHost(name string, fn hostfunc.Func) hostfunc.Func {
	return func(ctx context.Context, args []value.Value) (res value.Value, err error) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("host function panicked",
					zap.String("function", name), zap.Any("panic", r), zap.Stack("stack"))
				res, err = value.Nil(), fmt.Errorf("panic: %v", r)
			}
		}()
		return fn(ctx, args)
	}
}

// NewSession starts a session bounded by the policy and by ctx.
func (e *Enforcer) NewSession(ctx context.Context) *engine.Session {
	return engine.NewSession(ctx, e.policy)
}

// Compile compiles src on the adapter.
func (e *Enforcer) Compile(src string) (unit engine.Unit, err error) {
	defer e.recover("compile", &err)
	unit, err = e.adapter.Compile(src)
	if err != nil {
		return nil, scripterr.From(err)
	}
	return unit, nil
}

// Evaluate runs unit in s and checks the result against the size ceilings.
func (e *Enforcer) Evaluate(ctx context.Context, unit engine.Unit, s *engine.Session) (v value.Value, err error) {
	defer e.recover("evaluate", &err)
	v, err = e.adapter.Evaluate(ctx, unit, s)
	return e.result(v, err)
}

// Call invokes the entry point name in s and checks the result against the
// size ceilings.
func (e *Enforcer) Call(ctx context.Context, unit engine.Unit, name string, args []value.Value, s *engine.Session) (v value.Value, err error) {
	defer e.recover("call", &err)
	if _, found := slices.BinarySearch(e.disabled, name); found {
		return value.Nil(), scripterr.DisabledErrorf("'%s' is disabled", name)
	}
	for _, arg := range args {
		if err := value.Check(arg, e.policy.Bounds()); err != nil {
			return value.Nil(), err
		}
	}
	v, err = e.adapter.CallFunction(ctx, unit, name, args, s)
	return e.result(v, err)
}

func (e *Enforcer) result(v value.Value, err error) (value.Value, error) {
	if err != nil {
		return value.Nil(), scripterr.From(err)
	}
	if err := value.Check(v, e.policy.Bounds()); err != nil {
		return value.Nil(), scripterr.From(err)
	}
	return v, nil
}

func (e *Enforcer) recover(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	e.logger.Error("script backend panicked",
		zap.String("backend", e.adapter.Name()),
		zap.String("operation", op),
		zap.Any("panic", r),
		zap.Stack("stack"))
	*err = scripterr.RuntimeErrorf("%s backend failed during %s: %v", e.adapter.Name(), op, r)
}
