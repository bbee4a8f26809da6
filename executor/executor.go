package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/scriptbox/config"
	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/sandbox"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// DefaultCacheSize is the number of compiled units kept by default.
const DefaultCacheSize = 256

// Request describes one execution. An empty EntryPoint evaluates the whole
// script.
type Request struct {
	Script     string
	EntryPoint string
	Args       []value.Value
}

// Outcome is the result of one execution: either a Value or an Err.
type Outcome struct {
	Value value.Value
	// Text is Value rendered for callers.
	Text string
	// Output is everything the script printed.
	Output string
	Err    *scripterr.Error

	SessionID  string
	State      engine.State
	Duration   time.Duration
	Operations uint64
}

// OK reports whether the execution succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Executor compiles and runs scripts, one fresh session per call. It is
// safe for concurrent use.
type Executor struct {
	enforcer *sandbox.Enforcer
	registry *hostfunc.Registry
	cache    *unitCache
	logger   *zap.Logger

	installOnce sync.Once
	installErr  error
}

type options struct {
	logger    *zap.Logger
	cacheSize int
	disabled  []string
	registry  *hostfunc.Registry
	adapter   engine.Adapter
}

// Option configures an Executor.
type Option func(*options)

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCacheSize bounds the compiled-unit cache. Zero disables it.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithDisabledSymbols disables symbols in addition to the sandbox defaults.
func WithDisabledSymbols(symbols ...string) Option {
	return func(o *options) { o.disabled = append(o.disabled, symbols...) }
}

// WithRegistry uses a prepared host function registry.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithAdapter replaces the backend linked into the binary.
func WithAdapter(a engine.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// New builds an executor for policy. An invalid policy is a ConfigError.
func New(policy limits.Policy, opts ...Option) (*Executor, error) {
	o := options{
		logger:    zap.NewNop(),
		cacheSize: DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize < 0 {
		return nil, scripterr.ConfigErrorf("cache size must not be negative, got: %d", o.cacheSize)
	}
	if o.registry == nil {
		o.registry = hostfunc.NewRegistry()
	}
	if o.adapter == nil {
		o.adapter = newBackend()
	}

	enforcer, err := sandbox.New(o.adapter, policy,
		sandbox.WithLogger(o.logger),
		sandbox.WithDisabledSymbols(o.disabled...))
	if err != nil {
		return nil, err
	}

	return &Executor{
		enforcer: enforcer,
		registry: o.registry,
		cache:    newUnitCache(o.cacheSize),
		logger:   o.logger.With(zap.String("backend", enforcer.Backend())),
	}, nil
}

// NewFromConfig builds an executor from cfg and registers the configured
// host functions.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Executor, error) {
	registry := hostfunc.NewRegistry()
	if cfg.HostFunctions.Log.Enabled {
		if err := registry.Register("log", hostfunc.NewLogFunc(logger.Named("script"))); err != nil {
			return nil, err
		}
	}
	if cfg.HostFunctions.KV.Enabled {
		if err := hostfunc.NewKVStore(cfg.HostFunctions.KV.KVConfig).Install(registry); err != nil {
			return nil, err
		}
	}

	return New(cfg.Policy(),
		WithLogger(logger),
		WithCacheSize(cfg.Executor.CacheSize),
		WithDisabledSymbols(cfg.Executor.DisabledSymbols...),
		WithRegistry(registry))
}

// Backend returns the name of the linked backend.
func (e *Executor) Backend() string { return e.enforcer.Backend() }

func (e *Executor) Policy() limits.Policy { return e.enforcer.Policy() }

// RegisterHostFunction exposes fn to scripts. It fails with a ConfigError
// once the first execution has started.
func (e *Executor) RegisterHostFunction(name string, fn hostfunc.Func) error {
	return e.registry.Register(name, fn)
}

// install freezes the registry and hands its functions to the backend.
func (e *Executor) install() error {
	e.installOnce.Do(func() {
		e.registry.Freeze()
		for _, name := range e.registry.List() {
			fn, _ := e.registry.Get(name)
			if err := e.enforcer.RegisterHostFunction(name, fn); err != nil {
				e.installErr = err
				return
			}
		}
	})
	return e.installErr
}

// Execute evaluates script as a whole.
func (e *Executor) Execute(ctx context.Context, script string) Outcome {
	return e.Run(ctx, Request{Script: script})
}

// CallFn loads script and invokes entry with args.
func (e *Executor) CallFn(ctx context.Context, script, entry string, args ...value.Value) Outcome {
	return e.Run(ctx, Request{Script: script, EntryPoint: entry, Args: args})
}

// Run performs req in a new session.
func (e *Executor) Run(ctx context.Context, req Request) Outcome {
	s := e.enforcer.NewSession(ctx)
	logger := e.logger.With(zap.String("session_id", s.ID))
	if req.EntryPoint != "" {
		logger = logger.With(zap.String("entry_point", req.EntryPoint))
	}
	logger.Debug("session started", zap.Int("script_bytes", len(req.Script)))

	v, text, err := e.run(ctx, s, req)
	state := s.Finish(err)

	out := Outcome{
		Value:      v,
		Text:       text,
		Output:     s.Output(),
		Err:        scripterr.From(err),
		SessionID:  s.ID,
		State:      state,
		Duration:   time.Since(s.Started),
		Operations: s.Meter.Operations(),
	}

	fields := []zap.Field{
		zap.Stringer("state", state),
		zap.Duration("duration", out.Duration),
		zap.Uint64("operations", out.Operations),
		zap.Int64("peak_heap_bytes", s.Meter.PeakHeapBytes()),
	}
	if out.Err != nil {
		fields = append(fields, zap.Stringer("kind", out.Err.Kind), zap.Error(out.Err))
		if out.Err.Kind == scripterr.LimitExceeded {
			fields = append(fields, zap.Stringer("limit", out.Err.Limit))
		}
		logger.Info("session failed", fields...)
	} else {
		logger.Debug("session finished", fields...)
	}
	return out
}

func (e *Executor) run(ctx context.Context, s *engine.Session, req Request) (value.Value, string, error) {
	if err := e.install(); err != nil {
		return value.Nil(), "", err
	}
	if err := s.Transition(engine.StateCompiling); err != nil {
		return value.Nil(), "", err
	}
	unit, err := e.compile(req.Script)
	if err != nil {
		return value.Nil(), "", err
	}
	if err := s.Transition(engine.StateRunning); err != nil {
		return value.Nil(), "", err
	}

	var v value.Value
	if req.EntryPoint == "" {
		v, err = e.enforcer.Evaluate(ctx, unit, s)
	} else {
		v, err = e.enforcer.Call(ctx, unit, req.EntryPoint, req.Args, s)
	}
	if err != nil {
		return value.Nil(), "", err
	}

	text, err := value.Format(v, e.enforcer.Policy().Bounds())
	if err != nil {
		return value.Nil(), "", err
	}
	return v, text, nil
}

// compile returns the cached unit for src or compiles it. Failures are not
// cached.
func (e *Executor) compile(src string) (engine.Unit, error) {
	if unit, ok := e.cache.get(src); ok {
		return unit, nil
	}
	unit, err := e.enforcer.Compile(src)
	if err != nil {
		return nil, err
	}
	return e.cache.add(src, unit), nil
}

// Ready evaluates a trivial script to confirm the backend works.
func (e *Executor) Ready(ctx context.Context) error {
	out := e.Execute(ctx, readinessProbe)
	if !out.OK() {
		return out.Err
	}
	if out.Text != "2" {
		return fmt.Errorf("readiness probe returned %q", out.Text)
	}
	return nil
}
