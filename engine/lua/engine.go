package lua

import (
	"context"
	"maps"
	"regexp"
	"strconv"
	"sync"

	golua "github.com/Shopify/go-lua"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// Name is the backend identifier.
const Name = "lua"

const chunkName = "=script"

// Capabilities no script ever reaches: loaders, the module system, the
// collector and the io, os and debug libraries.
var forbidden = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"collectgarbage", "io", "os", "debug", "package",
}

// Globals installed by the opened libraries. Host functions may not
// shadow them.
var reserved = map[string]bool{
	"_G": true, "_VERSION": true, "assert": true, "error": true,
	"getmetatable": true, "ipairs": true, "next": true, "pairs": true,
	"pcall": true, "print": true, "rawequal": true, "rawget": true,
	"rawlen": true, "rawset": true, "select": true, "setmetatable": true,
	"tonumber": true, "tostring": true, "type": true, "unpack": true,
	"xpcall": true, "string": true, "table": true, "math": true, "bit32": true,
}

var keywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

// Engine is the Lua backend.
type Engine struct {
	mu       sync.Mutex
	host     map[string]hostfunc.Func
	disabled map[string]bool
}

var _ engine.Adapter = (*Engine)(nil)

// New returns an engine with the loader, io, os and debug capabilities
// disabled.
func New() *Engine {
	disabled := make(map[string]bool, len(forbidden))
	for _, name := range forbidden {
		disabled[name] = true
	}
	return &Engine{host: map[string]hostfunc.Func{}, disabled: disabled}
}

func (e *Engine) Name() string { return Name }

func (e *Engine) snapshot() (map[string]hostfunc.Func, map[string]bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host, e.disabled
}

// RegisterHostFunction exposes fn as the global name.
func (e *Engine) RegisterHostFunction(name string, fn hostfunc.Func) error {
	if fn == nil {
		return scripterr.ConfigErrorf("host function %q is nil", name)
	}
	if reserved[name] {
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

// Disable removes symbols from the global table of every later session.
func (e *Engine) Disable(symbols ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := maps.Clone(e.disabled)
	for _, s := range symbols {
		next[s] = true
	}
	e.disabled = next
}

type chunk struct {
	src string
}

func (c *chunk) Source() string { return c.src }

// Compile checks the syntax of src in a throwaway state.
func (e *Engine) Compile(src string) (engine.Unit, error) {
	l := golua.NewState()
	if err := golua.LoadBuffer(l, src, chunkName, "t"); err != nil {
		return nil, classify(scripterr.Compile, l, err)
	}
	return &chunk{src: src}, nil
}

func (e *Engine) chunk(unit engine.Unit) (*chunk, error) {
	c, ok := unit.(*chunk)
	if !ok {
		return nil, scripterr.RuntimeErrorf("unit was not compiled by the %s engine", Name)
	}
	return c, nil
}

// Evaluate runs the chunk and converts its first return value.
func (e *Engine) Evaluate(ctx context.Context, unit engine.Unit, s *engine.Session) (value.Value, error) {
	c, err := e.chunk(unit)
	if err != nil {
		return value.Nil(), err
	}
	r := e.newRun(ctx, s)
	if err := r.load(c); err != nil {
		return value.Nil(), err
	}
	if err := r.call(0, 1); err != nil {
		return value.Nil(), err
	}
	return r.result()
}

// CallFunction runs the chunk, then calls the global function name with
// args.
func (e *Engine) CallFunction(ctx context.Context, unit engine.Unit, name string, args []value.Value, s *engine.Session) (value.Value, error) {
	c, err := e.chunk(unit)
	if err != nil {
		return value.Nil(), err
	}
	r := e.newRun(ctx, s)
	if err := r.load(c); err != nil {
		return value.Nil(), err
	}
	if err := r.call(0, 0); err != nil {
		return value.Nil(), err
	}

	l := r.l
	l.PushGlobalTable()
	l.PushString(name)
	l.RawGet(-2)
	l.Remove(-2)
	if l.TypeOf(-1) != golua.TypeFunction {
		return value.Nil(), scripterr.NotFoundErrorf("function '%s' not found", name)
	}
	for _, arg := range args {
		if err := r.push(arg, 0); err != nil {
			return value.Nil(), err
		}
	}
	if err := r.call(len(args), 1); err != nil {
		return value.Nil(), err
	}
	return r.result()
}

var located = regexp.MustCompile(`^(?:script|\[string "[^"]*"\]):(\d+): (?s:(.*))$`)

// classify turns a failed load or call into an error of kind, reading the
// message left on the stack and lifting its "script:N:" prefix into a line
// number.
func classify(kind scripterr.Kind, l *golua.State, err error) *scripterr.Error {
	msg := err.Error()
	if l.TypeOf(-1) == golua.TypeString {
		msg, _ = l.ToString(-1)
	}
	serr := scripterr.Wrap(kind, err, "%s", msg)
	if m := located.FindStringSubmatch(msg); m != nil {
		line, _ := strconv.Atoi(m[1])
		serr.Message = m[2]
		serr.Line = line
	}
	return serr
}
