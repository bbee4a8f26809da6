package hostfunc

import (
	"context"
	"regexp"
	"sort"
	"sync"

	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// Func is a host capability callable from scripts. It receives and returns
// canonical values only.
type Func func(ctx context.Context, args []value.Value) (value.Value, error)

var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Registry maps script-visible names to host functions. It accepts
// registrations until Freeze is called; afterwards it is read-only and safe
// for concurrent lookups.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]Func
	frozen bool
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn under name.
func (r *Registry) Register(name string, fn Func) error {
	if !namePattern.MatchString(name) {
		return scripterr.ConfigErrorf("invalid host function name %q", name)
	}
	if fn == nil {
		return scripterr.ConfigErrorf("host function %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return scripterr.ConfigErrorf("cannot register host function %q after execution has started", name)
	}
	if _, exists := r.funcs[name]; exists {
		return scripterr.ConfigErrorf("host function %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	fn, ok := r.funcs[name]
	r.mu.RUnlock()
	return fn, ok
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
