package lua

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	golua "github.com/Shopify/go-lua"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
)

var libraries = []struct {
	name string
	open golua.Function
}{
	{"_G", golua.BaseOpen},
	{"string", golua.StringOpen},
	{"table", golua.TableOpen},
	{"math", golua.MathOpen},
	{"bit32", golua.Bit32Open},
}

// Library functions whose results are checked against the string ceiling.
var growing = map[string][]string{
	"string": {"rep", "format", "upper", "lower", "gsub", "sub"},
	"table":  {"concat"},
}

// run is one session's interpreter state.
type run struct {
	ctx      context.Context
	sess     *engine.Session
	meter    *limits.Meter
	l        *golua.State
	disabled map[string]bool

	// library holds the global and library tables, which are walked but
	// neither sized nor charged.
	library   map[any]bool
	nextSweep uint64

	// fault is the first limit violation or disabled access. It survives
	// pcall and decides the outcome.
	fault *scripterr.Error
}

func (e *Engine) newRun(ctx context.Context, s *engine.Session) *run {
	host, disabled := e.snapshot()
	l := golua.NewState()
	r := &run{ctx: ctx, sess: s, meter: s.Meter, l: l, disabled: disabled}

	for _, lib := range libraries {
		golua.Require(l, lib.name, lib.open, true)
		l.Pop(1)
	}

	l.PushGoFunction(r.print)
	l.SetGlobal("print")
	for lib, names := range growing {
		r.wrap(lib, names, r.sizedString)
	}
	r.wrap("table", []string{"insert"}, r.sizedInsert)
	for name, fn := range host {
		l.PushGoFunction(r.hostFunction(name, fn))
		l.SetGlobal(name)
	}
	for name := range disabled {
		l.PushNil()
		l.SetGlobal(name)
	}

	r.library = make(map[any]bool)
	l.PushGlobalTable()
	r.library[l.ToValue(-1)] = true
	l.Pop(1)
	for _, lib := range libraries[1:] {
		l.Global(lib.name)
		if l.IsTable(-1) {
			r.library[l.ToValue(-1)] = true
		}
		l.Pop(1)
	}

	r.guardGlobals()
	golua.SetDebugHook(l, r.hook, golua.MaskCount, 1)
	return r
}

// wrap replaces lib.name with a closure over the original function.
func (r *run) wrap(lib string, names []string, with func(name string) golua.Function) {
	if r.disabled[lib] {
		return
	}
	l := r.l
	l.Global(lib)
	for _, name := range names {
		l.Field(-1, name)
		l.PushGoClosure(with(name), 1)
		l.SetField(-2, name)
	}
	l.Pop(1)
}

// guardGlobals installs a metatable on the global table that raises
// DisabledCapability for every disabled name, read or written.
func (r *run) guardGlobals() {
	l := r.l
	l.PushGlobalTable()
	l.NewTable()
	l.PushGoFunction(r.guardIndex)
	l.SetField(-2, "__index")
	l.PushGoFunction(r.guardNewIndex)
	l.SetField(-2, "__newindex")
	l.PushBoolean(false)
	l.SetField(-2, "__metatable")
	l.SetMetaTable(-2)
	l.Pop(1)
}

func (r *run) guardIndex(l *golua.State) int {
	if name, ok := r.disabledKey(l); ok {
		return r.raise(l, scripterr.DisabledErrorf("'%s' is disabled", name))
	}
	l.PushNil()
	return 1
}

func (r *run) guardNewIndex(l *golua.State) int {
	if name, ok := r.disabledKey(l); ok {
		return r.raise(l, scripterr.DisabledErrorf("'%s' is disabled", name))
	}
	l.SetTop(3)
	l.RawSet(1)
	return 0
}

func (r *run) disabledKey(l *golua.State) (string, bool) {
	if l.TypeOf(2) != golua.TypeString {
		return "", false
	}
	name, _ := l.ToString(2)
	return name, r.disabled[name]
}

// raise throws err into the VM. It never returns normally.
func (r *run) raise(l *golua.State, err error) int {
	serr := scripterr.From(err)
	if scripterr.Fatal(serr) && r.fault == nil {
		r.fault = serr
	}
	l.PushString(serr.Message)
	l.Error()
	return 0
}

func (r *run) print(l *golua.State) int {
	n := l.Top()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		s, _ := golua.ToStringMeta(l, i)
		l.Pop(1)
		parts = append(parts, s)
	}
	if err := r.sess.Print(strings.Join(parts, "\t")); err != nil {
		return r.raise(l, err)
	}
	return 0
}

// sizedString calls the original library function and checks every string
// it returns. string.rep is checked before it allocates.
func (r *run) sizedString(name string) golua.Function {
	return func(l *golua.State) int {
		if name == "rep" {
			if err := r.checkRepeat(l); err != nil {
				return r.raise(l, err)
			}
		}
		n := l.Top()
		l.PushValue(golua.UpValueIndex(1))
		l.Insert(1)
		l.Call(n, golua.MultipleReturns)
		for i := 1; i <= l.Top(); i++ {
			if l.TypeOf(i) != golua.TypeString {
				continue
			}
			s, _ := l.ToString(i)
			if err := r.meter.Observe(utf8.RuneCountInString(s), 0, 0); err != nil {
				return r.raise(l, err)
			}
		}
		return l.Top()
	}
}

func (r *run) checkRepeat(l *golua.State) error {
	s := golua.CheckString(l, 1)
	n := golua.CheckInteger(l, 2)
	sep := golua.OptString(l, 3, "")
	if n <= 0 {
		return nil
	}
	per := int64(utf8.RuneCountInString(s) + utf8.RuneCountInString(sep))
	total := int64(math.MaxInt)
	if per == 0 || int64(n) <= math.MaxInt64/per {
		total = per*int64(n) - int64(utf8.RuneCountInString(sep))
	}
	return r.meter.Observe(int(total), 0, 0)
}

// sizedInsert calls table.insert and checks the length of the table.
func (r *run) sizedInsert(string) golua.Function {
	return func(l *golua.State) int {
		n := l.Top()
		l.PushValue(golua.UpValueIndex(1))
		for i := 1; i <= n; i++ {
			l.PushValue(i)
		}
		l.Call(n, 0)
		if l.TypeOf(1) == golua.TypeTable {
			if err := r.meter.Array(l.RawLength(1)); err != nil {
				return r.raise(l, err)
			}
		}
		return 0
	}
}

func (r *run) hostFunction(name string, fn hostfunc.Func) golua.Function {
	return func(l *golua.State) int {
		if err := r.meter.Step(); err != nil {
			return r.raise(l, err)
		}
		args, err := r.arguments(l)
		if err != nil {
			return r.raise(l, err)
		}
		res, err := fn(r.ctx, args)
		if err != nil {
			if scripterr.Fatal(err) {
				return r.raise(l, err)
			}
			return r.raise(l, scripterr.RuntimeErrorf("host function '%s' failed: %v", name, err))
		}
		if err := r.push(res, 0); err != nil {
			return r.raise(l, err)
		}
		return 1
	}
}

func (r *run) load(c *chunk) error {
	if err := golua.LoadBuffer(r.l, c.src, chunkName, "t"); err != nil {
		return classify(scripterr.Compile, r.l, err)
	}
	return nil
}

// call runs the function below nargs arguments in protected mode. A
// recorded fault wins over whatever the script did with it.
func (r *run) call(nargs, nresults int) error {
	err := r.l.ProtectedCall(nargs, nresults, 0)
	if r.fault != nil {
		return r.fault
	}
	if merr := r.meter.Err(); merr != nil {
		return merr
	}
	if err != nil {
		return classify(scripterr.Runtime, r.l, err)
	}
	return nil
}
