package rhai

import (
	"context"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/isdmx/scriptbox/engine"
	"github.com/isdmx/scriptbox/hostfunc"
	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// maxCallDepth bounds script function recursion.
const maxCallDepth = 64

type frame []any

// Control flow travels as errors so every evaluation path unwinds through
// the same return.
type (
	breakSignal    struct{ value any }
	continueSignal struct{}
	returnSignal   struct{ value any }
	thrownError    struct {
		value any
		p     pos
	}
)

func (*breakSignal) Error() string    { return "break outside of a loop" }
func (*continueSignal) Error() string { return "continue outside of a loop" }
func (*returnSignal) Error() string   { return "return outside of a function" }
func (*thrownError) Error() string    { return "uncaught exception" }

// interp evaluates one program inside one session.
type interp struct {
	ctx    context.Context
	sess   *engine.Session
	meter  *limits.Meter
	prog   *program
	host   map[string]hostfunc.Func
	frames []frame
	depth  int
}

func newInterp(ctx context.Context, prog *program, sess *engine.Session, host map[string]hostfunc.Func) *interp {
	return &interp{ctx: ctx, sess: sess, meter: sess.Meter, prog: prog, host: host}
}

// at attaches a source position to classified errors that lack one.
func at(err error, p pos) error {
	var serr *scripterr.Error
	if errors.As(err, &serr) && serr.Line == 0 && p.line > 0 {
		return serr.At(p.line, p.col)
	}
	return err
}

func (it *interp) errorf(p pos, format string, args ...any) error {
	return scripterr.RuntimeErrorf(format, args...).At(p.line, p.col)
}

func (it *interp) step(p pos) error {
	if err := it.meter.Step(); err != nil {
		return at(err, p)
	}
	return nil
}

// alloc charges n bytes to the heap estimate. When the estimate would cross
// the ceiling, the live set is measured first so garbage is not counted.
func (it *interp) alloc(n int64, p pos) error {
	if it.meter.HeapBytes()+n > it.meter.Policy().MemoryLimitBytes {
		it.collect()
	}
	if err := it.meter.Alloc(n); err != nil {
		return at(err, p)
	}
	return nil
}

func (it *interp) collect() {
	live := it.liveBytes() + int64(it.sess.OutputBytes())
	if cur := it.meter.HeapBytes(); cur > live {
		it.meter.Release(cur - live)
	}
}

// liveBytes sums the estimated size of everything reachable from the
// active frames.
func (it *interp) liveBytes() int64 {
	seen := make(map[any]bool)
	var total int64
	var walk func(v any)
	walk = func(v any) {
		switch v := v.(type) {
		case string:
			total += int64(len(v))
		case *array:
			if seen[v] {
				return
			}
			seen[v] = true
			total += sizeOf(v)
			for _, e := range v.elems {
				walk(e)
			}
		case *object:
			if seen[v] {
				return
			}
			seen[v] = true
			total += sizeOf(v)
			for k, e := range v.m {
				total += int64(len(k))
				walk(e)
			}
		}
	}
	for _, f := range it.frames {
		for _, v := range f {
			walk(v)
		}
	}
	return total
}

// run executes the top-level statements and returns the script's value.
func (it *interp) run() (any, error) {
	f := make(frame, it.prog.slots)
	it.frames = append(it.frames, f)
	defer func() { it.frames = it.frames[:len(it.frames)-1] }()

	v, err := it.execBlock(it.prog.body, f)
	return it.settle(v, err)
}

// settle turns control signals that escaped to the top into results.
func (it *interp) settle(v any, err error) (any, error) {
	switch e := err.(type) {
	case nil:
		return v, nil
	case *returnSignal:
		return e.value, nil
	case *thrownError:
		msg, rerr := it.render(e.value, e.p)
		if rerr != nil {
			return nil, rerr
		}
		return nil, it.errorf(e.p, "%s", msg)
	}
	return nil, err
}

// callEntry runs the top level, then invokes the named function.
func (it *interp) callEntry(name string, args []value.Value) (any, error) {
	overloads := it.prog.fns[name]
	if len(overloads) == 0 {
		return nil, scripterr.NotFoundErrorf("function '%s' not found", name)
	}
	fn := overloads[len(args)]
	if fn == nil {
		return nil, scripterr.NotFoundErrorf("function '%s' does not take %d arguments", name, len(args))
	}

	if _, err := it.run(); err != nil {
		return nil, err
	}

	native := make([]any, len(args))
	for i, a := range args {
		v, err := it.fromValue(a, fn.p)
		if err != nil {
			return nil, err
		}
		native[i] = v
	}
	return it.settle(it.invoke(fn, native, fn.p))
}

func (it *interp) invoke(fn *fnDecl, args []any, p pos) (any, error) {
	if it.depth >= maxCallDepth {
		return nil, it.errorf(p, "call stack exceeded %d levels in '%s'", maxCallDepth, fn.name)
	}
	if err := it.step(p); err != nil {
		return nil, err
	}
	it.depth++
	f := make(frame, fn.slots)
	copy(f, args)
	it.frames = append(it.frames, f)
	defer func() {
		it.depth--
		it.frames = it.frames[:len(it.frames)-1]
	}()

	v, err := it.execBlock(fn.body, f)
	if ret, ok := err.(*returnSignal); ok {
		return ret.value, nil
	}
	return v, err
}

// call dispatches a call by name: script functions first, then host
// functions, then built-ins.
func (it *interp) call(name string, args []any, p pos) (any, error) {
	if fn := it.prog.lookup(name, len(args)); fn != nil {
		return it.invoke(fn, args, p)
	}
	if err := it.step(p); err != nil {
		return nil, err
	}
	if fn, ok := it.host[name]; ok {
		return it.callHost(name, fn, args, p)
	}
	if fn, ok := builtins[name]; ok {
		v, err := fn(it, args, p)
		if err != nil {
			return nil, at(err, p)
		}
		return v, nil
	}
	return nil, it.errorf(p, "function '%s' with %d arguments not found", name, len(args))
}

func (it *interp) callHost(name string, fn hostfunc.Func, args []any, p pos) (any, error) {
	cargs := make([]value.Value, len(args))
	for i, a := range args {
		cv, err := it.toValue(a)
		if err != nil {
			return nil, at(err, p)
		}
		cargs[i] = cv
	}
	res, err := fn(it.ctx, cargs)
	if err != nil {
		var serr *scripterr.Error
		if errors.As(err, &serr) {
			return nil, at(serr, p)
		}
		return nil, it.errorf(p, "host function '%s' failed: %v", name, err)
	}
	return it.fromValue(res, p)
}

func (it *interp) execBlock(b *block, f frame) (any, error) {
	defer func() {
		for _, slot := range b.declared {
			f[slot] = nil
		}
	}()

	var last any
	for _, s := range b.stmts {
		v, err := it.exec(s, f)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (it *interp) exec(s node, f frame) (any, error) {
	if err := it.step(s.position()); err != nil {
		return nil, err
	}
	switch s := s.(type) {
	case *letStmt:
		var v any
		if s.value != nil {
			var err error
			if v, err = it.eval(s.value, f); err != nil {
				return nil, err
			}
		}
		f[s.slot] = v
		return nil, nil
	case *exprStmt:
		return it.eval(s.x, f)
	case *returnStmt:
		v, err := it.evalOptional(s.x, f)
		if err != nil {
			return nil, err
		}
		return nil, &returnSignal{value: v}
	case *throwStmt:
		v, err := it.evalOptional(s.x, f)
		if err != nil {
			return nil, err
		}
		return nil, &thrownError{value: v, p: s.p}
	case *breakStmt:
		v, err := it.evalOptional(s.x, f)
		if err != nil {
			return nil, err
		}
		return nil, &breakSignal{value: v}
	case *continueStmt:
		return nil, &continueSignal{}
	}
	return nil, it.errorf(s.position(), "unsupported statement")
}

func (it *interp) evalOptional(n node, f frame) (any, error) {
	if n == nil {
		return nil, nil
	}
	return it.eval(n, f)
}

func (it *interp) evalAll(ns []node, f frame) ([]any, error) {
	out := make([]any, len(ns))
	for i, n := range ns {
		v, err := it.eval(n, f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (it *interp) eval(n node, f frame) (any, error) {
	switch n := n.(type) {
	case *litExpr:
		return n.v, nil

	case *identExpr:
		return f[n.slot], nil

	case *arrayExpr:
		elems, err := it.evalAll(n.elems, f)
		if err != nil {
			return nil, err
		}
		if err := it.step(n.p); err != nil {
			return nil, err
		}
		return it.newArray(elems, n.p)

	case *mapExpr:
		vals, err := it.evalAll(n.vals, f)
		if err != nil {
			return nil, err
		}
		if err := it.step(n.p); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(vals))
		for i, k := range n.keys {
			m[k] = vals[i]
		}
		return it.newObject(m, n.p)

	case *unaryExpr:
		x, err := it.eval(n.x, f)
		if err != nil {
			return nil, err
		}
		if err := it.step(n.p); err != nil {
			return nil, err
		}
		return it.unary(n.op, x, n.p)

	case *binaryExpr:
		return it.binary(n, f)

	case *rangeExpr:
		from, err := it.eval(n.from, f)
		if err != nil {
			return nil, err
		}
		to, err := it.eval(n.to, f)
		if err != nil {
			return nil, err
		}
		a, aok := from.(int64)
		b, bok := to.(int64)
		if !aok || !bok {
			return nil, it.errorf(n.p, "range bounds must be integers, got %s and %s", typeName(from), typeName(to))
		}
		return &rangeVal{from: a, to: b, inclusive: n.inclusive}, nil

	case *callExpr:
		args, err := it.evalAll(n.args, f)
		if err != nil {
			return nil, err
		}
		return it.call(n.name, args, n.p)

	case *methodExpr:
		recv, err := it.eval(n.recv, f)
		if err != nil {
			return nil, err
		}
		rest, err := it.evalAll(n.args, f)
		if err != nil {
			return nil, err
		}
		return it.call(n.name, append([]any{recv}, rest...), n.p)

	case *indexExpr:
		x, err := it.eval(n.x, f)
		if err != nil {
			return nil, err
		}
		idx, err := it.eval(n.idx, f)
		if err != nil {
			return nil, err
		}
		if err := it.step(n.p); err != nil {
			return nil, err
		}
		return it.index(x, idx, n.p)

	case *propExpr:
		x, err := it.eval(n.x, f)
		if err != nil {
			return nil, err
		}
		obj, ok := x.(*object)
		if !ok {
			return nil, it.errorf(n.p, "property '%s' not found on %s", n.name, typeName(x))
		}
		return obj.m[n.name], nil

	case *assignExpr:
		return nil, it.assign(n, f)

	case *ifExpr:
		cond, err := it.condition(n.cond, f)
		if err != nil {
			return nil, err
		}
		if cond {
			return it.execBlock(n.then, f)
		}
		if n.els != nil {
			return it.eval(n.els, f)
		}
		return nil, nil

	case *whileExpr:
		for {
			if err := it.step(n.p); err != nil {
				return nil, err
			}
			cond, err := it.condition(n.cond, f)
			if err != nil {
				return nil, err
			}
			if !cond {
				return nil, nil
			}
			_, err = it.execBlock(n.body, f)
			if stop, v, err := loopControl(err); stop {
				return v, err
			}
		}

	case *loopExpr:
		for {
			if err := it.step(n.p); err != nil {
				return nil, err
			}
			_, err := it.execBlock(n.body, f)
			if stop, v, err := loopControl(err); stop {
				return v, err
			}
		}

	case *forExpr:
		return it.forLoop(n, f)

	case *tryExpr:
		return it.try(n, f)

	case *block:
		return it.execBlock(n, f)
	}
	return nil, it.errorf(n.position(), "unsupported expression")
}

// loopControl interprets the error from one loop iteration.
func loopControl(err error) (stop bool, v any, out error) {
	switch s := err.(type) {
	case nil, *continueSignal:
		return false, nil, nil
	case *breakSignal:
		return true, s.value, nil
	}
	return true, nil, err
}

func (it *interp) condition(n node, f frame) (bool, error) {
	v, err := it.eval(n, f)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, it.errorf(n.position(), "condition must be a bool, got %s", typeName(v))
	}
	return b, nil
}

func (it *interp) forLoop(n *forExpr, f frame) (any, error) {
	iter, err := it.eval(n.iter, f)
	if err != nil {
		return nil, err
	}

	var index int64
	body := func(v any) (bool, any, error) {
		if err := it.step(n.p); err != nil {
			return true, nil, err
		}
		f[n.slot] = v
		if n.indexSlot >= 0 {
			f[n.indexSlot] = index
		}
		index++
		_, err := it.execBlock(n.body, f)
		return loopControl(err)
	}

	switch src := iter.(type) {
	case *rangeVal:
		for i := src.from; ; i++ {
			if (src.inclusive && i > src.to) || (!src.inclusive && i >= src.to) {
				return nil, nil
			}
			if stop, v, err := body(i); stop {
				return v, err
			}
			if i == math.MaxInt64 {
				return nil, nil
			}
		}
	case *array:
		for i := 0; i < len(src.elems); i++ {
			if stop, v, err := body(src.elems[i]); stop {
				return v, err
			}
		}
		return nil, nil
	case string:
		for _, r := range src {
			if stop, v, err := body(string(r)); stop {
				return v, err
			}
		}
		return nil, nil
	case *object:
		for _, k := range src.sortedKeys() {
			if stop, v, err := body(k); stop {
				return v, err
			}
		}
		return nil, nil
	}
	return nil, it.errorf(n.p, "cannot iterate over %s", typeName(iter))
}

func (it *interp) try(n *tryExpr, f frame) (any, error) {
	v, err := it.execBlock(n.body, f)
	if err == nil {
		return v, nil
	}

	var caught any
	switch e := err.(type) {
	case *breakSignal, *continueSignal, *returnSignal:
		return nil, err
	case *thrownError:
		caught = e.value
	default:
		if scripterr.Fatal(err) {
			return nil, err
		}
		caught = scripterr.From(err).Message
	}

	if n.catchSlot >= 0 {
		f[n.catchSlot] = caught
	}
	return it.execBlock(n.handler, f)
}

func (it *interp) index(x, idx any, p pos) (any, error) {
	switch c := x.(type) {
	case *array:
		i, err := it.position(idx, len(c.elems), p)
		if err != nil {
			return nil, err
		}
		return c.elems[i], nil
	case string:
		runes := []rune(c)
		i, err := it.position(idx, len(runes), p)
		if err != nil {
			return nil, err
		}
		return string(runes[i]), nil
	case *object:
		key, ok := idx.(string)
		if !ok {
			return nil, it.errorf(p, "map index must be a string, got %s", typeName(idx))
		}
		return c.m[key], nil
	}
	return nil, it.errorf(p, "cannot index into %s", typeName(x))
}

// position resolves an index into [0, n). Negative indices count from the
// end.
func (it *interp) position(idx any, n int, p pos) (int, error) {
	i, ok := idx.(int64)
	if !ok {
		return 0, it.errorf(p, "index must be an integer, got %s", typeName(idx))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, it.errorf(p, "index %d out of bounds for length %d", idx, n)
	}
	return int(i), nil
}

func (it *interp) assign(n *assignExpr, f frame) error {
	rhs, err := it.eval(n.value, f)
	if err != nil {
		return err
	}
	if err := it.step(n.p); err != nil {
		return err
	}
	op := assignOps[n.op]

	switch t := n.target.(type) {
	case *identExpr:
		if op != "" {
			if rhs, err = it.binop(op, f[t.slot], rhs, n.p); err != nil {
				return err
			}
		}
		f[t.slot] = rhs
		return nil

	case *indexExpr:
		x, err := it.eval(t.x, f)
		if err != nil {
			return err
		}
		idx, err := it.eval(t.idx, f)
		if err != nil {
			return err
		}
		if op != "" {
			cur, err := it.index(x, idx, t.p)
			if err != nil {
				return err
			}
			if rhs, err = it.binop(op, cur, rhs, n.p); err != nil {
				return err
			}
		}
		switch c := x.(type) {
		case *array:
			i, err := it.position(idx, len(c.elems), t.p)
			if err != nil {
				return err
			}
			c.elems[i] = rhs
			return nil
		case *object:
			key, ok := idx.(string)
			if !ok {
				return it.errorf(t.p, "map index must be a string, got %s", typeName(idx))
			}
			return it.set(c, key, rhs, t.p)
		}
		return it.errorf(t.p, "cannot assign into %s", typeName(x))

	case *propExpr:
		x, err := it.eval(t.x, f)
		if err != nil {
			return err
		}
		obj, ok := x.(*object)
		if !ok {
			return it.errorf(t.p, "cannot set property '%s' on %s", t.name, typeName(x))
		}
		if op != "" {
			if rhs, err = it.binop(op, obj.m[t.name], rhs, n.p); err != nil {
				return err
			}
		}
		return it.set(obj, t.name, rhs, t.p)
	}
	return it.errorf(n.p, "cannot assign to this expression")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
