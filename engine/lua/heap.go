package lua

import (
	"unicode/utf8"

	golua "github.com/Shopify/go-lua"

	"github.com/isdmx/scriptbox/value"
)

// Heap estimate per value, in bytes.
const (
	tableBytes    = 56
	slotBytes     = 32
	functionBytes = 40
)

// sweepInterval is the minimum number of operations between two walks of
// the reachable values. A walk that visits more values than that pushes the
// next one further out, so sweeping stays linear in the work done.
const sweepInterval = 64

func (r *run) hook(l *golua.State, _ golua.Debug) {
	if err := r.meter.Step(); err != nil {
		r.raise(l, err)
	}
	if err := r.checkRegisters(l); err != nil {
		r.raise(l, err)
	}
	if ops := r.meter.Operations(); ops >= r.nextSweep {
		visited, err := r.sweep(l)
		if err != nil {
			r.raise(l, err)
		}
		r.nextSweep = ops + uint64(max(sweepInterval, visited))
	}
}

// checkRegisters checks the strings and tables held by the running
// function against the size ceilings. The hook runs after every
// instruction, so a concatenation or an indexed store is seen as soon as
// its result lands in a register.
func (r *run) checkRegisters(l *golua.State) error {
	maxLen := r.meter.Policy().MaxStringLen
	for i := 1; i <= l.Top(); i++ {
		switch l.TypeOf(i) {
		case golua.TypeString:
			// Byte length bounds the character count from above.
			if l.RawLength(i) <= maxLen {
				continue
			}
			s, _ := l.ToString(i)
			if err := r.meter.Observe(utf8.RuneCountInString(s), 0, 0); err != nil {
				return err
			}
		case golua.TypeTable:
			if err := r.meter.Array(l.RawLength(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// sweep walks everything reachable from the globals, the running
// function's registers and the functions on the call stack. Every table is
// checked against the container ceiling, and the heap estimate is replaced
// with the measured size plus the printed output. It returns the number of
// values visited.
func (r *run) sweep(l *golua.State) (int, error) {
	w := walker{run: r, l: l, seen: make(map[any]bool)}
	if !l.CheckStack(2*value.MaxDepth + 4) {
		return 0, nil
	}

	top := l.Top()
	for i := 1; i <= top; i++ {
		if err := w.walk(i, 0); err != nil {
			return w.visited, err
		}
	}
	l.PushGlobalTable()
	if err := w.walk(l.Top(), 0); err != nil {
		return w.visited, err
	}
	l.Pop(1)
	for level := 0; ; level++ {
		frame, ok := golua.Stack(l, level)
		if !ok {
			break
		}
		if _, ok := golua.Info(l, "f", frame); !ok {
			continue
		}
		if err := w.walk(l.Top(), 0); err != nil {
			return w.visited, err
		}
		l.Pop(1)
	}

	return w.visited, r.meter.Measure(w.bytes + int64(r.sess.OutputBytes()))
}

type walker struct {
	run     *run
	l       *golua.State
	seen    map[any]bool
	bytes   int64
	visited int
}

// walk measures the value at the absolute stack index idx. Tables nested
// deeper than value.MaxDepth are not descended.
func (w *walker) walk(idx, depth int) error {
	l := w.l
	switch l.TypeOf(idx) {
	case golua.TypeString:
		w.visited++
		n := l.RawLength(idx)
		w.bytes += int64(n)
		if n > w.run.meter.Policy().MaxStringLen {
			s, _ := l.ToString(idx)
			return w.run.meter.Observe(utf8.RuneCountInString(s), 0, 0)
		}
	case golua.TypeTable:
		t := l.ToValue(idx)
		if w.seen[t] || depth >= value.MaxDepth {
			return nil
		}
		w.seen[t] = true
		w.visited++
		n := 0
		l.PushNil()
		for l.Next(idx) {
			n++
			top := l.Top()
			if err := w.walk(top-1, depth+1); err != nil {
				return err
			}
			if err := w.walk(top, depth+1); err != nil {
				return err
			}
			l.Pop(1)
		}
		if w.run.library[t] {
			return nil
		}
		w.bytes += tableBytes + slotBytes*int64(n)
		return w.run.meter.Array(n)
	case golua.TypeFunction:
		f := l.ToValue(idx)
		if f == nil || w.seen[f] || depth >= value.MaxDepth {
			return nil
		}
		w.seen[f] = true
		w.visited++
		w.bytes += functionBytes
		for i := 1; ; i++ {
			if _, ok := golua.UpValue(l, idx, i); !ok {
				break
			}
			if err := w.walk(l.Top(), depth+1); err != nil {
				return err
			}
			l.Pop(1)
		}
	}
	return nil
}
