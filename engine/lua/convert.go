package lua

import (
	"math"
	"unicode/utf8"

	golua "github.com/Shopify/go-lua"

	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

func (r *run) arguments(l *golua.State) ([]value.Value, error) {
	n := l.Top()
	args := make([]value.Value, 0, n)
	for i := 1; i <= n; i++ {
		v, err := r.toValue(i, 0)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return args, nil
}

// result converts the value on top of the stack.
func (r *run) result() (value.Value, error) {
	v, err := r.toValue(-1, 0)
	if err != nil {
		return value.Nil(), err
	}
	return v, nil
}

func number(f float64) value.Value {
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return value.Int(int64(f))
	}
	return value.Float(f)
}

type entry struct {
	num   float64
	isNum bool
	key   string
	val   value.Value
}

func (r *run) toValue(idx, depth int) (value.Value, error) {
	l := r.l
	switch l.TypeOf(idx) {
	case golua.TypeNil, golua.TypeNone:
		return value.Nil(), nil
	case golua.TypeBoolean:
		return value.Bool(l.ToBoolean(idx)), nil
	case golua.TypeNumber:
		f, _ := l.ToNumber(idx)
		return number(f), nil
	case golua.TypeString:
		s, _ := l.ToString(idx)
		if err := r.meter.String(utf8.RuneCountInString(s)); err != nil {
			return value.Nil(), err
		}
		return value.String(s), nil
	case golua.TypeTable:
		return r.table(l.AbsIndex(idx), depth)
	default:
		return value.Nil(), scripterr.RuntimeErrorf("cannot convert a %s value", golua.TypeNameOf(l, idx))
	}
}

// table converts the table at the absolute index idx. Keys 1..n make an
// array; anything else makes a map.
func (r *run) table(idx, depth int) (value.Value, error) {
	if depth >= value.MaxDepth {
		return value.Nil(), scripterr.RuntimeErrorf("value nested deeper than %d levels", value.MaxDepth)
	}
	if err := r.meter.Step(); err != nil {
		return value.Nil(), err
	}

	l := r.l
	var entries []entry
	l.PushNil()
	for l.Next(idx) {
		e := entry{}
		switch l.TypeOf(-2) {
		case golua.TypeNumber:
			e.num, _ = l.ToNumber(-2)
			e.isNum = true
			e.key = value.FormatNumber(e.num)
		case golua.TypeString:
			e.key, _ = l.ToString(-2)
		default:
			kind := golua.TypeNameOf(l, -2)
			l.Pop(2)
			return value.Nil(), scripterr.RuntimeErrorf("table key of type %s cannot be converted", kind)
		}
		v, err := r.toValue(-1, depth+1)
		if err != nil {
			l.Pop(2)
			return value.Nil(), err
		}
		e.val = v
		entries = append(entries, e)
		l.Pop(1)

		if err := r.meter.Array(len(entries)); err != nil {
			l.Pop(1)
			return value.Nil(), err
		}
	}

	if elems, ok := sequence(entries); ok {
		return value.Array(elems...), nil
	}
	m := make(map[string]value.Value, len(entries))
	for _, e := range entries {
		m[e.key] = e.val
	}
	return value.Map(m), nil
}

// sequence orders entries as an array when their keys are exactly 1..n.
func sequence(entries []entry) ([]value.Value, bool) {
	elems := make([]value.Value, len(entries))
	seen := make([]bool, len(entries))
	for _, e := range entries {
		if !e.isNum || e.num != math.Trunc(e.num) || e.num < 1 || e.num > float64(len(entries)) {
			return nil, false
		}
		i := int(e.num) - 1
		if seen[i] {
			return nil, false
		}
		seen[i] = true
		elems[i] = e.val
	}
	return elems, true
}

// push converts v to a Lua value on top of the stack.
func (r *run) push(v value.Value, depth int) error {
	if depth >= value.MaxDepth {
		return scripterr.RuntimeErrorf("value nested deeper than %d levels", value.MaxDepth)
	}
	l := r.l
	switch v.Kind() {
	case value.KindNil:
		l.PushNil()
	case value.KindBool:
		b, _ := v.AsBool()
		l.PushBoolean(b)
	case value.KindNumber:
		if i, ok := v.AsInt(); ok && v.IsInt() {
			l.PushInteger(int(i))
		} else {
			f, _ := v.AsFloat()
			l.PushNumber(f)
		}
	case value.KindString:
		s, _ := v.AsString()
		if err := r.meter.String(utf8.RuneCountInString(s)); err != nil {
			return err
		}
		l.PushString(s)
	case value.KindArray:
		elems, _ := v.AsArray()
		if err := r.meter.Array(len(elems)); err != nil {
			return err
		}
		l.CreateTable(len(elems), 0)
		for i, e := range elems {
			if err := r.push(e, depth+1); err != nil {
				l.Pop(1)
				return err
			}
			l.RawSetInt(-2, i+1)
		}
	case value.KindMap:
		m, _ := v.AsMap()
		if err := r.meter.Array(len(m)); err != nil {
			return err
		}
		l.CreateTable(0, len(m))
		for _, k := range v.Keys() {
			if err := r.push(m[k], depth+1); err != nil {
				l.Pop(1)
				return err
			}
			l.SetField(-2, k)
		}
	}
	return nil
}
