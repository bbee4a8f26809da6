// Package value defines the canonical, backend-agnostic Value that crosses
// the executor boundary, and the marshaller that renders it for callers.
//
// A Value is one of nil, bool, number, string, array or map. Numbers keep
// track of whether they are integral so that 42 renders as "42" whichever
// backend produced it.
package value

import (
	"math"
	"sort"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a canonical dynamic value. The zero Value is nil.
type Value struct {
	kind  Kind
	isInt bool
	b     bool
	i     int64
	f     float64
	s     string
	arr   []Value
	m     map[string]Value
}

func Nil() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(i int64) Value { return Value{kind: KindNumber, isInt: true, i: i} }

func Float(f float64) Value { return Value{kind: KindNumber, f: f} }

func String(s string) Value { return Value{kind: KindString, s: s} }

// Array builds an array value. The slice is not copied.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{kind: KindArray, arr: elems}
}

// Map builds a map value. The map is not copied.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNil() bool { return v.kind == KindNil }

// IsInt reports whether v is a number with an integer representation.
func (v Value) IsInt() bool { return v.kind == KindNumber && v.isInt }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns v as an integer. Floats convert only when integral.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if v.isInt {
		return v.i, true
	}
	if v.f == math.Trunc(v.f) && v.f >= math.MinInt64 && v.f < math.MaxInt64 {
		return int64(v.f), true
	}
	return 0, false
}

// AsFloat returns v as a float64.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	if v.isInt {
		return float64(v.i), true
	}
	return v.f, true
}

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsArray returns the backing slice of an array value.
func (v Value) AsArray() ([]Value, bool) { return v.arr, v.kind == KindArray }

// AsMap returns the backing map of a map value.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// Len returns the number of characters, elements or entries; zero for
// scalars.
func (v Value) Len() int {
	switch v.kind {
	case KindString:
		return runeCount(v.s)
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Keys returns the map keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal reports deep equality. Numbers compare by numeric value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		if v.isInt && o.isInt {
			return v.i == o.i
		}
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	case KindString:
		return v.s == o.s
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, a := range v.m {
			b, ok := o.m[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders v without size checks. Use Format at the executor
// boundary.
func (v Value) String() string {
	var w writer
	_ = w.value(v, false)
	return w.buf.String()
}
