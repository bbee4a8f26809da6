package rhai

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

// Script values are nil (unit), bool, int64, float64, string, *array,
// *object and *rangeVal. Arrays and maps are shared by reference.
type (
	array struct {
		elems []any
	}

	object struct {
		m map[string]any
	}

	rangeVal struct {
		from, to  int64
		inclusive bool
	}
)

// Heap estimate per value, in bytes.
const (
	arrayBytes  = 24
	elemBytes   = 16
	objectBytes = 48
	entryBytes  = 64

	// valueBytes is the size of one canonical value.Value built when a
	// result is converted or rendered.
	valueBytes = 80
)

func sizeOf(v any) int64 {
	switch v := v.(type) {
	case string:
		return int64(len(v))
	case *array:
		return arrayBytes + elemBytes*int64(len(v.elems))
	case *object:
		return objectBytes + entryBytes*int64(len(v.m))
	}
	return 0
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "()"
	case bool:
		return "bool"
	case int64:
		return "i64"
	case float64:
		return "f64"
	case string:
		return "string"
	case *array:
		return "array"
	case *object:
		return "map"
	case *rangeVal:
		return "range"
	default:
		return "unknown"
	}
}

func (r *rangeVal) count() int64 {
	if r.to < r.from || (!r.inclusive && r.to == r.from) {
		return 0
	}
	n := uint64(r.to) - uint64(r.from)
	if r.inclusive {
		if n == math.MaxUint64 {
			return math.MaxInt64
		}
		n++
	}
	if n > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(n)
}

func (o *object) sortedKeys() []string {
	keys := make([]string, 0, len(o.m))
	for k := range o.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// newString checks s against the string ceiling and charges it to the heap.
func (it *interp) newString(s string, p pos) (any, error) {
	if err := it.meter.Observe(utf8.RuneCountInString(s), 0, 0); err != nil {
		return nil, at(err, p)
	}
	if err := it.alloc(int64(len(s)), p); err != nil {
		return nil, err
	}
	return s, nil
}

func (it *interp) newArray(elems []any, p pos) (*array, error) {
	if err := it.meter.Observe(0, len(elems), 0); err != nil {
		return nil, at(err, p)
	}
	if err := it.alloc(arrayBytes+elemBytes*int64(len(elems)), p); err != nil {
		return nil, err
	}
	if elems == nil {
		elems = []any{}
	}
	return &array{elems: elems}, nil
}

func (it *interp) newObject(m map[string]any, p pos) (*object, error) {
	if err := it.meter.Observe(0, len(m), 0); err != nil {
		return nil, at(err, p)
	}
	if err := it.alloc(objectBytes+entryBytes*int64(len(m)), p); err != nil {
		return nil, err
	}
	return &object{m: m}, nil
}

// grow checks that arr may take n more elements.
func (it *interp) grow(arr *array, n int, p pos) error {
	if err := it.meter.Observe(0, len(arr.elems)+n, 0); err != nil {
		return at(err, p)
	}
	return it.alloc(elemBytes*int64(n), p)
}

// set stores key in obj, checking the container ceiling for new keys.
func (it *interp) set(obj *object, key string, v any, p pos) error {
	if _, exists := obj.m[key]; !exists {
		if err := it.meter.Observe(0, len(obj.m)+1, 0); err != nil {
			return at(err, p)
		}
		if err := it.alloc(entryBytes, p); err != nil {
			return err
		}
	}
	obj.m[key] = v
	return nil
}

// toValue converts a script value to the canonical representation.
// Self-containing values cannot be represented and fail. Every node the
// conversion builds is charged to the heap for its duration, so aliased
// composites cannot expand past the memory ceiling.
func (it *interp) toValue(v any) (value.Value, error) {
	c := converter{it: it, path: make(map[any]bool)}
	defer func() { it.meter.Release(c.charged) }()
	return c.canonical(v, 0)
}

type converter struct {
	it        *interp
	path      map[any]bool
	charged   int64
	collected bool
}

// charge adds n bytes of conversion output to the heap. The first time the
// ceiling comes close, garbage is collected and the bytes charged so far
// are put back.
func (c *converter) charge(n int64) error {
	m := c.it.meter
	if !c.collected && m.HeapBytes()+n > m.Policy().MemoryLimitBytes {
		c.collected = true
		before := m.HeapBytes()
		c.it.collect()
		if err := m.Alloc(min(before-m.HeapBytes(), c.charged)); err != nil {
			return err
		}
	}
	c.charged += n
	return m.Alloc(n)
}

func (c *converter) canonical(v any, depth int) (value.Value, error) {
	it := c.it
	switch v := v.(type) {
	case nil:
		return value.Nil(), nil
	case bool:
		return value.Bool(v), nil
	case int64:
		return value.Int(v), nil
	case float64:
		return value.Float(v), nil
	case string:
		return value.String(v), nil
	case *rangeVal:
		n := v.count()
		if err := it.meter.Array(int(min(n, math.MaxInt32))); err != nil {
			return value.Nil(), err
		}
		if err := c.charge(arrayBytes + valueBytes*n); err != nil {
			return value.Nil(), err
		}
		out := make([]value.Value, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, value.Int(v.from+i))
		}
		return value.Array(out...), nil
	}

	if depth >= value.MaxDepth {
		return value.Nil(), scripterr.RuntimeErrorf("value nested deeper than %d levels", value.MaxDepth)
	}
	if c.path[v] {
		return value.Nil(), scripterr.RuntimeErrorf("cannot convert a value that contains itself")
	}
	if err := it.meter.Step(); err != nil {
		return value.Nil(), err
	}
	c.path[v] = true
	defer delete(c.path, v)

	switch v := v.(type) {
	case *array:
		if err := c.charge(arrayBytes + valueBytes*int64(len(v.elems))); err != nil {
			return value.Nil(), err
		}
		out := make([]value.Value, len(v.elems))
		for i, e := range v.elems {
			cv, err := c.canonical(e, depth+1)
			if err != nil {
				return value.Nil(), err
			}
			out[i] = cv
		}
		return value.Array(out...), nil
	case *object:
		if err := c.charge(objectBytes + (entryBytes+valueBytes)*int64(len(v.m))); err != nil {
			return value.Nil(), err
		}
		out := make(map[string]value.Value, len(v.m))
		for k, e := range v.m {
			cv, err := c.canonical(e, depth+1)
			if err != nil {
				return value.Nil(), err
			}
			out[k] = cv
		}
		return value.Map(out), nil
	}
	return value.Nil(), scripterr.RuntimeErrorf("cannot convert %s", typeName(v))
}

// fromValue converts a canonical value into a script value, applying the
// same size checks as values built by the script.
func (it *interp) fromValue(v value.Value, p pos) (any, error) {
	return it.native(v, 0, p)
}

func (it *interp) native(v value.Value, depth int, p pos) (any, error) {
	if depth > value.MaxDepth {
		return nil, it.errorf(p, "value nested deeper than %d levels", value.MaxDepth)
	}
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return b, nil
	case value.KindNumber:
		if v.IsInt() {
			i, _ := v.AsInt()
			return i, nil
		}
		f, _ := v.AsFloat()
		return f, nil
	case value.KindString:
		s, _ := v.AsString()
		return it.newString(s, p)
	case value.KindArray:
		elems, _ := v.AsArray()
		out := make([]any, len(elems))
		for i, e := range elems {
			ne, err := it.native(e, depth+1, p)
			if err != nil {
				return nil, err
			}
			out[i] = ne
		}
		return it.newArray(out, p)
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]any, len(m))
		for k, e := range m {
			ne, err := it.native(e, depth+1, p)
			if err != nil {
				return nil, err
			}
			out[k] = ne
		}
		return it.newObject(out, p)
	}
	return nil, nil
}

// render returns the text form used by print, to_string and string
// concatenation. It matches the caller-facing rendering.
func (it *interp) render(v any, p pos) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	cv, err := it.toValue(v)
	if err != nil {
		return "", at(err, p)
	}
	text, err := value.Format(cv, it.meter.Policy().Bounds())
	if err != nil {
		return "", at(err, p)
	}
	return text, nil
}
