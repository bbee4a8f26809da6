package rhai

import (
	"math"
	"strconv"
	"strings"

	"github.com/isdmx/scriptbox/scripterr"
	"github.com/isdmx/scriptbox/value"
)

type builtin func(it *interp, args []any, p pos) (any, error)

// builtins is the standard library visible to every script. Methods are
// ordinary functions: x.f(a) calls f(x, a).
var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"print":       bPrint,
		"debug":       bDebug,
		"len":         bLen,
		"type_of":     bTypeOf,
		"to_string":   bToString,
		"to_int":      bToInt,
		"to_float":    bToFloat,
		"parse_int":   bParseInt,
		"parse_float": bParseFloat,
		"abs":         bAbs,
		"min":         bMin,
		"max":         bMax,
		"floor":       floatFn("floor", math.Floor),
		"ceiling":     floatFn("ceiling", math.Ceil),
		"round":       floatFn("round", math.Round),
		"sqrt":        bSqrt,
		"to_upper":    stringFn("to_upper", strings.ToUpper),
		"to_lower":    stringFn("to_lower", strings.ToLower),
		"trim":        stringFn("trim", strings.TrimSpace),
		"contains":    bContains,
		"starts_with": stringPredicate("starts_with", strings.HasPrefix),
		"ends_with":   stringPredicate("ends_with", strings.HasSuffix),
		"index_of":    bIndexOf,
		"sub_string":  bSubString,
		"split":       bSplit,
		"replace":     bReplace,
		"push":        bPush,
		"pop":         bPop,
		"insert":      bInsert,
		"remove":      bRemove,
		"clear":       bClear,
		"reverse":     bReverse,
		"is_empty":    bIsEmpty,
		"join":        bJoin,
		"keys":        bKeys,
		"values":      bValues,
	}
}

func arity(name string, args []any, want ...int) error {
	for _, n := range want {
		if len(args) == n {
			return nil
		}
	}
	return scripterr.RuntimeErrorf("function '%s' with %d arguments not found", name, len(args))
}

func mismatch(name string, args []any) error {
	types := make([]string, len(args))
	for i, a := range args {
		types[i] = typeName(a)
	}
	return scripterr.RuntimeErrorf("function '%s (%s)' not found", name, strings.Join(types, ", "))
}

func bPrint(it *interp, args []any, p pos) (any, error) {
	if err := arity("print", args, 1); err != nil {
		return nil, err
	}
	text, err := it.render(args[0], p)
	if err != nil {
		return nil, err
	}
	return nil, it.sess.Print(text)
}

func bDebug(it *interp, args []any, p pos) (any, error) {
	if err := arity("debug", args, 1); err != nil {
		return nil, err
	}
	text, err := it.render(args[0], p)
	if err != nil {
		return nil, err
	}
	if _, ok := args[0].(string); ok {
		text = strconv.Quote(text)
	}
	return nil, it.sess.Print(text)
}

func bLen(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("len", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case string:
		return int64(runeLen(v)), nil
	case *array:
		return int64(len(v.elems)), nil
	case *object:
		return int64(len(v.m)), nil
	case *rangeVal:
		return v.count(), nil
	}
	return nil, mismatch("len", args)
}

func bTypeOf(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("type_of", args, 1); err != nil {
		return nil, err
	}
	return typeName(args[0]), nil
}

func bToString(it *interp, args []any, p pos) (any, error) {
	if err := arity("to_string", args, 1); err != nil {
		return nil, err
	}
	if s, ok := args[0].(string); ok {
		return s, nil
	}
	text, err := it.render(args[0], p)
	if err != nil {
		return nil, err
	}
	return it.newString(text, p)
}

func bToInt(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("to_int", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case int64:
		return v, nil
	case float64:
		if math.IsNaN(v) || v >= math.MaxInt64 || v < math.MinInt64 {
			return nil, scripterr.RuntimeErrorf("cannot convert %s to an integer", value.FormatNumber(v))
		}
		return int64(v), nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, mismatch("to_int", args)
}

func bToFloat(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("to_float", args, 1); err != nil {
		return nil, err
	}
	if f, ok := toFloat(args[0]); ok {
		return f, nil
	}
	return nil, mismatch("to_float", args)
}

func bParseInt(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("parse_int", args, 1, 2); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, mismatch("parse_int", args)
	}
	base := int64(10)
	if len(args) == 2 {
		if base, ok = args[1].(int64); !ok || base < 2 || base > 36 {
			return nil, scripterr.RuntimeErrorf("invalid radix for parse_int")
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), int(base), 64)
	if err != nil {
		return nil, scripterr.RuntimeErrorf("cannot parse %q as an integer", s)
	}
	return n, nil
}

func bParseFloat(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("parse_float", args, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, mismatch("parse_float", args)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, scripterr.RuntimeErrorf("cannot parse %q as a number", s)
	}
	return f, nil
}

func bAbs(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("abs", args, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case int64:
		if v == math.MinInt64 {
			return nil, scripterr.RuntimeErrorf("integer overflow in abs")
		}
		if v < 0 {
			return -v, nil
		}
		return v, nil
	case float64:
		return math.Abs(v), nil
	}
	return nil, mismatch("abs", args)
}

func pick(name string, less bool) builtin {
	return func(it *interp, args []any, p pos) (any, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		lt, err := it.compare("<", args[0], args[1], p)
		if err != nil {
			return nil, mismatch(name, args)
		}
		if lt.(bool) == less {
			return args[0], nil
		}
		return args[1], nil
	}
}

var (
	bMin = pick("min", true)
	bMax = pick("max", false)
)

func floatFn(name string, fn func(float64) float64) builtin {
	return func(_ *interp, args []any, _ pos) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case int64:
			return v, nil
		case float64:
			return fn(v), nil
		}
		return nil, mismatch(name, args)
	}
}

func bSqrt(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("sqrt", args, 1); err != nil {
		return nil, err
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, mismatch("sqrt", args)
	}
	return math.Sqrt(f), nil
}

func stringFn(name string, fn func(string) string) builtin {
	return func(it *interp, args []any, p pos) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, mismatch(name, args)
		}
		return it.newString(fn(s), p)
	}
}

func stringPredicate(name string, fn func(string, string) bool) builtin {
	return func(_ *interp, args []any, _ pos) (any, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		s, ok1 := args[0].(string)
		sub, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, mismatch(name, args)
		}
		return fn(s, sub), nil
	}
}

func bContains(it *interp, args []any, p pos) (any, error) {
	if err := arity("contains", args, 2); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case string:
		sub, ok := args[1].(string)
		if !ok {
			return nil, mismatch("contains", args)
		}
		return strings.Contains(c, sub), nil
	case *array:
		for _, e := range c.elems {
			eq, err := it.equal(e, args[1], 0, p)
			if err != nil {
				return nil, err
			}
			if eq {
				return true, nil
			}
		}
		return false, nil
	case *object:
		key, ok := args[1].(string)
		if !ok {
			return nil, mismatch("contains", args)
		}
		_, exists := c.m[key]
		return exists, nil
	case *rangeVal:
		n, ok := args[1].(int64)
		if !ok {
			return false, nil
		}
		if c.inclusive {
			return n >= c.from && n <= c.to, nil
		}
		return n >= c.from && n < c.to, nil
	}
	return nil, mismatch("contains", args)
}

func bIndexOf(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("index_of", args, 2); err != nil {
		return nil, err
	}
	s, ok1 := args[0].(string)
	sub, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, mismatch("index_of", args)
	}
	i := strings.Index(s, sub)
	if i < 0 {
		return int64(-1), nil
	}
	return int64(runeLen(s[:i])), nil
}

func bSubString(it *interp, args []any, p pos) (any, error) {
	if err := arity("sub_string", args, 2, 3); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	start, ok2 := args[1].(int64)
	if !ok || !ok2 {
		return nil, mismatch("sub_string", args)
	}
	runes := []rune(s)
	n := int64(len(runes))
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	end := n
	if len(args) == 3 {
		length, ok := args[2].(int64)
		if !ok {
			return nil, mismatch("sub_string", args)
		}
		if length < 0 {
			length = 0
		}
		if length < n-start {
			end = start + length
		}
	}
	return it.newString(string(runes[start:end]), p)
}

func bSplit(it *interp, args []any, p pos) (any, error) {
	if err := arity("split", args, 2); err != nil {
		return nil, err
	}
	s, ok1 := args[0].(string)
	sep, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, mismatch("split", args)
	}
	limit := it.meter.Policy().MaxArraySize
	parts := strings.SplitN(s, sep, limit+1)
	if err := it.meter.Array(len(parts)); err != nil {
		return nil, err
	}
	elems := make([]any, len(parts))
	for i, part := range parts {
		elems[i] = part
	}
	if err := it.alloc(int64(len(s)), p); err != nil {
		return nil, err
	}
	return it.newArray(elems, p)
}

func bReplace(it *interp, args []any, p pos) (any, error) {
	if err := arity("replace", args, 3); err != nil {
		return nil, err
	}
	s, ok1 := args[0].(string)
	find, ok2 := args[1].(string)
	repl, ok3 := args[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, mismatch("replace", args)
	}
	if n := strings.Count(s, find); n > 0 {
		grown := runeLen(s) + n*(runeLen(repl)-runeLen(find))
		if err := it.meter.String(max(grown, 0)); err != nil {
			return nil, err
		}
	}
	return it.newString(strings.ReplaceAll(s, find, repl), p)
}

func receiver(name string, args []any) (*array, error) {
	arr, ok := args[0].(*array)
	if !ok {
		return nil, mismatch(name, args)
	}
	return arr, nil
}

func bPush(it *interp, args []any, p pos) (any, error) {
	if err := arity("push", args, 2); err != nil {
		return nil, err
	}
	arr, err := receiver("push", args)
	if err != nil {
		return nil, err
	}
	if err := it.grow(arr, 1, p); err != nil {
		return nil, err
	}
	arr.elems = append(arr.elems, args[1])
	return nil, nil
}

func bPop(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("pop", args, 1); err != nil {
		return nil, err
	}
	arr, err := receiver("pop", args)
	if err != nil {
		return nil, err
	}
	if len(arr.elems) == 0 {
		return nil, nil
	}
	last := arr.elems[len(arr.elems)-1]
	arr.elems[len(arr.elems)-1] = nil
	arr.elems = arr.elems[:len(arr.elems)-1]
	return last, nil
}

func bInsert(it *interp, args []any, p pos) (any, error) {
	if err := arity("insert", args, 3); err != nil {
		return nil, err
	}
	arr, err := receiver("insert", args)
	if err != nil {
		return nil, err
	}
	i, ok := args[1].(int64)
	if !ok {
		return nil, mismatch("insert", args)
	}
	n := int64(len(arr.elems))
	if i < 0 {
		i = max(n+i, 0)
	}
	i = min(i, n)
	if err := it.grow(arr, 1, p); err != nil {
		return nil, err
	}
	arr.elems = append(arr.elems, nil)
	copy(arr.elems[i+1:], arr.elems[i:])
	arr.elems[i] = args[2]
	return nil, nil
}

func bRemove(it *interp, args []any, p pos) (any, error) {
	if err := arity("remove", args, 2); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case *array:
		if _, ok := args[1].(int64); !ok {
			return nil, mismatch("remove", args)
		}
		i, err := it.position(args[1], len(c.elems), p)
		if err != nil {
			return nil, err
		}
		removed := c.elems[i]
		c.elems = append(c.elems[:i], c.elems[i+1:]...)
		return removed, nil
	case *object:
		key, ok := args[1].(string)
		if !ok {
			return nil, mismatch("remove", args)
		}
		removed := c.m[key]
		delete(c.m, key)
		return removed, nil
	}
	return nil, mismatch("remove", args)
}

func bClear(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("clear", args, 1); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case *array:
		c.elems = []any{}
		return nil, nil
	case *object:
		clear(c.m)
		return nil, nil
	}
	return nil, mismatch("clear", args)
}

func bReverse(it *interp, args []any, p pos) (any, error) {
	if err := arity("reverse", args, 1); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case *array:
		for i, j := 0, len(c.elems)-1; i < j; i, j = i+1, j-1 {
			c.elems[i], c.elems[j] = c.elems[j], c.elems[i]
		}
		return nil, nil
	case string:
		runes := []rune(c)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return it.newString(string(runes), p)
	}
	return nil, mismatch("reverse", args)
}

func bIsEmpty(_ *interp, args []any, _ pos) (any, error) {
	if err := arity("is_empty", args, 1); err != nil {
		return nil, err
	}
	switch c := args[0].(type) {
	case string:
		return c == "", nil
	case *array:
		return len(c.elems) == 0, nil
	case *object:
		return len(c.m) == 0, nil
	case *rangeVal:
		return c.count() == 0, nil
	}
	return nil, mismatch("is_empty", args)
}

func bJoin(it *interp, args []any, p pos) (any, error) {
	if err := arity("join", args, 1, 2); err != nil {
		return nil, err
	}
	arr, err := receiver("join", args)
	if err != nil {
		return nil, err
	}
	sep := ""
	if len(args) == 2 {
		var ok bool
		if sep, ok = args[1].(string); !ok {
			return nil, mismatch("join", args)
		}
	}

	limit := it.meter.Policy().MaxStringLen
	var b strings.Builder
	chars := 0
	for i, e := range arr.elems {
		part, err := it.render(e, p)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			part = sep + part
		}
		chars += runeLen(part)
		if chars > limit {
			return nil, it.meter.String(chars)
		}
		b.WriteString(part)
	}
	return it.newString(b.String(), p)
}

func bKeys(it *interp, args []any, p pos) (any, error) {
	if err := arity("keys", args, 1); err != nil {
		return nil, err
	}
	obj, ok := args[0].(*object)
	if !ok {
		return nil, mismatch("keys", args)
	}
	keys := obj.sortedKeys()
	elems := make([]any, len(keys))
	for i, k := range keys {
		elems[i] = k
	}
	return it.newArray(elems, p)
}

func bValues(it *interp, args []any, p pos) (any, error) {
	if err := arity("values", args, 1); err != nil {
		return nil, err
	}
	obj, ok := args[0].(*object)
	if !ok {
		return nil, mismatch("values", args)
	}
	keys := obj.sortedKeys()
	elems := make([]any, len(keys))
	for i, k := range keys {
		elems[i] = obj.m[k]
	}
	return it.newArray(elems, p)
}
