package rhai

import (
	"math"

	"github.com/isdmx/scriptbox/value"
)

func (it *interp) unary(op string, x any, p pos) (any, error) {
	switch op {
	case "!":
		if b, ok := x.(bool); ok {
			return !b, nil
		}
	case "-":
		switch v := x.(type) {
		case int64:
			if v == math.MinInt64 {
				return nil, it.errorf(p, "integer overflow")
			}
			return -v, nil
		case float64:
			return -v, nil
		}
	case "+":
		switch x.(type) {
		case int64, float64:
			return x, nil
		}
	}
	return nil, it.errorf(p, "operator '%s' cannot be applied to %s", op, typeName(x))
}

func (it *interp) binary(n *binaryExpr, f frame) (any, error) {
	l, err := it.eval(n.l, f)
	if err != nil {
		return nil, err
	}

	if n.op == "&&" || n.op == "||" {
		lb, ok := l.(bool)
		if !ok {
			return nil, it.errorf(n.p, "operator '%s' expects bool operands, got %s", n.op, typeName(l))
		}
		if err := it.step(n.p); err != nil {
			return nil, err
		}
		if (n.op == "&&" && !lb) || (n.op == "||" && lb) {
			return lb, nil
		}
		r, err := it.eval(n.r, f)
		if err != nil {
			return nil, err
		}
		rb, ok := r.(bool)
		if !ok {
			return nil, it.errorf(n.p, "operator '%s' expects bool operands, got %s", n.op, typeName(r))
		}
		return rb, nil
	}

	r, err := it.eval(n.r, f)
	if err != nil {
		return nil, err
	}
	if err := it.step(n.p); err != nil {
		return nil, err
	}
	return it.binop(n.op, l, r, n.p)
}

func (it *interp) binop(op string, l, r any, p pos) (any, error) {
	switch op {
	case "==":
		return it.equal(l, r, 0, p)
	case "!=":
		eq, err := it.equal(l, r, 0, p)
		if err != nil {
			return nil, err
		}
		return !eq, nil
	case "<", "<=", ">", ">=":
		return it.compare(op, l, r, p)
	case "+":
		return it.add(l, r, p)
	case "&", "|", "^":
		if a, ok := l.(bool); ok {
			if b, ok := r.(bool); ok {
				switch op {
				case "&":
					return a && b, nil
				case "|":
					return a || b, nil
				default:
					return a != b, nil
				}
			}
		}
	}

	a, aInt := l.(int64)
	b, bInt := r.(int64)
	if aInt && bInt {
		return it.intOp(op, a, b, p)
	}

	fa, aNum := toFloat(l)
	fb, bNum := toFloat(r)
	if aNum && bNum {
		switch op {
		case "-":
			return fa - fb, nil
		case "*":
			return fa * fb, nil
		case "/":
			// IEEE 754: x/0 is ±inf, 0/0 is NaN.
			return fa / fb, nil
		case "%":
			return math.Mod(fa, fb), nil
		case "**":
			return math.Pow(fa, fb), nil
		}
	}
	return nil, it.errorf(p, "operator '%s' cannot be applied to %s and %s", op, typeName(l), typeName(r))
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func (it *interp) add(l, r any, p pos) (any, error) {
	_, ls := l.(string)
	_, rs := r.(string)
	if ls || rs {
		a, err := it.render(l, p)
		if err != nil {
			return nil, err
		}
		b, err := it.render(r, p)
		if err != nil {
			return nil, err
		}
		if err := it.meter.Observe(runeLen(a)+runeLen(b), 0, 0); err != nil {
			return nil, at(err, p)
		}
		return it.newString(a+b, p)
	}

	if la, ok := l.(*array); ok {
		if ra, ok := r.(*array); ok {
			if err := it.meter.Array(len(la.elems) + len(ra.elems)); err != nil {
				return nil, at(err, p)
			}
			elems := make([]any, 0, len(la.elems)+len(ra.elems))
			elems = append(elems, la.elems...)
			elems = append(elems, ra.elems...)
			return it.newArray(elems, p)
		}
	}

	if a, ok := l.(int64); ok {
		if b, ok := r.(int64); ok {
			return it.intOp("+", a, b, p)
		}
	}
	if fa, ok := toFloat(l); ok {
		if fb, ok := toFloat(r); ok {
			return fa + fb, nil
		}
	}
	return nil, it.errorf(p, "operator '+' cannot be applied to %s and %s", typeName(l), typeName(r))
}

func (it *interp) intOp(op string, a, b int64, p pos) (any, error) {
	overflow := func() (any, error) {
		return nil, it.errorf(p, "integer overflow in %d %s %d", a, op, b)
	}
	switch op {
	case "+":
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return overflow()
		}
		return a + b, nil
	case "-":
		if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
			return overflow()
		}
		return a - b, nil
	case "*":
		c, ok := mulInt(a, b)
		if !ok {
			return overflow()
		}
		return c, nil
	case "/":
		if b == 0 {
			return nil, it.errorf(p, "division by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return overflow()
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return nil, it.errorf(p, "division by zero")
		}
		return a % b, nil
	case "**":
		if b < 0 {
			return nil, it.errorf(p, "negative exponent %d for integer power", b)
		}
		result, base := int64(1), a
		for e := b; e > 0; e >>= 1 {
			var ok bool
			if e&1 == 1 {
				if result, ok = mulInt(result, base); !ok {
					return overflow()
				}
			}
			if e > 1 {
				if base, ok = mulInt(base, base); !ok {
					return overflow()
				}
			}
		}
		return result, nil
	case "&":
		return a & b, nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "<<", ">>":
		if b < 0 || b > 63 {
			return nil, it.errorf(p, "shift amount %d out of range", b)
		}
		if op == "<<" {
			return a << uint(b), nil
		}
		return a >> uint(b), nil
	}
	return nil, it.errorf(p, "operator '%s' cannot be applied to i64 and i64", op)
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) || c/b != a {
		return 0, false
	}
	return c, true
}

func (it *interp) compare(op string, l, r any, p pos) (any, error) {
	var cmp int
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return nil, it.errorf(p, "cannot compare %s with %s", typeName(l), typeName(r))
		}
		switch {
		case ls < rs:
			cmp = -1
		case ls > rs:
			cmp = 1
		}
	} else {
		a, aInt := l.(int64)
		b, bInt := r.(int64)
		fa, aNum := toFloat(l)
		fb, bNum := toFloat(r)
		switch {
		case aInt && bInt:
			switch {
			case a < b:
				cmp = -1
			case a > b:
				cmp = 1
			}
		case aNum && bNum:
			if math.IsNaN(fa) || math.IsNaN(fb) {
				return false, nil
			}
			switch {
			case fa < fb:
				cmp = -1
			case fa > fb:
				cmp = 1
			}
		default:
			return nil, it.errorf(p, "cannot compare %s with %s", typeName(l), typeName(r))
		}
	}

	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

// equal compares deeply. Values of different types are unequal, except
// integers and floats which compare numerically.
func (it *interp) equal(l, r any, depth int, p pos) (bool, error) {
	if depth > value.MaxDepth {
		return false, it.errorf(p, "value nested deeper than %d levels", value.MaxDepth)
	}
	switch a := l.(type) {
	case nil:
		return r == nil, nil
	case bool, string:
		return l == r, nil
	case int64, float64:
		if b, ok := r.(int64); ok {
			if ai, ok := a.(int64); ok {
				return ai == b, nil
			}
		}
		fa, _ := toFloat(l)
		fb, ok := toFloat(r)
		return ok && fa == fb, nil
	case *rangeVal:
		b, ok := r.(*rangeVal)
		return ok && *a == *b, nil
	case *array:
		b, ok := r.(*array)
		if !ok || len(a.elems) != len(b.elems) {
			return false, nil
		}
		if a == b {
			return true, nil
		}
		if err := it.step(p); err != nil {
			return false, err
		}
		for i := range a.elems {
			eq, err := it.equal(a.elems[i], b.elems[i], depth+1, p)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	case *object:
		b, ok := r.(*object)
		if !ok || len(a.m) != len(b.m) {
			return false, nil
		}
		if a == b {
			return true, nil
		}
		if err := it.step(p); err != nil {
			return false, err
		}
		for k, av := range a.m {
			bv, exists := b.m[k]
			if !exists {
				return false, nil
			}
			eq, err := it.equal(av, bv, depth+1, p)
			if err != nil || !eq {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}
