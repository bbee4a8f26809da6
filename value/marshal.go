package value

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
)

// MaxDepth bounds the nesting of composite values accepted at the boundary.
const MaxDepth = 64

// Check verifies v against the size ceilings without rendering it. When
// both a string and a container are oversized, the string is reported.
func Check(v Value, b limits.Bounds) error {
	var strErr, arrErr error
	var walk func(v Value, depth int) error
	walk = func(v Value, depth int) error {
		if depth > MaxDepth {
			return scripterr.RuntimeErrorf("value nested deeper than %d levels", MaxDepth)
		}
		switch v.kind {
		case KindString:
			if strErr == nil {
				if n := runeCount(v.s); n > b.MaxStringLen {
					strErr = scripterr.Exceeded(scripterr.StringLength,
						"string of %d characters exceeds limit of %d", n, b.MaxStringLen)
				}
			}
		case KindArray:
			if arrErr == nil && len(v.arr) > b.MaxArraySize {
				arrErr = scripterr.Exceeded(scripterr.ArraySize,
					"array of %d elements exceeds limit of %d", len(v.arr), b.MaxArraySize)
			}
			for _, e := range v.arr {
				if err := walk(e, depth+1); err != nil {
					return err
				}
			}
		case KindMap:
			if arrErr == nil && len(v.m) > b.MaxArraySize {
				arrErr = scripterr.Exceeded(scripterr.ArraySize,
					"map of %d entries exceeds limit of %d", len(v.m), b.MaxArraySize)
			}
			for k, e := range v.m {
				if strErr == nil {
					if n := runeCount(k); n > b.MaxStringLen {
						strErr = scripterr.Exceeded(scripterr.StringLength,
							"map key of %d characters exceeds limit of %d", n, b.MaxStringLen)
					}
				}
				if err := walk(e, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(v, 0); err != nil {
		return err
	}
	if strErr != nil {
		return strErr
	}
	return arrErr
}

// Format renders v as caller-facing text after checking it against b.
// Strings pass through unchanged, numbers use canonical decimal form,
// booleans render as true/false, nil as "nil", and composites structurally
// with quoted strings and sorted map keys. The rendered text is itself
// bounded by b.MaxStringLen.
//
// Integral floats render without a fractional part (1.0 renders as "1").
// Lua numbers carry no integer subtype and JSON does not distinguish the
// two, so this keeps output identical across both backends and the JSON
// result.
func Format(v Value, b limits.Bounds) (string, error) {
	if err := Check(v, b); err != nil {
		return "", err
	}
	w := writer{limit: b.MaxStringLen}
	if err := w.value(v, false); err != nil {
		return "", err
	}
	return w.buf.String(), nil
}

// FormatNumber renders a float in canonical decimal form.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'e', -1, 64)
}

type writer struct {
	buf   strings.Builder
	limit int
	chars int
	depth int
}

func (w *writer) write(s string) error {
	if w.limit > 0 {
		w.chars += runeCount(s)
		if w.chars > w.limit {
			return scripterr.Exceeded(scripterr.StringLength,
				"rendered result exceeds limit of %d characters", w.limit)
		}
	}
	w.buf.WriteString(s)
	return nil
}

func (w *writer) value(v Value, nested bool) error {
	switch v.kind {
	case KindNil:
		return w.write("nil")
	case KindBool:
		return w.write(strconv.FormatBool(v.b))
	case KindNumber:
		if v.isInt {
			return w.write(strconv.FormatInt(v.i, 10))
		}
		return w.write(FormatNumber(v.f))
	case KindString:
		if nested {
			return w.write(strconv.Quote(v.s))
		}
		return w.write(v.s)
	}

	w.depth++
	defer func() { w.depth-- }()
	if w.depth > MaxDepth {
		return scripterr.RuntimeErrorf("value nested deeper than %d levels", MaxDepth)
	}

	if v.kind == KindArray {
		if err := w.write("["); err != nil {
			return err
		}
		for i, e := range v.arr {
			if i > 0 {
				if err := w.write(", "); err != nil {
					return err
				}
			}
			if err := w.value(e, true); err != nil {
				return err
			}
		}
		return w.write("]")
	}

	if err := w.write("#{"); err != nil {
		return err
	}
	for i, k := range v.Keys() {
		if i > 0 {
			if err := w.write(", "); err != nil {
				return err
			}
		}
		if err := w.write(strconv.Quote(k) + ": "); err != nil {
			return err
		}
		if err := w.value(v.m[k], true); err != nil {
			return err
		}
	}
	return w.write("}")
}

func runeCount(s string) int {
	return utf8.RuneCountInString(s)
}
