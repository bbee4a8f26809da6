package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// MarshalJSON encodes v structurally: nil as null, numbers as JSON numbers
// (non-finite floats as strings), composites as arrays and objects.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON decodes any JSON document into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ToAny converts v to plain Go data: nil, bool, int64, float64, string,
// []any and map[string]any.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if v.isInt {
			return v.i
		}
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return FormatNumber(v.f)
		}
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]any, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.ToAny()
		}
		return out
	default:
		return nil
	}
}

// FromAny converts plain Go data, as produced by encoding/json or yaml, to a
// Value.
func FromAny(x any) (Value, error) {
	return fromAny(x, 0)
}

func fromAny(x any, depth int) (Value, error) {
	if depth > MaxDepth {
		return Value{}, fmt.Errorf("value nested deeper than %d levels", MaxDepth)
	}
	switch t := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint32:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Float(f), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			ev, err := fromAny(e, depth+1)
			if err != nil {
				return Value{}, err
			}
			out[i] = ev
		}
		return Array(out...), nil
	case []Value:
		return Array(t...), nil
	case []string:
		out := make([]Value, len(t))
		for i, s := range t {
			out[i] = String(s)
		}
		return Array(out...), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			ev, err := fromAny(e, depth+1)
			if err != nil {
				return Value{}, err
			}
			out[k] = ev
		}
		return Map(out), nil
	case map[string]Value:
		return Map(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported type %T", x)
	}
}

// ParseJSON decodes a JSON document, keeping integers as integers.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var x any
	if err := dec.Decode(&x); err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("decode json: trailing data")
	}
	return FromAny(x)
}

// ParseArgs decodes each string as a JSON value. Strings that are not valid
// JSON are taken literally, so `World` and `"World"` both mean the string.
func ParseArgs(raw []string) []Value {
	out := make([]Value, 0, len(raw))
	for _, r := range raw {
		v, err := ParseJSON([]byte(r))
		if err != nil {
			v = String(r)
		}
		out = append(out, v)
	}
	return out
}
