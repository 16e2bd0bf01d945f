// Package action defines the typed parameter values and invocations that
// flow from model output through normalisation, the confirmation gate and
// into the domain service.
//
// Value is a closed sum type: String, Number, Bool, Array and Object are the
// only implementations, so type switches over a Value are exhaustive. JSON
// null has no representation; it is dropped from objects and arrays and
// rejected at the top level.
package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind names the variant held by a Value.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is one parameter value.
type Value interface {
	Kind() Kind
	sealed()
}

type (
	String string
	Number float64
	Bool   bool
	Array  []Value
	Object map[string]Value
)

func (String) Kind() Kind { return KindString }
func (Number) Kind() Kind { return KindNumber }
func (Bool) Kind() Kind   { return KindBool }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (String) sealed() {}
func (Number) sealed() {}
func (Bool) sealed()   {}
func (Array) sealed()  {}
func (Object) sealed() {}

// ErrNull is returned when a JSON document is a bare null.
var ErrNull = errors.New("action: null is not a value")

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("action: decode json: %w", err)
	}
	if dec.More() {
		return nil, errors.New("action: trailing data after json value")
	}
	return FromAny(raw)
}

// FromAny converts the output of encoding/json (or plain Go scalars) into a
// Value.
func FromAny(x any) (Value, error) {
	switch v := x.(type) {
	case nil:
		return nil, ErrNull
	case Value:
		return Clone(v), nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("action: number %q: %w", v, err)
		}
		return Number(f), nil
	case float64:
		return Number(v), nil
	case float32:
		return Number(v), nil
	case int:
		return Number(v), nil
	case int64:
		return Number(v), nil
	case []any:
		out := make(Array, 0, len(v))
		for _, e := range v {
			if e == nil {
				continue
			}
			ev, err := FromAny(e)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
		return out, nil
	case map[string]any:
		out := make(Object, len(v))
		for k, e := range v {
			if e == nil {
				continue
			}
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("action: key %q: %w", k, err)
			}
			out[k] = ev
		}
		return out, nil
	}
	return nil, fmt.Errorf("action: unsupported type %T", x)
}

// ToAny converts v into the plain Go representation used by encoding/json:
// string, float64, bool, []any and map[string]any.
func ToAny(v Value) any {
	switch t := v.(type) {
	case String:
		return string(t)
	case Number:
		return float64(t)
	case Bool:
		return bool(t)
	case Array:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = ToAny(e)
		}
		return out
	}
	return nil
}

// Clone returns a deep copy of v.
func Clone(v Value) Value {
	switch t := v.(type) {
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	case Object:
		out := make(Object, len(t))
		for k, e := range t {
			out[k] = Clone(e)
		}
		return out
	}
	return v
}

// Equal reports whether a and b hold the same variant and contents.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case String:
		y, ok := b.(String)
		return ok && x == y
	case Number:
		y, ok := b.(Number)
		return ok && x == y
	case Bool:
		y, ok := b.(Bool)
		return ok && x == y
	case Array:
		y, ok := b.(Array)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Object:
		y, ok := b.(Object)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return a == nil && b == nil
}

// Text renders scalars the way a user would type them (5, not 5.000000) and
// composites as compact JSON.
func Text(v Value) string {
	switch t := v.(type) {
	case String:
		return string(t)
	case Number:
		return formatNumber(float64(t))
	case Bool:
		return strconv.FormatBool(bool(t))
	case Array, Object:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
	return ""
}

// AsInt returns v as an integer when it is an integral Number or a String
// holding a base-10 integer.
func AsInt(v Value) (int64, error) {
	switch t := v.(type) {
	case Number:
		f := float64(t)
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, fmt.Errorf("%v is not an integer", f)
		}
		return int64(f), nil
	case String:
		n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", string(t))
		}
		return n, nil
	}
	if v == nil {
		return 0, errors.New("missing value")
	}
	return 0, fmt.Errorf("%s is not an integer", v.Kind())
}

// AsFloat returns v as a float when it is a Number or numeric String.
func AsFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Number:
		return float64(t), true
	case String:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		return f, err == nil
	}
	return 0, false
}

// Truthy applies the lenient boolean reading used for model-supplied flags:
// Bool as is, the strings "true", "1" and "yes" in any case, non-zero
// numbers. Everything else is false.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Bool:
		return bool(t)
	case String:
		switch strings.ToLower(strings.TrimSpace(string(t))) {
		case "true", "1", "yes":
			return true
		}
	case Number:
		return t != 0
	}
	return false
}

// Keys returns the object's keys in sorted order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the String value stored under key, or "".
func (o Object) Lookup(key string) string {
	if v, ok := o[key]; ok {
		return Text(v)
	}
	return ""
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
