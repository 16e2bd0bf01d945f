package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Invocation is one requested backend operation and its arguments. It is
// immutable: constructors and accessors copy, and the With/Without helpers
// return a modified copy.
type Invocation struct {
	name   string
	params Object
}

// NewInvocation builds an Invocation, deep-copying params.
func NewInvocation(name string, params map[string]Value) Invocation {
	p := make(Object, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		p[k] = Clone(v)
	}
	return Invocation{name: strings.TrimSpace(name), params: p}
}

// Name returns the operation name.
func (i Invocation) Name() string { return i.name }

// IsZero reports whether i has no name.
func (i Invocation) IsZero() bool { return i.name == "" }

// Params returns a deep copy of the parameters.
func (i Invocation) Params() Object {
	return Clone(i.params).(Object)
}

// Param returns a copy of the value stored under key.
func (i Invocation) Param(key string) (Value, bool) {
	v, ok := i.params[key]
	if !ok {
		return nil, false
	}
	return Clone(v), true
}

// Has reports whether key is present.
func (i Invocation) Has(key string) bool {
	_, ok := i.params[key]
	return ok
}

// Len returns the number of parameters.
func (i Invocation) Len() int { return len(i.params) }

// Keys returns parameter names in sorted order.
func (i Invocation) Keys() []string { return i.params.Keys() }

// With returns a copy of i with key set to v.
func (i Invocation) With(key string, v Value) Invocation {
	p := i.Params()
	p[key] = Clone(v)
	return Invocation{name: i.name, params: p}
}

// Without returns a copy of i with key removed.
func (i Invocation) Without(key string) Invocation {
	p := i.Params()
	delete(p, key)
	return Invocation{name: i.name, params: p}
}

// Renamed returns a copy of i carrying a different operation name.
func (i Invocation) Renamed(name string) Invocation {
	return Invocation{name: name, params: i.Params()}
}

// Equal compares name and parameters.
func (i Invocation) Equal(o Invocation) bool {
	return i.name == o.name && Equal(i.params, o.params)
}

func (i Invocation) String() string {
	b, err := json.Marshal(i.params)
	if err != nil {
		return i.name
	}
	return fmt.Sprintf("%s%s", i.name, b)
}

type invocationJSON struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// MarshalJSON encodes {"name": ..., "parameters": {...}}.
func (i Invocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(invocationJSON{
		Name:       i.name,
		Parameters: ToAny(i.params).(map[string]any),
	})
}

// UnmarshalJSON decodes the MarshalJSON form.
func (i *Invocation) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	obj, ok := v.(Object)
	if !ok {
		return fmt.Errorf("action: invocation must be an object, got %s", v.Kind())
	}
	name, _ := obj["name"].(String)
	if strings.TrimSpace(string(name)) == "" {
		return errors.New("action: invocation has no name")
	}
	params := Object{}
	if raw, ok := obj["parameters"]; ok {
		p, ok := raw.(Object)
		if !ok {
			return fmt.Errorf("action: parameters must be an object, got %s", raw.Kind())
		}
		params = p
	}
	*i = NewInvocation(string(name), params)
	return nil
}
