// Package normalize canonicalises model-supplied parameters before an
// action reaches the backend: synonyms are renamed, identifiers become
// integers, flags become booleans, malformed dates are dropped and
// structured values are checked against the catalogue schemas.
package normalize

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
)

// DateLayouts are the only accepted date formats.
var DateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05"}

// Normalizer applies catalogue rules. It is safe for concurrent use.
type Normalizer struct {
	cat     *catalog.Catalog
	keyword string
}

// New returns a Normalizer for cat. keyword is used when rendering the
// correct tag format into errors.
func New(cat *catalog.Catalog, keyword string) *Normalizer {
	return &Normalizer{cat: cat, keyword: keyword}
}

// Normalize returns the canonical form of inv. The input is never modified.
// A non-nil error is always a *ValidationError. Actions the catalogue does
// not know are returned unchanged.
func (n *Normalizer) Normalize(inv action.Invocation) (action.Invocation, error) {
	a, ok := n.cat.Get(inv.Name())
	if !ok {
		return inv, nil
	}
	params := inv.Params()

	for _, key := range sortedKeys(a.Rejected) {
		if _, present := params[key]; present {
			return inv, n.invalid(a, key, "is not a supported parameter", a.Rejected[key])
		}
	}

	for _, alias := range sortedKeys(a.Aliases) {
		v, present := params[alias]
		if !present {
			continue
		}
		canonical := a.Aliases[alias]
		delete(params, alias)
		if _, taken := params[canonical]; taken {
			slog.Debug("normalize: alias ignored, canonical key present",
				"action", a.Name, "alias", alias, "field", canonical)
			continue
		}
		params[canonical] = v
	}

	for _, field := range a.RequiredNames() {
		if missing(params[field]) {
			return inv, n.invalid(a, field, "is required", a.Required[field])
		}
	}

	for _, field := range a.IDs {
		v, present := params[field]
		if !present {
			continue
		}
		id, err := action.AsInt(v)
		if err != nil {
			return inv, n.invalid(a, field, "must be a numeric id",
				"Pass "+field+" as a number, or use the record name instead.")
		}
		params[field] = action.Number(id)
	}

	for _, field := range sortedKeys(a.Ints) {
		def := a.Ints[field]
		v, present := params[field]
		if !present {
			params[field] = action.Number(def)
			continue
		}
		i, err := action.AsInt(v)
		if err != nil {
			slog.Debug("normalize: integer field reset to default",
				"action", a.Name, "field", field, "default", def)
			i = int64(def)
		}
		params[field] = action.Number(i)
	}

	for _, field := range a.Bools {
		if v, present := params[field]; present {
			params[field] = action.Bool(action.Truthy(v))
		}
	}

	for _, field := range a.Dates {
		v, present := params[field]
		if !present {
			continue
		}
		s, ok := v.(action.String)
		if ok && validDate(strings.TrimSpace(string(s))) {
			params[field] = action.String(strings.TrimSpace(string(s)))
			continue
		}
		slog.Warn("normalize: dropping malformed date",
			"action", a.Name, "field", field, "value", action.Text(v))
		delete(params, field)
	}

	for _, field := range a.ParamNames() {
		v, present := params[field]
		if !present || !a.HasSchema(field) {
			continue
		}
		if err := a.CheckParam(field, v); err != nil {
			return inv, n.invalid(a, field, "is malformed ("+err.Error()+")", a.Params[field])
		}
	}

	return action.NewInvocation(inv.Name(), params), nil
}

func (n *Normalizer) invalid(a *catalog.Action, field, reason, instruction string) *ValidationError {
	return &ValidationError{
		Action:      a.Name,
		Field:       field,
		Reason:      reason,
		Instruction: instruction,
		Example:     a.ExampleTag(n.keyword),
	}
}

func missing(v action.Value) bool {
	switch t := v.(type) {
	case nil:
		return true
	case action.String:
		return strings.TrimSpace(string(t)) == ""
	case action.Array:
		return len(t) == 0
	}
	return false
}

func validDate(s string) bool {
	for _, layout := range DateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
