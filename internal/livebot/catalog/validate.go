package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

var actionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks a list of catalogue entries for structural correctness.
// It returns the first problem found.
func Validate(actions []*Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("catalog: no actions defined")
	}

	seen := make(map[string]struct{}, len(actions))
	for i, a := range actions {
		if a == nil {
			return fmt.Errorf("catalog: actions[%d] is empty", i)
		}
		if !actionName.MatchString(a.Name) {
			return fmt.Errorf("catalog: actions[%d]: invalid name %q", i, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("catalog: actions[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = struct{}{}

		if err := validateAction(a); err != nil {
			return fmt.Errorf("catalog: action %q: %w", a.Name, err)
		}
	}

	// ── Cross references ─────────────────────────────────────────────────────
	for _, a := range actions {
		if a.Batch == "" {
			continue
		}
		if _, ok := seen[a.Batch]; !ok {
			return fmt.Errorf("catalog: action %q: batch source %q is not defined", a.Name, a.Batch)
		}
		for _, b := range actions {
			if b.Name == a.Batch && b.Lookup == nil {
				return fmt.Errorf("catalog: action %q: batch source %q has no lookup", a.Name, a.Batch)
			}
		}
	}
	return nil
}

func validateAction(a *Action) error {
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("description must not be empty")
	}
	if a.Confirm && !a.Mutating {
		return fmt.Errorf("confirm requires mutating")
	}

	declared := func(field, p string) error {
		if _, ok := a.Params[p]; !ok {
			return fmt.Errorf("%s names undeclared parameter %q", field, p)
		}
		return nil
	}

	for p := range a.Required {
		if err := declared("required", p); err != nil {
			return err
		}
	}
	for from, to := range a.Aliases {
		if err := declared("aliases", to); err != nil {
			return err
		}
		if _, clash := a.Params[from]; clash {
			return fmt.Errorf("alias %q shadows a declared parameter", from)
		}
	}
	for key := range a.Rejected {
		if _, clash := a.Params[key]; clash {
			return fmt.Errorf("rejected key %q is a declared parameter", key)
		}
	}
	for _, list := range []struct {
		field string
		names []string
	}{{"ids", a.IDs}, {"bools", a.Bools}, {"dates", a.Dates}} {
		for _, p := range list.names {
			if err := declared(list.field, p); err != nil {
				return err
			}
		}
	}
	for p := range a.Ints {
		if err := declared("ints", p); err != nil {
			return err
		}
	}
	for p := range a.Schemas {
		if err := declared("schemas", p); err != nil {
			return err
		}
	}

	if a.Lookup != nil {
		if a.Mutating {
			return fmt.Errorf("lookup actions must be read-only")
		}
		if err := declared("lookup.term", a.Lookup.Term); err != nil {
			return err
		}
		if a.Lookup.Label == "" || a.Lookup.Ref == "" {
			return fmt.Errorf("lookup needs label and ref")
		}
	}
	if a.Batch != "" && !a.Mutating {
		return fmt.Errorf("batch targets must be mutating")
	}
	return nil
}
