// Package environment reads typed configuration values from environment
// variables. Every helper falls back to a default on unset, empty or
// unparsable input; only RequiredString reports an error.
package environment

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StringOr returns the variable's value, or def when it is unset or empty.
func StringOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// RequiredString returns the variable's value or an error naming it.
func RequiredString(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", fmt.Errorf("required environment variable %q is not set", name)
	}
	return v, nil
}

// BoolOr accepts the strconv.ParseBool spellings.
func BoolOr(name string, def bool) bool {
	return parseOr(name, def, strconv.ParseBool)
}

// IntOr parses a base-10 integer.
func IntOr(name string, def int) int {
	return parseOr(name, def, strconv.Atoi)
}

// DurationOr parses a Go duration string such as "2s" or "2h".
func DurationOr(name string, def time.Duration) time.Duration {
	return parseOr(name, def, time.ParseDuration)
}

// LocationOr loads an IANA time zone name such as "Europe/Rome".
func LocationOr(name string, def *time.Location) *time.Location {
	return parseOr(name, def, time.LoadLocation)
}

// StringSliceOr splits a comma-separated list, dropping blank elements.
func StringSliceOr(name string, def []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func parseOr[T any](name string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}
