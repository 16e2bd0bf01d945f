package approvals

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
)

// Render appends the marker for inv to summary.
func Render(summary string, inv action.Invocation) string {
	data, err := json.Marshal(inv)
	if err != nil {
		// Invocations hold only JSON-representable values.
		slog.Error("approvals: marshal held invocation", "action", inv.Name(), "err", err)
		return summary
	}
	summary = strings.TrimRight(summary, "\n ")
	if summary == "" {
		return Sentinel + " " + string(data)
	}
	return summary + "\n\n" + Sentinel + " " + string(data)
}

// HasMarker reports whether text carries either sentinel.
func HasMarker(text string) bool {
	return strings.Contains(text, Sentinel) || strings.Contains(text, LegacySentinel)
}

// Extract recovers the held invocation from text. The JSON object starts at
// the first '{' after the last sentinel and ends at its balancing '}'.
func Extract(text string) (Marker, bool) {
	legacy := false
	at := strings.LastIndex(text, Sentinel)
	if at < 0 {
		at = strings.LastIndex(text, LegacySentinel)
		if at < 0 {
			return Marker{}, false
		}
		legacy = true
	}

	raw, ok := balancedObject(text[at:])
	if !ok {
		slog.Debug("approvals: marker without a complete JSON object")
		return Marker{}, false
	}

	if !legacy {
		var inv action.Invocation
		if err := json.Unmarshal([]byte(raw), &inv); err != nil {
			slog.Debug("approvals: undecodable marker", "err", err)
			return Marker{}, false
		}
		return Marker{Invocation: inv}, true
	}

	v, err := action.ParseJSON([]byte(raw))
	if err != nil {
		return Marker{}, false
	}
	obj, ok := v.(action.Object)
	if !ok {
		return Marker{}, false
	}
	if name, ok := obj["name"].(action.String); ok && name != "" {
		params, _ := obj["parameters"].(action.Object)
		return Marker{Invocation: action.NewInvocation(string(name), params), Legacy: true}, true
	}
	return Marker{Invocation: action.NewInvocation(legacyAction, obj), Legacy: true}, true
}

// RecoverPending returns the marker carried by the most recent assistant
// turn. Markers in older turns are expired and never returned.
func RecoverPending(turns []history.Turn) (Marker, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role != history.RoleAssistant {
			continue
		}
		return Extract(turns[i].Text)
	}
	return Marker{}, false
}

// Strip removes the marker from text, leaving the human-readable summary.
func Strip(text string) string {
	for _, s := range []string{Sentinel, LegacySentinel} {
		at := strings.LastIndex(text, s)
		if at < 0 {
			continue
		}
		raw, ok := balancedObject(text[at:])
		if !ok {
			continue
		}
		end := at + strings.Index(text[at:], raw) + len(raw)
		text = text[:at] + text[end:]
	}
	return strings.TrimSpace(text)
}

// balancedObject returns the first complete JSON object in s. Braces inside
// string literals are ignored.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
