// Package tagparse extracts action invocations from free model text.
//
// The model cannot call functions directly; it writes tags such as
//
//	[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":17,"quantity":5}]]
//
// inside an ordinary reply. The keyword is matched case-insensitively. The
// name runs to the first '|' or ']'. The closing bracket is found by depth
// counting so JSON arrays inside parameters do not end the tag early, and
// parameters are split on '|' only outside brackets and braces.
//
// Parsing never fails. Malformed occurrences are skipped and scanning
// continues; the worst case is no invocations and the input text, trimmed.
package tagparse

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

// DefaultKeyword is the tag keyword the system prompt teaches the model.
const DefaultKeyword = "FUNCTION"

// actionName is what the strict pass accepts as a name once quotes are
// removed. Anything else (backticks, markup) is left to the fallback.
var actionName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Parser extracts tags introduced by one keyword.
type Parser struct {
	keyword string
	open    string

	bare     *regexp.Regexp
	residual *regexp.Regexp
	fences   *regexp.Regexp
}

// New returns a Parser for "[<keyword>:". An empty keyword means
// DefaultKeyword.
func New(keyword string) *Parser {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		keyword = DefaultKeyword
	}
	kw := regexp.QuoteMeta(keyword)
	return &Parser{
		keyword:  keyword,
		open:     "[" + keyword + ":",
		bare:     regexp.MustCompile(`(?i)\[` + kw + `:\s*["']?([A-Za-z0-9_.\-]+)["']?\s*\]`),
		residual: regexp.MustCompile(`(?i)\[` + kw + `:[^\]]*\]`),
		fences:   regexp.MustCompile("```[A-Za-z0-9_-]*"),
	}
}

// Keyword returns the tag keyword.
func (p *Parser) Keyword() string { return p.keyword }

// Contains reports whether text holds the tag opener anywhere.
func (p *Parser) Contains(text string) bool {
	return p.indexOpen(text, 0) >= 0
}

// Parse runs the strict grammar and, when that finds nothing while the
// keyword is still present, the fallback pass. It returns the invocations
// in order of appearance and the text with every matched tag removed.
func (p *Parser) Parse(text string) ([]action.Invocation, string) {
	invs, clean := p.ParseStrict(text)
	if len(invs) > 0 || !p.Contains(text) {
		return invs, clean
	}

	cleaned := p.sanitize(text)
	if invs, clean = p.ParseStrict(cleaned); len(invs) > 0 {
		slog.Debug("tagparse: recovered tags after cleanup", "count", len(invs))
		return invs, clean
	}

	if invs, clean = p.parseBare(cleaned); len(invs) > 0 {
		slog.Debug("tagparse: recovered bare tags", "count", len(invs))
		return invs, clean
	}

	slog.Debug("tagparse: keyword present but no tag could be parsed")
	return nil, strings.TrimSpace(text)
}

// ParseStrict applies only the strict grammar.
func (p *Parser) ParseStrict(text string) ([]action.Invocation, string) {
	var (
		invs []action.Invocation
		out  strings.Builder
		last int
	)

	for idx := 0; idx < len(text); {
		start := p.indexOpen(text, idx)
		if start < 0 {
			break
		}
		inv, end, ok := p.scanTag(text, start)
		if !ok {
			idx = start + len(p.open)
			continue
		}
		invs = append(invs, inv)
		out.WriteString(text[last:start])
		last = end
		idx = end
	}

	if len(invs) == 0 {
		return nil, strings.TrimSpace(text)
	}
	out.WriteString(text[last:])
	return invs, strings.TrimSpace(out.String())
}

// Strip removes every tag (well-formed or not) from text. Final replies pass
// through it so no half-parsed tag reaches the user.
func (p *Parser) Strip(text string) string {
	_, clean := p.ParseStrict(text)
	return strings.TrimSpace(p.residual.ReplaceAllString(clean, ""))
}

// LooksTruncated reports whether text carries fragments of a tag ('|' and
// ']') without yielding any invocation. The orchestrator asks the model to
// repeat the complete tag in that case.
func (p *Parser) LooksTruncated(text string) bool {
	if !strings.Contains(text, "|") || !strings.Contains(text, "]") {
		return false
	}
	invs, _ := p.Parse(text)
	return len(invs) == 0
}

// Render writes inv back in tag form with parameters in key order.
// Composite values are emitted as JSON; scalars verbatim.
func (p *Parser) Render(inv action.Invocation) string {
	var b strings.Builder
	b.WriteString(p.open)
	b.WriteString(inv.Name())
	params := inv.Params()
	keys := params.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(action.Text(params[k]))
	}
	b.WriteByte(']')
	return b.String()
}

// scanTag parses the tag starting at text[start]. It returns the invocation
// and the index just past the closing bracket.
func (p *Parser) scanTag(text string, start int) (action.Invocation, int, bool) {
	nameStart := start + len(p.open)
	rel := strings.IndexAny(text[nameStart:], "|]")
	if rel < 0 {
		slog.Debug("tagparse: no terminator after keyword", "pos", start)
		return action.Invocation{}, 0, false
	}
	nameEnd := nameStart + rel

	name := unquote(strings.TrimSpace(text[nameStart:nameEnd]))
	if !actionName.MatchString(name) {
		slog.Debug("tagparse: bad action name", "pos", start, "name", name)
		return action.Invocation{}, 0, false
	}

	closeAt := matchClose(text, nameEnd)
	if closeAt < 0 {
		slog.Debug("tagparse: unterminated tag", "pos", start, "name", name)
		return action.Invocation{}, 0, false
	}

	body := strings.TrimSpace(text[nameEnd:closeAt])
	body = strings.TrimPrefix(body, "|")
	return action.NewInvocation(name, parseParams(body)), closeAt + 1, true
}

// matchClose returns the index of the ']' that closes a tag whose own '['
// is already open, scanning from pos. It returns -1 when depth never
// reaches zero.
func matchClose(text string, pos int) int {
	depth := 1
	for i := pos; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseParams splits body on top-level '|' and each segment on its first
// ':'. Segments without ':' or with an empty key are ignored; a repeated
// key keeps the last value.
func parseParams(body string) action.Object {
	params := action.Object{}
	for _, seg := range splitTopLevel(body) {
		key, raw, ok := strings.Cut(seg, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		params[key] = parseValue(strings.TrimSpace(raw))
	}
	return params
}

func splitTopLevel(body string) []string {
	if body == "" {
		return nil
	}
	var (
		parts    []string
		brackets int
		braces   int
		from     int
	)
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '[':
			brackets++
		case ']':
			brackets--
		case '{':
			braces++
		case '}':
			braces--
		case '|':
			if brackets == 0 && braces == 0 {
				parts = append(parts, body[from:i])
				from = i + 1
			}
		}
	}
	if from < len(body) {
		parts = append(parts, body[from:])
	}
	return parts
}

func parseValue(raw string) action.Value {
	if strings.HasPrefix(raw, "[") || strings.HasPrefix(raw, "{") {
		v, err := action.ParseJSON([]byte(raw))
		if err == nil {
			return v
		}
		slog.Debug("tagparse: structured value kept as text", "err", err)
	}
	return action.String(raw)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}

// indexOpen finds the next "[<keyword>:" at or after from, ignoring the
// keyword's case.
func (p *Parser) indexOpen(text string, from int) int {
	n := len(p.open)
	for i := from; i+n <= len(text); i++ {
		if text[i] != '[' || text[i+n-1] != ':' {
			continue
		}
		if strings.EqualFold(text[i+1:i+n-1], p.keyword) {
			return i
		}
	}
	return -1
}
