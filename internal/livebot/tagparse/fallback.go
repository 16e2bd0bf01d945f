package tagparse

import (
	"regexp"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

var lineBreaks = regexp.MustCompile(`[ \t]*[\r\n]+[ \t]*`)

// sanitize undoes the usual ways models mangle tags: markdown fences and
// inline code around them, and line breaks inside a long tag. Fence markers
// are removed but their content is kept, since the tag itself is often the
// fenced content.
func (p *Parser) sanitize(text string) string {
	s := p.fences.ReplaceAllString(text, "")
	s = strings.ReplaceAll(s, "`", "")

	var out strings.Builder
	last := 0
	for idx := 0; idx < len(s); {
		start := p.indexOpen(s, idx)
		if start < 0 {
			break
		}
		end := matchClose(s, start+len(p.open))
		if end < 0 {
			end = len(s) - 1
		}
		out.WriteString(s[last:start])
		out.WriteString(lineBreaks.ReplaceAllString(s[start:end+1], " "))
		last = end + 1
		idx = end + 1
	}
	out.WriteString(s[last:])
	return out.String()
}

// parseBare emits an invocation with no parameters for every "[KW:name]".
func (p *Parser) parseBare(text string) ([]action.Invocation, string) {
	matches := p.bare.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, text
	}
	invs := make([]action.Invocation, 0, len(matches))
	for _, m := range matches {
		invs = append(invs, action.NewInvocation(m[1], nil))
	}
	return invs, strings.TrimSpace(p.residual.ReplaceAllString(text, ""))
}
