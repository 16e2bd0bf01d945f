package catalog

import (
	"fmt"
	"strings"
)

// PromptSection renders the action list for the system prompt, read-only
// actions first.
func (c *Catalog) PromptSection(keyword string) string {
	var b strings.Builder

	write := func(title string, mutating bool) {
		fmt.Fprintf(&b, "%s:\n", title)
		for _, n := range c.names {
			a := c.byName[n]
			if a.Mutating != mutating {
				continue
			}
			fmt.Fprintf(&b, "\n- %s: %s\n", a.Name, a.Description)
			for _, p := range a.ParamNames() {
				mark := ""
				if _, req := a.Required[p]; req {
					mark = " (required)"
				}
				fmt.Fprintf(&b, "    %s%s: %s\n", p, mark, a.Params[p])
			}
			fmt.Fprintf(&b, "    example: %s\n", a.ExampleTag(keyword))
		}
		b.WriteString("\n")
	}

	write("READ-ONLY FUNCTIONS", false)
	write("FUNCTIONS THAT CHANGE DATA", true)
	return strings.TrimRight(b.String(), "\n")
}
