package normalize

import (
	"fmt"
	"strings"
)

// ValidationError describes a parameter problem the model can fix. It never
// aborts a turn: the orchestrator turns it into a corrective prompt.
type ValidationError struct {
	Action      string
	Field       string
	Reason      string
	Instruction string
	// Example is the correct tag for the action, rendered with the
	// configured keyword.
	Example string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("normalize: %s: %s: %s", e.Action, e.Field, e.Reason)
}

// Feedback renders the error as a message addressed to the model.
func (e *ValidationError) Feedback() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parameter error in %s: %s %s.", e.Action, e.Field, e.Reason)
	if e.Instruction != "" {
		b.WriteString(" ")
		b.WriteString(e.Instruction)
	}
	if e.Example != "" {
		b.WriteString("\nCorrect format: ")
		b.WriteString(e.Example)
	}
	return b.String()
}
