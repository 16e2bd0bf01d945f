package workflow

import (
	"errors"
	"fmt"
)

// ErrDepthExceeded is matched by errors.Is on a *DepthExceededError.
var ErrDepthExceeded = errors.New("workflow: chain depth exceeded")

// DepthExceededMessage opens the reply of a chain that was cut short; the
// summary of the executed steps follows it.
const DepthExceededMessage = "⚠️ This request needed too many steps and was stopped. Here is what was done so far:"

const depthExceededHint = "Please ask again more specifically if something is missing."

func depthExceededText(steps []Step) string {
	return DepthExceededMessage + "\n" + Summarize(steps) + "\n\n" + depthExceededHint
}

// DepthExceededError stops a chain that used every model call it was
// allowed and still asked for more. The outcome carries every executed step
// and a text summarising them.
type DepthExceededError struct {
	Limit   int
	Outcome *Outcome
}

func (e *DepthExceededError) Error() string {
	return fmt.Sprintf("workflow: chain depth %d exceeded after %d steps", e.Limit, len(e.Outcome.Steps))
}

func (e *DepthExceededError) Is(target error) bool { return target == ErrDepthExceeded }
