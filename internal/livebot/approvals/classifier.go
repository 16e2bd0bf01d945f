package approvals

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
)

const classifierPrompt = `An operation is waiting for the user's confirmation:

%s

The user replied:
"%s"

Does the user want to execute the operation, abandon it, or something else?
Answer with exactly one word:
CONFIRM  the user approves executing it ("yes go on", "sì procedi", "va bene così")
CANCEL   the user wants to abandon it ("no lascia stare", "annulla", "don't do it", "ho cambiato idea")
UNCLEAR  anything else: a new request, a question, a change of quantities or customer

Answer:`

// Classifier asks the model whether a reply confirms or cancels a held
// operation.
type Classifier struct {
	provider llm.Provider
}

// NewClassifier returns a Classifier backed by p.
func NewClassifier(p llm.Provider) *Classifier {
	return &Classifier{provider: p}
}

// Classify returns the intent of message. Any provider failure yields
// IntentUnclear: a held operation is never executed or cancelled because
// the classifier could not be reached.
func (c *Classifier) Classify(ctx context.Context, held action.Invocation, message string) Intent {
	if c == nil || c.provider == nil {
		return IntentUnclear
	}
	resp, err := c.provider.Complete(ctx, llm.Request{
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf(classifierPrompt, held.String(), message),
		}},
		MaxTokens:   8,
		Temperature: 0.01,
	})
	if err != nil {
		slog.Warn("approvals: intent classifier failed", "action", held.Name(), "err", err)
		return IntentUnclear
	}
	return parseIntent(resp.Text)
}

func parseIntent(answer string) Intent {
	fields := strings.Fields(strings.ToUpper(answer))
	if len(fields) == 0 {
		return IntentUnclear
	}
	switch strings.Trim(fields[0], ".,:;!\"'*`") {
	case "CONFIRM":
		return IntentConfirm
	case "CANCEL":
		return IntentCancel
	}
	return IntentUnclear
}
