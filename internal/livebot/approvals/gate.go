package approvals

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
)

// Gate holds mutating operations and resolves replies to them.
type Gate struct {
	svc        domain.Service
	classifier *Classifier
	audit      *Audit
}

// NewGate returns a Gate executing confirmed operations through svc. The
// audit trail is optional.
func NewGate(svc domain.Service, classifier *Classifier, audit *Audit) *Gate {
	return &Gate{svc: svc, classifier: classifier, audit: audit}
}

// Hold renders the marker for inv into summary and records the pending
// state.
func (g *Gate) Hold(ctx context.Context, conversation, summary string, inv action.Invocation) string {
	g.record(ctx, conversation, inv, StatusPending, "")
	slog.Info("gate: operation held", "conversation", conversation, "action", inv.Name())
	return Render(summary, inv)
}

// Resolve inspects the newest assistant turn of turns for a held operation
// and classifies message against it. When no marker is found, or the reply
// is unclear, the zero Resolution is returned and the caller proceeds with
// the normal workflow. Errors are domain failures of a confirmed execution.
func (g *Gate) Resolve(ctx context.Context, conversation string, turns []history.Turn, message string) (Resolution, error) {
	marker, ok := RecoverPending(turns)
	if !ok {
		return Resolution{}, nil
	}
	held := marker.Invocation

	intent, decided := prefilter(message)
	if !decided {
		intent = g.classifier.Classify(ctx, held, message)
	}
	slog.Info("gate: reply classified",
		"conversation", conversation, "action", held.Name(),
		"intent", intent.String(), "prefilter", decided, "legacy", marker.Legacy)

	switch intent {
	case IntentConfirm:
		return g.execute(ctx, conversation, held)
	case IntentCancel:
		g.record(ctx, conversation, held, StatusCancelled, "")
		return Resolution{Handled: true, Intent: IntentCancel, Text: CancelledMessage, Invocation: held}, nil
	}
	return Resolution{Intent: IntentUnclear, Invocation: held}, nil
}

func (g *Gate) execute(ctx context.Context, conversation string, held action.Invocation) (Resolution, error) {
	res, err := g.svc.Execute(ctx, held, domain.BypassConfirmation())
	if err != nil {
		g.record(ctx, conversation, held, StatusFailed, err.Error())
		return Resolution{Handled: true, Intent: IntentConfirm, Invocation: held}, err
	}
	g.record(ctx, conversation, held, StatusExecuted, res.Message)

	text := res.Message
	if text == "" {
		text = "✅ Done: " + held.Name()
	}
	return Resolution{
		Handled:    true,
		Intent:     IntentConfirm,
		Text:       text,
		Invocation: held,
		Result:     &res,
	}, nil
}

func (g *Gate) record(ctx context.Context, conversation string, inv action.Invocation, st Status, detail string) {
	if g.audit == nil {
		return
	}
	params, err := json.Marshal(inv.Params())
	if err != nil {
		params = []byte("{}")
	}
	if _, err := g.audit.Record(ctx, conversation, inv.Name(), string(params), st, detail); err != nil {
		slog.Warn("gate: audit write failed", "action", inv.Name(), "status", st, "err", err)
	}
}
