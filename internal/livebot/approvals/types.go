// Package approvals holds mutating operations until the user confirms them.
//
// A held operation is not kept in memory or in a table: it is written into
// the assistant's reply as a sentinel followed by the invocation as JSON.
// On the next user turn the most recent assistant turn is scanned for that
// sentinel. A marker in any older turn is expired, so a confirmation can
// only ever apply to the question the user just saw.
//
// State machine: NONE → PENDING (marker rendered) → EXECUTED | CANCELLED.
// Unclear replies leave the marker untouched and the turn falls through to
// the normal workflow, which usually expires it.
package approvals

import (
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
)

const (
	// Sentinel introduces a held invocation in assistant text.
	Sentinel = "[PENDING_ACTION]"
	// LegacySentinel introduces the parameters of a held sales order in
	// transcripts written before markers carried the action name.
	LegacySentinel = "[PENDING_SO]"

	legacyAction = "create_sales_order"
)

// Intent is the classified meaning of a reply to a held operation.
type Intent int

const (
	IntentUnclear Intent = iota
	IntentConfirm
	IntentCancel
)

func (i Intent) String() string {
	switch i {
	case IntentConfirm:
		return "confirm"
	case IntentCancel:
		return "cancel"
	}
	return "unclear"
}

// Marker is a held invocation recovered from the transcript.
type Marker struct {
	Invocation action.Invocation
	// Legacy is set when the marker used LegacySentinel.
	Legacy bool
}

// Status is the lifecycle state recorded in the audit trail.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one audit record.
type Entry struct {
	ID           string
	Conversation string
	Action       string
	ParamsJSON   string
	Status       Status
	Detail       string
	CreatedAt    time.Time
}

// Resolution is the gate's verdict on one user turn.
type Resolution struct {
	// Handled is true when the gate produced the reply and the workflow
	// must not run.
	Handled bool
	Intent  Intent
	Text    string
	// Invocation is the recovered held invocation, if any.
	Invocation action.Invocation
	// Result is set after a confirmed execution.
	Result *domain.Result
}

// CancelledMessage acknowledges a cancelled operation.
const CancelledMessage = "Ok, operation cancelled. Nothing was changed."
