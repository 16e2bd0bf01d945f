// Package domain is the boundary to the order and inventory backend. The
// conversation core only knows Service; Warehouse is an in-process
// implementation of the whole action catalogue used by the terminal chat
// and by tests.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
)

// Service executes one invocation. Implementations validate parameters
// themselves and report business rejections as *Error.
type Service interface {
	Execute(ctx context.Context, inv action.Invocation, opts ...ExecOption) (Result, error)
}

// Result is a successful execution.
type Result struct {
	// Payload carries the structured result for the model or formatter.
	Payload action.Value
	// RequiresConfirmation is set when a mutating action was not executed
	// and must be confirmed by the user first.
	RequiresConfirmation bool
	// Message is a human-readable summary: the confirmation question when
	// RequiresConfirmation is set, the outcome of a mutation otherwise.
	Message string
	// Pending is the invocation to replay once confirmed. Nil means the
	// original invocation.
	Pending *action.Invocation
}

// Error is a business rejection, passed through to the user verbatim.
type Error struct {
	Action  string
	Message string
	// Details may carry a hint for the model (e.g. the correct format).
	Details string
}

func (e *Error) Error() string {
	if e.Action == "" {
		return e.Message
	}
	return e.Action + ": " + e.Message
}

// Rejectf builds an *Error.
func Rejectf(act, format string, args ...any) *Error {
	return &Error{Action: act, Message: fmt.Sprintf(format, args...)}
}

// AsError returns the *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// ExecOptions is the resolved set of options for one call.
type ExecOptions struct {
	BypassConfirmation bool
}

// ExecOption customises a single Execute call.
type ExecOption func(*ExecOptions)

// BypassConfirmation executes a mutating action that would otherwise be
// held. Only the confirmation gate passes it.
func BypassConfirmation() ExecOption {
	return func(o *ExecOptions) { o.BypassConfirmation = true }
}

// Apply folds opts into an ExecOptions value.
func Apply(opts ...ExecOption) ExecOptions {
	var o ExecOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type timeoutService struct {
	next Service
	d    time.Duration
}

// WithTimeout bounds each call to next by d. Calls are never retried: a
// mutation that timed out may still have been applied.
func WithTimeout(next Service, d time.Duration) Service {
	if d <= 0 {
		return next
	}
	return &timeoutService{next: next, d: d}
}

func (s *timeoutService) Execute(ctx context.Context, inv action.Invocation, opts ...ExecOption) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.d)
	defer cancel()
	return s.next.Execute(ctx, inv, opts...)
}
