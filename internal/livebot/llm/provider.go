// Package llm talks to the language model that drives the conversation.
//
// The model is treated as a plain text completion endpoint. It never calls
// functions natively; it writes tags into its reply, which the caller
// parses. Providers are therefore interchangeable behind one small
// interface.
package llm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned when the upstream API reports HTTP 429.
	// It is surfaced to the user, never retried.
	ErrRateLimited = errors.New("llm: upstream rate limit exceeded")

	// ErrUnavailable is returned for temporary upstream failures (overload,
	// gateway errors, timeouts) once retries are exhausted.
	ErrUnavailable = errors.New("llm: provider temporarily unavailable")

	// ErrMalformed is returned when the provider answers with something that
	// cannot be read as a completion.
	ErrMalformed = errors.New("llm: malformed response from provider")
)

// User-facing replies for provider failures.
const (
	RateLimitedMessage = "⏳ The assistant is receiving too many requests right now. Please try again in a minute."
	UnavailableMessage = "⚠️ The assistant is temporarily overloaded. Please try again in a few moments."
	MalformedMessage   = "I could not read the assistant's answer. Please rephrase your request."
)

// Role of a message in the conversation sent to the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Request is the input to a single completion.
type Request struct {
	// System is the instruction block sent ahead of the conversation.
	System string
	// Messages alternate between user and assistant and end with the turn
	// to answer.
	Messages []Message
	// MaxTokens bounds the reply. Zero means the provider default.
	MaxTokens int
	// Temperature is passed through when positive.
	Temperature float64
}

// Usage carries token counts when the provider reports them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is a completed reply.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Provider produces a completion for a conversation.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// ErrorKind classifies provider failures for retry and user messaging.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTemporary
	KindRateLimited
	KindMalformed
)

func (k ErrorKind) String() string {
	switch k {
	case KindTemporary:
		return "temporary"
	case KindRateLimited:
		return "rate_limited"
	case KindMalformed:
		return "malformed"
	}
	return "permanent"
}

// ProviderError describes a failed completion.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("llm: %s: %s (HTTP %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether a retry may succeed.
func (e *ProviderError) Temporary() bool { return e.Kind == KindTemporary }

// Is maps the error kind onto the package sentinels.
func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimited
	case ErrUnavailable:
		return e.Kind == KindTemporary
	case ErrMalformed:
		return e.Kind == KindMalformed
	}
	return false
}

// IsTemporary reports whether err is a retryable provider failure.
func IsTemporary(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Temporary()
}

// UserMessage returns the plain-language reply for a provider failure, or
// "" when err is not one.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return RateLimitedMessage
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return UnavailableMessage
	case errors.Is(err, ErrMalformed):
		return MalformedMessage
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return UnavailableMessage
	}
	return ""
}

// kindForStatus maps an HTTP status to an error kind.
func kindForStatus(code int) ErrorKind {
	switch {
	case code == 429:
		return KindRateLimited
	case code == 500, code == 502, code == 503, code == 504:
		return KindTemporary
	case code == 400, code == 422:
		return KindMalformed
	}
	return KindPermanent
}
