// Package history keeps the conversation transcript the model sees.
package history

import (
	"context"
	"strings"
	"time"
)

// Role identifies who wrote a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ResetSentinel marks a conversation reset. Turns before the most recent
// sentinel are never sent to the model again.
const ResetSentinel = "[SYSTEM_RESET]"

// Defaults for Window.
const (
	DefaultLimit  = 10
	DefaultMaxAge = 2 * time.Hour
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role
	Text      string
	Timestamp time.Time
}

// Feed returns a conversation's turns, oldest first.
type Feed interface {
	Recent(ctx context.Context, conversation string) ([]Turn, error)
}

// Recorder appends turns to a conversation.
type Recorder interface {
	Append(ctx context.Context, conversation string, t Turn) error
}

// Store is a Feed and Recorder that can also reset a conversation.
type Store interface {
	Feed
	Recorder
	Reset(ctx context.Context, conversation string, at time.Time) error
}

// Window applies the recency rules to turns (oldest first): everything up
// to and including the last reset is dropped, as are blank and one-character
// turns and turns older than maxAge; at most limit turns are kept, the most
// recent ones. Non-positive limit and maxAge select the defaults.
func Window(turns []Turn, now time.Time, limit int, maxAge time.Duration) []Turn {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	from := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if IsReset(turns[i]) {
			from = i + 1
			break
		}
	}

	cutoff := now.Add(-maxAge)
	out := make([]Turn, 0, limit)
	for _, t := range turns[from:] {
		if len([]rune(strings.TrimSpace(t.Text))) <= 1 {
			continue
		}
		if t.Timestamp.Before(cutoff) {
			continue
		}
		out = append(out, t)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// IsReset reports whether t is a reset marker.
func IsReset(t Turn) bool {
	return strings.Contains(t.Text, ResetSentinel)
}
