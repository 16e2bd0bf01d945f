// Package bot is the per-turn pipeline shared by every chat transport.
//
// A turn goes through these stages in order:
//
//  1. Rate limit: turns arriving within the minimum interval of the same
//     actor's previous turn are dropped without a reply.
//  2. Trivial input: messages shorter than two characters are ignored.
//  3. Commands: /help and /reset are answered locally.
//  4. Confirmation gate: a reply to a held operation is confirmed or
//     cancelled without calling the workflow.
//  5. Workflow: the orchestrator answers everything else.
//
// The user turn and the reply are appended to the transcript after stages
// 4 and 5 so the next turn sees them.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/trace"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/observability"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/ratelimit"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

// FailureMessage answers a turn that failed for an internal reason.
const FailureMessage = "⚠️ Something went wrong while processing your request. Please try again."

// Config wires a Bot. Limiter and Gate are optional.
type Config struct {
	Limiter      *ratelimit.MinInterval
	History      history.Store
	Gate         *approvals.Gate
	Orchestrator *workflow.Orchestrator

	HistoryLimit  int
	HistoryMaxAge time.Duration
	Now           func() time.Time
}

// Incoming is one chat message.
type Incoming struct {
	// Conversation identifies the transcript (a room or session ID).
	Conversation string
	// Actor identifies the sender for rate limiting.
	Actor string
	Text  string
}

// Reply is the answer to a turn.
type Reply struct {
	Text string
	// Pending is set when Text carries a held operation.
	Pending bool
	TraceID string
}

// Bot handles turns. It is safe for concurrent use across conversations;
// turns of one conversation must be handled one at a time.
type Bot struct {
	cfg Config
}

// New returns a Bot.
func New(cfg Config) *Bot {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = history.DefaultLimit
	}
	if cfg.HistoryMaxAge <= 0 {
		cfg.HistoryMaxAge = history.DefaultMaxAge
	}
	return &Bot{cfg: cfg}
}

// PruneLimiter forgets actors whose last accepted turn is older than
// olderThan. It returns how many were removed.
func (b *Bot) PruneLimiter(olderThan time.Duration) int {
	if b.cfg.Limiter == nil {
		return 0
	}
	return b.cfg.Limiter.Prune(olderThan)
}

// TrackedActors returns how many actors the rate limiter remembers.
func (b *Bot) TrackedActors() int {
	if b.cfg.Limiter == nil {
		return 0
	}
	return b.cfg.Limiter.Len()
}

// Handle processes in. ok is false when the turn gets no reply (throttled
// or trivial). A non-nil error is always accompanied by a reply the
// transport may still send.
func (b *Bot) Handle(ctx context.Context, in Incoming) (reply Reply, ok bool, err error) {
	ctx = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("conversation", in.Conversation, "actor", in.Actor)
	traceID := trace.FromContext(ctx)

	if b.cfg.Limiter != nil && !b.cfg.Limiter.Allow(in.Actor) {
		log.Warn("bot: turn dropped by rate limit")
		return Reply{}, false, nil
	}

	text := strings.TrimSpace(in.Text)
	if len([]rune(text)) < 2 {
		return Reply{}, false, nil
	}

	if cmd, isCmd := parseCommand(text); isCmd {
		out, err := b.command(ctx, in.Conversation, cmd)
		if err != nil {
			log.Error("bot: command failed", "command", cmd, "err", err)
			return Reply{Text: FailureMessage, TraceID: traceID}, true, err
		}
		log.Info("bot: command handled", "command", cmd)
		return Reply{Text: out, TraceID: traceID}, true, nil
	}

	now := b.cfg.Now()
	turns, err := b.cfg.History.Recent(ctx, in.Conversation)
	if err != nil {
		log.Error("bot: load history", "err", err)
		return Reply{Text: FailureMessage, TraceID: traceID}, true, err
	}
	window := history.Window(turns, now, b.cfg.HistoryLimit, b.cfg.HistoryMaxAge)

	reply, err = b.answer(ctx, log, in.Conversation, window, text)
	reply.TraceID = traceID

	b.remember(ctx, log, in.Conversation, history.Turn{Role: history.RoleUser, Text: text, Timestamp: now})
	b.remember(ctx, log, in.Conversation, history.Turn{Role: history.RoleAssistant, Text: reply.Text, Timestamp: b.cfg.Now()})
	return reply, true, err
}

// answer runs the gate and the workflow. Errors that have a user-facing
// rendering are converted into the reply.
func (b *Bot) answer(ctx context.Context, log *slog.Logger, conversation string, window []history.Turn, text string) (Reply, error) {
	if b.cfg.Gate != nil {
		res, err := b.cfg.Gate.Resolve(ctx, conversation, window, text)
		if err != nil {
			if de, ok := domain.AsError(err); ok {
				log.Info("bot: confirmed operation rejected", "action", res.Invocation.Name(), "err", err)
				return Reply{Text: workflow.FormatError(res.Invocation.Name(), de)}, nil
			}
			log.Error("bot: confirmed operation failed", "action", res.Invocation.Name(), "err", err)
			return Reply{Text: FailureMessage}, err
		}
		if res.Handled {
			log.Info("bot: gate resolved turn", "intent", res.Intent.String(), "action", res.Invocation.Name())
			return Reply{Text: res.Text}, nil
		}
	}

	out, err := b.cfg.Orchestrator.Run(ctx, workflow.Request{
		Conversation: conversation,
		History:      window,
		Message:      text,
	})
	if err != nil {
		var depth *workflow.DepthExceededError
		if errors.As(err, &depth) {
			log.Warn("bot: workflow depth exceeded", "steps", len(depth.Outcome.Steps))
			return Reply{Text: depth.Outcome.Text}, nil
		}
		if msg := llm.UserMessage(err); msg != "" {
			log.Warn("bot: provider failure", "err", err)
			return Reply{Text: msg}, nil
		}
		log.Error("bot: workflow failed", "err", err)
		return Reply{Text: FailureMessage}, err
	}
	log.Info("bot: turn answered", "steps", len(out.Steps), "pending", out.Pending, "failed", len(out.Failed))
	return Reply{Text: out.Text, Pending: out.Pending}, nil
}

func (b *Bot) remember(ctx context.Context, log *slog.Logger, conversation string, t history.Turn) {
	if err := b.cfg.History.Append(ctx, conversation, t); err != nil {
		log.Warn("bot: append history", "role", t.Role, "err", err)
	}
}
