// Package workflow drives one user request through the model: it builds the
// prompt, parses function tags out of each reply, validates and executes
// them against the domain service, and feeds results back until the model
// produces a final answer.
//
// A request follows one of these paths:
//
//   - Plain answer: the reply has no tags and is returned as is.
//   - Chained lookup: a read-only call whose result goes back to the model,
//     which may then call another function. A request gets at most MaxDepth
//     model calls; when the last one still needs a follow-up the chain ends
//     with *DepthExceededError listing what was done.
//   - Batch: several calls of the same lookup action in one reply are all
//     executed, each term is matched to its best record, and the model is
//     asked for a single consolidated mutating call.
//   - Mutation: the call is executed and its outcome is formatted
//     server-side. Calls that need confirmation are held by the gate and
//     the reply carries the pending-action marker.
//
// Validation failures are explained to the model in one follow-up so it can
// correct the call.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/action"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/normalize"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/tagparse"
)

// DefaultMaxDepth bounds the model calls of one request.
const DefaultMaxDepth = 3

var createIntentKeywords = []string{
	"crea", "nuovo", "ordine per", "fai un ordine", "genera",
	"create", "new order", "order for",
}

// Config wires an Orchestrator.
type Config struct {
	Provider   llm.Provider
	Parser     *tagparse.Parser
	Normalizer *normalize.Normalizer
	Service    domain.Service
	Catalog    *catalog.Catalog
	// Gate holds calls that need confirmation. When nil the marker is
	// rendered without an audit record.
	Gate *approvals.Gate

	MaxDepth    int
	MaxTokens   int
	Temperature float64

	Now      func() time.Time
	Location *time.Location
}

// Request is one user turn.
type Request struct {
	Conversation string
	// History is the windowed transcript, oldest first, excluding Message.
	History []history.Turn
	Message string
}

// Step is one executed (or rejected) call.
type Step struct {
	Invocation action.Invocation
	Result     *domain.Result
	Err        error
}

// Outcome is the reply to a request.
type Outcome struct {
	Text  string
	Steps []Step
	// Pending is set when Text carries a held operation.
	Pending bool
	// Failed lists batch terms that matched no record.
	Failed []string
}

// Orchestrator runs requests. It is safe for concurrent use.
type Orchestrator struct {
	cfg    Config
	system string
}

// New returns an Orchestrator. Zero MaxDepth, Now and Location select
// DefaultMaxDepth, time.Now and time.Local.
func New(cfg Config) *Orchestrator {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Parser == nil {
		cfg.Parser = tagparse.New(tagparse.DefaultKeyword)
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = normalize.New(cfg.Catalog, cfg.Parser.Keyword())
	}
	return &Orchestrator{cfg: cfg, system: SystemPrompt(cfg.Catalog, cfg.Parser.Keyword())}
}

// System returns the system prompt sent with every completion.
func (o *Orchestrator) System() string { return o.system }

// -----------------------------------------------------------------------------
// Chain state
// -----------------------------------------------------------------------------

type chain struct {
	conversation string
	request      string
	msgs         []llm.Message
	steps        []Step
	failed       []string
	attempts     int
	askedRetag   bool
}

func (c *chain) record(inv action.Invocation, res *domain.Result, err error) {
	c.steps = append(c.steps, Step{Invocation: inv, Result: res, Err: err})
}

func (c *chain) fail(term string) {
	c.failed = append(c.failed, term)
}

func (c *chain) outcome(text string, pending bool) *Outcome {
	if len(c.failed) > 0 {
		text = fmt.Sprintf("⚠️ Not found: %s\n\n%s", strings.Join(c.failed, ", "), text)
	}
	return &Outcome{Text: text, Steps: c.steps, Pending: pending, Failed: c.failed}
}

// -----------------------------------------------------------------------------
// Run
// -----------------------------------------------------------------------------

// Run answers req. Provider failures are returned wrapped; business
// rejections never surface as errors.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Outcome, error) {
	run := &chain{conversation: req.Conversation, request: req.Message}
	run.msgs = o.messages(ctx, req)

	text, err := o.complete(ctx, run)
	if err != nil {
		return nil, err
	}
	for {
		out, prompt, err := o.advance(ctx, run, text)
		if err != nil {
			return nil, err
		}
		if out != nil {
			slog.Debug("workflow: done", "conversation", run.conversation,
				"steps", len(run.steps), "attempts", run.attempts, "pending", out.Pending)
			return out, nil
		}
		if run.attempts >= o.cfg.MaxDepth {
			slog.Warn("workflow: chain depth exceeded", "conversation", run.conversation,
				"limit", o.cfg.MaxDepth, "steps", len(run.steps))
			return nil, &DepthExceededError{
				Limit:   o.cfg.MaxDepth,
				Outcome: run.outcome(depthExceededText(run.steps), false),
			}
		}
		run.msgs = append(run.msgs,
			llm.Message{Role: llm.RoleAssistant, Content: text},
			llm.Message{Role: llm.RoleUser, Content: prompt})
		if text, err = o.complete(ctx, run); err != nil {
			return nil, err
		}
	}
}

// advance handles one model reply. It returns either the final outcome or
// the prompt of the next follow-up.
func (o *Orchestrator) advance(ctx context.Context, run *chain, text string) (*Outcome, string, error) {
	if approvals.HasMarker(text) {
		return run.outcome(text, true), "", nil
	}

	invs, _ := o.cfg.Parser.Parse(text)
	if len(invs) == 0 {
		if o.cfg.Parser.LooksTruncated(text) && !run.askedRetag && run.attempts < o.cfg.MaxDepth {
			run.askedRetag = true
			slog.Info("workflow: truncated tag, asking again", "conversation", run.conversation)
			return nil, truncatedPrompt(o.cfg.Parser.Keyword()), nil
		}
		final := o.cfg.Parser.Strip(text)
		if final == "" {
			final = NoInformation
		}
		return run.outcome(final, false), "", nil
	}

	if lk, ok := o.isBatch(invs); ok {
		prompt, err := o.runBatch(ctx, run, invs, lk)
		if err != nil {
			return nil, "", err
		}
		if prompt == "" {
			return &Outcome{
				Text:   fmt.Sprintf("⚠️ Not found: %s", strings.Join(run.failed, ", ")),
				Steps:  run.steps,
				Failed: run.failed,
			}, "", nil
		}
		return nil, prompt, nil
	}

	if len(invs) > 1 {
		slog.Debug("workflow: extra calls ignored", "conversation", run.conversation, "count", len(invs)-1)
	}
	return o.execute(ctx, run, invs[0])
}

func (o *Orchestrator) execute(ctx context.Context, run *chain, raw action.Invocation) (*Outcome, string, error) {
	inv, err := o.cfg.Normalizer.Normalize(raw)
	if err != nil {
		var ve *normalize.ValidationError
		if !errors.As(err, &ve) {
			return nil, "", fmt.Errorf("workflow: normalize %s: %w", raw.Name(), err)
		}
		run.record(raw, nil, err)
		slog.Info("workflow: invalid call", "conversation", run.conversation, "action", raw.Name(), "field", ve.Field)
		return nil, ve.Feedback(), nil
	}

	name := inv.Name()
	mutating := o.cfg.Catalog.IsMutating(name)
	slog.Info("workflow: executing", "conversation", run.conversation, "action", name, "mutating", mutating)

	res, err := o.cfg.Service.Execute(ctx, inv)
	if err != nil {
		de, ok := domain.AsError(err)
		if !ok {
			return nil, "", fmt.Errorf("workflow: execute %s: %w", name, err)
		}
		run.record(inv, nil, err)
		if mutating {
			return run.outcome(FormatError(name, de), false), "", nil
		}
		return nil, domainErrorPrompt(name, de.Message, de.Details), nil
	}
	run.record(inv, &res, nil)

	if res.RequiresConfirmation {
		pending := inv
		if res.Pending != nil {
			pending = *res.Pending
		}
		return run.outcome(o.hold(ctx, run.conversation, res.Message, pending), true), "", nil
	}
	if mutating {
		return run.outcome(FormatMutation(name, res), false), "", nil
	}

	if name == "search_products" && hasCreateIntent(run.request) {
		if items, _ := res.Payload.(action.Array); len(items) > 0 {
			first, _ := items[0].(action.Object)
			return nil, orderFromSearchPrompt(o.cfg.Parser.Keyword(), res.Payload, field(first, "id"), run.request), nil
		}
	}
	if v, ok := inv.Param("internal"); ok && action.Truthy(v) {
		return nil, resultPrompt(name, res.Payload), nil
	}
	if text, ok := Format(name, res.Payload); ok {
		return run.outcome(text, false), "", nil
	}
	return nil, resultPrompt(name, res.Payload), nil
}

func (o *Orchestrator) hold(ctx context.Context, conversation, summary string, inv action.Invocation) string {
	if o.cfg.Gate == nil {
		return approvals.Render(summary, inv)
	}
	return o.cfg.Gate.Hold(ctx, conversation, summary, inv)
}

// -----------------------------------------------------------------------------
// Model I/O
// -----------------------------------------------------------------------------

func (o *Orchestrator) messages(ctx context.Context, req Request) []llm.Message {
	msgs := make([]llm.Message, 0, len(req.History)+1)
	for _, t := range req.History {
		role := llm.RoleUser
		content := t.Text
		if t.Role == history.RoleAssistant {
			role = llm.RoleAssistant
			content = approvals.Strip(content)
		}
		msgs = append(msgs, llm.Message{Role: role, Content: content})
	}

	var b strings.Builder
	b.WriteString(contextLine(o.cfg.Now(), o.cfg.Location))
	if oc := o.orderContext(ctx, req.Message); oc != "" {
		b.WriteString("\n" + oc)
	}
	b.WriteString("\n\n" + req.Message)
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: b.String()})
}

func (o *Orchestrator) complete(ctx context.Context, run *chain) (string, error) {
	run.attempts++
	resp, err := o.cfg.Provider.Complete(ctx, llm.Request{
		System:      o.system,
		Messages:    run.msgs,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("workflow: completion: %w", err)
	}
	slog.Debug("workflow: completion", "conversation", run.conversation, "model", resp.Model,
		"tokens", resp.Usage.TotalTokens, "attempt", run.attempts)
	return resp.Text, nil
}

func hasCreateIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, k := range createIntentKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
