package bot_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/approvals"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/bot"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/ratelimit"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

var clock = time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type scripted struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Complete(context.Context, llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &llm.Response{}, nil
	}
	text := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return &llm.Response{Text: text}, nil
}

type fixture struct {
	bot      *bot.Bot
	provider *scripted
	history  *history.Memory
}

func newFixture(limiter *ratelimit.MinInterval, replies ...string) *fixture {
	p := &scripted{replies: replies}
	now := func() time.Time { return clock }
	wh := domain.NewWarehouse(now, time.UTC)
	gate := approvals.NewGate(wh, approvals.NewClassifier(p), nil)
	mem := history.NewMemory()
	orch := workflow.New(workflow.Config{
		Provider: p,
		Service:  wh,
		Catalog:  catalog.MustDefault(),
		Gate:     gate,
		Now:      now,
		Location: time.UTC,
	})
	b := bot.New(bot.Config{
		Limiter:      limiter,
		History:      mem,
		Gate:         gate,
		Orchestrator: orch,
		Now:          now,
	})
	return &fixture{bot: b, provider: p, history: mem}
}

func (f *fixture) say(t *testing.T, text string) bot.Reply {
	t.Helper()
	reply, ok, err := f.bot.Handle(context.Background(), bot.Incoming{Conversation: "!room:test", Actor: "@u:test", Text: text})
	require.NoError(t, err)
	require.True(t, ok, "turn %q got no reply", text)
	return reply
}

func (f *fixture) turns(t *testing.T) []history.Turn {
	t.Helper()
	turns, err := f.history.Recent(context.Background(), "!room:test")
	require.NoError(t, err)
	return turns
}

func TestHandle_RateLimitDropsSecondTurn(t *testing.T) {
	lim := ratelimit.NewMinInterval(2*time.Second, fixedClock{clock})
	f := newFixture(lim, "Hello!")

	first := f.say(t, "ciao")
	_, ok, err := f.bot.Handle(context.Background(), bot.Incoming{Conversation: "!room:test", Actor: "@u:test", Text: "ciao ancora"})

	assert.Equal(t, "Hello!", first.Text)
	assert.NotEmpty(t, first.TraceID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, f.provider.calls)
	assert.Zero(t, f.bot.PruneLimiter(time.Minute))
	assert.Equal(t, 1, lim.Len())
}

func TestHandle_TrivialInputIgnored(t *testing.T) {
	f := newFixture(nil)

	for _, text := range []string{"", "  ", "k", " ? "} {
		_, ok, err := f.bot.Handle(context.Background(), bot.Incoming{Conversation: "c", Actor: "a", Text: text})
		require.NoError(t, err)
		assert.False(t, ok, "%q", text)
	}
	assert.Zero(t, f.provider.calls)
}

func TestHandle_Help(t *testing.T) {
	f := newFixture(nil)

	for _, cmd := range []string{"/help", "/AIUTO", " /? "} {
		assert.Equal(t, bot.HelpMessage, f.say(t, cmd).Text)
	}
	assert.Empty(t, f.turns(t))
	assert.Zero(t, f.provider.calls)
}

func TestHandle_ResetAppendsSentinel(t *testing.T) {
	f := newFixture(nil, "Hello!")
	f.say(t, "ciao")

	reply := f.say(t, "/nuovo")

	assert.Equal(t, bot.ResetMessage, reply.Text)
	turns := f.turns(t)
	require.Len(t, turns, 3)
	assert.True(t, history.IsReset(turns[2]))
	assert.Empty(t, history.Window(turns, clock, 0, 0))
}

func TestHandle_ConfirmHeldOrder(t *testing.T) {
	f := newFixture(nil, `[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":1,"quantity":5}]]`)

	held := f.say(t, "5 sedie per Marco Rossi")
	require.True(t, held.Pending)
	assert.Contains(t, held.Text, approvals.Sentinel)

	done := f.say(t, "sì, procedi")

	assert.False(t, done.Pending)
	assert.True(t, strings.HasPrefix(done.Text, "✅ Order S00035 created for Marco Rossi"), done.Text)
	assert.Equal(t, 1, f.provider.calls, "an affirmative reply needs no model call")

	turns := f.turns(t)
	require.Len(t, turns, 4)
	assert.Equal(t, history.RoleUser, turns[0].Role)
	assert.Equal(t, history.RoleAssistant, turns[1].Role)
	assert.Equal(t, done.Text, turns[3].Text)
}

func TestHandle_CancelHeldOrder(t *testing.T) {
	f := newFixture(nil,
		`[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":1,"quantity":5}]]`,
		"CANCEL",
	)
	f.say(t, "5 sedie per Marco Rossi")

	reply := f.say(t, "annulla tutto")

	assert.Equal(t, approvals.CancelledMessage, reply.Text)
	assert.Equal(t, 2, f.provider.calls)
}

func TestHandle_ProviderFailureBecomesMessage(t *testing.T) {
	f := newFixture(nil)
	f.provider.err = &llm.ProviderError{Provider: "scripted", Kind: llm.KindRateLimited, StatusCode: 429, Err: errors.New("quota")}

	reply := f.say(t, "ciao")

	assert.Equal(t, llm.RateLimitedMessage, reply.Text)
}

func TestHandle_DepthExceededBecomesMessage(t *testing.T) {
	f := newFixture(nil, "[FUNCTION:get_pending_orders]")

	reply := f.say(t, "consegne?")

	assert.True(t, strings.HasPrefix(reply.Text, workflow.DepthExceededMessage), reply.Text)
	assert.Equal(t, 3, strings.Count(reply.Text, "• get_pending_orders: "), "every executed lookup is listed")
	assert.Equal(t, 3, f.provider.calls)
}
