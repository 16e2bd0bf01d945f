package workflow_test

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
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/catalog"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/domain"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/history"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/normalize"
	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/workflow"
)

// Monday 20 October 2025.
var clock = time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

// scripted replays canned replies; the last one repeats.
type scripted struct {
	mu      sync.Mutex
	replies []string
	err     error
	reqs    []llm.Request
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return &llm.Response{Model: "scripted"}, nil
	}
	text := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	return &llm.Response{Text: text, Model: "scripted"}, nil
}

// prompt returns the last message of the i-th request.
func (s *scripted) prompt(t *testing.T, i int) string {
	t.Helper()
	require.Greater(t, len(s.reqs), i)
	msgs := s.reqs[i].Messages
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Content
}

func setup(replies ...string) (*workflow.Orchestrator, *scripted) {
	p := &scripted{replies: replies}
	wh := domain.NewWarehouse(func() time.Time { return clock }, time.UTC)
	o := workflow.New(workflow.Config{
		Provider: p,
		Service:  wh,
		Catalog:  catalog.MustDefault(),
		Now:      func() time.Time { return clock },
		Location: time.UTC,
	})
	return o, p
}

func ask(t *testing.T, o *workflow.Orchestrator, message string) *workflow.Outcome {
	t.Helper()
	out, err := o.Run(context.Background(), workflow.Request{Conversation: "!room:test", Message: message})
	require.NoError(t, err)
	return out
}

func TestRun_PlainAnswer(t *testing.T) {
	o, p := setup("Hello! How can I help?")

	out := ask(t, o, "ciao")

	assert.Equal(t, "Hello! How can I help?", out.Text)
	assert.Empty(t, out.Steps)
	require.Len(t, p.reqs, 1)
	assert.Contains(t, p.prompt(t, 0), "[CONTEXT] TODAY=2025-10-20 10:00:00 TZ=UTC")
	assert.Contains(t, p.prompt(t, 0), "ciao")
	assert.Equal(t, o.System(), p.reqs[0].System)
}

func TestRun_EmptyReply(t *testing.T) {
	o, _ := setup("")

	out := ask(t, o, "ciao")

	assert.Equal(t, workflow.NoInformation, out.Text)
}

func TestRun_HistoryIsSentWithoutMarkers(t *testing.T) {
	o, p := setup("ok")
	turns := []history.Turn{
		{Role: history.RoleUser, Text: "crea ordine", Timestamp: clock.Add(-time.Minute)},
		{Role: history.RoleAssistant, Text: "Confirm?\n\n" + approvals.Sentinel + ` {"name":"confirm_sales_order","parameters":{"order_id":12}}`, Timestamp: clock.Add(-time.Minute)},
	}

	_, err := o.Run(context.Background(), workflow.Request{Conversation: "c", History: turns, Message: "altro"})
	require.NoError(t, err)

	msgs := p.reqs[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[1].Role)
	assert.NotContains(t, msgs[1].Content, approvals.Sentinel)
}

func TestRun_FormattedReadOnlyResult(t *testing.T) {
	o, p := setup("[FUNCTION:get_top_customers|period:month]")

	out := ask(t, o, "migliori clienti del mese")

	assert.Contains(t, out.Text, "Top customers (month)")
	assert.Contains(t, out.Text, "1. Gemini Furniture - €3545.00")
	require.Len(t, out.Steps, 1)
	assert.NoError(t, out.Steps[0].Err)
	assert.Len(t, p.reqs, 1, "formatted results need no follow-up")
}

func TestRun_ChainedLookupFeedsResultBack(t *testing.T) {
	o, p := setup(
		"[FUNCTION:get_pending_orders|order_type:incoming]",
		"One incoming transfer: WH/IN/00004.",
	)

	out := ask(t, o, "arrivi in attesa?")

	assert.Equal(t, "One incoming transfer: WH/IN/00004.", out.Text)
	require.Len(t, p.reqs, 2)
	follow := p.prompt(t, 1)
	assert.Contains(t, follow, "Result of get_pending_orders:")
	assert.Contains(t, follow, "WH/IN/00004")
	assert.Contains(t, follow, "WITHOUT function tags")
}

func TestRun_DepthExceeded(t *testing.T) {
	o, p := setup("[FUNCTION:get_pending_orders]")

	out, err := o.Run(context.Background(), workflow.Request{Conversation: "c", Message: "loop"})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, workflow.ErrDepthExceeded))
	var de *workflow.DepthExceededError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, workflow.DefaultMaxDepth, de.Limit)
	assert.Len(t, p.reqs, 3, "one model call per allowed attempt")
	assert.Len(t, de.Outcome.Steps, 3)
	assert.True(t, strings.HasPrefix(de.Outcome.Text, workflow.DepthExceededMessage))
	assert.Equal(t, 3, strings.Count(de.Outcome.Text, "• get_pending_orders: "))
	assert.Contains(t, de.Outcome.Text, "result(s)")
}

func TestRun_LastAttemptMayFinish(t *testing.T) {
	o, p := setup(
		"[FUNCTION:get_pending_orders]",
		"[FUNCTION:get_pending_orders|order_type:outgoing]",
		"[FUNCTION:get_top_customers|period:month]",
	)

	out := ask(t, o, "consegne e clienti migliori")

	assert.Len(t, p.reqs, 3)
	assert.Len(t, out.Steps, 3)
	assert.Contains(t, out.Text, "Gemini Furniture")
}

func TestRun_ValidationFeedback(t *testing.T) {
	o, p := setup(
		`[FUNCTION:create_sales_order|order_lines:[{"product_id":1,"quantity":2}]]`,
		"Which customer is the order for?",
	)

	out := ask(t, o, "ordine di 2 sedie")

	assert.Equal(t, "Which customer is the order for?", out.Text)
	require.Len(t, out.Steps, 1)
	var ve *normalize.ValidationError
	require.True(t, errors.As(out.Steps[0].Err, &ve))
	assert.Equal(t, "partner_name", ve.Field)
	assert.Contains(t, p.prompt(t, 1), "Parameter error in create_sales_order: partner_name is required.")
}

func TestRun_ConfirmationIsHeld(t *testing.T) {
	o, _ := setup(`[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":1,"quantity":5}]]`)

	out := ask(t, o, "5 sedie per Marco Rossi")

	assert.True(t, out.Pending)
	assert.Contains(t, out.Text, "Customer: Marco Rossi")
	m, ok := approvals.Extract(out.Text)
	require.True(t, ok)
	assert.Equal(t, "create_sales_order", m.Invocation.Name())
	assert.True(t, m.Invocation.Has("order_lines"))
}

func TestRun_ModelWrittenMarkerIsReturnedVerbatim(t *testing.T) {
	reply := "Confirm?\n\n" + approvals.Sentinel + ` {"name":"confirm_sales_order","parameters":{"order_id":16}}`
	o, p := setup(reply)

	out := ask(t, o, "conferma S00032")

	assert.Equal(t, reply, out.Text)
	assert.True(t, out.Pending)
	assert.Empty(t, out.Steps)
	assert.Len(t, p.reqs, 1)
}

func TestRun_MutationIsFormatted(t *testing.T) {
	o, _ := setup("[FUNCTION:confirm_sales_order|order_name:S00032]")

	out := ask(t, o, "conferma S00032")

	assert.False(t, out.Pending)
	assert.Contains(t, out.Text, "✅ Order S00032 confirmed")
	assert.Contains(t, out.Text, "WH/OUT/00014")
}

func TestRun_MutationRejectionIsShown(t *testing.T) {
	o, p := setup("[FUNCTION:confirm_sales_order|order_name:S00031]")

	out := ask(t, o, "conferma S00031")

	assert.Equal(t, "⚠️ Error executing confirm_sales_order: order S00031 is already sale", out.Text)
	require.Len(t, out.Steps, 1)
	_, ok := domain.AsError(out.Steps[0].Err)
	assert.True(t, ok)
	assert.Len(t, p.reqs, 1)
}

func TestRun_ReadOnlyRejectionGoesBackToModel(t *testing.T) {
	o, p := setup(
		"[FUNCTION:get_sales_order_details|order_name:S09999]",
		"I could not find order S09999.",
	)

	out := ask(t, o, "dettagli S09999")

	assert.Equal(t, "I could not find order S09999.", out.Text)
	assert.Contains(t, p.prompt(t, 1), `"error":`)
}

func TestRun_TruncatedTagIsRequestedAgain(t *testing.T) {
	o, p := setup(
		"create_sales_order|partner_name:Marco Rossi]",
		"Sorry, which products?",
	)

	out := ask(t, o, "ordine per Marco")

	assert.Equal(t, "Sorry, which products?", out.Text)
	require.Len(t, p.reqs, 2)
	assert.Contains(t, p.prompt(t, 1), "truncated function tag")
}

func TestRun_SearchWithCreateIntentAsksForOrder(t *testing.T) {
	o, p := setup(
		"[FUNCTION:search_products|search_term:sedia|limit:5]",
		`[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":1,"quantity":2}]]`,
	)

	out := ask(t, o, "crea un ordine per Marco Rossi con 2 sedie")

	assert.True(t, out.Pending)
	follow := p.prompt(t, 1)
	assert.Contains(t, follow, `"product_id":1,"quantity":QTY`)
	assert.Contains(t, follow, "crea un ordine per Marco Rossi con 2 sedie")
}

func TestRun_BatchResolvesTermsAndReportsMisses(t *testing.T) {
	o, p := setup(
		"[FUNCTION:search_products|search_term:sedia]\n[FUNCTION:search_products|search_term:scrivania]\n[FUNCTION:search_products|search_term:divano]",
		`[FUNCTION:create_sales_order|partner_name:Marco Rossi|order_lines:[{"product_id":1,"quantity":2},{"product_id":2,"quantity":1}]]`,
	)

	out := ask(t, o, "ordine per Marco Rossi: 2 sedie, 1 scrivania, 1 divano")

	assert.Equal(t, []string{"divano"}, out.Failed)
	assert.True(t, out.Pending)
	assert.Contains(t, out.Text, "⚠️ Not found: divano")
	assert.Len(t, out.Steps, 4)

	require.Len(t, p.reqs, 2)
	follow := p.prompt(t, 1)
	assert.Contains(t, follow, `"sedia" -> id 1 (Sedia Ufficio)`)
	assert.Contains(t, follow, `"scrivania" -> id 2 (Scrivania Ergonomica)`)
	assert.Contains(t, follow, `Not found: "divano"`)
	assert.Contains(t, follow, "ONE FUNCTION tag (create_sales_order or update_sales_order)")

	m, ok := approvals.Extract(out.Text)
	require.True(t, ok)
	assert.Equal(t, "create_sales_order", m.Invocation.Name())
}

func TestRun_BatchWithNothingFound(t *testing.T) {
	o, p := setup("[FUNCTION:search_products|search_term:divano]\n[FUNCTION:search_products|search_term:poltrona]")

	out := ask(t, o, "2 divani e 1 poltrona")

	assert.Equal(t, "⚠️ Not found: divano, poltrona", out.Text)
	assert.Len(t, p.reqs, 1)
}

func TestRun_OrderContextForEdits(t *testing.T) {
	o, p := setup("ok")

	ask(t, o, "aggiungi al preventivo 2 lampade")

	first := p.prompt(t, 0)
	assert.Contains(t, first, "[ORDER CONTEXT] Order S00032")
	assert.Contains(t, first, "line_id 17: Sedia Ufficio")
}

func TestRun_OrderContextNamedOrder(t *testing.T) {
	o, p := setup("ok")

	ask(t, o, "modifica l'ordine S00034")

	first := p.prompt(t, 0)
	assert.Contains(t, first, "[ORDER CONTEXT] Order S00034")
	assert.Contains(t, first, "line_id 23")
	assert.Contains(t, first, "line_id 24")
}

func TestRun_ProviderErrorIsWrapped(t *testing.T) {
	o, p := setup()
	p.err = &llm.ProviderError{Provider: "scripted", Kind: llm.KindRateLimited, StatusCode: 429, Err: errors.New("quota")}

	_, err := o.Run(context.Background(), workflow.Request{Conversation: "c", Message: "ciao"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrRateLimited))
}
