package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markegidiDev/ERP-ChatBot-LLM/internal/livebot/llm"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenRouter_Complete(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "livebot", r.Header.Get("X-Title"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"m1","choices":[{"message":{"role":"assistant","content":"[FUNCTION:get_pending_orders]"}}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	})

	p := llm.NewOpenRouter(llm.Config{APIKey: "sk-test-key", BaseURL: srv.URL, Model: "m1", Title: "livebot"})
	resp, err := p.Complete(context.Background(), llm.Request{
		System:   "rules",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "ordini?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "[FUNCTION:get_pending_orders]", resp.Text)
	assert.EqualValues(t, 15, resp.Usage.TotalTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "ordini?", got.Messages[1].Content)
}

func TestOpenRouter_StatusClassification(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.ErrRateLimited},
		{http.StatusServiceUnavailable, `overloaded`, llm.ErrUnavailable},
		{http.StatusBadRequest, `{"error":{"message":"bad"}}`, llm.ErrMalformed},
	}
	for _, tc := range cases {
		srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		})
		p := llm.NewOpenRouter(llm.Config{APIKey: "k-secret", BaseURL: srv.URL})
		_, err := p.Complete(context.Background(), llm.Request{})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		var pe *llm.ProviderError
		if assert.ErrorAs(t, err, &pe) {
			assert.Equal(t, tc.status, pe.StatusCode)
		}
	}
}

func TestOpenRouter_MalformedBody(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	p := llm.NewOpenRouter(llm.Config{BaseURL: srv.URL})
	_, err := p.Complete(context.Background(), llm.Request{})
	require.ErrorIs(t, err, llm.ErrMalformed)
	assert.Equal(t, llm.MalformedMessage, llm.UserMessage(err))
}

type scripted struct {
	calls atomic.Int32
	errs  []error
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Complete(context.Context, llm.Request) (*llm.Response, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return &llm.Response{Text: "ok"}, nil
}

func temporary() error {
	return &llm.ProviderError{Provider: "scripted", Kind: llm.KindTemporary, StatusCode: 503, Err: errors.New("overloaded")}
}

func TestWithRetry_LinearDelays(t *testing.T) {
	var delays []time.Duration
	pol := llm.RetryPolicy{MaxRetries: 2, Step: 2 * time.Second, Sleep: func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}}

	inner := &scripted{errs: []error{temporary(), temporary()}}
	resp, err := llm.WithRetry(inner, pol).Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays)
}

func TestWithRetry_GivesUpAfterTwoRetries(t *testing.T) {
	pol := llm.RetryPolicy{MaxRetries: 2, Step: time.Millisecond, Sleep: func(context.Context, time.Duration) error { return nil }}
	inner := &scripted{errs: []error{temporary(), temporary(), temporary(), temporary()}}

	_, err := llm.WithRetry(inner, pol).Complete(context.Background(), llm.Request{})

	require.ErrorIs(t, err, llm.ErrUnavailable)
	assert.EqualValues(t, 3, inner.calls.Load())
	assert.Equal(t, llm.UnavailableMessage, llm.UserMessage(err))
}

func TestWithRetry_RateLimitNotRetried(t *testing.T) {
	pol := llm.RetryPolicy{MaxRetries: 2, Step: time.Millisecond, Sleep: func(context.Context, time.Duration) error { return nil }}
	limited := &llm.ProviderError{Provider: "scripted", Kind: llm.KindRateLimited, StatusCode: 429, Err: errors.New("quota")}
	inner := &scripted{errs: []error{limited}}

	_, err := llm.WithRetry(inner, pol).Complete(context.Background(), llm.Request{})

	require.ErrorIs(t, err, llm.ErrRateLimited)
	assert.EqualValues(t, 1, inner.calls.Load(), "rate limits are not retried")
	assert.Equal(t, llm.RateLimitedMessage, llm.UserMessage(err))
}

type blocking struct{}

func (blocking) Name() string { return "blocking" }

func (blocking) Complete(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	_, err := llm.WithTimeout(blocking{}, 10*time.Millisecond).Complete(context.Background(), llm.Request{})
	assert.True(t, llm.IsTemporary(err), "timeout should be temporary, got %v", err)
}
