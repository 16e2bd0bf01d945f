package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/redact"
)

const (
	defaultOpenRouterBase  = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel = "google/gemini-2.5-flash"
	defaultTimeout         = 30 * time.Second
	defaultMaxTokens       = 2048
)

// Config configures a provider.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string

	// BaseURL overrides the endpoint (OpenRouter only).
	BaseURL string

	// Model is the model identifier.
	Model string

	// Timeout is the HTTP request timeout. Defaults to 30 s.
	Timeout time.Duration

	// Referer and Title are sent as HTTP-Referer and X-Title, which
	// OpenRouter uses for app attribution.
	Referer string
	Title   string
}

type openRouter struct {
	cfg    Config
	client *http.Client
}

// NewOpenRouter returns a Provider for OpenRouter's OpenAI-compatible chat
// completions API. Any OpenAI-compatible endpoint works via BaseURL.
func NewOpenRouter(cfg Config) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenRouterBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenRouterModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &openRouter{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (p *openRouter) Name() string { return "openrouter" }

// --- minimal OpenAI wire types ---

type oaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type oaiResponse struct {
	Model   string      `json:"model"`
	Choices []oaiChoice `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

func (p *openRouter) Complete(ctx context.Context, req Request) (*Response, error) {
	msgs := make([]oaiMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, oaiMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, oaiMessage{Role: string(m.Role), Content: m.Content})
	}

	body := oaiRequest{Model: p.cfg.Model, Messages: msgs, MaxTokens: req.MaxTokens}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMaxTokens
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if p.cfg.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", p.cfg.Referer)
	}
	if p.cfg.Title != "" {
		httpReq.Header.Set("X-Title", p.cfg.Title)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, p.fail(KindTemporary, 0, errors.New(redact.String(err.Error(), p.cfg.APIKey)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, p.fail(KindTemporary, resp.StatusCode, fmt.Errorf("read response body: %w", err))
	}

	var out oaiResponse
	decodeErr := json.Unmarshal(respBody, &out)

	if resp.StatusCode >= 300 {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, p.fail(kindForStatus(resp.StatusCode), resp.StatusCode,
			errors.New(redact.String(msg, p.cfg.APIKey)))
	}
	if decodeErr != nil {
		return nil, p.fail(KindMalformed, resp.StatusCode, fmt.Errorf("decode API response: %w", decodeErr))
	}
	if out.Error != nil {
		return nil, p.fail(KindPermanent, resp.StatusCode, errors.New(out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return nil, p.fail(KindMalformed, resp.StatusCode, errors.New("no choices returned"))
	}

	r := &Response{Text: out.Choices[0].Message.Content, Model: out.Model}
	if out.Usage != nil {
		r.Usage = Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
			TotalTokens:      out.Usage.TotalTokens,
		}
	}
	slog.Debug("llm: completion",
		"provider", p.Name(), "model", r.Model,
		"tokens", r.Usage.TotalTokens, "latency_ms", time.Since(start).Milliseconds())
	return r, nil
}

func (p *openRouter) fail(kind ErrorKind, status int, err error) error {
	return &ProviderError{Provider: p.Name(), Kind: kind, StatusCode: status, Err: err}
}
