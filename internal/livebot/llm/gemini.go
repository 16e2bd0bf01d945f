package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/markegidiDev/ERP-ChatBot-LLM/common/redact"
)

const defaultGeminiModel = "gemini-2.5-flash"

type gemini struct {
	cfg    Config
	client *genai.Client
}

// NewGemini returns a Provider backed by the Gemini API.
func NewGemini(ctx context.Context, cfg Config) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm: gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	return &gemini{cfg: cfg, client: client}, nil
}

func (p *gemini) Name() string { return "gemini" }

func (p *gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, genai.Role(role)))
	}

	gc := &genai.GenerateContentConfig{}
	if req.System != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}

	start := time.Now()
	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, gc)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, p.classify(err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, &ProviderError{Provider: p.Name(), Kind: KindMalformed, Err: errors.New("empty completion")}
	}

	r := &Response{Text: text, Model: resp.ModelVersion}
	if u := resp.UsageMetadata; u != nil {
		r.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	slog.Debug("llm: completion",
		"provider", p.Name(), "model", p.cfg.Model,
		"tokens", r.Usage.TotalTokens, "latency_ms", time.Since(start).Milliseconds())
	return r, nil
}

// classify maps a genai error onto a ProviderError. 503 (model overloaded)
// is the only status Gemini documents as transient.
func (p *gemini) classify(err error) error {
	code := 0
	var ae genai.APIError
	var pae *genai.APIError
	switch {
	case errors.As(err, &ae):
		code = ae.Code
	case errors.As(err, &pae) && pae != nil:
		code = pae.Code
	}

	kind := KindTemporary
	if code != 0 {
		kind = kindForStatus(code)
	}
	return &ProviderError{
		Provider:   p.Name(),
		Kind:       kind,
		StatusCode: code,
		Err:        errors.New(redact.String(err.Error(), p.cfg.APIKey)),
	}
}
