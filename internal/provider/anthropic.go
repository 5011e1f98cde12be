package provider

import (
	"context"
	"fmt"
	"strings"
)

const anthropicVersion = "2023-06-01"

// anthropicProvider speaks the messages API. System prompts travel in a
// dedicated top-level field and penalties are not part of the dialect.
type anthropicProvider struct {
	cfg  Config
	pool *Pool
	keys *KeyRing
}

func newAnthropic(cfg Config, pool *Pool) Provider {
	return &anthropicProvider{cfg: cfg, pool: pool, keys: NewKeyRing(cfg.APIKeys)}
}

func (p *anthropicProvider) Name() string { return string(FormatAnthropic) }

type anthropicRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Thinking    *struct {
		Type         string `json:"type"`
		BudgetTokens int    `json:"budget_tokens"`
	} `json:"thinking,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *anthropicProvider) Request(ctx context.Context, messages []Message) (Result, error) {
	req := anthropicRequest{
		Model:       p.cfg.Model,
		MaxTokens:   max(4096, p.cfg.MaxTokens),
		Temperature: p.cfg.Temperature,
		TopP:        p.cfg.TopP,
	}
	for _, m := range messages {
		if m.Role == "system" {
			req.System = m.Content
			continue
		}
		req.Messages = append(req.Messages, m)
	}
	if p.cfg.Thinking {
		req.Thinking = &struct {
			Type         string `json:"type"`
			BudgetTokens int    `json:"budget_tokens"`
		}{Type: "enabled", BudgetTokens: 1024}
		// Thinking requires default sampling.
		req.Temperature = nil
		req.TopP = nil
	}

	key := p.keys.Next()
	var resp anthropicResponse
	if err := postJSON(ctx, p.pool.Client(p.cfg, key), messagesURL(p.cfg.APIURL), map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}, req, &resp); err != nil {
		return Result{}, err
	}
	if resp.Error != nil {
		return Result{}, fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if resp.StopReason == "refusal" {
		return Result{Blocked: true}, nil
	}
	if len(resp.Content) == 0 {
		return Result{}, fmt.Errorf("empty content in response")
	}

	var reasoning, answer strings.Builder
	for _, block := range resp.Content {
		switch block.Type {
		case "thinking":
			reasoning.WriteString(block.Thinking)
		case "text":
			answer.WriteString(block.Text)
		}
	}
	return Result{
		Reasoning:    reLineBreak.ReplaceAllString(strings.TrimSpace(reasoning.String()), "\n"),
		Answer:       strings.TrimSpace(answer.String()),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func messagesURL(base string) string {
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	return base + "/messages"
}
