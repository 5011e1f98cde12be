package provider

import (
	"context"
	"fmt"
	"strings"
)

// sakuraProvider targets SakuraLLM-style models served by llama.cpp. The
// wire format is the chat-completions dialect with a reduced parameter
// set the local server understands.
type sakuraProvider struct {
	cfg  Config
	pool *Pool
	keys *KeyRing
}

func newSakura(cfg Config, pool *Pool) Provider {
	return &sakuraProvider{cfg: cfg, pool: pool, keys: NewKeyRing(cfg.APIKeys)}
}

func (p *sakuraProvider) Name() string { return string(FormatSakura) }

func (p *sakuraProvider) Request(ctx context.Context, messages []Message) (Result, error) {
	req := chatRequest{
		Model:       p.cfg.Model,
		Messages:    messages,
		MaxTokens:   max(512, p.cfg.MaxTokens),
		Temperature: p.cfg.Temperature,
		TopP:        p.cfg.TopP,
	}

	key := p.keys.Next()
	var resp chatResponse
	if err := postJSON(ctx, p.pool.Client(p.cfg, key), chatURL(p.cfg.APIURL), map[string]string{
		"Authorization": "Bearer " + key,
	}, req, &resp); err != nil {
		return Result{}, err
	}
	if resp.Error != nil {
		return Result{}, fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty choices in response")
	}
	return Result{
		Answer:       strings.TrimSpace(resp.Choices[0].Message.Content),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
