package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/Dclef/renpybox-sub001/pkg/log"
)

var (
	reOSeriesModel = regexp.MustCompile(`(?i)^o\d(-|$)`)
	reQwen3Model   = regexp.MustCompile(`(?i)qwen3`)
)

// openAIProvider speaks the OpenAI chat-completions dialect, which most
// hosted and self-hosted gateways accept.
type openAIProvider struct {
	cfg  Config
	pool *Pool
	keys *KeyRing
}

func newOpenAI(cfg Config, pool *Pool) Provider {
	return &openAIProvider{cfg: cfg, pool: pool, keys: NewKeyRing(cfg.APIKeys)}
}

func (p *openAIProvider) Name() string { return string(FormatOpenAI) }

type chatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxTokens           int       `json:"max_tokens,omitempty"`
	MaxCompletionTokens int       `json:"max_completion_tokens,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
	PresencePenalty     *float64  `json:"presence_penalty,omitempty"`
	FrequencyPenalty    *float64  `json:"frequency_penalty,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *openAIProvider) Request(ctx context.Context, messages []Message) (Result, error) {
	msgs := messages
	if !p.cfg.Thinking && reQwen3Model.MatchString(p.cfg.Model) && len(msgs) > 0 {
		// qwen3 disables its reasoning channel via an in-band directive.
		msgs = append([]Message(nil), msgs...)
		last := msgs[len(msgs)-1]
		last.Content += "\n/no_think"
		msgs[len(msgs)-1] = last
	}

	req := chatRequest{
		Model:            p.cfg.Model,
		Messages:         msgs,
		Temperature:      p.cfg.Temperature,
		TopP:             p.cfg.TopP,
		PresencePenalty:  p.cfg.PresencePenalty,
		FrequencyPenalty: p.cfg.FrequencyPenalty,
	}
	budget := max(4096, p.cfg.MaxTokens)
	if reOSeriesModel.MatchString(p.cfg.Model) || strings.Contains(p.cfg.APIURL, "api.openai.com") {
		req.MaxCompletionTokens = budget
		req.Temperature = nil
		req.TopP = nil
	} else {
		req.MaxTokens = budget
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

	reasoning := resp.Choices[0].Message.ReasoningContent
	answer := resp.Choices[0].Message.Content
	// Some gateways inline reasoning as a <think> prologue instead of a
	// dedicated field.
	if reasoning == "" {
		if before, after, found := strings.Cut(answer, "</think>"); found {
			reasoning = strings.TrimPrefix(strings.TrimSpace(before), "<think>")
			answer = after
		}
	}
	return Result{
		Reasoning:    reLineBreak.ReplaceAllString(strings.TrimSpace(reasoning), "\n"),
		Answer:       strings.TrimSpace(answer),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

func chatURL(base string) string {
	return strings.TrimRight(base, "/") + "/chat/completions"
}

// postJSON sends one JSON request and decodes the JSON reply. Non-2xx
// statuses are reported with a body excerpt to keep provider errors
// diagnosable from the log alone.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, excerpt(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Debug("undecodable provider payload: %s", excerpt(data))
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func excerpt(data []byte) string {
	const limit = 400
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
