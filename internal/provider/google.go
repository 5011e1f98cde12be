package provider

import (
	"context"
	"fmt"
	"strings"
)

// googleProvider speaks the generateContent REST dialect. Safety filters
// are relaxed to BLOCK_NONE so that only hard provider-side policy stops
// a request, which surfaces as a Blocked result instead of an error.
type googleProvider struct {
	cfg  Config
	pool *Pool
	keys *KeyRing
}

func newGoogle(cfg Config, pool *Pool) Provider {
	return &googleProvider{cfg: cfg, pool: pool, keys: NewKeyRing(cfg.APIKeys)}
}

func (p *googleProvider) Name() string { return string(FormatGoogle) }

type genaiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type genaiContent struct {
	Role  string      `json:"role,omitempty"`
	Parts []genaiPart `json:"parts"`
}

type genaiThinking struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

type genaiRequest struct {
	Contents          []genaiContent `json:"contents"`
	SystemInstruction *genaiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int            `json:"maxOutputTokens,omitempty"`
		Temperature     *float64       `json:"temperature,omitempty"`
		TopP            *float64       `json:"topP,omitempty"`
		ThinkingConfig  *genaiThinking `json:"thinkingConfig,omitempty"`
	} `json:"generationConfig"`
	SafetySettings []map[string]string `json:"safetySettings"`
}

type genaiResponse struct {
	Candidates []struct {
		Content      genaiContent `json:"content"`
		FinishReason string       `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

var safetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

func (p *googleProvider) Request(ctx context.Context, messages []Message) (Result, error) {
	req := genaiRequest{}
	for _, m := range messages {
		part := genaiContent{Role: "user", Parts: []genaiPart{{Text: m.Content}}}
		switch m.Role {
		case "system":
			part.Role = ""
			req.SystemInstruction = &part
			continue
		case "assistant":
			part.Role = "model"
		}
		req.Contents = append(req.Contents, part)
	}
	req.GenerationConfig.MaxOutputTokens = max(4096, p.cfg.MaxTokens)
	req.GenerationConfig.Temperature = p.cfg.Temperature
	req.GenerationConfig.TopP = p.cfg.TopP
	if !p.cfg.Thinking && strings.Contains(p.cfg.Model, "flash") {
		req.GenerationConfig.ThinkingConfig = &genaiThinking{ThinkingBudget: 0}
	}
	for _, cat := range safetyCategories {
		req.SafetySettings = append(req.SafetySettings, map[string]string{
			"category":  cat,
			"threshold": "BLOCK_NONE",
		})
	}

	key := p.keys.Next()
	var resp genaiResponse
	if err := postJSON(ctx, p.pool.Client(p.cfg, key), p.endpoint(), map[string]string{
		"x-goog-api-key": key,
	}, req, &resp); err != nil {
		return Result{}, err
	}
	if resp.Error != nil {
		return Result{}, fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return Result{Blocked: true}, nil
	}
	if len(resp.Candidates) == 0 {
		return Result{}, fmt.Errorf("empty candidates in response")
	}
	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case "SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
		return Result{Blocked: true}, nil
	}

	var reasoning, answer strings.Builder
	for _, part := range cand.Content.Parts {
		if part.Thought {
			reasoning.WriteString(part.Text)
		} else {
			answer.WriteString(part.Text)
		}
	}
	return Result{
		Reasoning:    reLineBreak.ReplaceAllString(strings.TrimSpace(reasoning.String()), "\n"),
		Answer:       strings.TrimSpace(answer.String()),
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount + resp.UsageMetadata.ThoughtsTokenCount,
	}, nil
}

func (p *googleProvider) endpoint() string {
	base := strings.TrimRight(p.cfg.APIURL, "/")
	if !strings.HasSuffix(base, "/v1beta") {
		base += "/v1beta"
	}
	return fmt.Sprintf("%s/models/%s:generateContent", base, p.cfg.Model)
}
