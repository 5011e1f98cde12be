package provider

import (
	"context"
	"regexp"
)

// Format selects the wire protocol family used to reach a provider.
type Format string

const (
	FormatOpenAI    Format = "openai"
	FormatSakura    Format = "sakura"
	FormatGoogle    Format = "google"
	FormatAnthropic Format = "anthropic"
)

// Message is a single turn in a chat-style request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Config describes one configured provider platform. Sampling parameters
// are pointers so that "not customized" and "zero" stay distinguishable.
type Config struct {
	APIURL  string
	APIKeys []string
	Model   string
	Format  Format
	Timeout int // seconds

	MaxTokens        int
	Thinking         bool
	Temperature      *float64
	TopP             *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

// Result is the normalized outcome of one provider call.
type Result struct {
	// Blocked marks a provider-side content-safety rejection; it is a
	// distinct outcome, not a retryable failure.
	Blocked      bool
	Reasoning    string
	Answer       string
	InputTokens  int
	OutputTokens int
}

// Provider is the single capability every protocol family implements.
// Errors cover network and decode failures; callers decide retry policy.
type Provider interface {
	Name() string
	Request(ctx context.Context, messages []Message) (Result, error)
}

// reLineBreak collapses blank-line runs inside reasoning text.
var reLineBreak = regexp.MustCompile(`\n+`)
