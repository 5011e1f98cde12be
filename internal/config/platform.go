package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Dclef/renpybox-sub001/internal/provider"
)

// Platform is the runtime-editable provider profile. It lives in a JSON
// file next to the project so users can switch backends without touching
// the environment.
type Platform struct {
	Name      string   `json:"name"`
	APIURL    string   `json:"api_url"`
	APIKeys   []string `json:"api_keys"`
	Model     string   `json:"model"`
	APIFormat string   `json:"api_format"`
	Timeout   int      `json:"timeout"`

	MaxTokens int  `json:"max_tokens"`
	Thinking  bool `json:"thinking"`

	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`

	// Workers overrides pool sizing when >0; RPS/RPM cap request rates.
	Workers int `json:"workers"`
	RPS     int `json:"rps"`
	RPM     int `json:"rpm"`
}

// LoadPlatform reads and validates a platform profile.
func LoadPlatform(path string) (Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Platform{}, fmt.Errorf("read platform file: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var p Platform
	if err := json.Unmarshal(data, &p); err != nil {
		return Platform{}, fmt.Errorf("parse platform file: %w", err)
	}
	if p.APIURL == "" {
		return Platform{}, fmt.Errorf("platform %q: api_url must not be empty", p.Name)
	}
	if p.APIFormat == "" {
		return Platform{}, fmt.Errorf("platform %q: api_format must not be empty", p.Name)
	}
	if p.Timeout <= 0 {
		p.Timeout = 120
	}
	return p, nil
}

// ProviderConfig maps a platform profile onto the provider layer.
func (p Platform) ProviderConfig() provider.Config {
	return provider.Config{
		APIURL:           p.APIURL,
		APIKeys:          p.APIKeys,
		Model:            p.Model,
		Format:           provider.Format(p.APIFormat),
		Timeout:          p.Timeout,
		MaxTokens:        p.MaxTokens,
		Thinking:         p.Thinking,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
	}
}
