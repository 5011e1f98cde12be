package provider

import "fmt"

// Factory builds a Provider bound to one platform configuration and a
// shared connection pool.
type Factory func(cfg Config, pool *Pool) Provider

var registry = map[Format]Factory{
	FormatOpenAI:    newOpenAI,
	FormatSakura:    newSakura,
	FormatGoogle:    newGoogle,
	FormatAnthropic: newAnthropic,
}

// New constructs the provider for cfg.Format.
func New(cfg Config, pool *Pool) (Provider, error) {
	factory, ok := registry[cfg.Format]
	if !ok {
		return nil, fmt.Errorf("unknown provider format: %q", cfg.Format)
	}
	return factory(cfg, pool), nil
}

// Formats lists the registered protocol families.
func Formats() []Format {
	out := make([]Format, 0, len(registry))
	for f := range registry {
		out = append(out, f)
	}
	return out
}
