package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider names.
const (
	ProviderStub   = "stub"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// ProvidersConfig selects the default provider and holds per-provider
// credentials. A provider without an API key is not registered.
type ProvidersConfig struct {
	Default string       `yaml:"default"`
	OpenAI  OpenAIConfig `yaml:"openai"`
	Gemini  GeminiConfig `yaml:"gemini"`
}

// DefaultProvidersConfig returns a stub-only configuration.
func DefaultProvidersConfig() ProvidersConfig {
	return ProvidersConfig{
		Default: ProviderStub,
		OpenAI: OpenAIConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   4096,
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-2.5-flash",
			Temperature: 0.7,
			Timeout:     2 * time.Minute,
		},
	}
}

// BuildSet registers the stub provider and every provider with credentials.
// The default provider must end up registered.
func BuildSet(ctx context.Context, cfg ProvidersConfig) (*Set, error) {
	if cfg.Default == "" {
		cfg.Default = ProviderStub
	}
	set := NewSet(cfg.Default)

	stub := NewStubClient()
	set.Register(ProviderStub, "stub", func(string) (Client, error) { return stub, nil })

	if cfg.OpenAI.APIKey != "" {
		oc, err := NewOpenAIClient(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		set.Register(ProviderOpenAI, cfg.OpenAI.Model, func(model string) (Client, error) {
			return oc.WithModel(model), nil
		})
	}

	if cfg.Gemini.APIKey != "" {
		gc, err := NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return nil, err
		}
		set.Register(ProviderGemini, gc.cfg.Model, func(model string) (Client, error) {
			return gc.WithModel(model), nil
		})
	}

	if _, _, err := set.Resolve("", ""); err != nil {
		return nil, fmt.Errorf("default provider %q: %w", cfg.Default, err)
	}
	return set, nil
}
