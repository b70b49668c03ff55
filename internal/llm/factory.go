package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures a text generation backend.
type ProviderConfig struct {
	Provider string        // "ollama" (default) or "openai"
	APIKey   string        // hosted providers only
	Model    string        // provider-specific default when empty
	BaseURL  string        // provider-specific default when empty
	Timeout  time.Duration // provider-specific default when zero

	// RequestsPerMinute and Burst add client-side rate limiting when both
	// are positive.
	RequestsPerMinute float64
	Burst             int
}

// NewTextGenerator creates the appropriate TextGenerator for the config,
// wrapped with rate limiting when configured.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	var gen TextGenerator
	switch cfg.Provider {
	case "openai":
		gen = NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
	case "ollama", "":
		gen = NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
	return NewRateLimitedGenerator(gen, cfg.RequestsPerMinute, cfg.Burst), nil
}
