// Package llm provides the text-generation capability behind reflection
// summarization: a TextGenerator interface with Ollama and OpenAI-compatible
// clients, circuit breaker protection, client-side rate limiting, and strict
// JSON prompt templates with tolerant response parsing.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// Reflection prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
