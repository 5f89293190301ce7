package ai

import "context"

// Runtime is the model backend seen by the agent. Gemini is the default;
// OpenRouter and a local Ollama are alternates behind the same surface.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// NeedsAPIKey reports whether the provider refuses to run without a key.
func NeedsAPIKey(provider string) bool { return provider != ProviderOllama }
