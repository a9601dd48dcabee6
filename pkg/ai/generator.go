package ai

import "context"

// TextGenerator generates text from a system prompt and user prompt.
// All completion providers (Gemini, Ollama, OpenAI-compatible) implement
// this interface; the engine treats them as opaque.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
