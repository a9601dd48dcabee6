package rag

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pdfchat/pkg/ai"
	"pdfchat/pkg/domain"
)

const (
	// MaxContextChars bounds each grounding chunk before it reaches the
	// prompt and persistence, regardless of the chunker's configured size.
	MaxContextChars = 800

	// DefaultGenerationTimeout bounds the completion call.
	DefaultGenerationTimeout = 60 * time.Second

	defaultSystemPrompt = "You are a helpful AI assistant that answers questions based on the provided context. Always provide accurate and helpful responses based on the given information."

	closingInstruction = "Please provide a comprehensive answer based on the context above. If the context doesn't contain enough information to answer the question, please say so."
)

// Composer builds a grounding prompt and delegates to a completion
// provider. The generator is injected at construction; a nil generator
// makes every Compose fail with ErrGenerationUnavailable.
type Composer struct {
	generator ai.TextGenerator
	timeout   time.Duration
}

// NewComposer wires a composer around the given provider.
func NewComposer(generator ai.TextGenerator, timeout time.Duration) *Composer {
	if timeout <= 0 {
		timeout = DefaultGenerationTimeout
	}
	return &Composer{generator: generator, timeout: timeout}
}

// Compose produces a natural-language answer for query grounded in
// contextChunks. It never mutates conversation state; errors propagate
// to the caller instead of degrading to an empty answer.
func (c *Composer) Compose(ctx context.Context, query string, contextChunks []string, systemPrompt string) (string, error) {
	if c.generator == nil {
		return "", domain.ErrGenerationUnavailable
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	answer, err := c.generator.GenerateText(ctx, systemPrompt, buildUserPrompt(query, contextChunks))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err)
	}
	if answer == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGenerationFailed)
	}
	return answer, nil
}

func buildUserPrompt(query string, contextChunks []string) string {
	var sb strings.Builder
	sb.WriteString("Context from document:\n")
	for i, chunk := range contextChunks {
		sb.WriteString(fmt.Sprintf("Chunk %d: %s", i+1, chunk))
		sb.WriteString("\n\n")
	}
	sb.WriteString("User Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")
	sb.WriteString(closingInstruction)
	return sb.String()
}

// TruncateContext caps each chunk text at MaxContextChars, appending a
// truncation marker, so storage and prompt size stay bounded.
func TruncateContext(chunks []string) []string {
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, truncateChunk(chunk))
	}
	return out
}

func truncateChunk(text string) string {
	if utf8.RuneCountInString(text) <= MaxContextChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:MaxContextChars]) + "..."
}
