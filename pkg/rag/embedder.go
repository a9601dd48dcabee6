package rag

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"
)

// EmbeddingDim is the fixed length of every embedding vector.
const EmbeddingDim = 768

// HashEmbedder produces deterministic feature-hash embeddings: the same
// input always yields a bit-identical vector, with every component in
// [0,1]. It is not a learned model; it exists so retrieval stays
// reproducible and testable without external calls. A real provider
// (ai.Embedder) can be substituted behind the same contract.
type HashEmbedder struct{}

// NewHashEmbedder returns the deterministic fallback embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

// EmbedText maps text to a 768-dimension vector. The leading positions
// encode word lengths, positions below 256 encode letter frequencies,
// and the remainder is a smooth filler derived from text length.
func (e *HashEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	textLen := utf8.RuneCountInString(text)

	embedding := make([]float32, EmbeddingDim)
	for i := 0; i < EmbeddingDim; i++ {
		var value float64
		switch {
		case i < len(words):
			value = float64(utf8.RuneCountInString(words[i])) / 20
		case i < 256:
			if textLen > 0 {
				letter := rune('a' + (i-len(words))%26)
				value = float64(strings.Count(lower, string(letter))) / float64(textLen)
			}
		default:
			value = math.Sin(float64(i*7+textLen))*0.5 + 0.5
		}
		embedding[i] = float32(clamp01(value))
	}
	return embedding, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
