package rag

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize bounds chunk length in characters.
const DefaultMaxChunkSize = 1500

// SplitText splits raw document text into bounded, sentence-respecting
// chunks. Sentences are delimited by terminal punctuation and greedily
// accumulated until the limit; a sentence longer than the limit is split
// again on word boundaries. Single words longer than the limit are kept
// intact rather than broken mid-word.
func SplitText(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	for _, sentence := range sentences {
		sentenceLen := utf8.RuneCountInString(sentence)
		if currentLen+sentenceLen > maxChunkSize && currentLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(sentence)
			currentLen = sentenceLen
			continue
		}
		if currentLen > 0 {
			current.WriteString(" ")
			current.WriteString(sentence)
			currentLen += sentenceLen + 1
		} else {
			current.WriteString(sentence)
			currentLen = sentenceLen
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	// A single sentence can still exceed the limit; split those on words.
	final := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if utf8.RuneCountInString(chunk) <= maxChunkSize {
			final = append(final, chunk)
			continue
		}
		final = append(final, splitWords(chunk, maxChunkSize)...)
	}
	return final
}

func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	sentences := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}
	return sentences
}

func splitWords(chunk string, maxChunkSize int) []string {
	var out []string
	var current strings.Builder
	currentLen := 0
	for _, word := range strings.Fields(chunk) {
		wordLen := utf8.RuneCountInString(word)
		if currentLen+wordLen+1 > maxChunkSize && currentLen > 0 {
			out = append(out, current.String())
			current.Reset()
			current.WriteString(word)
			currentLen = wordLen
			continue
		}
		if currentLen > 0 {
			current.WriteString(" ")
			current.WriteString(word)
			currentLen += wordLen + 1
		} else {
			current.WriteString(word)
			currentLen = wordLen
		}
	}
	if current.Len() > 0 {
		out = append(out, current.String())
	}
	return out
}
