package rag

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTextSentenceBoundaries(t *testing.T) {
	text := "Cats are mammals. Dogs are loyal animals. Birds can fly very high."
	chunks := SplitText(text, 30)

	want := []string{
		"Cats are mammals",
		"Dogs are loyal animals",
		"Birds can fly very high",
	}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %d, want %d: %q", len(chunks), len(want), chunks)
	}
	for i, chunk := range chunks {
		if chunk != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q", i, chunk, want[i])
		}
		if utf8.RuneCountInString(chunk) > 30 {
			t.Fatalf("chunk[%d] exceeds limit: %d runes", i, utf8.RuneCountInString(chunk))
		}
	}
}

func TestSplitTextAccumulatesShortSentences(t *testing.T) {
	chunks := SplitText("Hi. There. Friend.", 30)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1: %q", len(chunks), chunks)
	}
	if chunks[0] != "Hi There Friend" {
		t.Fatalf("chunk = %q", chunks[0])
	}
}

func TestSplitTextOversizedSentenceFallsBackToWords(t *testing.T) {
	// One long sentence, no terminal punctuation until the end.
	words := make([]string, 40)
	for i := range words {
		words[i] = "word"
	}
	text := strings.Join(words, " ") + "."

	chunks := SplitText(text, 25)
	if len(chunks) < 2 {
		t.Fatalf("expected word-level split, got %d chunks", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > 25 {
			t.Fatalf("chunk[%d] = %d runes, exceeds limit", i, utf8.RuneCountInString(chunk))
		}
	}
	if strings.Join(chunks, " ") != strings.Join(words, " ") {
		t.Fatalf("content lost across split: %q", chunks)
	}
}

func TestSplitTextKeepsOverlongWordIntact(t *testing.T) {
	long := strings.Repeat("x", 40)
	chunks := SplitText(long+".", 25)
	if len(chunks) != 1 || chunks[0] != long {
		t.Fatalf("chunks = %q, want the word intact", chunks)
	}
}

func TestSplitTextEmptyInput(t *testing.T) {
	if got := SplitText("", 100); got != nil {
		t.Fatalf("expected nil for empty input, got %q", got)
	}
	if got := SplitText("...!?", 100); got != nil {
		t.Fatalf("expected nil for punctuation-only input, got %q", got)
	}
}

func TestSplitTextDefaultLimit(t *testing.T) {
	text := strings.Repeat("This sentence repeats to build a long document. ", 100)
	chunks := SplitText(text, 0)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks under default limit, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if utf8.RuneCountInString(chunk) > DefaultMaxChunkSize {
			t.Fatalf("chunk[%d] exceeds default limit", i)
		}
	}
}
