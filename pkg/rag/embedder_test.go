package rag

import (
	"context"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder()
	a, err := e.EmbedText(context.Background(), "The quick brown fox jumps over the lazy dog.", "")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, err := e.EmbedText(context.Background(), "The quick brown fox jumps over the lazy dog.", "")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(a) != EmbeddingDim || len(b) != EmbeddingDim {
		t.Fatalf("dims = %d/%d, want %d", len(a), len(b), EmbeddingDim)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("component %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestHashEmbedderDistinguishesTexts(t *testing.T) {
	e := NewHashEmbedder()
	a, _ := e.EmbedText(context.Background(), "cats purr softly", "")
	b, _ := e.EmbedText(context.Background(), "dogs bark loudly", "")
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different texts produced identical embeddings")
	}
}

func TestHashEmbedderRange(t *testing.T) {
	e := NewHashEmbedder()
	vec, _ := e.EmbedText(context.Background(), "a b c some words of varied length present here", "")
	for i, v := range vec {
		if v < 0 || v > 1 {
			t.Fatalf("component %d out of [0,1]: %v", i, v)
		}
	}
}

func TestHashEmbedderEmptyText(t *testing.T) {
	e := NewHashEmbedder()
	vec, err := e.EmbedText(context.Background(), "", "")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != EmbeddingDim {
		t.Fatalf("dim = %d, want %d", len(vec), EmbeddingDim)
	}
	// Letter-frequency positions are zero for empty text.
	for i := 0; i < 256; i++ {
		if vec[i] != 0 {
			t.Fatalf("component %d = %v, want 0 for empty text", i, vec[i])
		}
	}
}
