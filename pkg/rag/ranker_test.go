package rag

import (
	"math"
	"testing"

	"pdfchat/pkg/domain"
)

func TestRankOrdersBySimilarity(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "b", Embedding: []float32{0, 1}},
		{ID: "c", Embedding: []float32{0.9, 0.1}},
	}
	ranked := Rank([]float32{1, 0}, chunks, 3)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(ranked))
	}
	if ranked[0].Chunk.ID != "a" || ranked[1].Chunk.ID != "c" || ranked[2].Chunk.ID != "b" {
		t.Fatalf("order = %s, %s, %s", ranked[0].Chunk.ID, ranked[1].Chunk.ID, ranked[2].Chunk.ID)
	}
	if ranked[0].Score < ranked[1].Score || ranked[1].Score < ranked[2].Score {
		t.Fatalf("scores not descending: %v, %v, %v", ranked[0].Score, ranked[1].Score, ranked[2].Score)
	}
}

func TestRankCapsAtTopK(t *testing.T) {
	chunks := make([]domain.Chunk, 10)
	for i := range chunks {
		chunks[i] = domain.Chunk{Index: i, Embedding: []float32{1, float32(i)}}
	}
	ranked := Rank([]float32{1, 0}, chunks, 3)
	if len(ranked) != 3 {
		t.Fatalf("ranked = %d, want 3", len(ranked))
	}
}

func TestRankStableTies(t *testing.T) {
	chunks := []domain.Chunk{
		{Index: 0, Embedding: []float32{1, 0}},
		{Index: 1, Embedding: []float32{1, 0}},
		{Index: 2, Embedding: []float32{1, 0}},
	}
	ranked := Rank([]float32{1, 0}, chunks, 3)
	for i, item := range ranked {
		if item.Chunk.Index != i {
			t.Fatalf("tie order broken at %d: got index %d", i, item.Chunk.Index)
		}
	}
}

func TestRankMismatchedDimensionScoresZero(t *testing.T) {
	chunks := []domain.Chunk{
		{ID: "short", Embedding: []float32{1}},
		{ID: "match", Embedding: []float32{0.5, 0.5}},
	}
	ranked := Rank([]float32{1, 0}, chunks, 2)
	if ranked[0].Chunk.ID != "match" {
		t.Fatalf("expected matching-dimension chunk first, got %s", ranked[0].Chunk.ID)
	}
	if ranked[1].Score != 0 {
		t.Fatalf("mismatched-dimension score = %v, want 0", ranked[1].Score)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %v, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Fatalf("orthogonal vectors = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("zero-norm vector = %v, want 0", got)
	}
	if got := CosineSimilarity([]float32{1}, []float32{1, 0}); got != 0 {
		t.Fatalf("mismatched lengths = %v, want 0", got)
	}
}
