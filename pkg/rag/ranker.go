package rag

import (
	"math"
	"sort"

	"pdfchat/pkg/domain"
)

// DefaultTopK is the number of chunks retrieved per query.
const DefaultTopK = 3

// ScoredChunk pairs a chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk domain.Chunk
	Score float64
}

// Rank scores every chunk against the query embedding and returns the
// topK highest by cosine similarity, descending. Ties keep original
// chunk order. Chunks whose embedding has a mismatched dimension score
// 0 instead of erroring.
func Rank(query []float32, chunks []domain.Chunk, topK int) []ScoredChunk {
	if topK <= 0 {
		topK = DefaultTopK
	}
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		scored = append(scored, ScoredChunk{
			Chunk: chunk,
			Score: CosineSimilarity(query, chunk.Embedding),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored
}

// CosineSimilarity returns dot(a,b)/(|a|*|b|), or 0 when the vectors
// differ in length or either has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
