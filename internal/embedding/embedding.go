// Package embedding provides the text embedding capability consumed by the
// memory subsystem: a pluggable Provider interface, a deterministic local
// implementation, an HTTP implementation for Ollama-compatible servers, an
// LRU-cached wrapper, and cosine similarity helpers.
//
// Embedding failures never propagate into storage: SafeEmbed degrades to the
// zero vector, which stores fine but is excluded from similarity rankings.
package embedding

import (
	"context"
	"log"
	"math"
)

// DefaultDimension is the embedding dimension used when none is configured.
// It matches compact sentence-embedding models such as all-MiniLM-L6-v2.
const DefaultDimension = 384

// Provider generates embedding vectors from text. Implementations must be
// deterministic for a fixed model version and safe for concurrent use.
type Provider interface {
	// Embed converts text to a fixed-dimension vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts several texts in one call. The result has one
	// vector per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector length this provider produces.
	Dimension() int

	// Model returns the model version identifier.
	Model() string
}

// CosineSimilarity computes the cosine similarity of two vectors, clamped to
// [0, 1]. It returns 0 when the vectors differ in length or either has zero
// norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Normalize scales the vector to unit length in place and returns it.
// A zero vector is returned unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// IsZero reports whether every component of the vector is zero. Zero vectors
// mark records whose embedding provider call failed.
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// ZeroVector returns an all-zero vector of the given dimension.
func ZeroVector(dimension int) []float32 {
	return make([]float32, dimension)
}

// SafeEmbed embeds text, degrading to the zero vector when the provider
// fails. The failure is logged; it is never returned.
func SafeEmbed(ctx context.Context, p Provider, text string, logger *log.Logger) []float32 {
	vec, err := p.Embed(ctx, text)
	if err != nil {
		if logger != nil {
			logger.Printf("embedding: provider failed, substituting zero vector: %v", err)
		}
		return ZeroVector(p.Dimension())
	}
	return vec
}
