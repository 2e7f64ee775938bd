// Package embedding defines the text-to-vector contract shared by ingestion
// and retrieval.
package embedding

import (
	"context"
	"math"
)

// Provider maps text into a fixed-dimension vector space. A provider's
// dimension is fixed at construction; every vector it produces has exactly
// that length. Providers are long-lived and shared, and do not guarantee
// internal synchronization.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per input text, same length and order.
	// An empty input yields an empty output with no error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the fixed vector length.
	Dimension() int
	// Name returns the provider identifier.
	Name() string
}

// Cosine returns the cosine similarity of two vectors in [-1, 1].
// It returns 0 when either vector has zero norm.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
