package embedding

import (
	"context"
	"fmt"
)

// TextEmbedder is the slice of an LLM provider that embedding needs.
// llm.Provider satisfies it.
type TextEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// LLMEmbedder adapts a remote embedding endpoint to the Provider contract,
// enforcing the configured dimension on every returned vector.
type LLMEmbedder struct {
	backend   TextEmbedder
	dimension int
}

// NewLLMEmbedder wraps a remote embedding backend. The dimension must match
// what the remote model produces; the first mismatched vector is a hard error.
func NewLLMEmbedder(backend TextEmbedder, dimension int) (*LLMEmbedder, error) {
	if backend == nil {
		return nil, fmt.Errorf("llm embedder: nil backend")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("llm embedder: invalid dimension %d", dimension)
	}
	return &LLMEmbedder{backend: backend, dimension: dimension}, nil
}

func (e *LLMEmbedder) Name() string   { return e.backend.Name() }
func (e *LLMEmbedder) Dimension() int { return e.dimension }

func (e *LLMEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *LLMEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.backend.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), e.dimension)
		}
	}
	return vectors, nil
}
