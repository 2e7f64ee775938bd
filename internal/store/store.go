// Package store defines the vector store gateway: one logical named
// collection holding fixed-dimension vectors with free-form metadata.
package store

import "context"

// Record is a stored vector with its metadata. IDs are deterministic
// ({paper_id}_chunk_{index}), which makes records addressable without a side
// index.
type Record struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// Hit is a single match from a similarity search.
type Hit struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Filter restricts a search to records whose metadata matches every entry.
type Filter map[string]any

// Gateway provides vector storage and similarity search over one collection.
//
// Drivers return errors rather than swallowing them; the composing layers
// decide how a failure is reported. This keeps "no matches" ([]Hit{}, nil)
// distinguishable from "store unavailable" (nil, err).
type Gateway interface {
	// EnsureCollection prepares the collection for vectors of the given
	// dimension. It is idempotent; backends that create collections
	// implicitly on first write may only validate configuration here.
	EnsureCollection(ctx context.Context, dimension int, metric string) error

	// Upsert writes records in bounded batches. A failing batch aborts the
	// call; batches already written are not rolled back, so a mid-call error
	// can leave the collection partially updated.
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to topK hits ordered by descending score, as ranked
	// by the store. A nil filter matches everything.
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Hit, error)

	// Fetch returns the record with the given id, or (nil, nil) when absent.
	Fetch(ctx context.Context, id string) (*Record, error)

	// DeleteCollection removes the collection. Deleting an absent collection
	// is success.
	DeleteCollection(ctx context.Context) error

	// HealthCheck reports whether the store answers at all. It is a liveness
	// probe, not a content guarantee.
	HealthCheck(ctx context.Context) bool
}

// DefaultBatchSize bounds upsert payloads.
const DefaultBatchSize = 100
