package vectorstore

import "context"

// Vector is one point to upsert: a caller-assigned stable ID, the
// embedding values, and a metadata payload stored alongside the vector.
type Vector struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// Match is one query hit, highest score first.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// VectorStore is the minimal surface the document index needs from a
// vector database. Upserting an existing ID replaces the point in place.
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	DropCollection(ctx context.Context) error
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, q []float32, topK int) ([]Match, error)
}
