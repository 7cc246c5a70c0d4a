// Package embedding produces fixed-length vectors from text. Two
// variants exist, Remote and Local, selected by configuration.
package embedding

import "context"

// Port is the embedding contract.
type Port interface {
	// Embed returns the embedding vector for text, or
	// *reserr.EmbeddingUnavailable on failure.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dims is the fixed embedding length this variant produces: 1536
	// for Remote, 1024 for Local. Determines which vector index the
	// store must be bound to.
	Dims() int

	// IndexName is the vector-index name this variant's vectors belong
	// in.
	IndexName() string
}
