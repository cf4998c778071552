// Package embedder defines the text embedding provider interface used by the
// vector knowledge retriever.
package embedder

import "context"

// Provider converts text into vector embeddings.
type Provider interface {
	// Embed converts a single text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts in one request. Results are returned
	// in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of vectors produced by this provider.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}
