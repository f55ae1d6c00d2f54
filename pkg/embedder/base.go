// Package embedder defines the embedding provider behind the embedding
// oracle. Memories are embedded as "User: ...\nAI: ..." text and retrieval
// ranks them by cosine similarity against the embedded query.
package embedder

import "context"

// Provider turns text into vectors.
//
// Implementations: openai (any OpenAI compatible endpoint) and hash, a
// deterministic offline provider for tests and local runs.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions is the vector length, or zero while still unknown.
	Dimensions() int

	Close() error
}
