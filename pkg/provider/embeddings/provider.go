// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// Mirepoix embeds recipe titles and step text into dense float32 vectors; the
// recipe catalog ranks recipes by cosine distance over those vectors to power
// "cook something similar" suggestions and free-text recipe search.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// Every vector produced by one Provider instance has the same length,
// reported by Dimensions. Vectors from different providers (or different
// models) live in different spaces and must not be compared.
type Provider interface {
	// Embed computes the embedding vector for one text string. The text is
	// passed to the model verbatim; any model-specific prefixing is the
	// caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in a single provider call. The result has the
	// same length and order as texts. On error the whole result is nil;
	// partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces.
	Dimensions() int

	// ModelID returns the backend's model identifier, for logging and for
	// verifying that a stored index matches the configured model.
	ModelID() string
}
