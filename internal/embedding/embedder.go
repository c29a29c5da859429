// Package embedding provides the embedding-provider contract used to turn raw
// payloads into fixed-dimension vectors, a deterministic feature-hashing
// implementation and an LRU-cached wrapper.
package embedding

import "context"

// Embedder produces vector embeddings for text. Dimensions must not change between
// calls for the lifetime of an experiment.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
