package embedding

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/hyperjump/vecbench/pkg/utils"
)

// hashProbes is how many buckets each token contributes to.
const hashProbes = 4

// HashEmbedder is a deterministic feature-hashing embedder. Each token adds signed
// weight to a few hashed buckets, so payloads that share words land close together.
// Same text always yields the same unit-length vector.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns the hashed embedding of text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	tokens := splitWords(text)
	if len(tokens) == 0 {
		// Empty payloads still need a non-zero vector for cosine distance.
		emb[0] = 1
		return emb, nil
	}
	for _, tok := range tokens {
		h := xxhash.Sum64String(tok)
		for p := 0; p < hashProbes; p++ {
			bucket := int(h % uint64(e.dimensions))
			sign := float32(1)
			if h&(1<<63) != 0 {
				sign = -1
			}
			emb[bucket] += sign
			h = h*0x9E3779B97F4A7C15 + uint64(p+1)
		}
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for HashEmbedder.
func (e *HashEmbedder) Close() error {
	return nil
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
