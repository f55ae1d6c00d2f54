// Package hash provides a deterministic, offline embedding provider.
//
// Every lower-cased word is hashed with FNV-1a into one of Dimensions
// buckets with a hash-derived sign, and the resulting bag-of-words vector is
// normalized to unit length. Texts sharing words get a positive cosine
// similarity, which is enough for local development and tests.
package hash

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
)

// DefaultDimensions is used when Config.Dimensions is zero.
const DefaultDimensions = 256

// Config configures the hash embedder.
type Config struct {
	Dimensions int
}

// Client implements embedder.Provider without any network calls.
type Client struct {
	dimensions int
}

// NewClient creates a hash embedder.
func NewClient(cfg *Config) *Client {
	dims := DefaultDimensions
	if cfg != nil && cfg.Dimensions > 0 {
		dims = cfg.Dimensions
	}
	return &Client{dimensions: dims}
}

// Embed hashes the words of text into a unit vector. Text without any word
// yields the zero vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float64, c.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New64a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum64()
		bucket := int(sum % uint64(c.dimensions))
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	return intelligence.NormalizeVector(vec), nil
}

// EmbedBatch embeds each text in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is a no-op.
func (c *Client) Close() error {
	return nil
}
