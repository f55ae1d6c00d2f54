// Package openai implements embedder.Provider on the OpenAI embeddings API
// and any compatible endpoint, such as DashScope, selected by BaseURL.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	openai "github.com/sashabaranov/go-openai"

	"github.com/odiumxp/ai-brain/pkg/embedder"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "text-embedding-3-small"

// maxBatch is the number of inputs sent per request.
const maxBatch = 256

// Config configures the client. Only APIKey is required.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string

	// Dimensions is reported before the first call. Zero means it is
	// learned from the first response.
	Dimensions int
}

// Client implements embedder.Provider.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions atomic.Int64
}

var _ embedder.Provider = (*Client)(nil)

// NewClient creates an embeddings client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai embedder: api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	c := &Client{
		client: openai.NewClientWithConfig(config),
		model:  openai.EmbeddingModel(model),
	}
	c.dimensions.Store(int64(cfg.Dimensions))
	return c, nil
}

// Embed implements embedder.Provider.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements embedder.Provider. Large inputs are split into
// several requests.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxBatch {
		end := start + maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := c.request(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) request(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings %s: %w", c.model, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings %s: got %d vectors for %d inputs", c.model, len(resp.Data), len(texts))
	}

	vectors := make([][]float64, len(texts))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) || vectors[idx] != nil {
			idx = i
		}
		v := make([]float64, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float64(x)
		}
		vectors[idx] = v
	}
	if len(vectors[0]) > 0 {
		c.dimensions.CompareAndSwap(0, int64(len(vectors[0])))
	}
	return vectors, nil
}

// Dimensions implements embedder.Provider.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}

// Close implements embedder.Provider.
func (c *Client) Close() error {
	return nil
}
