package hash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/embedder"
	"github.com/odiumxp/ai-brain/pkg/embedder/hash"
	"github.com/odiumxp/ai-brain/pkg/intelligence"
)

var _ embedder.Provider = (*hash.Client)(nil)

func TestClient_Deterministic(t *testing.T) {
	c := hash.NewClient(nil)
	ctx := context.Background()

	a, err := c.Embed(ctx, "Planning a trip to Japan")
	require.NoError(t, err)
	b, err := c.Embed(ctx, "planning a TRIP to japan!")
	require.NoError(t, err)

	assert.Len(t, a, hash.DefaultDimensions)
	assert.InDelta(t, 1.0, intelligence.CosineSimilarity(a, b), 1e-9)
}

func TestClient_SharedWordsAreSimilar(t *testing.T) {
	c := hash.NewClient(&hash.Config{Dimensions: 512})
	ctx := context.Background()

	vecs, err := c.EmbedBatch(ctx, []string{
		"I am learning to play the guitar",
		"guitar learning is going well",
		"quarterly tax filing deadline",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	related := intelligence.CosineSimilarity(vecs[0], vecs[1])
	unrelated := intelligence.CosineSimilarity(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.Equal(t, 512, c.Dimensions())
}

func TestClient_EmptyText(t *testing.T) {
	c := hash.NewClient(nil)
	vec, err := c.Embed(context.Background(), "  ?! ")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hash.NewClient(nil).Embed(ctx, "hello")
	assert.Error(t, err)
}
