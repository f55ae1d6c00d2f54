package chains_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

func addChain(t *testing.T, store storage.ChainStore, c *storage.Chain) *storage.Chain {
	t.Helper()
	if c.UserID == "" {
		c.UserID = "alice"
	}
	if c.Type == "" {
		c.Type = "narrative"
	}
	if len(c.MemoryIDs) > 0 {
		c.StartMemoryID = c.MemoryIDs[0]
		c.EndMemoryID = c.MemoryIDs[len(c.MemoryIDs)-1]
	}
	require.NoError(t, store.InsertChain(context.Background(), c))
	return c
}

func TestEngine_GetChainMemories(t *testing.T) {
	engine, store := setupChainsTest(t, nil)
	ctx := context.Background()

	a := addMemory(t, store, "a", nil, nil, 1, base.Add(-3*time.Hour))
	b := addMemory(t, store, "b", nil, nil, 1, base.Add(-2*time.Hour))
	gone := addMemory(t, store, "gone", nil, nil, 1, base.Add(-time.Hour))
	c := addChain(t, store, &storage.Chain{
		Name: "x", MemoryIDs: []int64{b.ID, a.ID, gone.ID}, Strength: 0.5,
		CreatedAt: base.Add(-time.Hour), UpdatedAt: base.Add(-time.Hour),
	})
	require.NoError(t, store.DeleteMemory(ctx, "alice", gone.ID))

	got, err := engine.GetChainMemories(ctx, "alice", c.ID)
	require.NoError(t, err)
	require.Len(t, got.Memories, 2)
	assert.Equal(t, b.ID, got.Memories[0].ID)
	assert.Equal(t, a.ID, got.Memories[1].ID)
	assert.Equal(t, int64(1), got.Chain.AccessCount)

	stored, err := store.GetChain(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.AccessCount)
	assert.True(t, stored.UpdatedAt.Equal(base))

	_, err = engine.GetChainMemories(ctx, "bob", c.ID)
	assert.True(t, storage.IsNotFound(err))
}

func TestEngine_Find(t *testing.T) {
	engine, store := setupChainsTest(t, nil)
	ctx := context.Background()

	addChain(t, store, &storage.Chain{Name: "w", MemoryIDs: []int64{1, 2}, Strength: 0.9, Summary: "Work stress", Topics: []string{"work"}})
	addChain(t, store, &storage.Chain{Name: "t", MemoryIDs: []int64{3, 4}, Strength: 0.4, Summary: "Holiday", Topics: []string{"travel"}})
	addChain(t, store, &storage.Chain{UserID: "bob", Name: "b", MemoryIDs: []int64{5, 6}, Strength: 1, Summary: "work"})

	all, err := engine.Find(ctx, "alice", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "w", all[0].Name)

	travel, err := engine.Find(ctx, "alice", "travel", 5)
	require.NoError(t, err)
	require.Len(t, travel, 1)
	assert.Equal(t, "t", travel[0].Name)

	work, err := engine.Find(ctx, "alice", "WORK", 5)
	require.NoError(t, err)
	require.Len(t, work, 1)
	assert.Equal(t, "w", work[0].Name)
}

func TestEngine_GetNarrativeUnderstanding(t *testing.T) {
	provider := llmtest.New("").On("coherent narrative understanding", "Alice balances work and rest.")
	engine, store := setupChainsTest(t, provider)
	ctx := context.Background()

	none, err := engine.GetNarrativeUnderstanding(ctx, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, none)

	for i, name := range []string{"a", "b", "c", "d"} {
		addChain(t, store, &storage.Chain{Name: name, MemoryIDs: []int64{1, 2}, Strength: 1 - float64(i)/10, Summary: "summary " + name})
	}

	n, err := engine.GetNarrativeUnderstanding(ctx, "alice", "")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "General", n.Topic)
	assert.Equal(t, 4, n.ChainsAnalyzed)
	assert.Equal(t, "Alice balances work and rest.", n.Narrative)
	assert.Len(t, n.KeyChains, 3)
	assert.False(t, n.Degraded)
	assert.Contains(t, provider.Calls()[0], "Chain: a")
}

func TestEngine_GetNarrativeUnderstanding_Degraded(t *testing.T) {
	provider := llmtest.New("").Fail("coherent narrative", errors.New("down"))
	engine, store := setupChainsTest(t, provider)

	addChain(t, store, &storage.Chain{Name: "a", MemoryIDs: []int64{1, 2}, Strength: 0.9, Summary: "first"})
	addChain(t, store, &storage.Chain{Name: "b", MemoryIDs: []int64{3, 4}, Strength: 0.8, Summary: chains.PlaceholderSummary})

	n, err := engine.GetNarrativeUnderstanding(context.Background(), "alice", "")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.True(t, n.Degraded)
	assert.Equal(t, "first", n.Narrative)
}
