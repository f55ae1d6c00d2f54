package chains_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

var joy = map[string]float64{"joy": 0.6}

func setupChainsTest(t *testing.T, provider *llmtest.Provider) (*chains.Engine, *sqlstore.Store) {
	t.Helper()
	store, err := sqliteStore.NewClient(context.Background(), &sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "brain.db"),
		NodeID: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	var text *oracle.TextOracle
	if provider != nil {
		cfg := oracle.DefaultConfig()
		cfg.RatePerSecond = 0
		text = oracle.NewTextOracle(provider, cfg)
	}

	engine := chains.New(store, text, chains.DefaultConfig(), chains.WithClock(func() time.Time { return base }))
	return engine, store
}

func addMemory(t *testing.T, store storage.MemoryStore, text string, emb []float64, emotions map[string]float64, importance float64, created time.Time) *storage.Memory {
	t.Helper()
	m := &storage.Memory{
		UserID:         "alice",
		UserText:       text,
		AIText:         "noted",
		Embedding:      emb,
		Emotions:       emotions,
		Importance:     importance,
		BaseImportance: importance,
		CreatedAt:      created,
	}
	require.NoError(t, store.InsertMemory(context.Background(), m))
	return m
}

func TestEngine_Build_CreatesChronologicalChain(t *testing.T) {
	provider := llmtest.New("").On("Analyze this sequence of conversations", "A travel project unfolds.")
	engine, store := setupChainsTest(t, provider)
	ctx := context.Background()

	m3 := addMemory(t, store, "planning travel", []float64{1, 0, 0}, joy, 1, base.Add(-4*time.Hour))
	m2 := addMemory(t, store, "booked the flights", []float64{1, 0, 0}, joy, 1, base.Add(-3*time.Hour))
	m1 := addMemory(t, store, "packing list", []float64{1, 0, 0}, joy, 1, base.Add(-2*time.Hour))
	seed := addMemory(t, store, "the project trip starts", []float64{1, 0, 0}, joy, 1, base.Add(-time.Hour))

	created, err := engine.Build(ctx, "alice", chains.BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, created)

	list, err := store.ListChains(ctx, storage.ChainQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	c := list[0]

	assert.Equal(t, []int64{m3.ID, m2.ID, m1.ID, seed.ID}, c.MemoryIDs)
	assert.Equal(t, m3.ID, c.StartMemoryID)
	assert.Equal(t, seed.ID, c.EndMemoryID)
	assert.Equal(t, "narrative", c.Type)
	assert.Equal(t, "Narrative Chain (2024-03-01)", c.Name)
	assert.Equal(t, "A travel project unfolds.", c.Summary)
	assert.Equal(t, []string{"project", "travel", "plan"}, c.Topics)
	assert.Equal(t, "joy", c.Arc.Dominant)
	assert.Greater(t, c.Strength, 0.95)
	assert.Less(t, c.Strength, 1.0)

	again, err := engine.Build(ctx, "alice", chains.BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestEngine_Build_SingleRelationshipMakesNoChain(t *testing.T) {
	engine, store := setupChainsTest(t, llmtest.New("summary"))
	ctx := context.Background()

	addMemory(t, store, "unrelated old memory", []float64{0, 1, 0}, nil, 1, base.Add(-10*24*time.Hour))
	addMemory(t, store, "related", []float64{1, 0, 0}, joy, 1, base.Add(-2*time.Hour))
	addMemory(t, store, "seed", []float64{1, 0, 0}, joy, 1, base.Add(-time.Hour))

	created, err := engine.Build(ctx, "alice", chains.BuildOptions{})
	require.NoError(t, err)
	assert.Zero(t, created)

	list, err := store.ListChains(ctx, storage.ChainQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEngine_Build_SeedPool(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		pool    int
		created int
	}{
		{pool: 1, created: 0},
		{pool: 0, created: 1},
	} {
		engine, store := setupChainsTest(t, nil)
		addMemory(t, store, "a", []float64{1, 0, 0}, joy, 1, base.Add(-5*24*time.Hour-3*time.Hour))
		addMemory(t, store, "b", []float64{1, 0, 0}, joy, 1, base.Add(-5*24*time.Hour-2*time.Hour))
		addMemory(t, store, "c", []float64{1, 0, 0}, joy, 1, base.Add(-5*24*time.Hour-time.Hour))
		addMemory(t, store, "unrelated", []float64{0, 1, 0}, nil, 1, base.Add(-time.Hour))

		cfg := chains.DefaultConfig()
		cfg.SeedPool = tc.pool
		engine = chains.New(store, nil, cfg, chains.WithClock(func() time.Time { return base }))

		created, err := engine.Build(ctx, "alice", chains.BuildOptions{})
		require.NoError(t, err)
		assert.Equal(t, tc.created, created, "seed pool %d", tc.pool)
	}
}

func TestEngine_Build_KeepsTopRelated(t *testing.T) {
	engine, store := setupChainsTest(t, nil)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		addMemory(t, store, "related", []float64{1, 0, 0}, joy, 1, base.Add(-time.Duration(10+i)*time.Hour))
	}
	seed := addMemory(t, store, "seed", []float64{1, 0, 0}, joy, 1, base.Add(-time.Hour))

	c, err := engine.BuildForSeed(ctx, "alice", seed.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Len(t, c.MemoryIDs, 6)
	assert.Equal(t, seed.ID, c.EndMemoryID)
	assert.Equal(t, chains.PlaceholderSummary, c.Summary)

	again, err := engine.BuildForSeed(ctx, "alice", seed.ID)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEngine_Build_SummaryFailureKeepsChain(t *testing.T) {
	provider := llmtest.New("").Fail("Analyze this sequence", errors.New("timeout"))
	engine, store := setupChainsTest(t, provider)
	ctx := context.Background()

	addMemory(t, store, "a", []float64{1, 0, 0}, joy, 1, base.Add(-3*time.Hour))
	addMemory(t, store, "b", []float64{1, 0, 0}, joy, 1, base.Add(-2*time.Hour))
	seed := addMemory(t, store, "c", []float64{1, 0, 0}, joy, 1, base.Add(-time.Hour))

	c, err := engine.BuildForSeed(ctx, "alice", seed.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, chains.PlaceholderSummary, c.Summary)
}

func TestEngine_Relationships(t *testing.T) {
	engine, store := setupChainsTest(t, nil)

	addMemory(t, store, "far", []float64{0, 1, 0}, nil, 1, base.Add(-20*24*time.Hour))
	near := addMemory(t, store, "near", []float64{1, 0, 0}, joy, 1, base.Add(-2*time.Hour))
	seed := addMemory(t, store, "seed", []float64{1, 0, 0}, joy, 1, base.Add(-time.Hour))

	rels, err := engine.Relationships(context.Background(), "alice", seed.ID)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, near.ID, rels[0].Memory.ID)

	_, err = engine.Relationships(context.Background(), "alice", 42)
	assert.True(t, storage.IsNotFound(err))
}
