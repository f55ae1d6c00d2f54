package episodic_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/embedder/hash"
	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setupEpisodicTest(t *testing.T, emotionResponse string) (*episodic.Engine, *sqlstore.Store, *clock) {
	t.Helper()
	store, err := sqliteStore.NewClient(context.Background(), &sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "brain.db"),
		NodeID: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := oracle.DefaultConfig()
	cfg.RatePerSecond = 0
	embeddings, err := oracle.NewEmbeddingOracle(hash.NewClient(nil), cfg)
	require.NoError(t, err)
	t.Cleanup(embeddings.Close)

	text := oracle.NewTextOracle(llmtest.New(emotionResponse), cfg)
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	engine := episodic.New(store, embeddings, text, episodic.DefaultConfig(), episodic.WithClock(clk.Now))
	return engine, store, clk
}

func TestEngine_StoreMemory_ScoresTurn(t *testing.T) {
	engine, store, _ := setupEpisodicTest(t, `{"fear": 0.8, "sadness": 0.2}`)
	ctx := context.Background()

	m, err := engine.StoreMemory(ctx, episodic.Turn{
		UserID:   "alice",
		UserText: "I feel really scared about my exam tomorrow???",
		AIText:   "That sounds stressful. What subject is it?",
	})
	require.NoError(t, err)
	assert.NotZero(t, m.ID)
	assert.InDelta(t, 2.5, m.Importance, 1e-9)
	assert.InDelta(t, 2.5, m.BaseImportance, 1e-9)
	assert.NotNil(t, m.Embedding)

	stored, err := store.GetMemory(ctx, "alice", m.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.8, stored.Emotions["fear"])
	assert.Equal(t, "That sounds stressful. What subject is it?", stored.AIText)
	assert.Len(t, stored.Embedding, hash.DefaultDimensions)
}

func TestEngine_StoreMemory_OraclesDown(t *testing.T) {
	_, store, clk := setupEpisodicTest(t, "")
	engine := episodic.New(store, nil, nil, episodic.DefaultConfig(), episodic.WithClock(clk.Now))

	m, err := engine.StoreMemory(context.Background(), episodic.Turn{
		UserID:   "alice",
		UserText: "I feel really scared about my exam tomorrow???",
		AIText:   "ok",
	})
	require.NoError(t, err)
	assert.Nil(t, m.Embedding)
	assert.InDelta(t, 2.0, m.Importance, 1e-9)
	for _, v := range m.Emotions {
		assert.Zero(t, v)
	}
}

func TestEngine_StoreMemory_MalformedEmotions(t *testing.T) {
	engine, _, _ := setupEpisodicTest(t, "I cannot help with that")
	m, err := engine.StoreMemory(context.Background(), episodic.Turn{UserID: "alice", UserText: "ok", AIText: "ok"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, m.Importance, 1e-9)
}

func TestEngine_StoreMemory_Invalid(t *testing.T) {
	engine, _, _ := setupEpisodicTest(t, "{}")
	_, err := engine.StoreMemory(context.Background(), episodic.Turn{UserText: "hi"})
	assert.ErrorIs(t, err, episodic.ErrInvalidTurn)

	_, err = engine.StoreMemory(context.Background(), episodic.Turn{UserID: "alice", UserText: "  "})
	assert.ErrorIs(t, err, episodic.ErrInvalidTurn)
}

func TestEngine_StoreMemory_StoreFailure(t *testing.T) {
	engine, store, _ := setupEpisodicTest(t, "{}")
	require.NoError(t, store.Close())

	_, err := engine.StoreMemory(context.Background(), episodic.Turn{UserID: "alice", UserText: "hi", AIText: "hello"})
	assert.Error(t, err)
}

// stallingStore blocks writes and listings until the caller's context ends.
type stallingStore struct {
	storage.MemoryStore
}

func (s stallingStore) InsertMemory(ctx context.Context, _ *storage.Memory) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s stallingStore) ListMemories(ctx context.Context, _ storage.MemoryQuery) ([]*storage.Memory, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestEngine_StoreTimeout(t *testing.T) {
	_, store, clk := setupEpisodicTest(t, "{}")
	engine := episodic.New(stallingStore{MemoryStore: store}, nil, nil, episodic.DefaultConfig(),
		episodic.WithClock(clk.Now),
		episodic.WithStoreTimeout(20*time.Millisecond))
	ctx := context.Background()

	start := time.Now()
	_, err := engine.StoreMemory(ctx, episodic.Turn{UserID: "alice", UserText: "hi", AIText: "hello"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = engine.RetrieveRelevantMemories(ctx, episodic.Query{UserID: "alice", Text: "hi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func storeTurns(t *testing.T, engine *episodic.Engine, clk *clock, user string, texts ...string) []*storage.Memory {
	t.Helper()
	var out []*storage.Memory
	for _, text := range texts {
		m, err := engine.StoreMemory(context.Background(), episodic.Turn{UserID: user, UserText: text, AIText: "noted"})
		require.NoError(t, err)
		out = append(out, m)
		clk.Advance(time.Minute)
	}
	return out
}

func TestEngine_Retrieve_CountsAccessOnReturnedOnly(t *testing.T) {
	engine, store, clk := setupEpisodicTest(t, "{}")
	ctx := context.Background()

	stored := storeTurns(t, engine, clk, "alice", "first", "second", "third")

	got, err := engine.RetrieveRelevantMemories(ctx, episodic.Query{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, stored[2].ID, got[0].ID)
	assert.Equal(t, stored[1].ID, got[1].ID)
	assert.Equal(t, int64(1), got[0].AccessCount)

	for i, want := range []int64{0, 1, 1} {
		m, err := store.GetMemory(ctx, "alice", stored[i].ID)
		require.NoError(t, err)
		assert.Equal(t, want, m.AccessCount, "memory %d", i)
	}
	untouched, err := store.GetMemory(ctx, "alice", stored[0].ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastAccessed)

	_, err = engine.RetrieveRelevantMemories(ctx, episodic.Query{UserID: "alice", Limit: 2})
	require.NoError(t, err)
	again, err := store.GetMemory(ctx, "alice", stored[2].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.AccessCount)
}

func TestEngine_Retrieve_RelevanceFloor(t *testing.T) {
	engine, store, clk := setupEpisodicTest(t, "{}")
	ctx := context.Background()

	storeTurns(t, engine, clk, "alice", "kept")
	require.NoError(t, store.InsertMemory(ctx, &storage.Memory{
		UserID: "alice", UserText: "faded", AIText: "x",
		Importance: 0.3, BaseImportance: 1, CreatedAt: clk.Now(),
	}))

	got, err := engine.RetrieveRelevantMemories(ctx, episodic.Query{UserID: "alice", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].UserText)
}

func TestEngine_Retrieve_RanksBySimilarity(t *testing.T) {
	engine, _, clk := setupEpisodicTest(t, "{}")

	storeTurns(t, engine, clk, "alice",
		"hiking in the mountains every weekend",
		"filing tax forms is boring",
		"the grocery list needs milk",
	)

	got, err := engine.RetrieveRelevantMemories(context.Background(), episodic.Query{
		UserID: "alice", Text: "mountains hiking", Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hiking in the mountains every weekend", got[0].UserText)
}

func TestEngine_Retrieve_DegradesWithoutEmbeddings(t *testing.T) {
	_, store, clk := setupEpisodicTest(t, "{}")
	engine := episodic.New(store, nil, nil, episodic.DefaultConfig(), episodic.WithClock(clk.Now))

	stored := storeTurns(t, engine, clk, "alice", "hiking in the mountains", "tax forms")

	got, err := engine.RetrieveRelevantMemories(context.Background(), episodic.Query{
		UserID: "alice", Text: "mountains", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, stored[1].ID, got[0].ID)
}

func TestEngine_Retrieve_PersonaScope(t *testing.T) {
	engine, _, _ := setupEpisodicTest(t, "{}")
	ctx := context.Background()

	_, err := engine.StoreMemory(ctx, episodic.Turn{UserID: "alice", PersonaID: "coach", UserText: "run", AIText: "go"})
	require.NoError(t, err)
	_, err = engine.StoreMemory(ctx, episodic.Turn{UserID: "alice", PersonaID: "chef", UserText: "cook", AIText: "stir"})
	require.NoError(t, err)

	got, err := engine.RetrieveRelevantMemories(ctx, episodic.Query{UserID: "alice", PersonaID: "chef"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cook", got[0].UserText)
}

func TestEngine_PinAndStats(t *testing.T) {
	engine, _, clk := setupEpisodicTest(t, "{}")
	ctx := context.Background()

	stored := storeTurns(t, engine, clk, "alice", "a", "b")
	require.NoError(t, engine.Pin(ctx, "alice", stored[0].ID))

	stats, err := engine.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalMemories)
	assert.Equal(t, int64(1), stats.PinnedCount)

	require.NoError(t, engine.Unpin(ctx, "alice", stored[0].ID))
	require.NoError(t, engine.Delete(ctx, "alice", stored[1].ID))

	stats, err = engine.GetMemoryStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalMemories)
	assert.Zero(t, stats.PinnedCount)

	assert.True(t, storage.IsNotFound(engine.Delete(ctx, "alice", stored[1].ID)))
}
