package personality_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/storage"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupPersonalityTest(t *testing.T) (*personality.Engine, *sqlstore.Store) {
	t.Helper()
	store, err := sqliteStore.NewClient(context.Background(), &sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "brain.db"),
		NodeID: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	engine := personality.New(store, personality.DefaultConfig(), personality.WithClock(func() time.Time { return now }))
	return engine, store
}

func addTurn(t *testing.T, store storage.MemoryStore, userText string, created time.Time) {
	t.Helper()
	require.NoError(t, store.InsertMemory(context.Background(), &storage.Memory{
		UserID:         "alice",
		UserText:       userText,
		AIText:         "noted",
		Importance:     1,
		BaseImportance: 1,
		CreatedAt:      created,
	}))
}

func TestEngine_Initialize(t *testing.T) {
	ctx := context.Background()
	engine, store := setupPersonalityTest(t)

	require.NoError(t, engine.Initialize(ctx, "alice"))
	traits, err := store.GetTraits(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, traits, len(personality.Traits))
	for _, tr := range traits {
		assert.Equal(t, personality.DefaultValue, tr.Value)
	}

	humor := traits[0]
	for _, tr := range traits {
		if tr.Name == personality.Humor {
			humor = tr
		}
	}
	humor.Value = 7
	require.NoError(t, store.UpsertTrait(ctx, humor))

	require.NoError(t, engine.Initialize(ctx, "alice"))
	p, err := engine.GetPersonality(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 7.0, p[personality.Humor])
}

func TestEngine_GetPersonality_Defaults(t *testing.T) {
	ctx := context.Background()
	engine, store := setupPersonalityTest(t)

	p, err := engine.GetPersonality(ctx, "nobody")
	require.NoError(t, err)
	assert.Len(t, p, len(personality.Traits))
	for _, name := range personality.Traits {
		assert.Equal(t, personality.DefaultValue, p[name])
	}

	traits, err := store.GetTraits(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, traits)
}

func TestEngine_UpdatePersonality(t *testing.T) {
	ctx := context.Background()
	engine, store := setupPersonalityTest(t)

	addTurn(t, store, "haha that was a good one", now.Add(-2*time.Hour))
	addTurn(t, store, "lol same", now.Add(-time.Hour))
	addTurn(t, store, "haha, this one is too old", now.Add(-8*24*time.Hour))

	report, err := engine.UpdatePersonality(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Analyzed)
	assert.Equal(t, 10.0, report.Signals[personality.Humor])
	assert.InDelta(t, 5.5, report.Values[personality.Humor], 1e-9)
	assert.InDelta(t, 4.5, report.Values[personality.Empathy], 1e-9)
	assert.InDelta(t, 5.0, report.Values[personality.Formality], 1e-9)

	history, err := engine.GetPersonalityHistory(ctx, "alice", personality.Humor)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, map[string]float64{"2024-03-01": 5.5}, roundHistory(history[0].History))
	assert.True(t, history[0].UpdatedAt.Equal(now))

	report, err = engine.UpdatePersonality(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 5.95, report.Values[personality.Humor], 1e-9)

	history, err = engine.GetPersonalityHistory(ctx, "alice", personality.Humor)
	require.NoError(t, err)
	assert.Len(t, history[0].History, 1, "same day overwrites the snapshot")

	all, err := engine.GetPersonalityHistory(ctx, "alice", "")
	require.NoError(t, err)
	assert.Len(t, all, len(personality.Traits))
}

func TestEngine_UpdatePersonality_NoConversations(t *testing.T) {
	ctx := context.Background()
	engine, store := setupPersonalityTest(t)

	report, err := engine.UpdatePersonality(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, report.Analyzed)
	assert.Nil(t, report.Values)

	traits, err := store.GetTraits(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, traits)
}

func TestEngine_ConsolidatePersonality(t *testing.T) {
	ctx := context.Background()
	engine, store := setupPersonalityTest(t)

	updated := now.Add(-48 * time.Hour)
	require.NoError(t, store.UpsertTrait(ctx, &storage.Trait{
		UserID: "alice",
		Name:   personality.Curiosity,
		Value:  8,
		History: map[string]float64{
			"2024-02-25": 6,
			"2024-02-26": 6.5,
			"2024-02-27": 7,
			"2024-02-28": 7.5,
			"2024-02-29": 8,
			"2023-11-01": 1,
			"yesterday":  2,
		},
		CreatedAt: now.Add(-60 * 24 * time.Hour),
		UpdatedAt: updated,
	}))

	out, err := engine.ConsolidatePersonality(ctx, "alice")
	require.NoError(t, err)
	assert.InDelta(t, 8.038, out[personality.Curiosity], 1e-3)

	traits, err := store.GetTraits(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, traits, 1)
	assert.Equal(t, 1, traits[0].ConsolidationCount)
	require.NotNil(t, traits[0].LastConsolidated)
	assert.True(t, traits[0].LastConsolidated.Equal(now))
	assert.True(t, traits[0].UpdatedAt.Equal(updated))

	_, err = engine.ConsolidatePersonality(ctx, "alice")
	require.NoError(t, err)
	traits, err = store.GetTraits(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, traits[0].ConsolidationCount)
	assert.GreaterOrEqual(t, traits[0].Value, personality.MinValue)
	assert.LessOrEqual(t, traits[0].Value, personality.MaxValue)
}

func TestEngine_ConsolidatePersonality_NoTraits(t *testing.T) {
	engine, _ := setupPersonalityTest(t)

	out, err := engine.ConsolidatePersonality(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func roundHistory(h map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(h))
	for k, v := range h {
		out[k] = float64(int(v*1000+0.5)) / 1000
	}
	return out
}

func TestEngine_ConcurrentEvolutionAndConsolidation(t *testing.T) {
	ctx := context.Background()
	_, store := setupPersonalityTest(t)
	require.NoError(t, personality.New(store, personality.DefaultConfig(),
		personality.WithClock(func() time.Time { return now })).Initialize(ctx, "alice"))
	addTurn(t, store, "haha that joke was hilarious, thank you so much!", now.Add(30*24*time.Hour))

	// Every call sees a new day, so each evolution run leaves its own
	// history entry.
	var day atomic.Int64
	clock := func() time.Time { return now.Add(time.Duration(day.Add(1)) * 24 * time.Hour) }
	engine := personality.New(store, personality.DefaultConfig(), personality.WithClock(clock))

	const runs = 6
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := engine.UpdatePersonality(ctx, "alice")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := engine.ConsolidatePersonality(ctx, "alice")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	traits, err := store.GetTraits(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, traits, len(personality.Traits))
	for _, tr := range traits {
		assert.Len(t, tr.History, runs, tr.Name)
		assert.Equal(t, runs, tr.ConsolidationCount, tr.Name)
		assert.GreaterOrEqual(t, tr.Value, personality.MinValue)
		assert.LessOrEqual(t, tr.Value, personality.MaxValue)
	}
}
