package usermodel_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/storage"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

const day = 24 * time.Hour

func addGoal(t *testing.T, store storage.UserModelStore, description string, priority, progress int, updated time.Time) *storage.Goal {
	t.Helper()
	g := &storage.Goal{
		UserID:         "alice",
		Description:    description,
		Key:            storage.NormalizeKey(description),
		Category:       "personal",
		Priority:       priority,
		Progress:       progress,
		Status:         storage.GoalActive,
		FirstMentioned: updated,
		UpdatedAt:      updated,
	}
	require.NoError(t, store.InsertGoal(context.Background(), g))
	return g
}

func addBelief(t *testing.T, store storage.UserModelStore, statement string, strength float64, reinforced time.Time) *storage.Belief {
	t.Helper()
	b := &storage.Belief{
		UserID:         "alice",
		Statement:      statement,
		Key:            storage.NormalizeKey(statement),
		Category:       "personal",
		Strength:       strength,
		Confidence:     0.5,
		Active:         true,
		FirstExpressed: reinforced,
		LastReinforced: reinforced,
	}
	require.NoError(t, store.InsertBelief(context.Background(), b))
	return b
}

func TestEngine_Reprocess(t *testing.T) {
	ctx := context.Background()
	engine, store := setupUserModelTest(t, llmtest.New("").On(beliefPrompt, remoteWork), never)

	m1 := addMemory(t, store, "remote work is great", now.Add(-3*time.Hour))
	m2 := addMemory(t, store, "I love remote work", now.Add(-time.Hour))
	addMemory(t, store, "remote work, two days ago", now.Add(-2*day))

	users, err := engine.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, users)

	n, err := engine.Reprocess(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := beliefs(t, store)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.6, got[0].Strength, 1e-9)
	assert.ElementsMatch(t, []int64{m1.ID, m2.ID}, got[0].Evidence)

	_, err = engine.Reprocess(ctx, "alice")
	require.NoError(t, err)
	got = beliefs(t, store)
	assert.InDelta(t, 0.6, got[0].Strength, 1e-9, "reprocessing is idempotent")
}

func TestEngine_AdvanceGoals(t *testing.T) {
	ctx := context.Background()
	engine, store := setupUserModelTest(t, nil, never)

	addMemory(t, store, "I practiced programming today", now.Add(-2*time.Hour))
	addMemory(t, store, "learning about channels", now.Add(-5*time.Hour))
	addMemory(t, store, "more programming exercises", now.Add(-day))
	addMemory(t, store, "went hiking", now.Add(-26*time.Hour))
	addMemory(t, store, "hiking is fun", now.Add(-30*time.Hour))
	addMemory(t, store, "programming, long ago", now.Add(-10*day))

	learning := addGoal(t, store, "Learn Go programming", 5, 0, now.Add(-2*day))
	nearlyDone := addGoal(t, store, "Master programming", 5, 88, now.Add(-2*day))
	capped := addGoal(t, store, "Programming mastery", 5, 90, now.Add(-2*day))
	hiking := addGoal(t, store, "Go hiking", 5, 0, now.Add(-2*day))
	fresh := addGoal(t, store, "Learn programming", 5, 0, now.Add(-time.Hour))

	n, err := engine.AdvanceGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	progress := func(g *storage.Goal) int {
		got, err := store.GetGoal(ctx, "alice", g.ID)
		require.NoError(t, err)
		return got.Progress
	}
	assert.Equal(t, 5, progress(learning))
	assert.Equal(t, 90, progress(nearlyDone))
	assert.Equal(t, 90, progress(capped))
	assert.Equal(t, 0, progress(hiking), "two mentions are not enough")
	assert.Equal(t, 0, progress(fresh), "recently updated goals wait")

	n, err = engine.AdvanceGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n, "advanced goals were just updated")
}

func TestEngine_PrioritizeGoals(t *testing.T) {
	ctx := context.Background()
	engine, store := setupUserModelTest(t, nil, never)

	addMemory(t, store, "I still want to Run a Marathon this year", now.Add(-day))
	addMemory(t, store, "I once wanted to write a novel", now.Add(-5*day))

	marathon := addGoal(t, store, "run a marathon", 9, 0, now.Add(-2*day))
	novel := addGoal(t, store, "write a novel", 4, 0, now.Add(-2*day))

	n, err := engine.PrioritizeGoals(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = engine.PrioritizeGoals(ctx, "alice")
	require.NoError(t, err)

	got, err := store.GetGoal(ctx, "alice", marathon.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Priority, "priority is capped")

	got, err = store.GetGoal(ctx, "alice", novel.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Priority)
}

func TestEngine_StrengthenBeliefs(t *testing.T) {
	ctx := context.Background()
	engine, store := setupUserModelTest(t, nil, never)

	recent := addBelief(t, store, "Exercise helps", 0.5, now.Add(-2*day))
	almost := addBelief(t, store, "Sleep matters", 0.99, now.Add(-day))
	old := addBelief(t, store, "Cats are best", 0.5, now.Add(-10*day))

	n, err := engine.StrengthenBeliefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	byID := map[int64]float64{}
	for _, b := range beliefs(t, store) {
		byID[b.ID] = b.Strength
	}
	assert.InDelta(t, 0.525, byID[recent.ID], 1e-9)
	assert.InDelta(t, 1.0, byID[almost.ID], 1e-9)
	assert.InDelta(t, 0.5, byID[old.ID], 1e-9)
}

func TestEngine_Cleanup(t *testing.T) {
	ctx := context.Background()
	engine, store := setupUserModelTest(t, nil, never)

	weak := addBelief(t, store, "Weak and stale", 0.2, now.Add(-100*day))
	addBelief(t, store, "Strong and stale", 0.8, now.Add(-100*day))
	addBelief(t, store, "Weak but recent", 0.2, now.Add(-10*day))

	stale := addGoal(t, store, "Stale goal", 5, 0, now.Add(-70*day))
	started := addGoal(t, store, "Started goal", 5, 10, now.Add(-70*day))
	addGoal(t, store, "Recent goal", 5, 0, now.Add(-10*day))

	report, err := engine.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, &usermodel.CleanupReport{BeliefsDeactivated: 1, GoalsAbandoned: 1}, report)

	active, err := engine.GetBeliefs(ctx, "alice", "", 0)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	for _, b := range active {
		assert.NotEqual(t, weak.ID, b.ID)
	}

	g, err := store.GetGoal(ctx, "alice", stale.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.GoalAbandoned, g.Status)
	g, err = store.GetGoal(ctx, "alice", started.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.GoalActive, g.Status)

	report, err = engine.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, &usermodel.CleanupReport{}, report)
}

func TestEngine_PruneAndAnalyzeMentalStates(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	cfg := usermodel.DefaultConfig()
	cfg.Maintenance.MentalStatesKept = 3
	provider := llmtest.New(joyful)
	engine := newEngine(store, provider, never, cfg)

	for i := 0; i < 25; i++ {
		addMemory(t, store, "day entry", now.Add(-time.Duration(i+1)*time.Hour))
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, store.InsertMentalState(ctx, &storage.MentalState{
			UserID:          "alice",
			DominantEmotion: "calm",
			CreatedAt:       now.Add(-time.Duration(10-i) * day),
		}))
	}

	state, err := engine.AnalyzeMentalState(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "joy", state.DominantEmotion)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 20, strings.Count(calls[0], "day entry"), "analysis reads twenty memories")

	n, err := engine.PruneMentalStates(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	latest, err := engine.GetCurrentMentalState(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "joy", latest.DominantEmotion)
}
