package reflection_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/reflection"
	"github.com/odiumxp/ai-brain/pkg/storage"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

const (
	insightPrompt = "self-reflection data"
	day           = 24 * time.Hour
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupReflectionTest(t *testing.T, provider *llmtest.Provider) (*reflection.Engine, *sqlstore.Store) {
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
	engine := reflection.New(store, text, reflection.DefaultConfig(), reflection.WithClock(func() time.Time { return now }))
	return engine, store
}

func memory(id int64, text string, importance float64, emotions map[string]float64, created time.Time) *storage.Memory {
	return &storage.Memory{
		ID:             id,
		UserID:         "alice",
		UserText:       text,
		AIText:         "noted",
		Emotions:       emotions,
		Importance:     importance,
		BaseImportance: importance,
		CreatedAt:      created,
	}
}

func seed(t *testing.T, store *sqlstore.Store) []*storage.Memory {
	t.Helper()
	ctx := context.Background()
	memories := []*storage.Memory{
		memory(0, "I want to learn Go concepts", 2, map[string]float64{"joy": 0.6}, now.Add(-2*time.Hour)),
		memory(0, "remember the trip", 1.2, map[string]float64{"joy": 0.2}, now.Add(-5*time.Hour)),
		memory(0, "I feel tired", 1, map[string]float64{"sadness": 0.3}, now.Add(-26*time.Hour)),
		memory(0, "long ago", 1, nil, now.Add(-10*day)),
	}
	for _, m := range memories {
		require.NoError(t, store.InsertMemory(ctx, m))
	}

	require.NoError(t, store.UpsertTrait(ctx, &storage.Trait{
		UserID: "alice", Name: "humor", Value: 6,
		History: map[string]float64{"2024-03-01": 6, "2024-02-29": 5.5, "2024-02-28": 5, "2024-02-20": 3},
	}))
	require.NoError(t, store.UpsertTrait(ctx, &storage.Trait{
		UserID: "alice", Name: "empathy", Value: 5,
		History: map[string]float64{"2024-03-01": 5},
	}))

	require.NoError(t, store.InsertChain(ctx, &storage.Chain{UserID: "alice", Name: "recent", Type: "narrative",
		MemoryIDs: []int64{memories[0].ID, memories[1].ID}, Strength: 0.6, CreatedAt: now.Add(-day)}))
	require.NoError(t, store.InsertChain(ctx, &storage.Chain{UserID: "alice", Name: "old", Type: "narrative",
		MemoryIDs: []int64{memories[3].ID}, Strength: 0.6, CreatedAt: now.Add(-20 * day)}))

	require.NoError(t, store.InsertEmotionEvents(ctx, []*storage.EmotionEvent{{
		UserID: "alice", Type: "joy", Intensity: 8, Confidence: 0.8, CreatedAt: now.Add(-time.Hour),
	}}))
	return memories
}

func TestEngine_Reflect(t *testing.T) {
	ctx := context.Background()
	provider := llmtest.New("").On(insightPrompt, "You are learning steadily.")
	engine, store := setupReflectionTest(t, provider)
	memories := seed(t, store)

	r, err := engine.Reflect(ctx, "alice", "")
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.Equal(t, reflection.Week, r.Period)
	assert.Equal(t, "You are learning steadily.", r.Insight)
	require.Len(t, provider.Calls(), 1)
	assert.Contains(t, provider.Calls()[0], `"total_memories":3`)

	rep := r.Report
	assert.Equal(t, 3, rep.Memory.Total)
	assert.Equal(t, "joy", rep.Memory.DominantEmotion)
	assert.InDelta(t, 1.4, rep.Memory.AvgImportance, 1e-9)
	assert.Equal(t, map[string]int{"learn": 1, "remember": 1, "feel": 1}, rep.Memory.Topics)
	assert.Equal(t, map[string]int{"morning": 3}, rep.Memory.TimeOfDay)
	assert.Equal(t, []int{10, 7}, rep.Memory.PeakHours)

	assert.Equal(t, 1, rep.Learning.LearningMemories)
	require.Len(t, rep.Learning.KeyInsights, 1)
	assert.Equal(t, memories[0].ID, rep.Learning.KeyInsights[0].MemoryID)
	assert.Equal(t, map[string]int{"humor": 3, "empathy": 1}, rep.Learning.PersonalityShifts)

	require.Contains(t, rep.Behavior.Trends, "humor")
	humor := rep.Behavior.Trends["humor"]
	assert.Equal(t, reflection.Increasing, humor.Direction)
	assert.InDelta(t, 0.75, humor.Change, 1e-9)
	assert.Equal(t, 3, humor.DataPoints)
	assert.NotContains(t, rep.Behavior.Trends, "empathy")
	assert.Equal(t, 4, rep.Behavior.Consistency.Changes)
	assert.InDelta(t, 0.96, rep.Behavior.Consistency.Score, 1e-9)
	assert.Equal(t, "highly_consistent", rep.Behavior.Consistency.Assessment)

	require.Len(t, rep.Emotions, 1)
	assert.Equal(t, 1, rep.ChainsFormed)
}

func TestEngine_Reflect_FallbackInsight(t *testing.T) {
	engine, store := setupReflectionTest(t, nil)
	seed(t, store)

	r, err := engine.Reflect(context.Background(), "alice", reflection.Day)
	require.NoError(t, err)
	assert.Equal(t, reflection.FallbackInsight, r.Insight)
	assert.Equal(t, 2, r.Report.Memory.Total)
	assert.Equal(t, now.Add(-day), r.Report.From)
}

func TestEngine_Reflect_NoMemories(t *testing.T) {
	engine, _ := setupReflectionTest(t, llmtest.New("Quiet week."))

	r, err := engine.Reflect(context.Background(), "bob", reflection.Month)
	require.NoError(t, err)
	assert.Equal(t, "none", r.Report.Memory.DominantEmotion)
	assert.Zero(t, r.Report.Memory.Total)
	assert.Equal(t, "highly_consistent", r.Report.Behavior.Consistency.Assessment)
}

func TestEngine_GetRecentReflections(t *testing.T) {
	ctx := context.Background()
	engine, store := setupReflectionTest(t, llmtest.New("insight"))
	seed(t, store)

	first, err := engine.Reflect(ctx, "alice", reflection.Week)
	require.NoError(t, err)
	second, err := engine.Reflect(ctx, "alice", reflection.Day)
	require.NoError(t, err)

	got, err := engine.GetRecentReflections(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, reflection.Day, got[0].Report.Period)
	assert.Equal(t, 3, got[1].Report.Memory.Total)

	got, err = engine.GetRecentReflections(ctx, "alice", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTrackBehavior(t *testing.T) {
	from, to := now.Add(-30*day), now
	traits := []*storage.Trait{
		{Name: "patience", History: map[string]float64{
			"2024-03-01": 4, "2024-02-28": 4, "2024-02-26": 4, "2024-02-24": 4, "2024-02-22": 4,
			"2024-02-20": 6, "2024-02-18": 6,
		}},
		{Name: "formality", History: map[string]float64{"2024-03-01": 5, "2024-02-25": 5}},
	}

	b := reflection.TrackBehavior(traits, from, to)
	assert.Equal(t, reflection.TraitTrend{Direction: reflection.Decreasing, Change: 2, DataPoints: 7}, b.Trends["patience"])
	assert.Equal(t, reflection.Stable, b.Trends["formality"].Direction)
	assert.Equal(t, 9, b.Consistency.Changes)
}

func TestTrackBehavior_Assessment(t *testing.T) {
	history := map[string]float64{}
	start := now.Add(-49 * day)
	for i := 0; i < 50; i++ {
		history[start.Add(time.Duration(i)*day).Format("2006-01-02")] = 5
	}
	b := reflection.TrackBehavior([]*storage.Trait{{Name: "humor", History: history}}, now.Add(-60*day), now)
	assert.Equal(t, 50, b.Consistency.Changes)
	assert.Equal(t, "variable", b.Consistency.Assessment)
}

func TestSummarizeLearning_CapsKeyInsights(t *testing.T) {
	var memories []*storage.Memory
	for i := 0; i < 5; i++ {
		memories = append(memories, memory(int64(i+1), "I understand "+strings.Repeat("x", 300), 2, nil, now))
	}
	s := reflection.SummarizeLearning(memories, nil, now.Add(-day), now)
	assert.Equal(t, 5, s.LearningMemories)
	require.Len(t, s.KeyInsights, 3)
	assert.True(t, strings.HasSuffix(s.KeyInsights[0].Excerpt, "..."))
	assert.Len(t, []rune(s.KeyInsights[0].Excerpt), 203)
	assert.Nil(t, s.PersonalityShifts)
}
