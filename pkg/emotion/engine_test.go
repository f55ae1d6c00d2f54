package emotion_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/llm/llmtest"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/storage/sqlstore"
)

const (
	detectPrompt = "detect the user's emotional state"
	day          = 24 * time.Hour

	promoted = `{"emotions": [
		{"type": "joy", "intensity": 8, "triggers": ["promotion"], "empathy_response": "Celebrate with them"},
		{"type": "nostalgia", "intensity": 4}
	]}`
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupEmotionTest(t *testing.T, provider *llmtest.Provider) (*emotion.Engine, *sqlstore.Store) {
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
	engine := emotion.New(store, text, emotion.DefaultConfig(), emotion.WithClock(func() time.Time { return now }))
	return engine, store
}

func addMemory(t *testing.T, store storage.MemoryStore, text string, created time.Time) *storage.Memory {
	t.Helper()
	m := &storage.Memory{
		UserID:         "alice",
		UserText:       text,
		AIText:         "noted",
		Importance:     1,
		BaseImportance: 1,
		CreatedAt:      created,
	}
	require.NoError(t, store.InsertMemory(context.Background(), m))
	return m
}

func addEvent(t *testing.T, store storage.EmotionStore, kind string, intensity float64, response string, triggers []string, created time.Time) {
	t.Helper()
	require.NoError(t, store.InsertEmotionEvents(context.Background(), []*storage.EmotionEvent{{
		UserID:          "alice",
		Type:            kind,
		Intensity:       intensity,
		Confidence:      0.8,
		Triggers:        triggers,
		DurationMinutes: 30,
		EmpathyResponse: response,
		CreatedAt:       created,
	}}))
}

func TestEngine_DetectEmotions(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEmotionTest(t, llmtest.New("").On(detectPrompt, promoted))

	long := strings.Repeat("é", 600)
	events, err := engine.DetectEmotions(ctx, "alice", 42, "User: I got promoted "+long)
	require.NoError(t, err)
	require.Len(t, events, 1, "unknown types are dropped")

	stored, err := store.ListEmotionEvents(ctx, storage.EmotionQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	ev := stored[0]
	assert.Equal(t, emotion.Joy, ev.Type)
	assert.Equal(t, int64(42), ev.MemoryID)
	assert.InDelta(t, 8, ev.Intensity, 1e-9)
	assert.InDelta(t, 0.8, ev.Confidence, 1e-9)
	assert.Equal(t, []string{"promotion"}, ev.Triggers)
	assert.Equal(t, 30, ev.DurationMinutes)
	assert.Equal(t, 500, len([]rune(ev.TriggerText)))
	assert.True(t, ev.CreatedAt.Equal(now))
}

func TestEngine_DetectEmotions_OracleDown(t *testing.T) {
	ctx := context.Background()

	t.Run("provider error", func(t *testing.T) {
		engine, store := setupEmotionTest(t, llmtest.New("").Fail(detectPrompt, errors.New("llm down")))
		events, err := engine.DetectEmotions(ctx, "alice", 1, "User: hi")
		require.NoError(t, err)
		assert.Empty(t, events)

		stored, err := store.ListEmotionEvents(ctx, storage.EmotionQuery{UserID: "alice"})
		require.NoError(t, err)
		assert.Empty(t, stored)
	})

	t.Run("no oracle", func(t *testing.T) {
		engine, _ := setupEmotionTest(t, nil)
		events, err := engine.DetectEmotions(ctx, "alice", 1, "User: hi")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestEngine_ProcessRecent(t *testing.T) {
	ctx := context.Background()
	provider := llmtest.New("").On(detectPrompt, promoted)
	engine, store := setupEmotionTest(t, provider)

	fresh := addMemory(t, store, "I got promoted", now.Add(-2*time.Hour))
	done := addMemory(t, store, "already analyzed", now.Add(-3*time.Hour))
	addMemory(t, store, "two days ago", now.Add(-2*day))
	require.NoError(t, store.InsertEmotionEvents(ctx, []*storage.EmotionEvent{{
		UserID: "alice", MemoryID: done.ID, Type: emotion.Trust, Intensity: 5, Confidence: 0.8, CreatedAt: now.Add(-time.Hour),
	}}))

	n, err := engine.ProcessRecent(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, provider.Calls(), 1)
	assert.Contains(t, provider.Calls()[0], "I got promoted")

	events, err := store.ListEmotionEvents(ctx, storage.EmotionQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	ids := []int64{events[0].MemoryID, events[1].MemoryID}
	assert.ElementsMatch(t, []int64{fresh.ID, done.ID}, ids)

	n, err = engine.ProcessRecent(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_ProcessRecent_BatchSize(t *testing.T) {
	ctx := context.Background()
	provider := llmtest.New("").On(detectPrompt, promoted)
	_, store := setupEmotionTest(t, provider)

	ocfg := oracle.DefaultConfig()
	ocfg.RatePerSecond = 0
	cfg := emotion.DefaultConfig()
	cfg.BatchSize = 2
	engine := emotion.New(store, oracle.NewTextOracle(provider, ocfg), cfg,
		emotion.WithClock(func() time.Time { return now }))

	for i := 1; i <= 3; i++ {
		addMemory(t, store, "turn", now.Add(-time.Duration(i)*time.Hour))
	}
	n, err := engine.ProcessRecent(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = engine.ProcessRecent(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_AnalyzePatterns(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEmotionTest(t, nil)

	addEvent(t, store, emotion.Joy, 8, "Celebrate", []string{"work", "team"}, now.Add(-time.Hour))
	addEvent(t, store, emotion.Joy, 6, "Celebrate", []string{"work"}, now.Add(-2*time.Hour))
	addEvent(t, store, emotion.Joy, 4, "Smile back", []string{"family"}, now.Add(-3*time.Hour))
	addEvent(t, store, emotion.Fear, 5, "", nil, now.Add(-4*time.Hour))
	addEvent(t, store, emotion.Anger, 9, "Listen", nil, now.Add(-100*day))

	n, err := engine.AnalyzePatterns(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	patterns, err := store.ListEmotionPatterns(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	joy := patterns[0]
	assert.Equal(t, emotion.Joy, joy.Type)
	assert.Equal(t, 3, joy.Frequency)
	assert.InDelta(t, 6, joy.AvgIntensity, 1e-9)
	assert.InDelta(t, 0.65, joy.Confidence, 1e-9)
	assert.Equal(t, []string{"work", "team", "family"}, joy.Triggers)
	assert.Equal(t, []string{"Celebrate", "Smile back"}, joy.Strategies)
	assert.True(t, joy.LastObserved.Equal(now.Add(-time.Hour)))

	_, err = engine.AnalyzePatterns(ctx, "alice")
	require.NoError(t, err)
	patterns, err = store.ListEmotionPatterns(ctx, "alice", 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, patterns[0].Confidence, 1e-9, "re-analysis adds 0.1")
}

func TestEngine_PruneAndTrends(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEmotionTest(t, nil)

	addEvent(t, store, emotion.Joy, 8, "", nil, now.Add(-time.Hour))
	addEvent(t, store, emotion.Sadness, 3, "", nil, now.Add(-10*day))
	addEvent(t, store, emotion.Fear, 9, "", nil, now.Add(-60*day))
	addEvent(t, store, emotion.Anger, 9, "", nil, now.Add(-200*day))

	trends, err := engine.Trends(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, trends, 2)
	assert.Equal(t, emotion.Joy, trends[0].Type)

	deep, err := engine.DeepTrends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, deep, 3)
	assert.Equal(t, emotion.Fear, deep[0].Type)

	n, err := engine.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestEngine_Context(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEmotionTest(t, nil)

	c, err := engine.GetContext(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, emotion.GenerateContext(c, now))

	addEvent(t, store, emotion.Fear, 7, "Reassure", []string{"exam"}, now.Add(-3*time.Hour))
	addEvent(t, store, emotion.Joy, 2, "", nil, now.Add(-30*time.Hour))
	_, err = engine.AnalyzePatterns(ctx, "alice")
	require.NoError(t, err)

	c, err = engine.GetContext(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Len(t, c.Recent, 1)
	require.Len(t, c.Patterns, 2)

	want := "## EMOTIONAL CONTEXT\n" +
		"**Recent Emotions:**\n" +
		"- fear (intensity: 7/10), 3 hours ago\n" +
		"**Learned Empathy Strategies:**\n" +
		"- For fear: Reassure\n" +
		"- For joy: Be supportive and understanding\n" +
		"Respond with empathy that fits this emotional state.\n\n"
	assert.Equal(t, want, emotion.GenerateContext(c, now))
}

func TestEngine_EmpathyCalibration(t *testing.T) {
	ctx := context.Background()
	engine, store := setupEmotionTest(t, nil)

	cal, err := engine.EmpathyCalibration(ctx, "alice", "Fear")
	require.NoError(t, err)
	assert.Equal(t, &emotion.Calibration{
		Emotion:    emotion.Fear,
		Strategies: []string{"Be reassuring and supportive", "Help them feel safe"},
		Confidence: 0.5,
	}, cal)

	cal, err = engine.EmpathyCalibration(ctx, "alice", "boredom")
	require.NoError(t, err)
	assert.Equal(t, []string{"Be supportive and understanding"}, cal.Strategies)

	addEvent(t, store, emotion.Fear, 7, "Walk through the plan", nil, now.Add(-time.Hour))
	_, err = engine.AnalyzePatterns(ctx, "alice")
	require.NoError(t, err)

	cal, err = engine.EmpathyCalibration(ctx, "alice", emotion.Fear)
	require.NoError(t, err)
	assert.True(t, cal.Learned)
	assert.Equal(t, []string{"Walk through the plan"}, cal.Strategies)
	assert.InDelta(t, 0.55, cal.Confidence, 1e-9)
}
