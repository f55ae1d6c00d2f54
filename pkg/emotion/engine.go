// Package emotion keeps the emotional timeline of each user and learns,
// per emotion type, what triggers it and which responses fit it.
//
// Emotions are the eight primary emotions with intensities on the [0,10]
// scale. The timeline is filled from recent conversations, aggregated into
// patterns and pruned after a retention period.
package emotion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Primary emotion types.
const (
	Joy          = "joy"
	Sadness      = "sadness"
	Anger        = "anger"
	Fear         = "fear"
	Surprise     = "surprise"
	Disgust      = "disgust"
	Trust        = "trust"
	Anticipation = "anticipation"
)

// Types is the emotion vocabulary of the timeline.
var Types = []string{Joy, Sadness, Anger, Fear, Surprise, Disgust, Trust, Anticipation}

// maxTriggerText is the number of runes of the source text kept per event.
const maxTriggerText = 500

// Store is the persistence the emotion engine needs.
type Store interface {
	storage.MemoryStore
	storage.EmotionStore
}

// Config tunes timeline processing and pattern learning.
type Config struct {
	// RecentWindow and BatchSize bound the conversations one daily run
	// analyzes.
	RecentWindow time.Duration `koanf:"recent_window"`
	BatchSize    int           `koanf:"batch_size" validate:"gte=1"`

	// PatternWindow and PatternSample bound the events a pattern is
	// learned from.
	PatternWindow time.Duration `koanf:"pattern_window"`
	PatternSample int           `koanf:"pattern_sample" validate:"gte=1"`

	// Retention is how long timeline events are kept.
	Retention time.Duration `koanf:"retention"`

	// TrendWindow and DeepTrendWindow are the spans of the daily and weekly
	// trend reports.
	TrendWindow     time.Duration `koanf:"trend_window"`
	DeepTrendWindow time.Duration `koanf:"deep_trend_window"`
}

// DefaultConfig returns the default emotion configuration.
func DefaultConfig() Config {
	const day = 24 * time.Hour
	return Config{
		RecentWindow:    day,
		BatchSize:       20,
		PatternWindow:   90 * day,
		PatternSample:   100,
		Retention:       180 * day,
		TrendWindow:     30 * day,
		DeepTrendWindow: 90 * day,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RecentWindow <= 0 {
		c.RecentWindow = def.RecentWindow
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.PatternWindow <= 0 {
		c.PatternWindow = def.PatternWindow
	}
	if c.PatternSample <= 0 {
		c.PatternSample = def.PatternSample
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.TrendWindow <= 0 {
		c.TrendWindow = def.TrendWindow
	}
	if c.DeepTrendWindow <= 0 {
		c.DeepTrendWindow = def.DeepTrendWindow
	}
	return c
}

// Engine maintains emotional continuity.
type Engine struct {
	store  Store
	text   *oracle.TextOracle
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an emotion engine. A nil oracle detects nothing.
func New(store Store, text *oracle.TextOracle, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		text:   text,
		cfg:    cfg.withDefaults(),
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DetectEmotions reads the emotions of text and appends them to the user's
// timeline, linked to memoryID when it is not zero. Unknown emotion types
// are dropped. An oracle failure records nothing and is not an error.
func (e *Engine) DetectEmotions(ctx context.Context, userID string, memoryID int64, text string) ([]*storage.EmotionEvent, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	r := e.text.DetectEmotions(ctx, text)
	if !r.IsOK() {
		e.logger.Debug().Err(r.Err).Str("user_id", userID).Int64("memory_id", memoryID).Msg("emotion detection unavailable")
		return nil, nil
	}

	now := e.now().UTC()
	trigger := truncate(strings.TrimSpace(text), maxTriggerText)
	var events []*storage.EmotionEvent
	for _, d := range r.Value {
		if !Known(d.Type) {
			continue
		}
		events = append(events, &storage.EmotionEvent{
			UserID:          userID,
			MemoryID:        memoryID,
			Type:            d.Type,
			Intensity:       d.Intensity,
			Confidence:      d.Confidence,
			TriggerText:     trigger,
			Triggers:        d.Triggers,
			DurationMinutes: d.DurationMinutes,
			EmpathyResponse: d.EmpathyResponse,
			CreatedAt:       now,
		})
	}
	if err := e.store.InsertEmotionEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("record emotions: %w", err)
	}
	return events, nil
}

// ProcessRecent detects emotions in the user's recent conversations that
// have no timeline entry yet and returns how many it analyzed.
func (e *Engine) ProcessRecent(ctx context.Context, userID string) (int, error) {
	since := e.now().UTC().Add(-e.cfg.RecentWindow)
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, Since: since})
	if err != nil {
		return 0, fmt.Errorf("process recent emotions: %w", err)
	}
	if len(memories) == 0 {
		return 0, nil
	}

	events, err := e.store.ListEmotionEvents(ctx, storage.EmotionQuery{UserID: userID, Since: since})
	if err != nil {
		return 0, fmt.Errorf("process recent emotions: %w", err)
	}
	done := make(map[int64]bool, len(events))
	for _, ev := range events {
		done[ev.MemoryID] = true
	}

	analyzed := 0
	for _, m := range memories {
		if analyzed >= e.cfg.BatchSize {
			break
		}
		if done[m.ID] {
			continue
		}
		if _, err := e.DetectEmotions(ctx, userID, m.ID, m.Text()); err != nil {
			return analyzed, err
		}
		analyzed++
	}

	e.logger.Info().Str("user_id", userID).Int("analyzed", analyzed).Msg("recent conversations analyzed for emotions")
	return analyzed, nil
}

// AnalyzePatterns rebuilds the user's pattern of every emotion type seen in
// the pattern window and returns the number of patterns written.
//
// Confidence grows with frequency, 0.5 + 0.05 per event capped at 0.95,
// and each re-analysis of a known pattern adds 0.1 under the same cap.
func (e *Engine) AnalyzePatterns(ctx context.Context, userID string) (int, error) {
	now := e.now().UTC()
	events, err := e.store.ListEmotionEvents(ctx, storage.EmotionQuery{
		UserID: userID,
		Since:  now.Add(-e.cfg.PatternWindow),
		Limit:  e.cfg.PatternSample,
	})
	if err != nil {
		return 0, fmt.Errorf("analyze emotional patterns: %w", err)
	}

	type aggregate struct {
		count     int
		intensity float64
		last      time.Time
		triggers  []string
		responses []string
	}
	byType := map[string]*aggregate{}
	var order []string
	for _, ev := range events {
		a, ok := byType[ev.Type]
		if !ok {
			a = &aggregate{}
			byType[ev.Type] = a
			order = append(order, ev.Type)
		}
		a.count++
		a.intensity += ev.Intensity
		if ev.CreatedAt.After(a.last) {
			a.last = ev.CreatedAt
		}
		a.triggers = append(a.triggers, ev.Triggers...)
		if ev.EmpathyResponse != "" {
			a.responses = append(a.responses, ev.EmpathyResponse)
		}
	}

	for _, kind := range order {
		a := byType[kind]
		confidence := math.Min(0.5+0.05*float64(a.count), 0.95)
		_, err := e.store.UpsertEmotionPattern(ctx, userID, kind, func(p *storage.EmotionPattern, exists bool) error {
			p.Frequency = a.count
			p.AvgIntensity = a.intensity / float64(a.count)
			p.Triggers = mostCommon(a.triggers, 5)
			p.Strategies = mostCommon(a.responses, 3)
			p.Confidence = confidence
			if exists {
				p.Confidence = math.Min(confidence+0.1, 0.95)
			}
			p.LastObserved = a.last
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("analyze emotional patterns: %w", err)
		}
	}

	e.logger.Info().Str("user_id", userID).Int("events", len(events)).Int("patterns", len(order)).Msg("emotional patterns analyzed")
	return len(order), nil
}

// Prune removes timeline events older than the retention period for every
// user.
func (e *Engine) Prune(ctx context.Context) (int64, error) {
	n, err := e.store.DeleteEmotionEvents(ctx, e.now().UTC().Add(-e.cfg.Retention))
	if err != nil {
		return 0, fmt.Errorf("prune emotional timeline: %w", err)
	}
	if n > 0 {
		e.logger.Info().Int64("deleted", n).Msg("old emotional records removed")
	}
	return n, nil
}

// Trends reports the user's emotions over the last window, highest average
// intensity first. A zero window uses the configured trend window.
func (e *Engine) Trends(ctx context.Context, userID string, window time.Duration) ([]*storage.EmotionTrend, error) {
	if window <= 0 {
		window = e.cfg.TrendWindow
	}
	trends, err := e.store.EmotionTrends(ctx, userID, e.now().UTC().Add(-window))
	if err != nil {
		return nil, fmt.Errorf("emotional trends: %w", err)
	}
	for _, t := range trends {
		e.logger.Debug().
			Str("user_id", userID).
			Str("emotion", t.Type).
			Float64("avg_intensity", t.AvgIntensity).
			Int("count", t.Count).
			Msg("emotional trend")
	}
	return trends, nil
}

// DeepTrends reports trends over the long window used by the weekly run.
func (e *Engine) DeepTrends(ctx context.Context, userID string) ([]*storage.EmotionTrend, error) {
	return e.Trends(ctx, userID, e.cfg.DeepTrendWindow)
}

// Known reports whether kind is a primary emotion type.
func Known(kind string) bool {
	for _, t := range Types {
		if t == kind {
			return true
		}
	}
	return false
}

// mostCommon returns up to limit distinct items, most frequent first and
// by first appearance on ties.
func mostCommon(items []string, limit int) []string {
	counts := map[string]int{}
	var distinct []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if counts[item] == 0 {
			distinct = append(distinct, item)
		}
		counts[item]++
	}
	sort.SliceStable(distinct, func(i, j int) bool {
		return counts[distinct[i]] > counts[distinct[j]]
	})
	if len(distinct) > limit {
		distinct = distinct[:limit]
	}
	return distinct
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
