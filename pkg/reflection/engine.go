// Package reflection periodically looks back over a user's memories,
// personality history and emotions, and stores what it finds together
// with an oracle-written insight.
package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Periods a reflection can cover.
const (
	Day   = "day"
	Week  = "week"
	Month = "month"
)

// FallbackInsight is stored when the oracle cannot write an insight.
const FallbackInsight = "Unable to generate insights at this time."

// Span returns the length of a period. Unknown periods span a week.
func Span(period string) time.Duration {
	switch period {
	case Day:
		return 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Store is the persistence the reflection engine needs.
type Store interface {
	storage.MemoryStore
	storage.ChainStore
	storage.PersonalityStore
	storage.EmotionStore
	storage.ReflectionStore
}

// Config tunes reflections.
type Config struct {
	// Period is what the scheduled reflection covers: day, week or month.
	Period string `koanf:"period" validate:"oneof=day week month"`

	// MaxMemories caps the memories read for one reflection.
	MaxMemories int `koanf:"max_memories" validate:"gte=1"`

	// RecentLimit is the default number of reflections listed.
	RecentLimit int `koanf:"recent_limit" validate:"gte=1"`
}

// DefaultConfig returns the default reflection configuration.
func DefaultConfig() Config {
	return Config{
		Period:      Week,
		MaxMemories: 1000,
		RecentLimit: 5,
	}
}

// Engine writes reflections.
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

// New creates a reflection engine. A nil oracle stores FallbackInsight.
func New(store Store, text *oracle.TextOracle, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Period == "" {
		cfg.Period = def.Period
	}
	if cfg.MaxMemories <= 0 {
		cfg.MaxMemories = def.MaxMemories
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}

	e := &Engine{
		store:  store,
		text:   text,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reflection is a stored reflection with its decoded report.
type Reflection struct {
	*storage.Reflection
	Report *Report `json:"report"`
}

// Reflect analyzes the user's last period, asks the oracle for an insight
// and stores both. An empty period uses the configured one. Oracle
// failures store FallbackInsight.
func (e *Engine) Reflect(ctx context.Context, userID, period string) (*Reflection, error) {
	if period == "" {
		period = e.cfg.Period
	}
	to := e.now().UTC()
	from := to.Add(-Span(period))

	report, err := e.analyze(ctx, userID, period, from, to)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	analysis, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	insight := FallbackInsight
	if r := e.text.ReflectionInsight(ctx, string(analysis)); r.IsOK() {
		insight = r.Value
	} else {
		e.logger.Warn().Err(r.Err).Str("user_id", userID).Msg("reflection insight unavailable")
	}

	stored := &storage.Reflection{
		UserID:    userID,
		Period:    period,
		Insight:   insight,
		Analysis:  analysis,
		CreatedAt: to,
	}
	if err := e.store.InsertReflection(ctx, stored); err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}

	e.logger.Info().
		Str("user_id", userID).
		Str("period", period).
		Int("memories", report.Memory.Total).
		Int64("reflection_id", stored.ID).
		Msg("self-reflection complete")
	return &Reflection{Reflection: stored, Report: report}, nil
}

func (e *Engine) analyze(ctx context.Context, userID, period string, from, to time.Time) (*Report, error) {
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, Since: from, Limit: e.cfg.MaxMemories})
	if err != nil {
		return nil, err
	}
	traits, err := e.store.GetTraits(ctx, userID)
	if err != nil {
		return nil, err
	}
	trends, err := e.store.EmotionTrends(ctx, userID, from)
	if err != nil {
		return nil, err
	}
	chains, err := e.store.ListChains(ctx, storage.ChainQuery{UserID: userID})
	if err != nil {
		return nil, err
	}
	formed := 0
	for _, c := range chains {
		if !c.CreatedAt.Before(from) {
			formed++
		}
	}

	return &Report{
		Period:       period,
		From:         from,
		To:           to,
		Memory:       AnalyzeMemories(memories),
		Learning:     SummarizeLearning(memories, traits, from, to),
		Behavior:     TrackBehavior(traits, from, to),
		Emotions:     trends,
		ChainsFormed: formed,
	}, nil
}

// GetRecentReflections returns the newest reflections of a user with
// their decoded reports. A limit of zero uses the configured one.
func (e *Engine) GetRecentReflections(ctx context.Context, userID string, limit int) ([]*Reflection, error) {
	if limit <= 0 {
		limit = e.cfg.RecentLimit
	}
	stored, err := e.store.ListReflections(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent reflections: %w", err)
	}
	out := make([]*Reflection, 0, len(stored))
	for _, r := range stored {
		var report Report
		if err := json.Unmarshal(r.Analysis, &report); err != nil {
			e.logger.Warn().Err(err).Int64("reflection_id", r.ID).Msg("skipping undecodable reflection")
			continue
		}
		out = append(out, &Reflection{Reflection: r, Report: &report})
	}
	return out, nil
}
