// Package personality maintains a small vector of slowly evolving traits
// per user.
//
// Trait values live on the [0,10] scale. Evolution nudges each trait toward
// a signal read from recent conversations with an exponential moving
// average; consolidation runs separately and stabilises traits from their
// dated history. Consolidation works on the [0,1] scale and converts at its
// boundary.
package personality

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/storage"
)

// Trait names.
const (
	Humor      = "humor"
	Empathy    = "empathy"
	Directness = "directness"
	Formality  = "formality"
	Enthusiasm = "enthusiasm"
	Curiosity  = "curiosity"
	Patience   = "patience"
)

// Traits is the fixed trait vocabulary.
var Traits = []string{Humor, Empathy, Directness, Formality, Enthusiasm, Curiosity, Patience}

// Trait value range.
const (
	MinValue     = 0.0
	MaxValue     = 10.0
	DefaultValue = 5.0
)

const dateLayout = "2006-01-02"

// Store is the persistence the personality engine needs.
type Store interface {
	storage.MemoryStore
	storage.PersonalityStore
}

// Config tunes evolution and consolidation.
type Config struct {
	// Lookback and MaxMemories bound the conversations read by evolution.
	Lookback    time.Duration `koanf:"lookback"`
	MaxMemories int           `koanf:"max_memories" validate:"gte=1"`

	// SignalWeight is the weight of the new signal in the moving average.
	SignalWeight float64 `koanf:"signal_weight" validate:"gt=0,lte=1"`

	// HistoryWindow is how much dated history consolidation considers.
	HistoryWindow time.Duration `koanf:"history_window"`
}

// DefaultConfig returns the default personality configuration.
func DefaultConfig() Config {
	return Config{
		Lookback:      7 * 24 * time.Hour,
		MaxMemories:   50,
		SignalWeight:  0.1,
		HistoryWindow: 30 * 24 * time.Hour,
	}
}

// Personality maps trait name to value.
type Personality map[string]float64

// Engine evolves and consolidates personality traits.
type Engine struct {
	store  Store
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

// New creates a personality engine.
func New(store Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Lookback <= 0 {
		cfg.Lookback = def.Lookback
	}
	if cfg.MaxMemories <= 0 {
		cfg.MaxMemories = def.MaxMemories
	}
	if cfg.SignalWeight <= 0 || cfg.SignalWeight > 1 {
		cfg.SignalWeight = def.SignalWeight
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}

	e := &Engine{
		store:  store,
		cfg:    cfg,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize creates every missing trait of the user at the default value.
// Existing traits are left alone.
func (e *Engine) Initialize(ctx context.Context, userID string) error {
	_, err := e.traits(ctx, userID, true)
	return err
}

// GetPersonality returns the user's trait values. Traits never stored read
// as the default value.
func (e *Engine) GetPersonality(ctx context.Context, userID string) (Personality, error) {
	traits, err := e.traits(ctx, userID, false)
	if err != nil {
		return nil, err
	}
	p := make(Personality, len(traits))
	for name, t := range traits {
		p[name] = t.Value
	}
	return p, nil
}

// GetPersonalityHistory returns the stored traits with their dated
// history, optionally restricted to one trait.
func (e *Engine) GetPersonalityHistory(ctx context.Context, userID, trait string) ([]*storage.Trait, error) {
	traits, err := e.store.GetTraits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("personality history: %w", err)
	}
	if trait == "" {
		return traits, nil
	}
	var out []*storage.Trait
	for _, t := range traits {
		if t.Name == trait {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateReport describes one evolution step.
type UpdateReport struct {
	Analyzed int         `json:"analyzed"`
	Signals  Personality `json:"signals,omitempty"`
	Values   Personality `json:"values,omitempty"`
}

// UpdatePersonality evolves every trait toward the signal read from the
// user's recent conversations and records the new value under today's
// date. Without recent conversations nothing changes.
func (e *Engine) UpdatePersonality(ctx context.Context, userID string) (*UpdateReport, error) {
	now := e.now().UTC()
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{
		UserID: userID,
		Since:  now.Add(-e.cfg.Lookback),
		Limit:  e.cfg.MaxMemories,
	})
	if err != nil {
		return nil, fmt.Errorf("update personality: %w", err)
	}
	report := &UpdateReport{Analyzed: len(memories)}
	if len(memories) == 0 {
		e.logger.Debug().Str("user_id", userID).Msg("no recent conversations to analyze")
		return report, nil
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text()
	}
	report.Signals = AnalyzeTraits(texts)

	report.Values = make(Personality, len(Traits))
	today := now.Format(dateLayout)
	for _, name := range Traits {
		signal := report.Signals[name]
		t, err := e.store.ModifyTrait(ctx, userID, name, func(t *storage.Trait, exists bool) error {
			if !exists {
				t.Value = DefaultValue
				t.CreatedAt = now
			}
			t.Value = EvolveValue(t.Value, signal, e.cfg.SignalWeight)
			t.History[today] = t.Value
			t.UpdatedAt = now
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("update trait %s: %w", name, err)
		}
		report.Values[name] = t.Value
	}

	e.logger.Info().Str("user_id", userID).Int("analyzed", report.Analyzed).Msg("personality updated")
	return report, nil
}

// ConsolidatePersonality stabilises every stored trait of the user from its
// recent history. Users without stored traits are skipped.
func (e *Engine) ConsolidatePersonality(ctx context.Context, userID string) (Personality, error) {
	stored, err := e.store.GetTraits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("consolidate personality: %w", err)
	}
	if len(stored) == 0 {
		return nil, nil
	}

	now := e.now().UTC()
	since := now.Add(-e.cfg.HistoryWindow)
	out := make(Personality, len(stored))
	for _, s := range stored {
		var from float64
		t, err := e.store.ModifyTrait(ctx, userID, s.Name, func(t *storage.Trait, exists bool) error {
			if !exists {
				return storage.ErrSkipWrite
			}
			from = t.Value
			history := recentHistory(t.History, since)
			for i := range history {
				history[i] /= MaxValue
			}
			consolidated := ConsolidateValue(t.Value/MaxValue, history, now.Sub(t.CreatedAt)) * MaxValue

			t.Value = Clamp(consolidated)
			t.ConsolidationCount++
			consolidatedAt := now
			t.LastConsolidated = &consolidatedAt
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("consolidate trait %s: %w", s.Name, err)
		}
		if t == nil {
			continue
		}
		e.logger.Debug().
			Str("user_id", userID).
			Str("trait", t.Name).
			Float64("from", from).
			Float64("to", t.Value).
			Msg("trait consolidated")
		out[t.Name] = t.Value
	}

	e.logger.Info().Str("user_id", userID).Int("traits", len(out)).Msg("personality consolidated")
	return out, nil
}

// traits returns one trait per vocabulary name, filling missing ones with
// defaults. With persist set the missing ones are stored.
func (e *Engine) traits(ctx context.Context, userID string, persist bool) (map[string]*storage.Trait, error) {
	stored, err := e.store.GetTraits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get traits: %w", err)
	}

	byName := make(map[string]*storage.Trait, len(Traits))
	for _, t := range stored {
		byName[t.Name] = t
	}

	now := e.now().UTC()
	for _, name := range Traits {
		if _, ok := byName[name]; ok {
			continue
		}
		t := &storage.Trait{
			UserID:    userID,
			Name:      name,
			Value:     DefaultValue,
			History:   map[string]float64{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if persist {
			stored, err := e.store.ModifyTrait(ctx, userID, name, func(cur *storage.Trait, exists bool) error {
				if exists {
					return storage.ErrSkipWrite
				}
				*cur = *t
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("initialize trait %s: %w", name, err)
			}
			t = stored
		}
		byName[name] = t
	}
	return byName, nil
}
