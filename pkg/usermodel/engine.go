// Package usermodel keeps a lightweight model of each user: the beliefs
// and goals they expressed and periodic snapshots of their mental state.
package usermodel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// ErrInvalidStatus is returned for an unknown goal status.
var ErrInvalidStatus = errors.New("invalid goal status")

// Store is the persistence the user model engine needs.
type Store interface {
	storage.MemoryStore
	storage.UserModelStore
}

// Sampler returns a number in [0,1). It decides whether a conversation
// also triggers a mental state inference.
type Sampler func() float64

// Config tunes extraction, sampling and maintenance.
type Config struct {
	// MentalStateProbability is the chance that one processed conversation
	// also infers a mental state from the last MentalStateWindow memories.
	MentalStateProbability float64 `koanf:"mental_state_probability" validate:"gte=0,lte=1"`
	MentalStateWindow      int     `koanf:"mental_state_window" validate:"gte=1"`
	MentalStateConfidence  float64 `koanf:"mental_state_confidence" validate:"gte=0,lte=1"`

	// BeliefStep is added to the strength of a reinforced belief.
	BeliefStep float64 `koanf:"belief_step"`

	Maintenance MaintenanceConfig `koanf:"maintenance"`
}

// MaintenanceConfig tunes the batch passes.
type MaintenanceConfig struct {
	ActiveWindow    time.Duration `koanf:"active_window"`
	ReprocessWindow time.Duration `koanf:"reprocess_window"`
	ReprocessLimit  int           `koanf:"reprocess_limit"`

	ProgressIdle     time.Duration `koanf:"progress_idle"`
	ProgressLookback time.Duration `koanf:"progress_lookback"`
	ProgressMemories int           `koanf:"progress_memories"`
	ProgressMinHits  int           `koanf:"progress_min_hits"`
	ProgressStep     int           `koanf:"progress_step"`
	ProgressCap      int           `koanf:"progress_cap"`
	ProgressGoals    int           `koanf:"progress_goals"`

	BeliefWindow      time.Duration `koanf:"belief_window"`
	BeliefFactor      float64       `koanf:"belief_factor"`
	GoalMentionWindow time.Duration `koanf:"goal_mention_window"`

	BeliefRetention  time.Duration `koanf:"belief_retention"`
	WeakBelief       float64       `koanf:"weak_belief"`
	GoalRetention    time.Duration `koanf:"goal_retention"`
	MentalStatesKept int           `koanf:"mental_states_kept"`

	AnalysisMemories int `koanf:"analysis_memories"`
}

// DefaultConfig returns the default user model configuration.
func DefaultConfig() Config {
	return Config{
		MentalStateProbability: 0.3,
		MentalStateWindow:      10,
		MentalStateConfidence:  0.7,
		BeliefStep:             0.1,
		Maintenance: MaintenanceConfig{
			ActiveWindow:      7 * 24 * time.Hour,
			ReprocessWindow:   24 * time.Hour,
			ReprocessLimit:    20,
			ProgressIdle:      24 * time.Hour,
			ProgressLookback:  3 * 24 * time.Hour,
			ProgressMemories:  10,
			ProgressMinHits:   2,
			ProgressStep:      5,
			ProgressCap:       90,
			ProgressGoals:     50,
			BeliefWindow:      7 * 24 * time.Hour,
			BeliefFactor:      1.05,
			GoalMentionWindow: 3 * 24 * time.Hour,
			BeliefRetention:   90 * 24 * time.Hour,
			WeakBelief:        0.3,
			GoalRetention:     60 * 24 * time.Hour,
			MentalStatesKept:  100,
			AnalysisMemories:  20,
		},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MentalStateProbability < 0 || c.MentalStateProbability > 1 {
		c.MentalStateProbability = def.MentalStateProbability
	}
	if c.MentalStateWindow <= 0 {
		c.MentalStateWindow = def.MentalStateWindow
	}
	if c.MentalStateConfidence <= 0 {
		c.MentalStateConfidence = def.MentalStateConfidence
	}
	if c.BeliefStep <= 0 {
		c.BeliefStep = def.BeliefStep
	}
	if c.Maintenance == (MaintenanceConfig{}) {
		c.Maintenance = def.Maintenance
	}
	return c
}

// Engine extracts and maintains the user model.
type Engine struct {
	store  Store
	text   *oracle.TextOracle
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
	sample Sampler
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

// WithSampler replaces the random source used for mental state sampling.
func WithSampler(s Sampler) Option {
	return func(e *Engine) {
		e.sample = s
	}
}

// New creates a user model engine. A nil text oracle extracts nothing.
func New(store Store, text *oracle.TextOracle, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		text:   text,
		cfg:    cfg.withDefaults(),
		logger: zerolog.Nop(),
		now:    time.Now,
		sample: rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessReport describes what one conversation contributed.
type ProcessReport struct {
	Beliefs             int  `json:"beliefs_extracted"`
	Goals               int  `json:"goals_extracted"`
	MentalStateInferred bool `json:"mental_state_inferred"`
}

// ProcessConversation extracts beliefs and goals from one conversation and
// reinforces or inserts them. A memoryID of 0 means the text is not tied
// to a stored memory. Oracle failures extract nothing; store failures are
// returned.
func (e *Engine) ProcessConversation(ctx context.Context, userID, text string, memoryID int64) (*ProcessReport, error) {
	report := &ProcessReport{}
	if strings.TrimSpace(text) == "" {
		return report, nil
	}

	beliefs := e.text.ExtractBeliefs(ctx, text)
	if beliefs.Status != oracle.StatusOK {
		e.logger.Warn().Err(beliefs.Err).Str("user_id", userID).Str("status", beliefs.Status.String()).Msg("belief extraction degraded")
	}
	for _, b := range beliefs.Or(nil) {
		if err := e.storeBelief(ctx, userID, b, memoryID); err != nil {
			return report, err
		}
		report.Beliefs++
	}

	goals := e.text.ExtractGoals(ctx, text)
	if goals.Status != oracle.StatusOK {
		e.logger.Warn().Err(goals.Err).Str("user_id", userID).Str("status", goals.Status.String()).Msg("goal extraction degraded")
	}
	for _, g := range goals.Or(nil) {
		if err := e.storeGoal(ctx, userID, g); err != nil {
			return report, err
		}
		report.Goals++
	}

	if e.sample() < e.cfg.MentalStateProbability {
		state, err := e.InferMentalState(ctx, userID, e.cfg.MentalStateWindow)
		if err != nil {
			return report, err
		}
		report.MentalStateInferred = state != nil
	}
	return report, nil
}

// storeBelief reinforces the stored belief with the same normalized
// statement or inserts a new one. Evidence is a set, so processing the
// same memory twice reinforces once. The store runs the merge on the
// locked row, so concurrent turns for one user never create a second row
// or drop evidence.
func (e *Engine) storeBelief(ctx context.Context, userID string, extracted oracle.ExtractedBelief, memoryID int64) error {
	key := storage.NormalizeKey(extracted.Statement)
	if key == "" {
		e.logger.Warn().Str("user_id", userID).Msg("skipping empty belief statement")
		return nil
	}
	now := e.now().UTC()

	var created bool
	b, err := e.store.UpsertBelief(ctx, userID, key, func(b *storage.Belief, exists bool) error {
		created = !exists
		if !exists {
			b.Statement = strings.TrimSpace(extracted.Statement)
			b.Category = extracted.Category
			b.Strength = clamp(extracted.Strength, 0, 1)
			b.Confidence = clamp(extracted.Confidence, 0, 1)
			b.Active = true
			b.FirstExpressed = now
			b.LastReinforced = now
			if memoryID != 0 {
				b.Evidence = []int64{memoryID}
			}
			return nil
		}

		if memoryID != 0 {
			for _, id := range b.Evidence {
				if id == memoryID {
					return storage.ErrSkipWrite
				}
			}
			b.Evidence = append(b.Evidence, memoryID)
		}
		b.Strength = math.Min(1, b.Strength+e.cfg.BeliefStep)
		b.Confidence = math.Max(b.Confidence, clamp(extracted.Confidence, 0, 1))
		b.Active = true
		b.LastReinforced = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("store belief: %w", err)
	}
	if created {
		e.logger.Debug().Str("user_id", userID).Int64("belief_id", b.ID).Msg("belief recorded")
	} else {
		e.logger.Debug().Str("user_id", userID).Int64("belief_id", b.ID).Float64("strength", b.Strength).Msg("belief reinforced")
	}
	return nil
}

// storeGoal raises the priority of the stored goal with the same
// normalized description or inserts a new one. Mentioning an abandoned
// goal again makes it active; completed goals stay completed.
func (e *Engine) storeGoal(ctx context.Context, userID string, extracted oracle.ExtractedGoal) error {
	key := storage.NormalizeKey(extracted.Description)
	if key == "" {
		e.logger.Warn().Str("user_id", userID).Msg("skipping empty goal description")
		return nil
	}
	now := e.now().UTC()
	priority := clampInt(extracted.Priority, 1, 10)

	_, err := e.store.UpsertGoal(ctx, userID, key, func(g *storage.Goal, exists bool) error {
		if !exists {
			g.Description = strings.TrimSpace(extracted.Description)
			g.Category = extracted.Category
			g.Priority = priority
			g.Status = storage.GoalActive
			g.SuccessCriteria = extracted.SuccessCriteria
			g.FirstMentioned = now
			g.UpdatedAt = now
			return nil
		}

		if priority > g.Priority {
			g.Priority = priority
		}
		if g.Status == storage.GoalAbandoned {
			g.Status = storage.GoalActive
			e.logger.Debug().Str("user_id", userID).Int64("goal_id", g.ID).Msg("abandoned goal reactivated")
		}
		g.UpdatedAt = now
		return nil
	})
	if err != nil {
		return fmt.Errorf("store goal: %w", err)
	}
	return nil
}

// InferMentalState asks the oracle for the user's state over the last
// window memories and stores the snapshot. It returns nil without error
// when there is nothing to analyze or the oracle failed.
func (e *Engine) InferMentalState(ctx context.Context, userID string, window int) (*storage.MentalState, error) {
	if window <= 0 {
		window = e.cfg.MentalStateWindow
	}
	memories, err := e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, Limit: window})
	if err != nil {
		return nil, fmt.Errorf("infer mental state: %w", err)
	}
	if len(memories) == 0 {
		return nil, nil
	}

	turns := make([]string, len(memories))
	for i, m := range memories {
		turns[i] = m.Text()
	}
	res := e.text.InferMentalState(ctx, turns)
	if res.Status != oracle.StatusOK {
		e.logger.Warn().Err(res.Err).Str("user_id", userID).Str("status", res.Status.String()).Msg("mental state inference degraded")
	}
	if res.Status == oracle.StatusFailure {
		return nil, nil
	}

	r := res.Value
	state := &storage.MentalState{
		UserID:             userID,
		DominantEmotion:    r.DominantEmotion,
		Intensity:          r.Intensity,
		CognitiveLoad:      r.CognitiveLoad,
		AttentionFocus:     r.AttentionFocus,
		DecisionStyle:      r.DecisionStyle,
		CommunicationStyle: r.CommunicationStyle,
		StressIndicators:   r.StressIndicators,
		MotivationLevel:    r.MotivationLevel,
		InferredNeeds:      r.InferredNeeds,
		Confidence:         e.cfg.MentalStateConfidence,
		CreatedAt:          e.now().UTC(),
	}
	if res.Status == oracle.StatusDegraded {
		state.Confidence /= 2
	}
	if err := e.store.InsertMentalState(ctx, state); err != nil {
		return nil, fmt.Errorf("store mental state: %w", err)
	}
	return state, nil
}

// Model is the assembled view of one user.
type Model struct {
	UserID      string               `json:"user_id"`
	Beliefs     []*storage.Belief    `json:"beliefs"`
	Goals       []*storage.Goal      `json:"goals"`
	MentalState *storage.MentalState `json:"current_mental_state,omitempty"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// Model sizes returned by GetUserModel.
const (
	ModelBeliefs = 15
	ModelGoals   = 10
)

// GetUserModel returns the strongest active beliefs, the highest priority
// active goals and the latest mental state of the user.
func (e *Engine) GetUserModel(ctx context.Context, userID string) (*Model, error) {
	beliefs, err := e.GetBeliefs(ctx, userID, "", ModelBeliefs)
	if err != nil {
		return nil, err
	}
	goals, err := e.GetGoals(ctx, userID, storage.GoalActive, ModelGoals)
	if err != nil {
		return nil, err
	}
	state, err := e.GetCurrentMentalState(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Model{
		UserID:      userID,
		Beliefs:     beliefs,
		Goals:       goals,
		MentalState: state,
		GeneratedAt: e.now().UTC(),
	}, nil
}

// GetBeliefs lists active beliefs, optionally of one category.
func (e *Engine) GetBeliefs(ctx context.Context, userID, category string, limit int) ([]*storage.Belief, error) {
	beliefs, err := e.store.ListBeliefs(ctx, storage.BeliefQuery{
		UserID:     userID,
		Category:   category,
		ActiveOnly: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("get beliefs: %w", err)
	}
	return beliefs, nil
}

// GetGoals lists goals with the given status (active when empty).
func (e *Engine) GetGoals(ctx context.Context, userID string, status storage.GoalStatus, limit int) ([]*storage.Goal, error) {
	if status == "" {
		status = storage.GoalActive
	}
	goals, err := e.store.ListGoals(ctx, storage.GoalQuery{UserID: userID, Status: status, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("get goals: %w", err)
	}
	return goals, nil
}

// GetCurrentMentalState returns the newest snapshot, or nil when none was
// inferred yet.
func (e *Engine) GetCurrentMentalState(ctx context.Context, userID string) (*storage.MentalState, error) {
	state, err := e.store.LatestMentalState(ctx, userID)
	if storage.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get mental state: %w", err)
	}
	return state, nil
}

// UpdateGoalProgress sets the progress of a goal, clamped to [0,100], and
// optionally its status.
func (e *Engine) UpdateGoalProgress(ctx context.Context, userID string, goalID int64, progress int, status storage.GoalStatus) (*storage.Goal, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	g, err := e.store.ModifyGoal(ctx, userID, goalID, func(g *storage.Goal) error {
		g.Progress = clampInt(progress, 0, 100)
		if status != "" {
			g.Status = status
		}
		g.UpdatedAt = e.now().UTC()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update goal progress: %w", err)
	}
	return g, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
