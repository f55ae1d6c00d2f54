// Package storage defines the persistent records of the brain and the interfaces
// that every storage backend must satisfy.
//
// All records are scoped by user id. Backends live in sub-packages (sqlite,
// postgres, mysql) and share the database/sql implementation in sqlstore.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Memory is one persisted conversational turn with its derived metadata.
type Memory struct {
	// ID is assigned by the store on insert when zero.
	ID int64 `json:"id"`

	// UserID owns the memory.
	UserID string `json:"user_id"`

	// PersonaID optionally scopes retrieval to one persona.
	PersonaID string `json:"persona_id,omitempty"`

	// UserText is the user's utterance.
	UserText string `json:"user_text"`

	// AIText is the agent's reply.
	AIText string `json:"ai_text"`

	// Embedding is the vector of the combined turn, nil if the oracle failed.
	Embedding []float64 `json:"embedding,omitempty"`

	// Emotions maps emotion name to intensity in [0,1]; nil when unknown.
	Emotions map[string]float64 `json:"emotions,omitempty"`

	// Importance is the current importance score, always within [0,3].
	Importance float64 `json:"importance"`

	// BaseImportance is the score computed at write time. Consolidation
	// derives Importance from it.
	BaseImportance float64 `json:"base_importance"`

	// AccessCount is incremented each time retrieval returns the memory.
	AccessCount int64 `json:"access_count"`

	// LastAccessed is nil until the first retrieval.
	LastAccessed *time.Time `json:"last_accessed,omitempty"`

	// Pinned memories are never removed by maintenance.
	Pinned bool `json:"pinned"`

	CreatedAt time.Time `json:"created_at"`
}

// Text renders the turn the way it is embedded and shown to the oracle.
func (m *Memory) Text() string {
	return FormatTurn(m.UserText, m.AIText)
}

// FormatTurn joins a user utterance and an agent reply into one text block.
func FormatTurn(userText, aiText string) string {
	return fmt.Sprintf("User: %s\nAI: %s", userText, aiText)
}

// MemoryStats summarises a user's episodic memory.
type MemoryStats struct {
	TotalMemories int64      `json:"total_memories"`
	AvgImportance float64    `json:"avg_importance"`
	LastMemory    *time.Time `json:"last_memory,omitempty"`
	TotalAccesses int64      `json:"total_accesses"`
	PinnedCount   int64      `json:"pinned_count"`
}

// ArcPoint is one position in a chain's emotional progression.
type ArcPoint struct {
	Position  int       `json:"position"`
	Emotion   string    `json:"emotion"`
	Timestamp time.Time `json:"timestamp"`
}

// EmotionalArc describes how the dominant emotion moves through a chain.
type EmotionalArc struct {
	Start       string     `json:"start,omitempty"`
	End         string     `json:"end,omitempty"`
	Dominant    string     `json:"dominant,omitempty"`
	Volatility  float64    `json:"volatility"`
	Progression []ArcPoint `json:"progression,omitempty"`
}

// Chain is an ordered, strength-scored group of related memories.
type Chain struct {
	ID            int64        `json:"id"`
	UserID        string       `json:"user_id"`
	Name          string       `json:"name"`
	Type          string       `json:"type"`
	MemoryIDs     []int64      `json:"memory_ids"`
	StartMemoryID int64        `json:"start_memory_id"`
	EndMemoryID   int64        `json:"end_memory_id"`
	Strength      float64      `json:"strength"`
	Summary       string       `json:"summary"`
	Topics        []string     `json:"topics"`
	Arc           EmotionalArc `json:"emotional_arc"`
	AccessCount   int64        `json:"access_count"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Contains reports whether the chain's sequence includes memoryID.
func (c *Chain) Contains(memoryID int64) bool {
	for _, id := range c.MemoryIDs {
		if id == memoryID {
			return true
		}
	}
	return false
}

// Trait is one personality dimension of a user.
type Trait struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`

	// History maps a UTC date (YYYY-MM-DD) to the value recorded that day.
	History map[string]float64 `json:"history"`

	ConsolidationCount int        `json:"consolidation_count"`
	LastConsolidated   *time.Time `json:"last_consolidated,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Belief is a conviction the user expressed, reinforced on repetition.
type Belief struct {
	ID             int64     `json:"id"`
	UserID         string    `json:"user_id"`
	Statement      string    `json:"statement"`
	Key            string    `json:"-"`
	Category       string    `json:"category"`
	Strength       float64   `json:"strength"`
	Confidence     float64   `json:"confidence"`
	Evidence       []int64   `json:"evidence"`
	Active         bool      `json:"active"`
	FirstExpressed time.Time `json:"first_expressed"`
	LastReinforced time.Time `json:"last_reinforced"`
}

// GoalStatus is the lifecycle state of a goal.
type GoalStatus string

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalAbandoned GoalStatus = "abandoned"
)

// Valid reports whether s is a known status.
func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalAbandoned:
		return true
	}
	return false
}

// Goal is an objective the user mentioned.
type Goal struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	Description     string     `json:"description"`
	Key             string     `json:"-"`
	Category        string     `json:"category"`
	Priority        int        `json:"priority"`
	Progress        int        `json:"progress"`
	Status          GoalStatus `json:"status"`
	SuccessCriteria string     `json:"success_criteria,omitempty"`
	FirstMentioned  time.Time  `json:"first_mentioned"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MentalState is one inferred snapshot of the user's state of mind.
type MentalState struct {
	ID                 int64     `json:"id"`
	UserID             string    `json:"user_id"`
	DominantEmotion    string    `json:"dominant_emotion"`
	Intensity          float64   `json:"emotional_intensity"`
	CognitiveLoad      string    `json:"cognitive_load"`
	AttentionFocus     string    `json:"attention_focus"`
	DecisionStyle      string    `json:"decision_making_style"`
	CommunicationStyle string    `json:"communication_style"`
	StressIndicators   []string  `json:"stress_indicators"`
	MotivationLevel    string    `json:"motivation_level"`
	InferredNeeds      []string  `json:"inferred_needs"`
	Confidence         float64   `json:"confidence"`
	CreatedAt          time.Time `json:"created_at"`
}

// EmotionEvent is one emotion detected in a conversation turn, on the
// emotional timeline of the user.
type EmotionEvent struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	MemoryID int64  `json:"memory_id,omitempty"`
	Type     string `json:"emotion_type"`

	// Intensity is on the [0,10] scale.
	Intensity  float64 `json:"intensity"`
	Confidence float64 `json:"confidence"`

	// TriggerText is the start of the text the emotion was read from.
	TriggerText     string    `json:"trigger_text"`
	Triggers        []string  `json:"triggers"`
	DurationMinutes int       `json:"duration_minutes"`
	EmpathyResponse string    `json:"empathy_response,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// EmotionPattern is the learned profile of one emotion type of a user.
type EmotionPattern struct {
	UserID       string    `json:"user_id"`
	Type         string    `json:"emotion_type"`
	Frequency    int       `json:"frequency"`
	AvgIntensity float64   `json:"avg_intensity"`
	Triggers     []string  `json:"common_triggers"`
	Strategies   []string  `json:"empathy_strategies"`
	Confidence   float64   `json:"confidence"`
	LastObserved time.Time `json:"last_observed"`
}

// EmotionTrend aggregates the timeline events of one type.
type EmotionTrend struct {
	Type         string    `json:"emotion_type"`
	AvgIntensity float64   `json:"avg_intensity"`
	Count        int       `json:"count"`
	LastObserved time.Time `json:"last_observed"`
}

// Reflection is one stored self-reflection over a period.
type Reflection struct {
	ID     int64  `json:"id"`
	UserID string `json:"user_id"`

	// Period names the reflected span, e.g. "week".
	Period  string `json:"period"`
	Insight string `json:"insight"`

	// Analysis is the JSON document the insight was written from.
	Analysis  json.RawMessage `json:"analysis"`
	CreatedAt time.Time       `json:"created_at"`
}

// MemoryQuery selects memories of one user. Zero values disable a filter.
type MemoryQuery struct {
	UserID    string
	PersonaID string

	// MinImportance keeps memories whose importance is strictly greater.
	MinImportance float64

	// Since and Before bound created_at (inclusive lower, exclusive upper).
	Since  time.Time
	Before time.Time

	// ExcludeID drops one memory, typically the seed of a comparison.
	ExcludeID int64

	// IDs restricts the result to the given ids.
	IDs []int64

	UnpinnedOnly bool

	// Limit caps the result size; 0 means unlimited.
	Limit int

	// Ascending orders oldest first; the default is newest first.
	Ascending bool
}

// ChainQuery selects chains of one user, strongest first.
type ChainQuery struct {
	UserID string

	// Text matches the summary or a topic, case-insensitively.
	Text string

	UpdatedBefore time.Time
	Limit         int
}

// BeliefQuery selects beliefs, strongest first.
type BeliefQuery struct {
	UserID     string
	Category   string
	ActiveOnly bool
	Limit      int
}

// GoalQuery selects goals, highest priority first.
type GoalQuery struct {
	UserID        string
	Status        GoalStatus
	UpdatedBefore time.Time
	Limit         int
}

// EmotionQuery selects timeline events of one user, newest first.
type EmotionQuery struct {
	UserID string
	Since  time.Time
	Limit  int
}

// MemoryStore persists episodic memories.
type MemoryStore interface {
	InsertMemory(ctx context.Context, memory *Memory) error
	GetMemory(ctx context.Context, userID string, id int64) (*Memory, error)
	ListMemories(ctx context.Context, q MemoryQuery) ([]*Memory, error)

	// TouchMemories increments access_count and sets last_accessed for
	// exactly the given ids in one statement.
	TouchMemories(ctx context.Context, userID string, ids []int64, at time.Time) (int64, error)

	UpdateImportance(ctx context.Context, userID string, id int64, importance float64) error
	SetPinned(ctx context.Context, userID string, id int64, pinned bool) error
	DeleteMemory(ctx context.Context, userID string, id int64) error

	// DeleteForgettable removes unpinned, never accessed memories below
	// maxImportance created before the cutoff.
	DeleteForgettable(ctx context.Context, userID string, maxImportance float64, createdBefore time.Time) (int64, error)

	MemoryStats(ctx context.Context, userID string) (*MemoryStats, error)

	// ListUsers returns every user that owns memories or personality state.
	ListUsers(ctx context.Context) ([]string, error)

	// ListActiveUsers returns users with a memory created at or after since.
	ListActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// ChainStore persists memory chains.
type ChainStore interface {
	InsertChain(ctx context.Context, chain *Chain) error
	GetChain(ctx context.Context, userID string, id int64) (*Chain, error)
	UpdateChain(ctx context.Context, chain *Chain) error
	ListChains(ctx context.Context, q ChainQuery) ([]*Chain, error)

	// ListStaleChains returns chains of every user not updated since the cutoff.
	ListStaleChains(ctx context.Context, updatedBefore time.Time, limit int) ([]*Chain, error)

	TouchChain(ctx context.Context, userID string, id int64, at time.Time) error
	UpdateChainStrength(ctx context.Context, id int64, strength float64) error

	// DeleteChains removes chains created before the cutoff that were never
	// accessed and whose strength is below maxStrength (0 disables the
	// strength condition).
	DeleteChains(ctx context.Context, maxStrength float64, createdBefore time.Time) (int64, error)
}

// PersonalityStore persists personality traits.
type PersonalityStore interface {
	GetTraits(ctx context.Context, userID string) ([]*Trait, error)
	UpsertTrait(ctx context.Context, trait *Trait) error

	// ModifyTrait locks the (user, name) row, passes it to fn and writes
	// the result back in the same transaction. A missing row is handed to
	// fn as a fresh trait with exists false and inserted afterwards.
	ModifyTrait(ctx context.Context, userID, name string, fn func(t *Trait, exists bool) error) (*Trait, error)
}

// UserModelStore persists beliefs, goals and mental states.
//
// Beliefs and goals are unique per (user, key). UpsertBelief and UpsertGoal
// are the read-modify-write entry points: fn runs on the locked row, or on a
// fresh record when none exists yet, and the outcome is written in the same
// transaction. Conflicting writers are retried, so fn may run more than once
// and must not call back into the store.
type UserModelStore interface {
	FindBelief(ctx context.Context, userID, key string) (*Belief, error)
	InsertBelief(ctx context.Context, belief *Belief) error
	UpdateBelief(ctx context.Context, belief *Belief) error
	UpsertBelief(ctx context.Context, userID, key string, fn func(b *Belief, exists bool) error) (*Belief, error)
	ListBeliefs(ctx context.Context, q BeliefQuery) ([]*Belief, error)
	StrengthenBeliefs(ctx context.Context, reinforcedSince time.Time, factor float64) (int64, error)
	DeactivateBeliefs(ctx context.Context, reinforcedBefore time.Time, maxStrength float64) (int64, error)

	FindGoal(ctx context.Context, userID, key string) (*Goal, error)
	GetGoal(ctx context.Context, userID string, id int64) (*Goal, error)
	InsertGoal(ctx context.Context, goal *Goal) error
	UpdateGoal(ctx context.Context, goal *Goal) error
	UpsertGoal(ctx context.Context, userID, key string, fn func(g *Goal, exists bool) error) (*Goal, error)

	// ModifyGoal applies fn to a stored goal under its row lock.
	ModifyGoal(ctx context.Context, userID string, id int64, fn func(g *Goal) error) (*Goal, error)

	ListGoals(ctx context.Context, q GoalQuery) ([]*Goal, error)
	AbandonGoals(ctx context.Context, updatedBefore time.Time) (int64, error)

	InsertMentalState(ctx context.Context, state *MentalState) error
	LatestMentalState(ctx context.Context, userID string) (*MentalState, error)
	PruneMentalStates(ctx context.Context, userID string, keep int) (int64, error)
}

// EmotionStore persists the emotional timeline and the patterns learned
// from it.
type EmotionStore interface {
	InsertEmotionEvents(ctx context.Context, events []*EmotionEvent) error
	ListEmotionEvents(ctx context.Context, q EmotionQuery) ([]*EmotionEvent, error)

	// EmotionTrends groups the events created at or after since by type,
	// highest average intensity first.
	EmotionTrends(ctx context.Context, userID string, since time.Time) ([]*EmotionTrend, error)

	// DeleteEmotionEvents removes events of every user created before the cutoff.
	DeleteEmotionEvents(ctx context.Context, createdBefore time.Time) (int64, error)

	// UpsertEmotionPattern runs fn on the locked (user, type) pattern, or
	// on a fresh one with exists false, and writes the result.
	UpsertEmotionPattern(ctx context.Context, userID, emotionType string, fn func(p *EmotionPattern, exists bool) error) (*EmotionPattern, error)

	// ListEmotionPatterns returns patterns, most confident first.
	ListEmotionPatterns(ctx context.Context, userID string, limit int) ([]*EmotionPattern, error)
}

// ReflectionStore persists self-reflections.
type ReflectionStore interface {
	InsertReflection(ctx context.Context, r *Reflection) error

	// ListReflections returns the newest reflections of a user.
	ListReflections(ctx context.Context, userID string, limit int) ([]*Reflection, error)
}

// Store is the full persistence surface used by the client.
type Store interface {
	MemoryStore
	ChainStore
	PersonalityStore
	UserModelStore
	EmotionStore
	ReflectionStore

	// Close releases the underlying connection.
	Close() error
}

// MaxKeyLength is the number of runes kept by NormalizeKey. Keys are
// indexed, and VARCHAR(255) is the widest uniquely indexable column on
// every backend.
const MaxKeyLength = 255

// NormalizeKey lower-cases and collapses whitespace so that the same
// statement phrased with different spacing or casing maps to one row.
func NormalizeKey(text string) string {
	key := strings.ToLower(strings.Join(strings.Fields(text), " "))
	if utf8.RuneCountInString(key) <= MaxKeyLength {
		return key
	}
	return strings.TrimSpace(string([]rune(key)[:MaxKeyLength]))
}
