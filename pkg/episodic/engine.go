// Package episodic stores conversation turns as scored memories and selects
// the relevant ones at read time.
package episodic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/intelligence"
	"github.com/odiumxp/ai-brain/pkg/metrics"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// ErrInvalidTurn is returned for a turn without user id or text.
var ErrInvalidTurn = errors.New("invalid conversation turn")

// Config tunes storage and retrieval.
type Config struct {
	// RelevanceFloor excludes memories whose importance is not above it.
	RelevanceFloor float64 `koanf:"relevance_floor" validate:"gte=0,lte=3"`

	// CandidatePool is how many recent memories are ranked by similarity.
	CandidatePool int `koanf:"candidate_pool" validate:"gte=1"`

	// DefaultLimit applies when a retrieval does not set one.
	DefaultLimit int `koanf:"default_limit" validate:"gte=1"`

	// DecayRate is the per-day Ebbinghaus decay used by consolidation.
	DecayRate float64 `koanf:"decay_rate" validate:"gte=0"`

	// ConsolidationMinAge skips memories younger than this.
	ConsolidationMinAge time.Duration `koanf:"consolidation_min_age"`
}

// DefaultConfig returns the default episodic configuration.
func DefaultConfig() Config {
	return Config{
		RelevanceFloor:      0.3,
		CandidatePool:       200,
		DefaultLimit:        5,
		DecayRate:           0.01,
		ConsolidationMinAge: 24 * time.Hour,
	}
}

// Engine is the importance and retrieval engine.
type Engine struct {
	store      storage.MemoryStore
	embeddings *oracle.EmbeddingOracle
	text       *oracle.TextOracle
	evaluator  *intelligence.ImportanceEvaluator
	ebbinghaus *intelligence.EbbinghausManager
	cfg        Config
	logger     zerolog.Logger
	metrics    *metrics.Manager
	now        func() time.Time

	storeTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records stores and retrievals in m.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithStoreTimeout bounds each store call made while storing or
// retrieving memories. Zero leaves the caller's context as is.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.storeTimeout = d
	}
}

// storeContext derives the context for one store call.
func (e *Engine) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.storeTimeout)
}

// WithEvaluator replaces the default importance evaluator.
func WithEvaluator(evaluator *intelligence.ImportanceEvaluator) Option {
	return func(e *Engine) {
		e.evaluator = evaluator
	}
}

// New creates an engine. Either oracle may be nil; the engine then degrades
// as if every call to it failed.
func New(store storage.MemoryStore, embeddings *oracle.EmbeddingOracle, text *oracle.TextOracle, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = def.CandidatePool
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.DecayRate <= 0 {
		cfg.DecayRate = def.DecayRate
	}

	e := &Engine{
		store:      store,
		embeddings: embeddings,
		text:       text,
		evaluator:  intelligence.NewImportanceEvaluator(),
		ebbinghaus: intelligence.NewEbbinghausManager(cfg.DecayRate),
		cfg:        cfg,
		logger:     zerolog.Nop(),
		metrics:    metrics.NoOpManager(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Turn is one exchange between the user and the agent.
type Turn struct {
	UserID    string
	PersonaID string
	UserText  string
	AIText    string
}

// StoreMemory scores and persists a turn. Oracle failures never abort the
// write: the embedding is then stored as NULL and emotions as neutral. Only
// a store failure is returned.
func (e *Engine) StoreMemory(ctx context.Context, turn Turn) (*storage.Memory, error) {
	if turn.UserID == "" || strings.TrimSpace(turn.UserText+turn.AIText) == "" {
		return nil, ErrInvalidTurn
	}

	m := &storage.Memory{
		UserID:    turn.UserID,
		PersonaID: turn.PersonaID,
		UserText:  turn.UserText,
		AIText:    turn.AIText,
		CreatedAt: e.now().UTC(),
	}

	if r := e.embeddings.Embed(ctx, m.Text()); r.IsOK() {
		m.Embedding = r.Value
	}

	// Only the user's side of the turn carries their emotions.
	emotions := e.text.AnalyzeEmotion(ctx, turn.UserText)
	switch emotions.Status {
	case oracle.StatusOK, oracle.StatusDegraded:
		m.Emotions = emotions.Value
	default:
		m.Emotions = intelligence.NeutralEmotions()
	}

	m.BaseImportance = e.evaluator.EvaluateImportance(turn.UserText, m.Emotions)
	m.Importance = m.BaseImportance

	sctx, cancel := e.storeContext(ctx)
	defer cancel()
	if err := e.store.InsertMemory(sctx, m); err != nil {
		return nil, fmt.Errorf("store memory: %w", err)
	}
	e.metrics.RecordMemoryStored(m.Embedding != nil)

	e.logger.Debug().
		Str("user_id", m.UserID).
		Int64("memory_id", m.ID).
		Float64("importance", m.Importance).
		Bool("embedded", m.Embedding != nil).
		Msg("memory stored")
	return m, nil
}

// Query selects memories for a retrieval.
type Query struct {
	UserID    string
	PersonaID string

	// Text ranks candidates by similarity when its embedding is available.
	Text string

	Limit int
}

// RetrieveRelevantMemories returns up to q.Limit memories above the
// relevance floor and records one access on each of them. Candidates are
// ranked by cosine similarity to the query when it can be embedded and by
// recency otherwise.
func (e *Engine) RetrieveRelevantMemories(ctx context.Context, q Query) ([]*storage.Memory, error) {
	if q.UserID == "" {
		return nil, ErrInvalidTurn
	}
	limit := q.Limit
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}

	var query []float64
	if strings.TrimSpace(q.Text) != "" {
		if r := e.embeddings.Embed(ctx, q.Text); r.IsOK() {
			query = r.Value
		}
	}

	list := storage.MemoryQuery{
		UserID:        q.UserID,
		PersonaID:     q.PersonaID,
		MinImportance: e.cfg.RelevanceFloor,
		Limit:         limit,
	}
	ranking := "recency"
	if query != nil {
		list.Limit = e.cfg.CandidatePool
		if list.Limit < limit {
			list.Limit = limit
		}
		ranking = "similarity"
	}

	sctx, cancel := e.storeContext(ctx)
	memories, err := e.store.ListMemories(sctx, list)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("retrieve memories: %w", err)
	}
	if query != nil {
		memories = rankBySimilarity(memories, query)
	}
	if len(memories) > limit {
		memories = memories[:limit]
	}

	if err := e.touch(ctx, q.UserID, memories); err != nil {
		return nil, err
	}
	e.metrics.RecordRetrieval(ranking, len(memories))
	return memories, nil
}

// rankBySimilarity orders memories by cosine similarity to query. Memories
// without an embedding follow, keeping their recency order.
func rankBySimilarity(memories []*storage.Memory, query []float64) []*storage.Memory {
	scores := make(map[int64]float64, len(memories))
	for _, m := range memories {
		if m.Embedding != nil {
			scores[m.ID] = intelligence.CosineSimilarity(query, m.Embedding)
		}
	}
	sort.SliceStable(memories, func(i, j int) bool {
		si, iok := scores[memories[i].ID]
		sj, jok := scores[memories[j].ID]
		if iok != jok {
			return iok
		}
		return si > sj
	})
	return memories
}

func (e *Engine) touch(ctx context.Context, userID string, memories []*storage.Memory) error {
	if len(memories) == 0 {
		return nil
	}
	ids := make([]int64, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	at := e.now().UTC()
	ctx, cancel := e.storeContext(ctx)
	defer cancel()
	if _, err := e.store.TouchMemories(ctx, userID, ids, at); err != nil {
		return fmt.Errorf("record memory access: %w", err)
	}
	for _, m := range memories {
		m.AccessCount++
		accessed := at
		m.LastAccessed = &accessed
	}
	return nil
}

// GetMemoryStats summarises a user's memories.
func (e *Engine) GetMemoryStats(ctx context.Context, userID string) (*storage.MemoryStats, error) {
	return e.store.MemoryStats(ctx, userID)
}

// GetMemory returns one memory without counting an access.
func (e *Engine) GetMemory(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	return e.store.GetMemory(ctx, userID, id)
}

// RecentMemories returns a user's newest memories, newest first.
func (e *Engine) RecentMemories(ctx context.Context, userID string, since time.Time, limit int) ([]*storage.Memory, error) {
	return e.store.ListMemories(ctx, storage.MemoryQuery{UserID: userID, Since: since, Limit: limit})
}

// Pin exempts a memory from every maintenance policy.
func (e *Engine) Pin(ctx context.Context, userID string, id int64) error {
	return e.store.SetPinned(ctx, userID, id, true)
}

// Unpin makes a memory subject to maintenance again.
func (e *Engine) Unpin(ctx context.Context, userID string, id int64) error {
	return e.store.SetPinned(ctx, userID, id, false)
}

// Delete removes a memory on the user's request.
func (e *Engine) Delete(ctx context.Context, userID string, id int64) error {
	return e.store.DeleteMemory(ctx, userID, id)
}
