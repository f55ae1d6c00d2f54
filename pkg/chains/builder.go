// Package chains links related episodic memories into ordered,
// strength-scored narrative chains and maintains them over time.
package chains

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/storage"
)

// PlaceholderSummary is stored when the summary cannot be generated.
const PlaceholderSummary = "Unable to generate summary due to an error."

// Store is the persistence the chain engine needs.
type Store interface {
	storage.MemoryStore
	storage.ChainStore
}

// Config tunes chain construction and maintenance.
type Config struct {
	// Window is how many recent memories a seed is compared against.
	Window int `koanf:"window" validate:"gte=1"`

	// MinRelationships is the number of meaningful relationships a seed
	// needs before a chain is created.
	MinRelationships int `koanf:"min_relationships" validate:"gte=1"`

	// MaxRelated caps the related memories joined to the seed.
	MaxRelated int `koanf:"max_related" validate:"gte=1"`

	// ChainType tags newly built chains.
	ChainType string `koanf:"chain_type"`

	// MaxSeeds and Lookback bound one Build call.
	MaxSeeds int           `koanf:"max_seeds" validate:"gte=1"`
	Lookback time.Duration `koanf:"lookback"`

	// SeedPool is how many recent memories Build scans for seeds.
	SeedPool int `koanf:"seed_pool" validate:"gte=1"`

	// RebuildSeeds and RebuildLookback are used by maintenance.
	RebuildSeeds    int           `koanf:"rebuild_seeds" validate:"gte=1"`
	RebuildLookback time.Duration `koanf:"rebuild_lookback"`

	Extend  ExtendConfig  `koanf:"extend"`
	Cleanup CleanupConfig `koanf:"cleanup"`
}

// ExtendConfig selects the chains maintenance tries to extend.
type ExtendConfig struct {
	MinStrength float64       `koanf:"min_strength"`
	MinAccess   int64         `koanf:"min_access"`
	Idle        time.Duration `koanf:"idle"`
	Limit       int           `koanf:"limit"`
	Window      int           `koanf:"window"`

	// Threshold is the strength the best new relationship must exceed.
	Threshold float64 `koanf:"threshold"`
}

// CleanupConfig controls chain decay and deletion.
type CleanupConfig struct {
	MaxStrength    float64       `koanf:"max_strength"`
	MinAge         time.Duration `koanf:"min_age"`
	DecayIdle      time.Duration `koanf:"decay_idle"`
	DecayFloor     float64       `koanf:"decay_floor"`
	DeepCleanupAge time.Duration `koanf:"deep_cleanup_age"`
}

// DefaultConfig returns the default chain configuration.
func DefaultConfig() Config {
	return Config{
		Window:           50,
		MinRelationships: 2,
		MaxRelated:       5,
		ChainType:        "narrative",
		MaxSeeds:         10,
		Lookback:         7 * 24 * time.Hour,
		SeedPool:         100,
		RebuildSeeds:     5,
		RebuildLookback:  14 * 24 * time.Hour,
		Extend: ExtendConfig{
			MinStrength: 0.7,
			MinAccess:   10,
			Idle:        24 * time.Hour,
			Limit:       20,
			Window:      20,
			Threshold:   0.5,
		},
		Cleanup: CleanupConfig{
			MaxStrength:    0.2,
			MinAge:         30 * 24 * time.Hour,
			DecayIdle:      7 * 24 * time.Hour,
			DecayFloor:     0.1,
			DeepCleanupAge: 90 * 24 * time.Hour,
		},
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MinRelationships <= 0 {
		c.MinRelationships = def.MinRelationships
	}
	if c.MaxRelated <= 0 {
		c.MaxRelated = def.MaxRelated
	}
	if c.ChainType == "" {
		c.ChainType = def.ChainType
	}
	if c.MaxSeeds <= 0 {
		c.MaxSeeds = def.MaxSeeds
	}
	if c.Lookback <= 0 {
		c.Lookback = def.Lookback
	}
	if c.SeedPool <= 0 {
		c.SeedPool = def.SeedPool
	}
	if c.RebuildSeeds <= 0 {
		c.RebuildSeeds = def.RebuildSeeds
	}
	if c.RebuildLookback <= 0 {
		c.RebuildLookback = def.RebuildLookback
	}
	if c.Extend == (ExtendConfig{}) {
		c.Extend = def.Extend
	}
	if c.Cleanup == (CleanupConfig{}) {
		c.Cleanup = def.Cleanup
	}
	return c
}

// Engine builds, reads and maintains memory chains.
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

// New creates a chain engine. A nil text oracle stores placeholder
// summaries and plain narratives.
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

// BuildOptions bounds one Build call. Zero values use the configuration.
type BuildOptions struct {
	MaxSeeds int
	Lookback time.Duration
}

// Build tries each recent memory of the user as a chain seed and returns
// the number of chains created. Seeds already part of a chain are skipped,
// so repeated builds over the same memories create no duplicates.
func (e *Engine) Build(ctx context.Context, userID string, opts BuildOptions) (int, error) {
	if opts.MaxSeeds <= 0 {
		opts.MaxSeeds = e.cfg.MaxSeeds
	}
	if opts.Lookback <= 0 {
		opts.Lookback = e.cfg.Lookback
	}

	recent, err := e.store.ListMemories(ctx, storage.MemoryQuery{
		UserID: userID,
		Since:  e.now().UTC().Add(-opts.Lookback),
		Limit:  e.cfg.SeedPool,
	})
	if err != nil {
		return 0, fmt.Errorf("build chains: %w", err)
	}

	chained, err := e.chainedMemories(ctx, userID)
	if err != nil {
		return 0, err
	}

	created, tried := 0, 0
	for _, seed := range recent {
		if tried >= opts.MaxSeeds {
			break
		}
		if chained[seed.ID] {
			continue
		}
		tried++

		chain, err := e.buildFrom(ctx, seed)
		if err != nil {
			return created, err
		}
		if chain == nil {
			continue
		}
		for _, id := range chain.MemoryIDs {
			chained[id] = true
		}
		created++
	}

	e.logger.Info().Str("user_id", userID).Int("seeds", tried).Int("created", created).Msg("memory chains built")
	return created, nil
}

// BuildForSeed tries to build a chain starting from one memory. It returns
// nil without error when the memory is already chained or has too few
// meaningful relationships.
func (e *Engine) BuildForSeed(ctx context.Context, userID string, memoryID int64) (*storage.Chain, error) {
	seed, err := e.store.GetMemory(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	chained, err := e.chainedMemories(ctx, userID)
	if err != nil {
		return nil, err
	}
	if chained[seed.ID] {
		return nil, nil
	}
	return e.buildFrom(ctx, seed)
}

// Relationships returns the meaningful relationships of one memory within
// the configured window, strongest first.
func (e *Engine) Relationships(ctx context.Context, userID string, memoryID int64) ([]Relationship, error) {
	seed, err := e.store.GetMemory(ctx, userID, memoryID)
	if err != nil {
		return nil, err
	}
	return e.detect(ctx, seed, storage.MemoryQuery{Limit: e.cfg.Window})
}

func (e *Engine) detect(ctx context.Context, seed *storage.Memory, q storage.MemoryQuery) ([]Relationship, error) {
	q.UserID = seed.UserID
	q.ExcludeID = seed.ID
	candidates, err := e.store.ListMemories(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("detect relationships: %w", err)
	}
	return DetectRelationships(seed, candidates), nil
}

func (e *Engine) buildFrom(ctx context.Context, seed *storage.Memory) (*storage.Chain, error) {
	rels, err := e.detect(ctx, seed, storage.MemoryQuery{Limit: e.cfg.Window})
	if err != nil {
		return nil, err
	}
	if len(rels) < e.cfg.MinRelationships {
		return nil, nil
	}
	if len(rels) > e.cfg.MaxRelated {
		rels = rels[:e.cfg.MaxRelated]
	}
	return e.create(ctx, seed, rels)
}

// create persists a chain of the seed and its relationships in
// chronological order. Its strength is the mean included strength.
func (e *Engine) create(ctx context.Context, seed *storage.Memory, rels []Relationship) (*storage.Chain, error) {
	memories := make([]*storage.Memory, 0, len(rels)+1)
	memories = append(memories, seed)
	total := 0.0
	for _, r := range rels {
		memories = append(memories, r.Memory)
		total += r.Strength
	}
	chronological(memories)

	ids := make([]int64, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
	}

	now := e.now().UTC()
	chain := &storage.Chain{
		UserID:        seed.UserID,
		Name:          ChainName(e.cfg.ChainType, memories),
		Type:          e.cfg.ChainType,
		MemoryIDs:     ids,
		StartMemoryID: ids[0],
		EndMemoryID:   ids[len(ids)-1],
		Strength:      total / float64(len(rels)),
		Summary:       e.summarize(ctx, memories),
		Topics:        ExtractTopics(memories),
		Arc:           AnalyzeEmotionalArc(memories),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.InsertChain(ctx, chain); err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}

	e.logger.Debug().
		Str("user_id", chain.UserID).
		Int64("chain_id", chain.ID).
		Int64("memory_id", seed.ID).
		Int("length", len(ids)).
		Float64("strength", chain.Strength).
		Msg("memory chain created")
	return chain, nil
}

func (e *Engine) summarize(ctx context.Context, memories []*storage.Memory) string {
	turns := make([]string, len(memories))
	for i, m := range memories {
		turns[i] = m.CreatedAt.UTC().Format(time.RFC3339) + ": " + m.Text()
	}
	r := e.text.SummarizeChain(ctx, e.cfg.ChainType, turns)
	if !r.IsOK() {
		return PlaceholderSummary
	}
	return r.Value
}

func (e *Engine) chainedMemories(ctx context.Context, userID string) (map[int64]bool, error) {
	chains, err := e.store.ListChains(ctx, storage.ChainQuery{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	chained := make(map[int64]bool)
	for _, c := range chains {
		for _, id := range c.MemoryIDs {
			chained[id] = true
		}
	}
	return chained, nil
}
