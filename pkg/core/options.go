package core

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/embedder"
	"github.com/odiumxp/ai-brain/pkg/llm"
	"github.com/odiumxp/ai-brain/pkg/metrics"
	"github.com/odiumxp/ai-brain/pkg/scheduler"
	"github.com/odiumxp/ai-brain/pkg/storage"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// Option is a function type for configuring NewClient.
//
// Options replace parts that would otherwise be built from the Config,
// which is how tests inject deterministic providers.
type Option func(*clientOptions)

type clientOptions struct {
	logger   *zerolog.Logger
	store    storage.Store
	llm      llm.Provider
	embedder embedder.Provider
	metrics  *metrics.Manager
	lock     scheduler.Lock
	now      func() time.Time
	sampler  usermodel.Sampler
}

// WithLogger sets the logger instead of building one from Config.Log.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = &logger
	}
}

// WithStore uses an already opened store. The client closes it on Close.
//
// Example:
//
//	store, _ := sqlite.NewClient(ctx, &sqlite.Config{DBPath: ":memory:"})
//	client, _ := core.NewClient(ctx, cfg, core.WithStore(store))
func WithStore(store storage.Store) Option {
	return func(o *clientOptions) {
		o.store = store
	}
}

// WithLLMProvider uses provider for the text-understanding oracle.
func WithLLMProvider(provider llm.Provider) Option {
	return func(o *clientOptions) {
		o.llm = provider
	}
}

// WithEmbedderProvider uses provider for the embedding oracle.
func WithEmbedderProvider(provider embedder.Provider) Option {
	return func(o *clientOptions) {
		o.embedder = provider
	}
}

// WithMetrics shares a metrics manager instead of creating one from
// Config.Metrics.
func WithMetrics(m *metrics.Manager) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// WithJobLock adds a cross-process lock to the scheduler. It takes
// precedence over Config.Redis.
func WithJobLock(lock scheduler.Lock) Option {
	return func(o *clientOptions) {
		o.lock = lock
	}
}

// WithClock replaces time.Now in every engine.
func WithClock(now func() time.Time) Option {
	return func(o *clientOptions) {
		o.now = now
	}
}

// WithSampler replaces the random source deciding when a processed
// conversation also infers a mental state.
func WithSampler(s usermodel.Sampler) Option {
	return func(o *clientOptions) {
		o.sampler = s
	}
}

// RetrieveOption is a function type for configuring retrievals.
type RetrieveOption func(*RetrieveOptions)

// RetrieveOptions contains configuration options for retrievals.
type RetrieveOptions struct {
	// PersonaID restricts the candidates to one persona.
	PersonaID string

	// Limit caps the number of memories returned. Zero uses
	// Config.Retrieval.DefaultLimit.
	Limit int
}

// WithPersona restricts a retrieval to one persona.
//
// Example:
//
//	memories, _ := client.RetrieveRelevantMemories(ctx, "user_001", "trip",
//	    core.WithPersona("travel-agent"))
func WithPersona(personaID string) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.PersonaID = personaID
	}
}

// WithLimit caps the number of memories a retrieval returns.
func WithLimit(limit int) RetrieveOption {
	return func(opts *RetrieveOptions) {
		opts.Limit = limit
	}
}

// applyRetrieveOptions applies the retrieve options.
func applyRetrieveOptions(opts []RetrieveOption) *RetrieveOptions {
	options := &RetrieveOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
