package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/odiumxp/ai-brain/pkg/chains"
	"github.com/odiumxp/ai-brain/pkg/embedder"
	"github.com/odiumxp/ai-brain/pkg/emotion"
	"github.com/odiumxp/ai-brain/pkg/embedder/hash"
	openaiEmbedder "github.com/odiumxp/ai-brain/pkg/embedder/openai"
	"github.com/odiumxp/ai-brain/pkg/episodic"
	"github.com/odiumxp/ai-brain/pkg/llm"
	ollamaLLM "github.com/odiumxp/ai-brain/pkg/llm/ollama"
	openaiLLM "github.com/odiumxp/ai-brain/pkg/llm/openai"
	"github.com/odiumxp/ai-brain/pkg/logger"
	"github.com/odiumxp/ai-brain/pkg/metrics"
	"github.com/odiumxp/ai-brain/pkg/oracle"
	"github.com/odiumxp/ai-brain/pkg/personality"
	"github.com/odiumxp/ai-brain/pkg/reflection"
	"github.com/odiumxp/ai-brain/pkg/scheduler"
	"github.com/odiumxp/ai-brain/pkg/storage"
	mysqlStore "github.com/odiumxp/ai-brain/pkg/storage/mysql"
	postgresStore "github.com/odiumxp/ai-brain/pkg/storage/postgres"
	sqliteStore "github.com/odiumxp/ai-brain/pkg/storage/sqlite"
	"github.com/odiumxp/ai-brain/pkg/usermodel"
)

// shutdownTimeout bounds how long Close waits for queued tasks.
const shutdownTimeout = 30 * time.Second

// Client is the ai-brain entry point.
//
// It owns the episodic store, both oracles, the six engines, the
// maintenance scheduler and the background queue that RecordTurn feeds.
// The client is safe for concurrent use.
//
// Example usage:
//
//	cfg, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(ctx, cfg)
//	defer client.Close()
//
//	memory, _ := client.RecordTurn(ctx, core.Turn{
//	    UserID:   "user_001",
//	    UserText: "How do I keep my plants alive?",
//	    AIText:   "Water them less than you think.",
//	})
type Client struct {
	config *Config

	store      storage.Store
	llm        llm.Provider
	embedder   embedder.Provider
	embeddings *oracle.EmbeddingOracle
	text       *oracle.TextOracle

	memories    *episodic.Engine
	chains      *chains.Engine
	personality *personality.Engine
	userModel   *usermodel.Engine
	emotion     *emotion.Engine
	reflection  *reflection.Engine
	scheduler   *scheduler.Scheduler
	queue       *TaskQueue
	now         func() time.Time

	metrics   *metrics.Manager
	logger    zerolog.Logger
	logCloser io.Closer
	redis     *redis.Client

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a client from cfg.
//
// The configuration is validated first. Anything passed through opts is
// used as is instead of being built from cfg.
//
// Example:
//
//	cfg := core.DefaultConfig()
//	cfg.Store.SQLite.Path = "./brain.db"
//	client, err := core.NewClient(ctx, cfg)
func NewClient(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, NewBrainError("NewClient", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	c := &Client{config: cfg, now: o.now}

	if o.logger != nil {
		c.logger = *o.logger
	} else {
		log, closer, err := logger.New(cfg.Log)
		if err != nil {
			return nil, NewBrainError("NewClient", err)
		}
		c.logger, c.logCloser = log, closer
	}

	c.metrics = o.metrics
	if c.metrics == nil {
		c.metrics = metrics.NewManager(cfg.Metrics)
	}

	if err := c.init(ctx, cfg, o); err != nil {
		_ = c.release()
		return nil, err
	}

	c.logger.Info().
		Str("store", cfg.Store.Provider).
		Str("llm", cfg.LLM.Provider).
		Str("embedder", cfg.Embedder.Provider).
		Strs("jobs", c.scheduler.Jobs()).
		Msg("client ready")
	return c, nil
}

func (c *Client) init(ctx context.Context, cfg *Config, o clientOptions) error {
	var err error

	c.store = o.store
	if c.store == nil {
		if c.store, err = initStorage(ctx, cfg.Store); err != nil {
			return NewBrainError("NewClient", err)
		}
	}

	c.llm = o.llm
	if c.llm == nil {
		if c.llm, err = initLLM(cfg.LLM); err != nil {
			return NewBrainError("NewClient", err)
		}
	}

	c.embedder = o.embedder
	if c.embedder == nil {
		if c.embedder, err = initEmbedder(cfg.Embedder); err != nil {
			return NewBrainError("NewClient", err)
		}
	}

	oracleOpts := []oracle.Option{oracle.WithLogger(c.logger), oracle.WithMetrics(c.metrics)}
	if c.embeddings, err = oracle.NewEmbeddingOracle(c.embedder, cfg.Oracle, oracleOpts...); err != nil {
		return NewBrainError("NewClient", err)
	}
	c.text = oracle.NewTextOracle(c.llm, cfg.Oracle, oracleOpts...)

	c.memories = episodic.New(c.store, c.embeddings, c.text, cfg.Retrieval,
		episodic.WithLogger(c.logger.With().Str("component", "episodic").Logger()),
		episodic.WithMetrics(c.metrics),
		episodic.WithClock(o.now),
		episodic.WithStoreTimeout(cfg.Store.Timeout),
	)
	c.chains = chains.New(c.store, c.text, cfg.Chains,
		chains.WithLogger(c.logger.With().Str("component", "chains").Logger()),
		chains.WithClock(o.now),
	)
	c.personality = personality.New(c.store, cfg.Personality,
		personality.WithLogger(c.logger.With().Str("component", "personality").Logger()),
		personality.WithClock(o.now),
	)
	userModelOpts := []usermodel.Option{
		usermodel.WithLogger(c.logger.With().Str("component", "usermodel").Logger()),
		usermodel.WithClock(o.now),
	}
	if o.sampler != nil {
		userModelOpts = append(userModelOpts, usermodel.WithSampler(o.sampler))
	}
	c.userModel = usermodel.New(c.store, c.text, cfg.UserModel, userModelOpts...)
	c.emotion = emotion.New(c.store, c.text, cfg.Emotion,
		emotion.WithLogger(c.logger.With().Str("component", "emotion").Logger()),
		emotion.WithClock(o.now),
	)
	c.reflection = reflection.New(c.store, c.text, cfg.Reflection,
		reflection.WithLogger(c.logger.With().Str("component", "reflection").Logger()),
		reflection.WithClock(o.now),
	)

	lock := o.lock
	if lock == nil && cfg.Redis.Addr != "" {
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return NewBrainError("NewClient", fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err))
		}
		lock = scheduler.NewRedisGuard(c.redis, cfg.Redis.Prefix)
	}

	schedulerOpts := []scheduler.Option{
		scheduler.WithLogger(c.logger.With().Str("component", "scheduler").Logger()),
		scheduler.WithMetrics(c.metrics),
		scheduler.WithClock(o.now),
	}
	if lock != nil {
		schedulerOpts = append(schedulerOpts, scheduler.WithLock(lock, cfg.Scheduler.LockTTL))
	}
	c.scheduler = scheduler.New(schedulerOpts...)
	jobs := scheduler.StandardJobs(scheduler.Engines{
		Users:       c.store,
		Episodic:    c.memories,
		Chains:      c.chains,
		Personality: c.personality,
		UserModel:   c.userModel,
		Emotion:     c.emotion,
		Reflection:  c.reflection,
	}, cfg.Scheduler, o.now)
	if err := c.scheduler.Register(jobs...); err != nil {
		return NewBrainError("NewClient", err)
	}

	c.queue = NewTaskQueue(cfg.Queue, c.logger.With().Str("component", "queue").Logger(), c.metrics)
	return nil
}

// Config returns the configuration the client was built from.
func (c *Client) Config() *Config {
	return c.config
}

// Store exposes the underlying store.
func (c *Client) Store() storage.Store {
	return c.store
}

// Metrics returns the metrics manager; its Handler serves /metrics.
func (c *Client) Metrics() *metrics.Manager {
	return c.metrics
}

// QueueStats reports the background queue counters.
func (c *Client) QueueStats() QueueStats {
	return c.queue.Stats()
}

// StoreMemory scores and persists one turn without scheduling any follow
// up work. Oracle failures degrade the stored record; only store failures
// are returned.
func (c *Client) StoreMemory(ctx context.Context, turn Turn) (*Memory, error) {
	if c.closed.Load() {
		return nil, NewBrainError("StoreMemory", ErrClosed)
	}
	m, err := c.memories.StoreMemory(ctx, turn)
	if err != nil {
		return nil, classify("StoreMemory", err)
	}
	return m, nil
}

// RecordTurn stores the turn and then queues chain building, user model
// extraction, personality evolution and emotion detection for it. The
// caller does not wait for the queued work. A task the full queue drops is
// picked up by the next maintenance run.
func (c *Client) RecordTurn(ctx context.Context, turn Turn) (*Memory, error) {
	if c.closed.Load() {
		return nil, NewBrainError("RecordTurn", ErrClosed)
	}
	m, err := c.memories.StoreMemory(ctx, turn)
	if err != nil {
		return nil, classify("RecordTurn", err)
	}

	userID, memoryID, text, full := m.UserID, m.ID, m.UserText, m.Text()
	c.queue.Submit(Task{Name: "chains.build", UserID: userID, Run: func(ctx context.Context) error {
		_, err := c.chains.BuildForSeed(ctx, userID, memoryID)
		return err
	}})
	c.queue.Submit(Task{Name: "usermodel.process", UserID: userID, Run: func(ctx context.Context) error {
		_, err := c.userModel.ProcessConversation(ctx, userID, text, memoryID)
		return err
	}})
	c.queue.Submit(Task{Name: "personality.update", UserID: userID, Run: func(ctx context.Context) error {
		_, err := c.personality.UpdatePersonality(ctx, userID)
		return err
	}})
	c.queue.Submit(Task{Name: "emotion.detect", UserID: userID, Run: func(ctx context.Context) error {
		_, err := c.emotion.DetectEmotions(ctx, userID, memoryID, full)
		return err
	}})
	return m, nil
}

// RetrieveRelevantMemories returns the memories most relevant to query
// and records one access on each of them. An empty query, or one the
// embedding oracle cannot embed, returns the most recent memories.
//
// Example:
//
//	memories, err := client.RetrieveRelevantMemories(ctx, "user_001", "garden",
//	    core.WithLimit(3))
func (c *Client) RetrieveRelevantMemories(ctx context.Context, userID, query string, opts ...RetrieveOption) ([]*Memory, error) {
	options := applyRetrieveOptions(opts)
	memories, err := c.memories.RetrieveRelevantMemories(ctx, episodic.Query{
		UserID:    userID,
		PersonaID: options.PersonaID,
		Text:      query,
		Limit:     options.Limit,
	})
	if err != nil {
		return nil, classify("RetrieveRelevantMemories", err)
	}
	return memories, nil
}

// GetMemory returns one memory without counting an access.
func (c *Client) GetMemory(ctx context.Context, userID string, id int64) (*Memory, error) {
	m, err := c.memories.GetMemory(ctx, userID, id)
	if err != nil {
		return nil, classify("GetMemory", err)
	}
	return m, nil
}

// GetMemoryStats aggregates the memories of a user.
func (c *Client) GetMemoryStats(ctx context.Context, userID string) (*MemoryStats, error) {
	if userID == "" {
		return nil, NewBrainError("GetMemoryStats", ErrInvalidInput)
	}
	stats, err := c.memories.GetMemoryStats(ctx, userID)
	if err != nil {
		return nil, classify("GetMemoryStats", err)
	}
	return stats, nil
}

// PinMemory protects a memory from consolidation and forgetting.
func (c *Client) PinMemory(ctx context.Context, userID string, id int64) error {
	return classify("PinMemory", c.memories.Pin(ctx, userID, id))
}

// UnpinMemory returns a memory to normal maintenance.
func (c *Client) UnpinMemory(ctx context.Context, userID string, id int64) error {
	return classify("UnpinMemory", c.memories.Unpin(ctx, userID, id))
}

// DeleteMemory removes a memory.
func (c *Client) DeleteMemory(ctx context.Context, userID string, id int64) error {
	return classify("DeleteMemory", c.memories.Delete(ctx, userID, id))
}

// Close stops the scheduler, runs the queued tasks and releases every
// resource. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.scheduler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if err := c.queue.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain queue: %w", err))
		}
		if err := c.release(); err != nil {
			errs = append(errs, err)
		}
		c.closeErr = NewBrainError("Close", errors.Join(errs...))
	})
	return c.closeErr
}

// release closes what init opened, in reverse order.
func (c *Client) release() error {
	var errs []error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.embeddings.Close()
	if c.embedder != nil {
		if err := c.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.llm != nil {
		if err := c.llm.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.logCloser != nil {
		if err := c.logCloser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initStorage opens the configured store backend.
func initStorage(ctx context.Context, cfg StoreConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		store, err := sqliteStore.NewClient(ctx, &sqliteStore.Config{
			DBPath: cfg.SQLite.Path,
			NodeID: cfg.NodeID,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgresStore.NewClient(ctx, &postgresStore.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
			NodeID:   cfg.NodeID,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "mysql":
		store, err := mysqlStore.NewClient(ctx, &mysqlStore.Config{
			Host:     cfg.MySQL.Host,
			Port:     cfg.MySQL.Port,
			User:     cfg.MySQL.User,
			Password: cfg.MySQL.Password,
			DBName:   cfg.MySQL.Database,
			NodeID:   cfg.NodeID,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: unknown store provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// initLLM creates the text-understanding provider. "none" yields a nil
// provider, which the text oracle treats as permanently unavailable.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	baseURL, model := providerDefaults(cfg.Provider)
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		model = cfg.Model
	}

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai", "deepseek", "qwen":
		client, err := openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: baseURL,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case "ollama":
		client, err := ollamaLLM.NewClient(&ollamaLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   model,
			BaseURL: baseURL,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

// initEmbedder creates the embedding provider. "none" yields a nil
// provider, which disables similarity ranking.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	baseURL, model := embedderDefaults(cfg.Provider)
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}
	if cfg.Model != "" {
		model = cfg.Model
	}

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "hash":
		return hash.NewClient(&hash.Config{Dimensions: cfg.Dimensions}), nil
	case "openai", "qwen":
		client, err := openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      model,
			BaseURL:    baseURL,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedder provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
