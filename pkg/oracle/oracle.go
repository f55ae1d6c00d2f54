package oracle

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/odiumxp/ai-brain/pkg/metrics"
)

// Config bounds oracle calls.
type Config struct {
	// Timeout applies to each individual call (default 10s).
	Timeout time.Duration `koanf:"timeout"`

	// RatePerSecond caps calls per oracle; 0 disables limiting.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int     `koanf:"burst" validate:"gte=0"`

	// CacheSize is the number of query embeddings kept in memory; 0
	// disables the cache.
	CacheSize int64         `koanf:"cache_size" validate:"gte=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`
}

// DefaultConfig returns the default oracle configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		RatePerSecond: 10,
		Burst:         20,
		CacheSize:     10000,
		CacheTTL:      time.Hour,
	}
}

// Option configures an oracle.
type Option func(*options)

type options struct {
	logger  zerolog.Logger
	metrics *metrics.Manager
}

// WithLogger sets the logger used for degradations.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records call outcomes in m.
func WithMetrics(m *metrics.Manager) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: zerolog.Nop(), metrics: metrics.NoOpManager()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// caller is the shared timeout, rate limit and metrics plumbing.
type caller struct {
	name    string
	timeout time.Duration
	limiter *rate.Limiter
	options
}

func newCaller(name string, cfg Config, o options) caller {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return caller{name: name, timeout: timeout, limiter: limiter, options: o}
}

// call runs fn under the per-call timeout after waiting for the limiter.
// Waiting for the limiter counts against the timeout.
func (c *caller) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}

func (c *caller) record(operation string, status Status, start time.Time, err error) {
	c.metrics.RecordOracleCall(c.name, operation, status.String(), time.Since(start))
	if status != StatusOK {
		c.logger.Warn().
			Str("oracle", c.name).
			Str("operation", operation).
			Str("status", status.String()).
			Err(err).
			Msg("oracle call degraded")
	}
}
